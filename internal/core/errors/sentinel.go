package errors

// 预定义哨兵错误（用于 errors.Is 比较）
var (
	ErrInvalidParam  = New(CodeInvalidParam, "invalid parameter")
	ErrNotFound      = New(CodeNotFound, "resource not found")
	ErrAlreadyExists = New(CodeAlreadyExists, "resource already exists")

	ErrMissingHost      = New(CodeMissingHost, "got http request without Host header")
	ErrInvalidPeerID    = New(CodeInvalidPeerID, "got http request with invalid peer id")
	ErrPeerNotPermitted = New(CodePeerNotPermitted, "peer id not permitted")

	ErrBindFailed     = New(CodeBindFailed, "bind failed")
	ErrStreamClosed   = New(CodeStreamClosed, "stream closed")
	ErrTransportError = New(CodeTransportError, "transport error")
	ErrPacketTooLarge = New(CodePacketTooLarge, "packet too large")

	ErrResourceClosed = New(CodeResourceClosed, "resource closed")
	ErrCancelled      = New(CodeCancelled, "operation cancelled")
	ErrTimeout        = New(CodeTimeout, "operation timeout")
)

// IsPeerResolutionError 是否为对端解析失败（HTTP 请求应返回 400）
func IsPeerResolutionError(err error) bool {
	return IsCode(err, CodeMissingHost) ||
		IsCode(err, CodeInvalidPeerID) ||
		IsCode(err, CodePeerNotPermitted)
}
