// Package errors 提供统一的错误处理机制
//
// 所有错误都可以通过 errors.Is() / errors.As() 检查，
// 错误码用于 API 响应和日志分类，支持错误链。
package errors

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// ErrorCode 错误码类型
type ErrorCode string

// 错误码定义
const (
	// 请求/参数错误
	CodeInvalidParam  ErrorCode = "INVALID_PARAM"
	CodeInvalidURL    ErrorCode = "INVALID_URL"
	CodeConfigError   ErrorCode = "CONFIG_ERROR"
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeAlreadyExists ErrorCode = "ALREADY_EXISTS"
	CodeUnauthorized  ErrorCode = "UNAUTHORIZED"

	// 对端解析错误
	CodeMissingHost      ErrorCode = "MISSING_HOST"
	CodeInvalidPeerID    ErrorCode = "INVALID_PEER_ID"
	CodePeerNotPermitted ErrorCode = "PEER_NOT_PERMITTED"
	CodePeerUnknown      ErrorCode = "PEER_UNKNOWN"

	// 监听/网络错误
	CodeBindFailed     ErrorCode = "BIND_FAILED"
	CodeNetworkError   ErrorCode = "NETWORK_ERROR"
	CodeTransportError ErrorCode = "TRANSPORT_ERROR"
	CodeStreamClosed   ErrorCode = "STREAM_CLOSED"
	CodeProtocolError  ErrorCode = "PROTOCOL_ERROR"
	CodePacketTooLarge ErrorCode = "PACKET_TOO_LARGE"

	// 系统错误
	CodeInternal       ErrorCode = "INTERNAL_ERROR"
	CodeTimeout        ErrorCode = "TIMEOUT"
	CodeCancelled      ErrorCode = "CANCELLED"
	CodeResourceClosed ErrorCode = "RESOURCE_CLOSED"
	CodeCleanupError   ErrorCode = "CLEANUP_ERROR"
)

// Error 统一错误类型
type Error struct {
	Code    ErrorCode // 错误码
	Message string    // 错误消息
	Cause   error     // 原始错误
}

// Error 实现 error 接口
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 支持 errors.Unwrap
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is 按错误码比较
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New 创建新错误
func New(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf 创建格式化错误
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, Cause: err}
}

// Wrapf 格式化包装错误
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// GetCode 从错误中提取错误码，非 *Error 返回 CodeInternal
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsCode 检查错误是否为指定错误码
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// Is 重导出 errors.Is
var Is = errors.Is

// As 重导出 errors.As
var As = errors.As

// Append 聚合多个错误（nil 会被忽略）
func Append(err error, errs ...error) error {
	var filtered []error
	for _, e := range errs {
		if e != nil {
			filtered = append(filtered, e)
		}
	}
	if len(filtered) == 0 {
		return err
	}
	return multierror.Append(err, filtered...)
}

// Flatten 返回聚合错误中的所有子错误
func Flatten(err error) []error {
	if err == nil {
		return nil
	}
	var merr *multierror.Error
	if errors.As(err, &merr) {
		return merr.WrappedErrors()
	}
	return []error{err}
}
