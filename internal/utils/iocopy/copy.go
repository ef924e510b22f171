// Package iocopy 提供双向数据拷贝功能
package iocopy

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	corelog "peerbridge/internal/core/log"
)

// CopyBufferSize 单方向拷贝缓冲大小
const CopyBufferSize = 32 * 1024

// DefaultShutdownGrace 取消后等待进行中读写完成的时间
const DefaultShutdownGrace = 5 * time.Second

var (
	ErrNilReader = errors.New("Reader cannot be nil")
	ErrNilWriter = errors.New("Writer cannot be nil")

	copyBufferPool = sync.Pool{
		New: func() interface{} {
			buf := make([]byte, CopyBufferSize)
			return &buf
		},
	}
)

// CloseWriter 支持半关闭（关闭写方向）的接口
type CloseWriter interface {
	CloseWrite() error
}

// readWriteCloser 适配器：将 io.Reader 和 io.Writer 组合成 io.ReadWriteCloser
type readWriteCloser struct {
	io.Reader
	io.Writer
	closeFunc      func() error
	closeWriteFunc func() error
}

func (rw *readWriteCloser) Close() error {
	if rw.closeFunc != nil {
		return rw.closeFunc()
	}
	return nil
}

// CloseWrite 关闭写方向，用于通知对端 EOF
func (rw *readWriteCloser) CloseWrite() error {
	if rw.closeWriteFunc != nil {
		return rw.closeWriteFunc()
	}
	if cw, ok := rw.Writer.(CloseWriter); ok {
		return cw.CloseWrite()
	}
	return nil
}

// NewReadWriteCloser 组合 Reader 和 Writer；closeWriteFunc 可为 nil
func NewReadWriteCloser(r io.Reader, w io.Writer, closeFunc func() error, closeWriteFunc func() error) (io.ReadWriteCloser, error) {
	if r == nil {
		return nil, ErrNilReader
	}
	if w == nil {
		return nil, ErrNilWriter
	}
	return &readWriteCloser{
		Reader:         r,
		Writer:         w,
		closeFunc:      closeFunc,
		closeWriteFunc: closeWriteFunc,
	}, nil
}

// Options 双向拷贝配置选项
type Options struct {
	// Context 取消时对 B 端半关闭，进行中的读写在 ShutdownGrace 内可以完成
	Context context.Context

	// ShutdownGrace 取消后强制关闭前的等待时间，默认 DefaultShutdownGrace
	ShutdownGrace time.Duration

	// 日志前缀（用于区分不同的拷贝场景）
	LogPrefix string

	// 每次成功写入后的计数回调（可选）
	OnSent     func(n int)
	OnReceived func(n int)

	// 拷贝完成后的回调（可选）
	OnComplete func(sent, received int64, err error)
}

// Result 双向拷贝结果
type Result struct {
	BytesSent     int64 // A→B 发送字节数
	BytesReceived int64 // B→A 接收字节数
	SendError     error // A→B 错误
	ReceiveError  error // B→A 错误
}

// Err 返回第一个错误
func (r *Result) Err() error {
	if r.SendError != nil {
		return r.SendError
	}
	return r.ReceiveError
}

// tryCloseWrite 尝试对连接执行半关闭（关闭写方向）
func tryCloseWrite(conn io.ReadWriteCloser) {
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.CloseWrite()
		return
	}
	if cw, ok := conn.(CloseWriter); ok {
		cw.CloseWrite()
	}
}

// isClosedErr 关闭引起的读写错误不算失败
func isClosedErr(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}

// pump 单方向拷贝，返回写入字节数和错误（EOF 不算错误）
func pump(dst io.Writer, src io.Reader, onWrite func(int)) (int64, error) {
	bufPtr := copyBufferPool.Get().(*[]byte)
	buf := *bufPtr
	defer copyBufferPool.Put(bufPtr)

	var total int64
	for {
		nr, readErr := src.Read(buf)
		if nr > 0 {
			nw, writeErr := dst.Write(buf[:nr])
			if nw > 0 {
				total += int64(nw)
				if onWrite != nil {
					onWrite(nw)
				}
			}
			if writeErr != nil {
				return total, writeErr
			}
			if nw != nr {
				return total, io.ErrShortWrite
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return total, nil
			}
			return total, readErr
		}
	}
}

// Bidirectional 双向数据拷贝
//
// 一个方向读到 EOF 时对写入端半关闭，另一方向继续到结束；
// 两个方向都结束后关闭两端。一个方向出错时关闭它的写入端以打断另一方向的阻塞读。
func Bidirectional(connA, connB io.ReadWriteCloser, options *Options) *Result {
	if options == nil {
		options = &Options{}
	}
	ctx := options.Context
	if ctx == nil {
		ctx = context.Background()
	}
	grace := options.ShutdownGrace
	if grace <= 0 {
		grace = DefaultShutdownGrace
	}
	logPrefix := options.LogPrefix
	if logPrefix == "" {
		logPrefix = "BidirectionalCopy"
	}

	result := &Result{}
	var closeA, closeB sync.Once
	closeConnA := func() { closeA.Do(func() { connA.Close() }) }
	closeConnB := func() { closeB.Do(func() { connB.Close() }) }

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		n, err := pump(connB, connA, options.OnSent)
		result.BytesSent = n
		if err != nil && !isClosedErr(err) {
			corelog.Debugf("%s: A→B stopped after %d bytes: %v", logPrefix, n, err)
			result.SendError = err
			closeConnB()
			return
		}
		tryCloseWrite(connB)
	}()

	go func() {
		defer wg.Done()
		n, err := pump(connA, connB, options.OnReceived)
		result.BytesReceived = n
		if err != nil && !isClosedErr(err) {
			corelog.Debugf("%s: B→A stopped after %d bytes: %v", logPrefix, n, err)
			result.ReceiveError = err
			closeConnA()
			return
		}
		tryCloseWrite(connA)
	}()

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-ctx.Done():
		corelog.Debugf("%s: cancelled, half-closing remote side", logPrefix)
		tryCloseWrite(connB)
		select {
		case <-finished:
		case <-time.After(grace):
			closeConnA()
			closeConnB()
			<-finished
		}
	}

	closeConnA()
	closeConnB()

	if options.OnComplete != nil {
		options.OnComplete(result.BytesSent, result.BytesReceived, result.Err())
	}
	return result
}

// Simple 无额外选项的双向拷贝
func Simple(connA, connB io.ReadWriteCloser, logPrefix string) *Result {
	return Bidirectional(connA, connB, &Options{LogPrefix: logPrefix})
}
