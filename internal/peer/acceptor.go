package peer

import (
	"context"
	"errors"
	"net"
	"sync"

	corelog "peerbridge/internal/core/log"
)

// InboundStream 入站流及其前导
type InboundStream struct {
	Preface Preface
	*Stream
}

// StreamHandler 处理一条入站流，返回后流被关闭
type StreamHandler interface {
	HandleStream(ctx context.Context, in *InboundStream)
}

// StreamHandlerFunc 函数适配器
type StreamHandlerFunc func(ctx context.Context, in *InboundStream)

func (f StreamHandlerFunc) HandleStream(ctx context.Context, in *InboundStream) {
	f(ctx, in)
}

// Serve 接收入站连接，读取每条流的前导后交给 handler
//
// 阻塞直到 ctx 取消或监听器关闭；返回前等待所有 handler 结束。
func Serve(ctx context.Context, ln MuxListener, handler StreamHandler) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		sess, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			corelog.Warnf("Acceptor[%s]: accept failed: %v", ln.Addr(), err)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			serveSession(ctx, sess, handler, &wg)
		}()
	}
}

func serveSession(ctx context.Context, sess Session, handler StreamHandler, wg *sync.WaitGroup) {
	defer sess.Close()
	corelog.Debugf("Acceptor: session from %s", sess.RemoteAddr())

	go func() {
		<-ctx.Done()
		sess.Close()
	}()

	for {
		ms, err := sess.AcceptStream(ctx)
		if err != nil {
			if ctx.Err() == nil && !sess.IsClosed() {
				corelog.Debugf("Acceptor: session from %s ended: %v", sess.RemoteAddr(), err)
			}
			return
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer ms.Close()

			preface, err := ReadPreface(ms)
			if err != nil {
				corelog.Warnf("Acceptor: bad stream from %s: %v", sess.RemoteAddr(), err)
				return
			}
			handler.HandleStream(ctx, &InboundStream{Preface: preface, Stream: NewStream(ms)})
		}()
	}
}
