package bridge

import (
	"context"
	"net/netip"
	"sync"
	"time"

	corelog "peerbridge/internal/core/log"
	"peerbridge/internal/peer"
)

type pushResult int

const (
	pushOK pushResult = iota
	pushGone
	pushCancelled
)

// UDPSession 一个 UDP 客户端到对端的转发会话
//
// 拥有一条 UDP 协议流；本地数据报经有界队列按到达顺序写入流，
// 对端数据报由独立 goroutine 写回客户端。任一方向结束即整体拆除：
// 先标记退役（之后的投递返回 pushGone），再把队列里没发出去的数据报
// 交给替代会话，最后从会话表中移除自己。
type UDPSession struct {
	addr   netip.AddrPort
	table  *SessionTable
	queue  chan []byte
	parent context.Context
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	forwarded bool // 至少一个数据报已写入流，只在 run 的 goroutine 中读写

	mu      sync.Mutex
	retired bool
	gone    chan struct{}
	pushers sync.WaitGroup
}

func newUDPSession(parent context.Context, table *SessionTable, addr netip.AddrPort) *UDPSession {
	ctx, cancel := context.WithCancel(parent)
	return &UDPSession{
		addr:   addr,
		table:  table,
		queue:  make(chan []byte, table.opts.QueueSize),
		parent: parent,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		gone:   make(chan struct{}),
	}
}

// Addr 客户端地址
func (s *UDPSession) Addr() netip.AddrPort { return s.addr }

// Done 会话结束后关闭
func (s *UDPSession) Done() <-chan struct{} { return s.done }

// isRetired 退役的会话不再接收数据报
func (s *UDPSession) isRetired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retired
}

func (s *UDPSession) push(ctx context.Context, data []byte) pushResult {
	s.mu.Lock()
	if s.retired {
		s.mu.Unlock()
		return pushGone
	}
	s.pushers.Add(1)
	s.mu.Unlock()
	defer s.pushers.Done()

	select {
	case s.queue <- data:
		return pushOK
	case <-s.gone:
		return pushGone
	case <-ctx.Done():
		return pushCancelled
	}
}

// retire 停止接收并取出已入队但未发送的数据报
func (s *UDPSession) retire() [][]byte {
	s.mu.Lock()
	if s.retired {
		s.mu.Unlock()
		return nil
	}
	s.retired = true
	close(s.gone)
	s.mu.Unlock()

	s.table.remove(s.addr, s)
	s.pushers.Wait()

	var leftover [][]byte
	for {
		select {
		case data := <-s.queue:
			leftover = append(leftover, data)
		default:
			return leftover
		}
	}
}

func (s *UDPSession) run() {
	name := s.table.opts.Name
	stats := s.table.opts.Stats
	stats.begin()

	var leftover [][]byte
	defer func() {
		leftover = append(leftover, s.retire()...)
		s.cancel()
		stats.end()
		close(s.done)
		corelog.Debugf("%s: session %s closed", name, s.addr)
		s.redispatch(leftover)
	}()

	corelog.Infof("%s: forwarding UDP datagrams from %s to %s", name, s.addr, s.table.peerID)
	st, err := s.table.transport.OpenStream(s.ctx, peer.ProtocolHeader{Protocol: peer.ProtocolUDP}, s.table.peerID)
	if err != nil {
		if s.ctx.Err() == nil {
			corelog.Errorf("%s: UDP session error for %s: %v", name, s.addr, err)
		}
		return
	}

	recvDone := make(chan struct{})
	go func() {
		defer close(recvDone)
		s.pumpRemote(st)
	}()

	if unsent := s.pumpLocal(st, recvDone); unsent != nil {
		leftover = append(leftover, unsent)
	}
	leftover = append(leftover, s.retire()...)

	if err := st.Send.Finish(); err != nil {
		corelog.Debugf("%s: finish stream for %s: %v", name, s.addr, err)
	}
	// 会话自然结束时给对端一段时间送完剩余回应；取消时直接关闭
	if s.ctx.Err() == nil {
		select {
		case <-recvDone:
		case <-s.ctx.Done():
		case <-time.After(s.table.opts.ShutdownGrace):
		}
	}
	st.Close()
	<-recvDone
}

// redispatch 把未发送的数据报按原顺序交给替代会话
//
// 监听器已停止，或本会话一个数据报也没转发过（打不开流、对端立即关闭）时丢弃。
func (s *UDPSession) redispatch(leftover [][]byte) {
	if len(leftover) == 0 {
		return
	}
	if s.parent.Err() != nil || !s.forwarded {
		corelog.Debugf("%s: dropped %d datagrams from %s", s.table.opts.Name, len(leftover), s.addr)
		return
	}
	corelog.Debugf("%s: moving %d datagrams from %s to a new session", s.table.opts.Name, len(leftover), s.addr)
	for _, data := range leftover {
		if err := s.table.Dispatch(s.parent, data, s.addr); err != nil {
			corelog.Debugf("%s: datagram from %s lost: %v", s.table.opts.Name, s.addr, err)
			return
		}
	}
}

// pumpLocal 队列 → 流，直到写失败、对端方向结束、空闲超时或取消；
// 写失败时返回那个没送出的数据报
func (s *UDPSession) pumpLocal(st *peer.Stream, recvDone <-chan struct{}) []byte {
	opts := s.table.opts
	var idle <-chan time.Time
	var timer *time.Timer
	if opts.IdleTimeout > 0 {
		timer = time.NewTimer(opts.IdleTimeout)
		defer timer.Stop()
		idle = timer.C
	}

	for {
		select {
		case data := <-s.queue:
			if err := waitN(s.ctx, opts.Limiter, len(data)); err != nil {
				return data
			}
			if err := peer.WriteFramedDatagram(st.Send, data); err != nil {
				if s.ctx.Err() == nil {
					corelog.Errorf("%s: UDP session error for %s: %v", opts.Name, s.addr, err)
				}
				return data
			}
			opts.Stats.BytesSent.Add(int64(len(data)))
			s.forwarded = true
			if timer != nil {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(opts.IdleTimeout)
			}
		case <-recvDone:
			corelog.Debugf("%s: remote side of %s ended", opts.Name, s.addr)
			return nil
		case <-idle:
			corelog.Debugf("%s: session %s idle for %v", opts.Name, s.addr, opts.IdleTimeout)
			return nil
		case <-s.ctx.Done():
			return nil
		}
	}
}

// pumpRemote 流 → 本地客户端，直到流结束或回写失败
func (s *UDPSession) pumpRemote(st *peer.Stream) {
	opts := s.table.opts
	for {
		data, err := peer.ReadFramedDatagram(st.Recv)
		if err != nil {
			corelog.Debugf("%s: recv stream for %s ended: %v", opts.Name, s.addr, err)
			return
		}
		if _, err := s.table.writer.WriteToUDPAddrPort(data, s.addr); err != nil {
			corelog.Errorf("%s: failed to send UDP response to %s: %v", opts.Name, s.addr, err)
			return
		}
		opts.Stats.BytesReceived.Add(int64(len(data)))
	}
}
