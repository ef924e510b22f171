package bridge

import (
	"context"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "peerbridge/internal/core/errors"
	"peerbridge/internal/peer"
	"peerbridge/internal/testutils"
)

func waitDone(t *testing.T, l Listener) {
	t.Helper()
	select {
	case <-l.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("%s bridge on port %d did not stop", l.Kind(), l.Port())
	}
}

func dialTCP(t *testing.T, port uint16) *net.TCPConn {
	t.Helper()
	conn, err := net.Dial("tcp4", loopbackAddr(port))
	require.NoError(t, err)
	return conn.(*net.TCPConn)
}

func TestTCPBridge_ForwardsWithHalfClose(t *testing.T) {
	mt := testutils.NewMemoryTransport(nil)
	defer mt.Close()

	b := NewTCPBridge(mt, Config{PeerID: testutils.TestID})
	port, err := b.Start(context.Background())
	require.NoError(t, err)
	require.NotZero(t, port)
	assert.Equal(t, port, b.Port())
	defer func() {
		b.Stop()
		waitDone(t, b)
	}()

	conn := dialTCP(t, port)
	defer conn.Close()

	_, err = conn.Write([]byte("hello peer"))
	require.NoError(t, err)
	require.NoError(t, conn.CloseWrite())

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	got, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Equal(t, "hello peer", string(got))

	opened := mt.Opened()
	require.Len(t, opened, 1)
	assert.Equal(t, peer.ProtocolTCP, opened[0].Header.Protocol)
	assert.Equal(t, testutils.TestID, opened[0].Target)

	testutils.WaitFor(t, 2*time.Second, func() bool {
		return b.Stats().ActiveSessions.Load() == 0
	}, "connection should finish")
	snap := b.Stats().Snapshot()
	assert.Equal(t, int64(1), snap.ConnectionCount)
	assert.Equal(t, int64(10), snap.BytesSent)
	assert.Equal(t, int64(10), snap.BytesReceived)
}

func TestTCPBridge_ConcurrentConnections(t *testing.T) {
	mt := testutils.NewMemoryTransport(nil)
	defer mt.Close()

	b := NewTCPBridge(mt, Config{PeerID: testutils.TestID})
	port, err := b.Start(context.Background())
	require.NoError(t, err)
	defer b.Stop()

	ct := testutils.NewConcurrentTest(t, 20)
	ct.RunConcurrent(func(i int) error {
		conn, err := net.Dial("tcp4", loopbackAddr(port))
		if err != nil {
			return err
		}
		defer conn.Close()
		msg := "conn-" + strconv.Itoa(i)
		if _, err := conn.Write([]byte(msg)); err != nil {
			return err
		}
		conn.(*net.TCPConn).CloseWrite()
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		got, err := io.ReadAll(conn)
		if err != nil {
			return err
		}
		if string(got) != msg {
			return coreerrors.Newf(coreerrors.CodeInternal, "conn %d got %q", i, got)
		}
		return nil
	})

	assert.Equal(t, 20, mt.OpenedCount())
}

func TestTCPBridge_OpenFailureIsContained(t *testing.T) {
	mt := testutils.NewMemoryTransport(nil)
	defer mt.Close()
	mt.SetOpenError(coreerrors.ErrTransportError)

	b := NewTCPBridge(mt, Config{PeerID: testutils.TestID})
	port, err := b.Start(context.Background())
	require.NoError(t, err)
	defer b.Stop()

	conn := dialTCP(t, port)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err = io.ReadAll(conn)
	conn.Close()
	assert.NoError(t, err, "failed connection is closed without affecting the listener")

	// 监听器仍然可用
	mt.SetOpenError(nil)
	conn = dialTCP(t, port)
	defer conn.Close()
	_, err = conn.Write([]byte("again"))
	require.NoError(t, err)
	conn.CloseWrite()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	got, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Equal(t, "again", string(got))
}

func TestTCPBridge_BindFailure(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	busy := uint16(ln.Addr().(*net.TCPAddr).Port)

	mt := testutils.NewMemoryTransport(nil)
	defer mt.Close()

	b := NewTCPBridge(mt, Config{Port: busy, PeerID: testutils.TestID})
	_, err = b.Start(context.Background())
	require.Error(t, err)
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeBindFailed))
	assert.Contains(t, err.Error(), "Failed to bind TCP to port "+strconv.Itoa(int(busy)))

	// 未启动的桥接 Stop 不做任何事
	b.Stop()
}

func TestTCPBridge_ShutdownMidTransfer(t *testing.T) {
	mt := testutils.NewMemoryTransport(nil)
	defer mt.Close()

	ctx, cancel := context.WithCancel(context.Background())
	b := NewTCPBridge(mt, Config{PeerID: testutils.TestID, ShutdownGrace: 200 * time.Millisecond})
	port, err := b.Start(ctx)
	require.NoError(t, err)

	conn := dialTCP(t, port)
	defer conn.Close()
	_, err = conn.Write([]byte("in flight"))
	require.NoError(t, err)

	buf := make([]byte, 9)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, "in flight", string(buf))

	cancel()
	waitDone(t, b)

	// 远端已半关闭，本地读到 EOF 或连接被关闭
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err = conn.Read(buf)
	assert.Error(t, err)

	_, err = net.DialTimeout("tcp4", loopbackAddr(port), time.Second)
	assert.Error(t, err, "listener should be closed after shutdown")
}

func TestTCPBridge_InFlightReplyAfterCancel(t *testing.T) {
	received := make(chan struct{})
	release := make(chan struct{})
	mt := testutils.NewMemoryTransport(peer.StreamHandlerFunc(func(ctx context.Context, in *peer.InboundStream) {
		buf := make([]byte, 9)
		if _, err := io.ReadFull(in.Recv, buf); err != nil {
			return
		}
		close(received)
		<-release
		if _, err := in.Send.Write(buf); err != nil {
			return
		}
		io.Copy(in.Send, in.Recv)
		in.Send.Finish()
	}))
	defer mt.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := NewTCPBridge(mt, Config{
		PeerID:         testutils.TestID,
		ShutdownGrace:  2 * time.Second,
		BandwidthLimit: 1 << 20,
	})
	port, err := b.Start(ctx)
	require.NoError(t, err)

	conn := dialTCP(t, port)
	defer conn.Close()
	_, err = conn.Write([]byte("in flight"))
	require.NoError(t, err)

	select {
	case <-received:
	case <-time.After(5 * time.Second):
		t.Fatal("remote did not receive the request")
	}

	// 回应在取消之后才写出，仍须在宽限期内送达
	cancel()
	close(release)

	buf := make([]byte, 9)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, "in flight", string(buf))

	require.NoError(t, conn.CloseWrite())
	waitDone(t, b)
}

func TestUDPBridge_OrderingAndSessions(t *testing.T) {
	mt := testutils.NewMemoryTransport(testutils.UpperEchoHandler())
	defer mt.Close()

	b := NewUDPBridge(mt, Config{PeerID: testutils.TestID})
	port, err := b.Start(context.Background())
	require.NoError(t, err)
	defer func() {
		b.Stop()
		waitDone(t, b)
		assert.Equal(t, 0, b.Sessions().Len())
	}()

	client, err := net.Dial("udp4", loopbackAddr(port))
	require.NoError(t, err)
	defer client.Close()

	const n = 50
	for i := 0; i < n; i++ {
		_, err := client.Write([]byte("msg-" + strconv.Itoa(i)))
		require.NoError(t, err)
	}

	buf := make([]byte, UDPBufferSize)
	for i := 0; i < n; i++ {
		client.SetReadDeadline(time.Now().Add(5 * time.Second))
		nr, err := client.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, "MSG-"+strconv.Itoa(i), string(buf[:nr]))
	}

	assert.Equal(t, 1, b.Sessions().Len())
	assert.Equal(t, 1, mt.OpenedCount())
	assert.Equal(t, peer.ProtocolUDP, mt.Opened()[0].Header.Protocol)
}

func TestUDPBridge_OneSessionPerClient(t *testing.T) {
	mt := testutils.NewMemoryTransport(nil)
	defer mt.Close()

	b := NewUDPBridge(mt, Config{PeerID: testutils.TestID})
	port, err := b.Start(context.Background())
	require.NoError(t, err)
	defer b.Stop()

	const clients = 8
	ct := testutils.NewConcurrentTest(t, clients)
	ct.RunConcurrent(func(i int) error {
		conn, err := net.Dial("udp4", loopbackAddr(port))
		if err != nil {
			return err
		}
		defer conn.Close()
		buf := make([]byte, 64)
		for j := 0; j < 10; j++ {
			msg := strconv.Itoa(i) + "/" + strconv.Itoa(j)
			if _, err := conn.Write([]byte(msg)); err != nil {
				return err
			}
			conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			nr, err := conn.Read(buf)
			if err != nil {
				return err
			}
			if string(buf[:nr]) != msg {
				return coreerrors.Newf(coreerrors.CodeInternal, "client %d got %q, want %q", i, buf[:nr], msg)
			}
		}
		return nil
	})

	assert.Equal(t, clients, b.Sessions().Len())
	assert.Equal(t, clients, mt.OpenedCount())
	assert.Equal(t, int64(clients), b.Stats().Snapshot().ConnectionCount)
}

func TestUDPBridge_IdleSessionExpires(t *testing.T) {
	mt := testutils.NewMemoryTransport(nil)
	defer mt.Close()

	b := NewUDPBridge(mt, Config{
		PeerID:         testutils.TestID,
		UDPIdleTimeout: 100 * time.Millisecond,
		ShutdownGrace:  50 * time.Millisecond,
	})
	port, err := b.Start(context.Background())
	require.NoError(t, err)
	defer b.Stop()

	client, err := net.Dial("udp4", loopbackAddr(port))
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 16)
	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err = client.Read(buf)
	require.NoError(t, err)

	testutils.WaitFor(t, 3*time.Second, func() bool { return b.Sessions().Len() == 0 }, "idle session should be removed")

	// 再次发送会建立新会话
	_, err = client.Write([]byte("pong"))
	require.NoError(t, err)
	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	nr, err := client.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(buf[:nr]))
	assert.Equal(t, 2, mt.OpenedCount())
}

func TestUDPBridge_BindFailure(t *testing.T) {
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()
	busy := uint16(pc.LocalAddr().(*net.UDPAddr).Port)

	b := NewUDPBridge(testutils.NewMemoryTransport(nil), Config{Port: busy, PeerID: testutils.TestID})
	_, err = b.Start(context.Background())
	require.Error(t, err)
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeBindFailed))
	assert.Contains(t, err.Error(), "Failed to bind UDP to port")
}

func TestTCPUDPBridge_SamePort(t *testing.T) {
	mt := testutils.NewMemoryTransport(nil)
	defer mt.Close()

	b := NewTCPUDPBridge(mt, Config{PeerID: testutils.TestID})
	port, err := b.Start(context.Background())
	require.NoError(t, err)
	defer func() {
		b.Stop()
		waitDone(t, b)
	}()

	conn := dialTCP(t, port)
	defer conn.Close()
	_, err = conn.Write([]byte("over tcp"))
	require.NoError(t, err)
	conn.CloseWrite()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	got, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Equal(t, "over tcp", string(got))

	client, err := net.Dial("udp4", loopbackAddr(port))
	require.NoError(t, err)
	defer client.Close()
	_, err = client.Write([]byte("over udp"))
	require.NoError(t, err)
	buf := make([]byte, 32)
	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	nr, err := client.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "over udp", string(buf[:nr]))

	protocols := map[peer.Protocol]int{}
	for _, p := range mt.Opened() {
		protocols[p.Header.Protocol]++
	}
	assert.Equal(t, map[peer.Protocol]int{peer.ProtocolTCP: 1, peer.ProtocolUDP: 1}, protocols)
}

func TestTCPUDPBridge_UDPPortBusy(t *testing.T) {
	// 先占用 UDP 端口，再在同一端口尝试 TCP+UDP
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()
	busy := uint16(pc.LocalAddr().(*net.UDPAddr).Port)

	b := NewTCPUDPBridge(testutils.NewMemoryTransport(nil), Config{Port: busy, PeerID: testutils.TestID})
	_, err = b.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to bind UDP to port")

	// TCP 端口已释放
	ln, err := net.Listen("tcp4", loopbackAddr(busy))
	if err == nil {
		ln.Close()
	}
	assert.NoError(t, err)
}

func TestNewListener(t *testing.T) {
	mt := testutils.NewMemoryTransport(nil)
	defer mt.Close()

	for _, kind := range []Kind{KindHTTP, KindTCP, KindUDP, KindTCPUDP} {
		l, err := NewListener(kind, mt, Config{PeerID: testutils.TestID})
		require.NoError(t, err)
		assert.Equal(t, kind, l.Kind())
	}
	_, err := NewListener("sctp", mt, Config{})
	assert.Error(t, err)
}
