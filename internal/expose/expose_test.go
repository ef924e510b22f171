package expose

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"peerbridge/internal/peer"
	"peerbridge/internal/testutils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTCPEcho(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				io.Copy(conn, conn)
			}()
		}
	}()
	return ln.Addr().String()
}

func startUDPUpper(t *testing.T) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { pc.Close() })
	go func() {
		buf := make([]byte, 2048)
		for {
			n, addr, err := pc.ReadFrom(buf)
			if err != nil {
				return
			}
			pc.WriteTo(bytes.ToUpper(buf[:n]), addr)
		}
	}()
	return pc.LocalAddr().String()
}

func newTransport(t *testing.T, cfg Config) *testutils.MemoryTransport {
	t.Helper()
	h, err := NewHandler(cfg)
	require.NoError(t, err)
	mt := testutils.NewMemoryTransport(h)
	t.Cleanup(func() { mt.Close() })
	return mt
}

func TestNewHandler_NeedsTarget(t *testing.T) {
	_, err := NewHandler(Config{})
	assert.Error(t, err)
}

func TestHandler_TCP(t *testing.T) {
	mt := newTransport(t, Config{TCPTarget: startTCPEcho(t)})

	st, err := mt.OpenStream(context.Background(), peer.ProtocolHeader{Protocol: peer.ProtocolTCP}, testutils.TestID)
	require.NoError(t, err)
	defer st.Close()

	_, err = st.Send.Write([]byte("hello expose"))
	require.NoError(t, err)
	require.NoError(t, st.Send.Finish())

	got, err := io.ReadAll(st.Recv)
	require.NoError(t, err)
	assert.Equal(t, "hello expose", string(got))
}

func TestHandler_UDP(t *testing.T) {
	mt := newTransport(t, Config{UDPTarget: startUDPUpper(t)})

	st, err := mt.OpenStream(context.Background(), peer.ProtocolHeader{Protocol: peer.ProtocolUDP}, testutils.TestID)
	require.NoError(t, err)
	defer st.Close()

	for _, msg := range []string{"one", "two", "three"} {
		require.NoError(t, peer.WriteFramedDatagram(st.Send, []byte(msg)))
		reply, err := peer.ReadFramedDatagram(st.Recv)
		require.NoError(t, err)
		assert.Equal(t, bytes.ToUpper([]byte(msg)), reply)
	}
}

func TestHandler_UDPIdleEndsStream(t *testing.T) {
	mt := newTransport(t, Config{UDPTarget: startUDPUpper(t), UDPIdle: 100 * time.Millisecond})

	st, err := mt.OpenStream(context.Background(), peer.ProtocolHeader{Protocol: peer.ProtocolUDP}, testutils.TestID)
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, peer.WriteFramedDatagram(st.Send, []byte("x")))
	_, err = peer.ReadFramedDatagram(st.Recv)
	require.NoError(t, err)

	testutils.WaitFor(t, 2*time.Second, func() bool { return mt.Active() == 0 }, "udp stream should end after idle")
}

func TestHandler_MissingTarget(t *testing.T) {
	mt := newTransport(t, Config{TCPTarget: startTCPEcho(t)})

	st, err := mt.OpenStream(context.Background(), peer.ProtocolHeader{Protocol: peer.ProtocolUDP}, testutils.TestID)
	require.NoError(t, err)
	defer st.Close()

	_, err = peer.ReadFramedDatagram(st.Recv)
	assert.Error(t, err)
}

func TestServe_OverCarrier(t *testing.T) {
	h, err := NewHandler(Config{TCPTarget: startTCPEcho(t)})
	require.NoError(t, err)

	carrier, err := peer.NewCarrier("tcp", peer.CarrierOptions{})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	ln, err := carrier.Listen(ctx, "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- Serve(ctx, ln, h) }()

	ep, err := peer.NewEndpoint(peer.EndpointConfig{
		Carrier: "tcp",
		Peers:   map[string]string{testutils.TestID: ln.Addr().String()},
	})
	require.NoError(t, err)
	defer ep.Close()

	st, err := ep.OpenStream(ctx, peer.ProtocolHeader{Protocol: peer.ProtocolTCP}, testutils.TestID)
	require.NoError(t, err)
	_, err = st.Send.Write([]byte("over carrier"))
	require.NoError(t, err)
	require.NoError(t, st.Send.Finish())
	got, err := io.ReadAll(st.Recv)
	require.NoError(t, err)
	assert.Equal(t, "over carrier", string(got))
	st.Close()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
