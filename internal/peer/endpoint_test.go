package peer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoHandler TCP 流原样回写后半关闭，UDP 流逐帧回写
func echoHandler(t *testing.T, seen chan<- Preface) StreamHandler {
	return StreamHandlerFunc(func(ctx context.Context, in *InboundStream) {
		if seen != nil {
			seen <- in.Preface
		}
		switch in.Preface.Header.Protocol {
		case ProtocolUDP:
			for {
				p, err := ReadFramedDatagram(in.Recv)
				if err != nil {
					return
				}
				if err := WriteFramedDatagram(in.Send, bytes.ToUpper(p)); err != nil {
					return
				}
			}
		default:
			if _, err := io.Copy(in.Send, in.Recv); err != nil && !errors.Is(err, io.EOF) {
				t.Logf("echo copy: %v", err)
			}
			in.Send.Finish()
		}
	})
}

func startEchoPeer(t *testing.T, carrier string) (*Endpoint, chan Preface) {
	t.Helper()
	opts := CarrierOptions{InsecureSkipVerify: true}

	server, err := NewCarrier(carrier, opts)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	ln, err := server.Listen(ctx, "127.0.0.1:0")
	require.NoError(t, err)

	seen := make(chan Preface, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		Serve(ctx, ln, echoHandler(t, seen))
	}()

	ep, err := NewEndpoint(EndpointConfig{
		Carrier:     carrier,
		Peers:       map[string]string{testID: ln.Addr().String()},
		DialTimeout: 5 * time.Second,
		Options:     opts,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		ep.Close()
		cancel()
		<-done
	})
	return ep, seen
}

func TestEndpoint_StreamHalfClose(t *testing.T) {
	for _, carrier := range []string{"tcp", "websocket", "kcp", "quic"} {
		t.Run(carrier, func(t *testing.T) {
			ep, seen := startEchoPeer(t, carrier)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			st, err := ep.OpenStream(ctx, ProtocolHeader{Protocol: ProtocolTCP}, testID)
			require.NoError(t, err)
			defer st.Close()

			_, err = st.Send.Write([]byte("hello peer"))
			require.NoError(t, err)
			require.NoError(t, st.Send.Finish())

			got, err := io.ReadAll(st.Recv)
			require.NoError(t, err)
			assert.Equal(t, "hello peer", string(got))

			preface := <-seen
			assert.Equal(t, ProtocolTCP, preface.Header.Protocol)
			assert.Equal(t, ep.ID(), preface.Source)
			assert.Equal(t, testID, preface.Target)
		})
	}
}

func TestEndpoint_FramedDatagrams(t *testing.T) {
	for _, carrier := range []string{"tcp", "kcp", "quic"} {
		t.Run(carrier, func(t *testing.T) {
			ep, _ := startEchoPeer(t, carrier)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			st, err := ep.OpenStream(ctx, ProtocolHeader{Protocol: ProtocolUDP}, testID)
			require.NoError(t, err)
			defer st.Close()

			for _, msg := range []string{"one", "two", "three"} {
				require.NoError(t, WriteFramedDatagram(st.Send, []byte(msg)))
				got, err := ReadFramedDatagram(st.Recv)
				require.NoError(t, err)
				assert.Equal(t, bytes.ToUpper([]byte(msg)), got)
			}
		})
	}
}

func TestEndpoint_SessionReuse(t *testing.T) {
	ep, _ := startEchoPeer(t, "tcp")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		st, err := ep.OpenStream(ctx, ProtocolHeader{Protocol: ProtocolPing}, testID)
		require.NoError(t, err)
		st.Send.Finish()
		io.ReadAll(st.Recv)
		st.Close()
	}
	assert.Equal(t, 1, ep.Pool().Len())
}

func TestEndpoint_Errors(t *testing.T) {
	_, err := NewEndpoint(EndpointConfig{Carrier: "carrier-pigeon"})
	assert.Error(t, err)

	_, err = NewEndpoint(EndpointConfig{Carrier: "tcp", Identity: "short"})
	assert.Error(t, err)

	ep, err := NewEndpoint(EndpointConfig{Carrier: "tcp"})
	require.NoError(t, err)
	assert.Len(t, ep.ID(), IDLength)

	_, err = ep.OpenStream(context.Background(), ProtocolHeader{Protocol: ProtocolTCP}, "short")
	assert.Error(t, err)
	_, err = ep.OpenStream(context.Background(), ProtocolHeader{Protocol: ProtocolTCP}, testID)
	assert.Error(t, err, "no address and no relay")
}

func TestCarrierRegistry(t *testing.T) {
	names := CarrierNames()
	assert.Equal(t, []string{"websocket", "quic", "tcp", "kcp"}, names)

	info, ok := GetCarrier("tcp")
	require.True(t, ok)
	assert.Equal(t, 30, info.Priority)

	_, ok = GetCarrier("smtp")
	assert.False(t, ok)
}

func TestNormalizeWebSocketURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://relay.example.com", "wss://relay.example.com/peerbridge"},
		{"http://relay.example.com/custom", "ws://relay.example.com/custom"},
		{"ws://relay.example.com/x?token=1", "ws://relay.example.com/x?token=1"},
		{"relay.example.com:8080", "ws://relay.example.com:8080/peerbridge"},
		{"relay.example.com:8080/ws", "ws://relay.example.com:8080/ws"},
	}
	for _, tt := range tests {
		got, err := NormalizeWebSocketURL(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
