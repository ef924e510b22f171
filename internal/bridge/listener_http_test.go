package bridge

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "peerbridge/internal/core/errors"
	"peerbridge/internal/peer"
	"peerbridge/internal/testutils"
)

// httpPeer 远端读取一个请求，回应 "<target> <path>"
func httpPeer() peer.StreamHandler {
	return peer.StreamHandlerFunc(func(ctx context.Context, in *peer.InboundStream) {
		req, err := http.ReadRequest(bufio.NewReader(in.Recv))
		if err != nil {
			return
		}
		body := in.Preface.Target + " " + req.URL.Path
		resp := &http.Response{
			StatusCode:    http.StatusOK,
			ProtoMajor:    1,
			ProtoMinor:    1,
			Header:        http.Header{"Content-Type": {"text/plain"}, "X-Peer-Host": {req.Host}},
			Body:          io.NopCloser(strings.NewReader(body)),
			ContentLength: int64(len(body)),
			Close:         true,
		}
		resp.Write(in.Send)
		in.Send.Finish()
	})
}

func startHTTPBridge(t *testing.T, mt *testutils.MemoryTransport, cfg Config) *HTTPBridge {
	t.Helper()
	b := NewHTTPBridge(mt, cfg)
	_, err := b.Start(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() {
		b.Stop()
		waitDone(t, b)
	})
	return b
}

func get(t *testing.T, port uint16, path, host string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, "http://"+loopbackAddr(port)+path, nil)
	require.NoError(t, err)
	if host != "" {
		req.Host = host
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestHTTPBridge_FixedTarget(t *testing.T) {
	mt := testutils.NewMemoryTransport(httpPeer())
	defer mt.Close()

	b := startHTTPBridge(t, mt, Config{PeerID: testutils.TestID})

	status, body := get(t, b.Port(), "/index.html", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, testutils.TestID+" /index.html", body)

	opened := mt.Opened()
	require.Len(t, opened, 1)
	assert.Equal(t, peer.ProtocolHTTP, opened[0].Header.Protocol)
	assert.Equal(t, int64(1), b.Stats().Snapshot().ConnectionCount)
}

func TestHTTPBridge_HostAddressing(t *testing.T) {
	mt := testutils.NewMemoryTransport(httpPeer())
	defer mt.Close()

	b := startHTTPBridge(t, mt, Config{})

	status, body := get(t, b.Port(), "/api", testutils.TestID+".localhost")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, testutils.TestID+" /api", body)
}

func TestHTTPBridge_BadRequest(t *testing.T) {
	const other = "zyxwvutsrqponmlkjihgfedcbazyxwvutsrqponmlkjihgfedcba"

	tests := []struct {
		name   string
		target string
		host   string
	}{
		{name: "loopback without target", host: ""},
		{name: "host without dot", host: "localhost"},
		{name: "short label", host: "short.localhost"},
		{name: "not permitted", target: testutils.TestID, host: other + ".localhost"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mt := testutils.NewMemoryTransport(httpPeer())
			defer mt.Close()

			b := startHTTPBridge(t, mt, Config{PeerID: tt.target})
			status, body := get(t, b.Port(), "/", tt.host)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, BadRequestBody, body)
			assert.Equal(t, 0, mt.OpenedCount())
		})
	}
}

func TestHTTPBridge_TransportFailure(t *testing.T) {
	mt := testutils.NewMemoryTransport(httpPeer())
	defer mt.Close()
	mt.SetOpenError(coreerrors.ErrTransportError)

	b := startHTTPBridge(t, mt, Config{PeerID: testutils.TestID})
	status, _ := get(t, b.Port(), "/", "")
	assert.Equal(t, http.StatusBadGateway, status)

	mt.SetOpenError(nil)
	status, _ = get(t, b.Port(), "/", "")
	assert.Equal(t, http.StatusOK, status)
}

func TestHTTPBridge_PostStart(t *testing.T) {
	mt := testutils.NewMemoryTransport(httpPeer())
	defer mt.Close()

	var called uint16
	b := startHTTPBridge(t, mt, Config{
		PeerID: testutils.TestID,
		PostStart: func(port uint16) error {
			called = port
			return coreerrors.New(coreerrors.CodeInternal, "no browser")
		},
	})

	// PostStart 失败不影响服务
	assert.Equal(t, b.Port(), called)
	status, _ := get(t, b.Port(), "/", "")
	assert.Equal(t, http.StatusOK, status)
}
