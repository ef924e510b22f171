package cmd

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"peerbridge/internal/api"
	"peerbridge/internal/bridge"
	"peerbridge/internal/peer"
	"peerbridge/internal/testutils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testURL = "kulfi://" + testutils.TestID + "/docs"

func startControlAPI(t *testing.T) (*bridge.Shell, string) {
	t.Helper()
	mt := testutils.NewMemoryTransport(nil)
	sup := bridge.NewSupervisor(bridge.NewGraceful(context.Background()), mt, bridge.Config{})
	shell := bridge.NewShell(sup, func(string) error { return nil })
	s := api.NewServer(context.Background(), api.Config{Token: "tok"}, shell)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.Close()
		sup.Shutdown(time.Second)
		mt.Close()
	})
	return shell, ts.URL
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs(args)
	noColor = true
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestControlCommands(t *testing.T) {
	shell, addr := startControlAPI(t)

	out, err := run(t, "status", testURL, "--api", addr, "--token", "tok")
	require.NoError(t, err)
	assert.Contains(t, out, "is not running")

	require.Equal(t, bridge.ResultOk, shell.TCPConnect(0, testURL))

	out, err = run(t, "status", testURL, "--api", addr, "--token", "tok")
	require.NoError(t, err)
	assert.Contains(t, out, "is running")

	out, err = run(t, "list", "--api", addr, "--token", "tok")
	require.NoError(t, err)
	assert.Contains(t, out, testURL)
	assert.Contains(t, out, "tcp")

	out, err = run(t, "stop", testURL, "--api", addr, "--token", "tok")
	require.NoError(t, err)
	assert.Contains(t, out, bridge.ResultStopped)
	assert.False(t, shell.Status(testURL))

	out, err = run(t, "list", "--api", addr, "--token", "tok")
	require.NoError(t, err)
	assert.Contains(t, out, "no bridges running")
}

func TestControlCommands_BadToken(t *testing.T) {
	_, addr := startControlAPI(t)

	_, err := run(t, "list", "--api", addr, "--token", "wrong")
	assert.Error(t, err)
}

func TestBridgeCommandArgs(t *testing.T) {
	_, err := run(t, "tcp")
	assert.Error(t, err)

	_, err = run(t, "udp", "a", "b")
	assert.Error(t, err)
}

func TestIdentityCommand(t *testing.T) {
	out, err := run(t, "identity")
	require.NoError(t, err)
	id := strings.TrimSpace(out)
	assert.NoError(t, peer.ValidateID(id))
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "peerbridge v"))
	assert.Contains(t, out, "quic")
}
