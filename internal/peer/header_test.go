package peer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "peerbridge/internal/core/errors"
)

func TestPreface_WriteRead(t *testing.T) {
	source := NewIdentity()
	var buf bytes.Buffer
	in := Preface{
		Header: ProtocolHeader{Protocol: ProtocolUDP, Extra: []byte("meta")},
		Source: source,
		Target: testID,
	}
	require.NoError(t, WritePreface(&buf, in))
	buf.WriteString("payload")

	out, err := ReadPreface(&buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Equal(t, "payload", buf.String(), "preface must not consume stream data")
}

func TestPreface_Errors(t *testing.T) {
	var buf bytes.Buffer
	err := WritePreface(&buf, Preface{Header: ProtocolHeader{Protocol: ProtocolTCP}, Source: "x", Target: testID})
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeProtocolError))

	_, err = ReadPreface(bytes.NewReader([]byte("XX")))
	assert.Error(t, err)

	bad := make([]byte, prefaceFixedLen)
	bad[0], bad[1] = 'P', 'X'
	_, err = ReadPreface(bytes.NewReader(bad))
	assert.ErrorContains(t, err, "bad preface magic")

	bad[1] = 'B'
	bad[2] = 9
	_, err = ReadPreface(bytes.NewReader(bad))
	assert.ErrorContains(t, err, "unsupported preface version")
}

func TestProtocol(t *testing.T) {
	for _, name := range []string{"http", "tcp", "udp", "ping"} {
		p, err := ParseProtocol(name)
		require.NoError(t, err)
		assert.Equal(t, name, p.String())
	}
	_, err := ParseProtocol("sctp")
	assert.Error(t, err)
	assert.Equal(t, "protocol(42)", Protocol(42).String())
}
