package peer

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "peerbridge/internal/core/errors"
)

func TestFramedDatagram_PreservesBoundaries(t *testing.T) {
	var buf bytes.Buffer
	payloads := [][]byte{[]byte("a"), bytes.Repeat([]byte("b"), 1500), []byte("ccc")}
	for _, p := range payloads {
		require.NoError(t, WriteFramedDatagram(&buf, p))
	}

	for _, want := range payloads {
		got, err := ReadFramedDatagram(&buf)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ReadFramedDatagram(&buf)
	assert.Equal(t, io.EOF, err)
}

func TestFramedDatagram_Limits(t *testing.T) {
	var buf bytes.Buffer
	assert.True(t, errors.Is(WriteFramedDatagram(&buf, nil), ErrEmptyDatagram))

	err := WriteFramedDatagram(&buf, make([]byte, MaxDatagramSize+1))
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodePacketTooLarge))

	require.NoError(t, WriteFramedDatagram(&buf, make([]byte, MaxDatagramSize)))
	got, err := ReadFramedDatagram(&buf)
	require.NoError(t, err)
	assert.Len(t, got, MaxDatagramSize)
}

func TestFramedDatagram_Truncated(t *testing.T) {
	_, err := ReadFramedDatagram(bytes.NewReader([]byte{0x00, 0x05, 'a', 'b'}))
	assert.Equal(t, io.ErrUnexpectedEOF, err)

	_, err = ReadFramedDatagram(bytes.NewReader([]byte{0x00}))
	assert.Equal(t, io.ErrUnexpectedEOF, err)

	_, err = ReadFramedDatagram(bytes.NewReader([]byte{0x00, 0x00}))
	assert.True(t, errors.Is(err, ErrEmptyDatagram))
}
