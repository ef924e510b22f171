package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "without cause",
			err:      New(CodeNotFound, "bridge not found"),
			expected: "[NOT_FOUND] bridge not found",
		},
		{
			name:     "with cause",
			err:      Wrap(errors.New("address already in use"), CodeBindFailed, "failed to bind TCP to port 80"),
			expected: "[BIND_FAILED] failed to bind TCP to port 80: address already in use",
		},
		{
			name:     "formatted message",
			err:      Newf(CodeInvalidParam, "invalid port: %d", 99999),
			expected: "[INVALID_PARAM] invalid port: 99999",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestError_Is(t *testing.T) {
	err1 := New(CodeInvalidPeerID, "label too short")
	err2 := Wrap(errors.New("x"), CodeInvalidPeerID, "other")

	assert.True(t, errors.Is(err1, err2))
	assert.True(t, errors.Is(err1, ErrInvalidPeerID))
	assert.False(t, errors.Is(err1, ErrMissingHost))
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("original error")
	wrapped := Wrap(cause, CodeInternal, "wrapped")
	assert.Equal(t, cause, errors.Unwrap(wrapped))
}

func TestGetCodeAndIsCode(t *testing.T) {
	err := Wrapf(ErrStreamClosed, CodeTransportError, "open stream to %s", "peer")
	assert.Equal(t, CodeTransportError, GetCode(err))
	assert.True(t, IsCode(err, CodeTransportError))
	assert.Equal(t, CodeInternal, GetCode(errors.New("plain")))
	assert.False(t, IsCode(nil, CodeInternal))
}

func TestIsPeerResolutionError(t *testing.T) {
	assert.True(t, IsPeerResolutionError(ErrMissingHost))
	assert.True(t, IsPeerResolutionError(Wrap(nil, CodePeerNotPermitted, "x")))
	assert.False(t, IsPeerResolutionError(ErrBindFailed))
}

func TestAppendAndFlatten(t *testing.T) {
	var err error
	err = Append(err, nil)
	assert.NoError(t, err)

	err = Append(err, errors.New("a"), nil, errors.New("b"))
	require.Error(t, err)
	assert.Len(t, Flatten(err), 2)

	single := errors.New("single")
	assert.Equal(t, []error{single}, Flatten(single))
	assert.Nil(t, Flatten(nil))
}
