package peer

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "peerbridge/internal/core/errors"
)

type fakeSession struct {
	addr   string
	closed atomic.Bool
}

func (s *fakeSession) OpenStream(ctx context.Context) (MuxStream, error) {
	return nil, errors.New("not implemented")
}

func (s *fakeSession) AcceptStream(ctx context.Context) (MuxStream, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *fakeSession) RemoteAddr() net.Addr { return &net.TCPAddr{} }
func (s *fakeSession) IsClosed() bool       { return s.closed.Load() }
func (s *fakeSession) Close() error {
	s.closed.Store(true)
	return nil
}

type fakeCarrier struct {
	dials   atomic.Int32
	delay   time.Duration
	failErr error
}

func (c *fakeCarrier) Name() string { return "fake" }

func (c *fakeCarrier) Dial(ctx context.Context, address string) (Session, error) {
	c.dials.Add(1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if c.failErr != nil {
		return nil, c.failErr
	}
	return &fakeSession{addr: address}, nil
}

func (c *fakeCarrier) Listen(ctx context.Context, address string) (MuxListener, error) {
	return nil, errors.New("not implemented")
}

func TestPool_ConcurrentGetDialsOnce(t *testing.T) {
	carrier := &fakeCarrier{delay: 50 * time.Millisecond}
	pool, err := NewPool(carrier, NewDirectory(map[string]string{testID: "10.0.0.1:7000"}, ""), 4, time.Second)
	require.NoError(t, err)

	var wg sync.WaitGroup
	sessions := make([]Session, 16)
	for i := range sessions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := pool.Get(context.Background(), testID)
			assert.NoError(t, err)
			sessions[i] = s
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), carrier.dials.Load())
	for _, s := range sessions {
		assert.Same(t, sessions[0], s)
	}
	assert.Equal(t, 1, pool.Len())
}

func TestPool_RedialsClosedSession(t *testing.T) {
	carrier := &fakeCarrier{}
	pool, err := NewPool(carrier, NewDirectory(nil, "relay:1"), 4, time.Second)
	require.NoError(t, err)

	first, err := pool.Get(context.Background(), testID)
	require.NoError(t, err)
	first.Close()

	second, err := pool.Get(context.Background(), testID)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, int32(2), carrier.dials.Load())
}

func TestPool_EvictionClosesSession(t *testing.T) {
	other := NewIdentity()
	carrier := &fakeCarrier{}
	dir := NewDirectory(map[string]string{testID: "a:1", other: "b:1"}, "")
	pool, err := NewPool(carrier, dir, 1, time.Second)
	require.NoError(t, err)

	first, err := pool.Get(context.Background(), testID)
	require.NoError(t, err)
	_, err = pool.Get(context.Background(), other)
	require.NoError(t, err)

	assert.True(t, first.IsClosed())
	assert.Equal(t, 1, pool.Len())

	require.NoError(t, pool.Close())
	assert.Equal(t, 0, pool.Len())
}

func TestPool_Errors(t *testing.T) {
	pool, err := NewPool(&fakeCarrier{}, NewDirectory(nil, ""), 1, time.Second)
	require.NoError(t, err)
	_, err = pool.Get(context.Background(), testID)
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodePeerUnknown))

	failing := &fakeCarrier{failErr: errors.New("connection refused")}
	pool, err = NewPool(failing, NewDirectory(nil, "relay:1"), 1, time.Second)
	require.NoError(t, err)
	_, err = pool.Get(context.Background(), testID)
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeTransportError))
	assert.Equal(t, 0, pool.Len())

	slow := &fakeCarrier{delay: 200 * time.Millisecond}
	pool, err = NewPool(slow, NewDirectory(nil, "relay:1"), 1, time.Second)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = pool.Get(ctx, testID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDirectory(t *testing.T) {
	dir := NewDirectory(map[string]string{testID: "a:1"}, "")
	addr, err := dir.Resolve(testID)
	require.NoError(t, err)
	assert.Equal(t, "a:1", addr)

	dir.Set(testID, "b:2")
	addr, _ = dir.Resolve(testID)
	assert.Equal(t, "b:2", addr)

	dir.Remove(testID)
	_, err = dir.Resolve(testID)
	assert.Error(t, err)
}
