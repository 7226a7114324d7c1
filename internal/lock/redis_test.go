package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedis_AcquireRelease(t *testing.T) {
	mr, client := setupRedis(t)
	l := NewRedis(client, RedisOptions{Tries: 1})

	release, err := l.Acquire(context.Background(), "acct-2", "acct-1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("ledger:lock:account:acct-1"))
	assert.True(t, mr.Exists("ledger:lock:account:acct-2"))

	release()
	release()
	assert.False(t, mr.Exists("ledger:lock:account:acct-1"))
	assert.False(t, mr.Exists("ledger:lock:account:acct-2"))
}

func TestRedis_ContentionTimesOut(t *testing.T) {
	mr, client := setupRedis(t)
	l := NewRedis(client, RedisOptions{Tries: 2, RetryDelay: 5 * time.Millisecond})

	release, err := l.Acquire(context.Background(), "acct-1")
	require.NoError(t, err)
	defer release()

	_, err = l.Acquire(context.Background(), "acct-0", "acct-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)

	// The partially acquired key is rolled back.
	assert.False(t, mr.Exists("ledger:lock:account:acct-0"))
}

func TestRedis_ContentionDoesNotTripBreaker(t *testing.T) {
	_, client := setupRedis(t)
	l := NewRedis(client, RedisOptions{Tries: 1})

	release, err := l.Acquire(context.Background(), "hot")
	require.NoError(t, err)
	defer release()

	for i := 0; i < 10; i++ {
		_, err := l.Acquire(context.Background(), "hot")
		require.ErrorIs(t, err, ErrTimeout)
	}

	other, err := l.Acquire(context.Background(), "cold")
	require.NoError(t, err, "breaker must stay closed under contention")
	other()
}

func TestRedis_BackendDownOpensBreaker(t *testing.T) {
	mr, client := setupRedis(t)
	l := NewRedis(client, RedisOptions{Tries: 1})
	mr.Close()

	for i := 0; i < 5; i++ {
		_, err := l.Acquire(context.Background(), "acct-1")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnavailable)
	}

	_, err := l.Acquire(context.Background(), "acct-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "circuit breaker is open")
}

func TestRedis_CustomPrefix(t *testing.T) {
	mr, client := setupRedis(t)
	l := NewRedis(client, RedisOptions{Prefix: "test:", Tries: 1})

	release, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)
	defer release()
	assert.True(t, mr.Exists("test:k"))
}

func TestRedis_HeldLockIsExtended(t *testing.T) {
	mr, client := setupRedis(t)
	l := NewRedis(client, RedisOptions{Expiry: 300 * time.Millisecond, Tries: 1})

	release, err := l.Acquire(context.Background(), "acct-1")
	require.NoError(t, err)

	key := "ledger:lock:account:acct-1"
	mr.FastForward(250 * time.Millisecond)
	require.Less(t, mr.TTL(key), 100*time.Millisecond)

	require.Eventually(t, func() bool {
		return mr.TTL(key) > 200*time.Millisecond
	}, 2*time.Second, 10*time.Millisecond, "held lock should be extended")

	// Past the original expiry the key is still ours.
	mr.FastForward(200 * time.Millisecond)
	assert.True(t, mr.Exists(key))

	release()
	assert.False(t, mr.Exists(key))
}
