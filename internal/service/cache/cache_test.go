package cache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCache_Expiry(t *testing.T) {
	c := NewTTLCache()
	require.NoError(t, c.SetBytes("k", []byte("v"), 20*time.Millisecond))

	b, ok, err := c.GetBytes("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), b)

	time.Sleep(30 * time.Millisecond)
	_, ok, err = c.GetBytes("k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTTLCache_ZeroTTLNeverExpires(t *testing.T) {
	now := time.Now()
	c := NewTTLCache()
	c.now = func() time.Time { return now }
	require.NoError(t, c.SetBytes("k", []byte("v"), 0))

	now = now.Add(24 * time.Hour)
	_, ok, _ := c.GetBytes("k")
	assert.True(t, ok)
}

func TestTTLCache_SweepsExpired(t *testing.T) {
	now := time.Now()
	c := NewTTLCache()
	c.now = func() time.Time { return now }
	c.sweepAt = 2

	require.NoError(t, c.SetBytes("a", []byte("1"), time.Second))
	require.NoError(t, c.SetBytes("b", []byte("2"), time.Second))
	now = now.Add(2 * time.Second)
	require.NoError(t, c.SetBytes("c", []byte("3"), time.Second))
	assert.Equal(t, 1, c.Len())
}

func TestTTLCache_CopiesValue(t *testing.T) {
	c := NewTTLCache()
	v := []byte("abc")
	require.NoError(t, c.SetBytes("k", v, time.Minute))
	v[0] = 'x'
	b, _, _ := c.GetBytes("k")
	assert.Equal(t, "abc", string(b))
}

func TestRedisCache_RoundTripAndExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewRedisCache(RedisConfig{Addr: mr.Addr(), Prefix: "bp:"})
	defer c.Close()

	require.NoError(t, c.SetBytes("latest:block", []byte(`{"block_height":1}`), time.Minute))
	assert.True(t, mr.Exists("bp:latest:block"))

	b, ok, err := c.GetBytes("latest:block")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"block_height":1}`, string(b))

	mr.FastForward(2 * time.Minute)
	_, ok, err = c.GetBytes("latest:block")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_ServerDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	c := NewRedisCacheFromClient(rdb, "", 100*time.Millisecond)
	mr.Close()

	_, ok, err := c.GetBytes("x")
	assert.Error(t, err)
	assert.False(t, ok)
}
