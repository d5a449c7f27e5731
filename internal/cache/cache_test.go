package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_SetGet(t *testing.T) {
	c := NewMemory()
	c.Set("trust:a:b", []byte("0.6"), time.Minute)

	v, ok := c.Get("trust:a:b")
	require.True(t, ok)
	assert.Equal(t, []byte("0.6"), v)

	_, ok = c.Get("trust:a:c")
	assert.False(t, ok)
}

func TestMemory_Expiry(t *testing.T) {
	c := NewMemory()
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set("k", []byte("v"), 10*time.Second)
	_, ok := c.Get("k")
	require.True(t, ok)

	now = now.Add(11 * time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestMemory_ZeroTTLIgnored(t *testing.T) {
	c := NewMemory()
	c.Set("k", []byte("v"), 0)
	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestMemory_InvalidatePrefix(t *testing.T) {
	c := NewMemory()
	c.Set("trust:a:b", []byte("1"), time.Minute)
	c.Set("trust:a:c", []byte("2"), time.Minute)
	c.Set("path:a:b", []byte("3"), time.Minute)

	c.InvalidatePrefix("trust:a:")

	_, ok := c.Get("trust:a:b")
	assert.False(t, ok)
	_, ok = c.Get("trust:a:c")
	assert.False(t, ok)
	_, ok = c.Get("path:a:b")
	assert.True(t, ok)
}

func TestNop(t *testing.T) {
	var c Nop
	c.Set("k", []byte("v"), time.Minute)
	_, ok := c.Get("k")
	assert.False(t, ok)
	c.InvalidatePrefix("k")
}
