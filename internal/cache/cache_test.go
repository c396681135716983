package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemory_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemory("test")

	_, err := c.Get(ctx, "missing")
	require.True(t, IsNotFound(err))

	require.NoError(t, c.Set(ctx, "k", "v", 0))
	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", v)

	ok, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, c.Delete(ctx, "k"))
	ok, _ = c.Exists(ctx, "k")
	require.False(t, ok)

	st, err := c.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, "memory", st.Driver)
	require.EqualValues(t, 1, st.Hits)
	require.EqualValues(t, 1, st.Misses)
}

func TestMemory_SetNXOnlyOnce(t *testing.T) {
	ctx := context.Background()
	c := NewMemory("")

	first, err := c.SetNX(ctx, "evt_1", "1", time.Hour)
	require.NoError(t, err)
	require.True(t, first)

	second, err := c.SetNX(ctx, "evt_1", "1", time.Hour)
	require.NoError(t, err)
	require.False(t, second)
}

func TestMemory_TTLExpires(t *testing.T) {
	ctx := context.Background()
	c := NewMemory("")
	require.NoError(t, c.Set(ctx, "k", "v", 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)
	_, err := c.Get(ctx, "k")
	require.True(t, IsNotFound(err))

	ok, err := c.SetNX(ctx, "k", "again", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemory_Stats(t *testing.T) {
	st, err := NewMemory("").Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, "memory", st.Driver)
}
