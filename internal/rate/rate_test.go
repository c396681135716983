package rate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter_FixedWindow(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryLimiter()
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }

	l := Fixed(m, "register", 2, time.Minute)
	for i := 0; i < 2; i++ {
		res, err := l.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}
	res, err := l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Equal(t, time.Minute, res.RetryAfter)

	// otra IP y otro scope tienen contadores propios
	res, _ = l.Allow(ctx, "5.6.7.8")
	require.True(t, res.Allowed)
	res, _ = Fixed(m, "consents", 2, time.Minute).Allow(ctx, "1.2.3.4")
	require.True(t, res.Allowed)

	// ventana nueva
	m.now = func() time.Time { return base.Add(time.Minute) }
	res, _ = l.Allow(ctx, "1.2.3.4")
	require.True(t, res.Allowed)
	require.EqualValues(t, 1, res.Remaining)
}
