package backoff

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDelayGrowsAndCaps(t *testing.T) {
	p := Default()

	d1 := p.Delay(1)
	require.GreaterOrEqual(t, d1, time.Second)
	require.Less(t, d1, 2*time.Second)

	d10 := p.Delay(10)
	require.LessOrEqual(t, d10, p.Cap+p.Cap/5)
}

func TestSleepReturnsEarlyOnCancellation(t *testing.T) {
	p := Policy{Base: time.Minute, Cap: time.Minute}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Sleep(ctx, 1)
	require.ErrorIs(t, err, context.Canceled)
}
