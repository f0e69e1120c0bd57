package budget

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/banshee-data/roomlight/internal/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnlimitedNeverYields(t *testing.T) {
	b := Unlimited()
	for range 1000 {
		require.NoError(t, b.Step(context.Background()))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, b.Step(ctx), context.Canceled)
}

func TestSlicerYieldsWhenBudgetSpent(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	s := NewSlicer(8*time.Millisecond, WithClock(clock))

	ctx := context.Background()
	require.NoError(t, s.Step(ctx))
	clock.Advance(5 * time.Millisecond)
	require.NoError(t, s.Step(ctx))
	if s.Yields() != 0 {
		t.Fatalf("Yields = %d before budget spent", s.Yields())
	}

	clock.Advance(3 * time.Millisecond)
	require.NoError(t, s.Step(ctx))
	assert.Equal(t, 1, s.Yields())

	// The slice restarts after a yield.
	clock.Advance(time.Millisecond)
	require.NoError(t, s.Step(ctx))
	assert.Equal(t, 1, s.Yields())
}

func TestSlicerWaitsForFrame(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	frames := make(chan struct{}, 1)
	s := NewSlicer(time.Millisecond, WithClock(clock), WithFrames(frames))

	clock.Advance(2 * time.Millisecond)
	frames <- struct{}{}
	require.NoError(t, s.Step(context.Background()))
	assert.Equal(t, 1, s.Yields())

	// Blocked waiting on a frame, cancellation wins.
	clock.Advance(2 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := s.Step(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Step err = %v, want deadline exceeded", err)
	}
}

func TestSlicerZeroBudgetIsUnlimited(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	s := NewSlicer(0, WithClock(clock))
	clock.Advance(time.Hour)
	require.NoError(t, s.Step(context.Background()))
	assert.Equal(t, 0, s.Yields())
	assert.NotNil(t, OrUnlimited(nil))
}
