// Package budget slices long geometric loops into frame-sized pieces.
//
// Loops call Step after every unit of work. A Slicer hands control back to
// the host once the elapsed time since the last hand-off exceeds its budget;
// Unlimited never hands off, so the same loop also runs as a single blocking
// call.
package budget

import (
	"context"
	"runtime"
	"time"

	"github.com/banshee-data/roomlight/internal/timeutil"
)

// Budget is consulted after each unit of work. A non-nil error means the
// loop must stop and return what it has so far.
type Budget interface {
	Step(ctx context.Context) error
}

type unlimited struct{}

// Unlimited returns a Budget that never yields. It still honours ctx.
func Unlimited() Budget { return unlimited{} }

func (unlimited) Step(ctx context.Context) error { return ctx.Err() }

// Slicer yields whenever the work since the previous yield exceeds the frame
// budget. It is not safe for concurrent use; each loop owns its own Slicer.
type Slicer struct {
	budget time.Duration
	clock  timeutil.Clock
	frames <-chan struct{}

	sliceStart time.Time
	yields     int
}

// Option configures a Slicer.
type Option func(*Slicer)

// WithClock overrides the time source.
func WithClock(c timeutil.Clock) Option {
	return func(s *Slicer) { s.clock = c }
}

// WithFrames makes the Slicer wait for the next value on frames when it
// yields, so the host render loop decides when work resumes. Without it the
// Slicer yields the processor with runtime.Gosched.
func WithFrames(frames <-chan struct{}) Option {
	return func(s *Slicer) { s.frames = frames }
}

// NewSlicer returns a Slicer with the given per-frame budget. A budget of
// zero or less behaves like Unlimited.
func NewSlicer(budget time.Duration, opts ...Option) *Slicer {
	s := &Slicer{budget: budget, clock: timeutil.RealClock{}}
	for _, o := range opts {
		o(s)
	}
	s.sliceStart = s.clock.Now()
	return s
}

// Step records one unit of work and yields if the slice is spent.
func (s *Slicer) Step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.budget <= 0 || s.clock.Since(s.sliceStart) < s.budget {
		return nil
	}

	s.yields++
	if s.frames == nil {
		runtime.Gosched()
	} else {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-s.frames:
			if !ok {
				s.frames = nil
			}
		}
	}
	s.sliceStart = s.clock.Now()
	return nil
}

// Yields returns how many times the Slicer has handed control back.
func (s *Slicer) Yields() int {
	return s.yields
}

// OrUnlimited returns b, or Unlimited when b is nil.
func OrUnlimited(b Budget) Budget {
	if b == nil {
		return Unlimited()
	}
	return b
}
