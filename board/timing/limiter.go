package timing

import "time"

// Limiter controls frame rate timing for emulation.
type Limiter interface {
	// WaitForNextFrame blocks until it's time for the next frame.
	// Returns immediately if timing is behind schedule.
	WaitForNextFrame()

	// Reset resets the timing state, useful after pauses.
	Reset()
}

// NewNoOpLimiter returns a limiter that doesn't limit (for headless mode).
func NewNoOpLimiter() Limiter {
	return &noOpLimiter{}
}

type noOpLimiter struct{}

func (n *noOpLimiter) WaitForNextFrame() {}
func (n *noOpLimiter) Reset()            {}

// HostRefreshHz is the rate at which the LCD device blits its two source
// framebuffers into the host surface (see devices/lcd). Not cycle-accurate
// to the real console; just a steady host redraw cadence.
const HostRefreshHz = 60

// TargetFPS returns the host redraw rate used to pace Limiter.
func TargetFPS() float64 {
	return HostRefreshHz
}

// FrameDuration returns the target duration of a single frame.
func FrameDuration() time.Duration {
	return time.Duration(float64(time.Second) / TargetFPS())
}
