// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock abstracts time operations for testability. Production code
// injects Real(); tests inject Fake() with deterministic time control.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time after
	// duration d elapses. If d <= 0, the channel receives immediately.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a Ticker that delivers ticks on its C channel
	// at the specified interval. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker

	// Sleep pauses the current goroutine for at least duration d.
	Sleep(d time.Duration)
}

// Ticker wraps a periodic timer. Read ticks from C. Call Stop when the
// Ticker is no longer needed.
//
// The C channel has capacity 1, matching time.Ticker. A consumer that
// falls behind loses ticks instead of queueing them.
type Ticker struct {
	// C delivers ticks. Buffered with capacity 1.
	C <-chan time.Time

	stopFunc  func()
	resetFunc func(time.Duration)
}

// Stop turns off the ticker. Stop does not close C.
func (t *Ticker) Stop() { t.stopFunc() }

// Reset adjusts the ticker to a new interval and restarts the tick
// cycle.
func (t *Ticker) Reset(d time.Duration) { t.resetFunc(d) }

// UnixMilli returns the clock's current time as Unix milliseconds,
// the representation used for start timestamps in session records.
func UnixMilli(c Clock) int64 {
	return c.Now().UnixMilli()
}

// Remaining returns how long until deadline according to c, clamped
// at zero.
func Remaining(c Clock, deadline time.Time) time.Duration {
	left := deadline.Sub(c.Now())
	if left < 0 {
		return 0
	}
	return left
}
