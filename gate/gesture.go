package gate

import "time"

// TapCounter recognizes the covert multi-tap recovery gesture on the decoy
// heading: a fixed number of taps inside a sliding window. Taps older than
// the window fall out, so a tap after a gap starts a fresh sequence.
type TapCounter struct {
	need   int
	window time.Duration
	taps   []time.Time
}

// NewTapCounter creates the default recognizer: five taps within 2 seconds.
func NewTapCounter() *TapCounter {
	return &TapCounter{need: 5, window: 2 * time.Second}
}

// Tap records a tap at the given time and reports whether the sequence
// completed. A completed sequence resets the counter.
func (c *TapCounter) Tap(at time.Time) bool {
	kept := c.taps[:0]
	for _, t := range c.taps {
		if at.Sub(t) <= c.window {
			kept = append(kept, t)
		}
	}
	c.taps = append(kept, at)

	if len(c.taps) >= c.need {
		c.taps = c.taps[:0]
		return true
	}
	return false
}

// Reset discards any in-progress sequence.
func (c *TapCounter) Reset() { c.taps = c.taps[:0] }

// HoldDetector recognizes the press-and-hold recovery gesture on the
// password screen's entry icon.
type HoldDetector struct {
	threshold time.Duration
	pressedAt time.Time
	pressed   bool
}

// NewHoldDetector creates the default recognizer: a 3-second hold.
func NewHoldDetector() *HoldDetector {
	return &HoldDetector{threshold: 3 * time.Second}
}

// Press records the press start.
func (d *HoldDetector) Press(at time.Time) {
	d.pressedAt = at
	d.pressed = true
}

// Release ends the press and reports whether the hold lasted long enough.
func (d *HoldDetector) Release(at time.Time) bool {
	if !d.pressed {
		return false
	}
	d.pressed = false
	return at.Sub(d.pressedAt) >= d.threshold
}
