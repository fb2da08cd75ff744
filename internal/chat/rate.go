package chat

import "time"

// RateCounter tracks how many public messages a user has sent within the
// current wall-clock hour. The counter resets whenever the calendar date
// or the calendar hour of a new send differs from the previous one.
//
// RateCounter is a pure value type; Allow returns the updated counter so
// the caller (the Store) controls where the state lives and how the
// check-and-update is serialized.
type RateCounter struct {
	// Count is the number of sends recorded in the current hour window.
	Count int

	// Last is the timestamp of the most recent successful send.
	// The zero value means no send has been recorded yet.
	Last time.Time
}

// Allow applies a send attempt at the given instant against the hourly cap.
//
// When the counter is fresh, or the calendar date or hour has changed since
// the last send, the window resets and the attempt is allowed with Count=1.
// Within a window the attempt is refused once Count has reached the cap;
// a refused attempt does not modify the counter.
func (c RateCounter) Allow(now time.Time, capacity int) (RateCounter, bool) {
	if c.Last.IsZero() || !sameHour(c.Last, now) {
		return RateCounter{Count: 1, Last: now}, true
	}
	if c.Count >= capacity {
		return c, false
	}
	return RateCounter{Count: c.Count + 1, Last: now}, true
}

// sameHour reports whether a and b fall on the same calendar date and hour.
func sameHour(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd && a.Hour() == b.Hour()
}
