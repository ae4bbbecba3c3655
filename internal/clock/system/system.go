// Package system provides the wall clock used outside tests.
package system

import "time"

// Clock implements crawler.Clock. Times are UTC and truncated to the
// millisecond so that stored timestamps round-trip through JSON unchanged.
type Clock struct{}

// New returns a Clock.
func New() *Clock {
	return &Clock{}
}

// Now implements crawler.Clock.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
