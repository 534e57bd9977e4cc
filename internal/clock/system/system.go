// Package system provides a real clock implementation.
package system

import "time"

// Clock implements crawler.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC, truncated to the second so discovery
// timestamps and output file names agree.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
