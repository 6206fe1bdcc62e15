// Package system provides the wall-clock implementation of links.Clock.
package system

import "time"

// Clock returns the current system time.
type Clock struct{}

// New returns a system clock.
func New() *Clock {
	return &Clock{}
}

// Now returns time.Now().
func (c *Clock) Now() time.Time {
	return time.Now()
}
