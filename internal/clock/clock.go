// Package clock provides the wall-clock implementation of crawler.Clock.
package clock

import "time"

// System reads the wall clock in UTC.
type System struct{}

// Now implements crawler.Clock.
func (System) Now() time.Time {
	return time.Now().UTC()
}
