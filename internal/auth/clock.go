package auth

import "time"

// Clock supplies the current time. Tests substitute a fixed or advancing clock
// to exercise expiry without sleeping.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now in UTC.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
