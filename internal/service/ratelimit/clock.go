package ratelimit

import "time"

// Clock is the time source used by a bucket.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock. time.Now carries a monotonic reading,
// so elapsed-time math is not affected by wall clock steps.
func SystemClock() Clock { return systemClock{} }
