// Package clock abstracts time so that backoff, cooldown and pacing logic can
// be tested without real sleeps.
package clock

import "time"

type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func New() Clock { return realClock{} }

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }
