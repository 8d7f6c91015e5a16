// Package context shortens the names of the standard library context
// functions and types so signatures stay readable.
package context

import (
	"context"
	"time"
)

type (
	T = context.Context
	F = context.CancelFunc
	C = context.CancelCauseFunc
)

var (
	Bg          = context.Background
	Cancel      = context.WithCancel
	Timeout     = context.WithTimeout
	TODO        = context.TODO
	Value       = context.WithValue
	CancelCause = context.WithCancelCause
	Cause       = context.Cause
	Canceled    = context.Canceled
	Deadline    = context.DeadlineExceeded
)

// Sleep waits for d or until c is done, whichever comes first, returning the
// context error in the latter case.
func Sleep(c T, d time.Duration) (err error) {
	if d <= 0 {
		return c.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-c.Done():
		return c.Err()
	case <-t.C:
	}
	return
}
