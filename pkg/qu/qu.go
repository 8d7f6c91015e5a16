// Package qu provides the signalling channel type used for quit and trigger
// switches.
package qu

import (
	"os"
	"sync"

	"github.com/Hubmakerlabs/reflectr/pkg/slog"
)

var log, chk = slog.New(os.Stderr)

// C is your basic empty struct signalling channel
type C chan struct{}

// closers serialises Q so that two goroutines closing the same channel
// cannot both pass the closed test.
var closers sync.Mutex

// T creates an unbuffered chan struct{} for trigger and quit signalling
// (momentary and breaker switches)
func T() C { return make(C) }

// Ts creates a buffered chan struct{} which is specifically intended for
// signalling without blocking.
func Ts(n int) C { return make(C, n) }

// Q closes the channel, which makes it emit a nil every time it is selected.
// Closing an already closed channel is a no-op.
func (c C) Q() {
	closers.Lock()
	defer closers.Unlock()
	if testChanIsClosed(c) {
		log.T.Ln("channel was already closed", slog.GetLoc(2))
		return
	}
	close(c)
}

// Signal sends struct{}{} on the channel without blocking; if nobody is
// ready to receive and there is no buffer space the signal is dropped.
// Signalling a closed channel reports false.
func (c C) Signal() (sent bool) {
	defer func() {
		if recover() != nil {
			sent = false
		}
	}()
	select {
	case c <- struct{}{}:
		sent = true
	default:
	}
	return
}

// Wait should be placed with a `<-` in a select case in addition to the channel
// variable name
func (c C) Wait() <-chan struct{} { return c }

// IsClosed exposes a test to see if the channel is closed
func (c C) IsClosed() bool { return testChanIsClosed(c) }

// testChanIsClosed reports whether the channel has been closed. On a
// buffered channel holding a pending signal it consumes that signal, so it
// is only meaningful for quit channels.
func testChanIsClosed(ch C) (o bool) {
	if ch == nil {
		return true
	}
	select {
	case _, ok := <-ch:
		o = !ok
	default:
	}
	return
}
