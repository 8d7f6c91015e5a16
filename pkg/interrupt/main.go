// Package interrupt runs a chain of shutdown handlers when the process
// receives SIGINT or SIGTERM, or when a shutdown is requested
// programmatically.
package interrupt

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/Hubmakerlabs/reflectr/pkg/context"
	"github.com/Hubmakerlabs/reflectr/pkg/qu"
	"github.com/Hubmakerlabs/reflectr/pkg/slog"
)

var log, chk = slog.New(os.Stderr)

type HandlerWithSource struct {
	Source string
	Fn     func()
}

var (
	requested atomic.Bool
	start     sync.Once

	// ch is used to receive SIGINT (Ctrl+C) and SIGTERM signals.
	ch chan os.Signal

	// signals is the list of signals that cause the interrupt
	signals = []os.Signal{os.Interrupt, syscall.SIGTERM}

	// ShutdownRequestChan is a channel that can receive shutdown requests
	ShutdownRequestChan = qu.T()

	// addHandlerChan is used to add an interrupt handler to the list of
	// handlers to be invoked on SIGINT (Ctrl+C) signals.
	addHandlerChan = make(chan HandlerWithSource)

	// HandlersDone is closed after all interrupt handlers run the first time
	// an interrupt is signaled.
	HandlersDone = qu.T()

	interruptCallbacks       []func()
	interruptCallbackSources []string
)

// Listener listens for interrupt signals, registers interrupt callbacks,
// and responds to custom shutdown signals as required
func Listener() {
	invokeCallbacks := func() {
		log.D.Ln(
			"running interrupt callbacks",
			len(interruptCallbacks),
			strings.Repeat(" ", 48),
			interruptCallbackSources,
		)
		// run handlers in LIFO order.
		for i := range interruptCallbacks {
			idx := len(interruptCallbacks) - 1 - i
			log.D.Ln("running callback", idx, interruptCallbackSources[idx])
			interruptCallbacks[idx]()
		}
		log.D.Ln("interrupt handlers finished")
		HandlersDone.Q()
	}
out:
	for {
		select {
		case sig := <-ch:
			log.I.Ln("received signal", sig, "- shutting down...")
			requested.Store(true)
			invokeCallbacks()
			break out

		case <-ShutdownRequestChan.Wait():
			log.W.Ln("received shutdown request - shutting down...")
			requested.Store(true)
			invokeCallbacks()
			break out

		case handler := <-addHandlerChan:
			interruptCallbacks = append(interruptCallbacks, handler.Fn)
			interruptCallbackSources = append(interruptCallbackSources,
				handler.Source)
		}
	}
	signal.Stop(ch)
}

func listen() {
	start.Do(func() {
		ch = make(chan os.Signal, 1)
		signal.Notify(ch, signals...)
		go Listener()
	})
}

// AddHandler adds a handler to call when a SIGINT (Ctrl+C) is received. A
// handler added after the handlers have already run is invoked at once.
func AddHandler(handler func()) {
	_, loc, line, _ := runtime.Caller(1)
	msg := fmt.Sprintf("%s:%d", loc, line)
	log.T.Ln("handler added by:", msg)
	listen()
	select {
	case addHandlerChan <- HandlerWithSource{msg, handler}:
	case <-HandlersDone.Wait():
		handler()
	}
}

// Context returns a child of c that is canceled when the interrupt
// handlers run.
func Context(c context.T) (cx context.T, cancel context.F) {
	cx, cancel = context.Cancel(c)
	AddHandler(cancel)
	return
}

// Request programmatically requests a shutdown
func Request() {
	_, f, l, _ := runtime.Caller(1)
	log.D.Ln("interrupt requested", f, l, requested.Load())
	if requested.Swap(true) {
		log.D.Ln("requested again")
		return
	}
	listen()
	ShutdownRequestChan.Q()
}

// Requested returns true if an interrupt has been requested
func Requested() bool {
	return requested.Load()
}
