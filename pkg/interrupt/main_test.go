package interrupt

import (
	"testing"
	"time"

	"github.com/Hubmakerlabs/reflectr/pkg/context"
)

func TestRequestRunsHandlersInReverse(t *testing.T) {
	var order []int
	AddHandler(func() { order = append(order, 1) })
	AddHandler(func() { order = append(order, 2) })
	cx, cancel := Context(context.Bg())
	defer cancel()
	Request()
	select {
	case <-HandlersDone.Wait():
	case <-time.After(5 * time.Second):
		t.Fatal("handlers did not run")
	}
	if cx.Err() == nil {
		t.Fatal("interrupt context should be canceled")
	}
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Fatalf("handlers ran in order %v, want [2 1]", order)
	}
	if !Requested() {
		t.Fatal("Requested should report true")
	}
	// late handlers run immediately
	ran := false
	AddHandler(func() { ran = true })
	if !ran {
		t.Fatal("late handler should run at once")
	}
}
