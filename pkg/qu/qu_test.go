package qu

import (
	"sync"
	"testing"
)

func TestQIsIdempotent(t *testing.T) {
	c := T()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Q()
		}()
	}
	wg.Wait()
	if !c.IsClosed() {
		t.Fatal("channel should be closed")
	}
	select {
	case <-c.Wait():
	default:
		t.Fatal("closed channel should not block")
	}
}

func TestSignal(t *testing.T) {
	c := Ts(1)
	if !c.Signal() {
		t.Fatal("buffered signal should be accepted")
	}
	if c.Signal() {
		t.Fatal("full buffer should drop the signal")
	}
	<-c.Wait()
	c.Q()
	if c.Signal() {
		t.Fatal("closed channel should not accept signals")
	}
}
