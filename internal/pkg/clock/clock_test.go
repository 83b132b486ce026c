package clock

import (
	"testing"
	"time"
)

func TestTimeClocker_Now(t *testing.T) {
	c := New()

	before := time.Now()
	got := c.Now()
	after := time.Now()

	if got.Before(before) || got.After(after) {
		t.Fatalf("Now() = %v, want between %v and %v", got, before, after)
	}
}

func TestTimeClocker_NewTicker(t *testing.T) {
	c := New()

	tk := c.NewTicker(5 * time.Millisecond)
	defer tk.Stop()

	select {
	case <-tk.C():
	case <-time.After(time.Second):
		t.Fatal("ticker did not fire within 1s")
	}
}
