package looptest

import (
	"testing"
	"time"
)

func TestClock_AdvanceFiresInDeadlineOrder(t *testing.T) {
	c := NewClock(time.Unix(0, 0))
	var order []string
	c.AfterFunc(3*time.Second, func() { order = append(order, "c") })
	c.AfterFunc(1*time.Second, func() { order = append(order, "a") })
	c.AfterFunc(2*time.Second, func() { order = append(order, "b") })

	c.Advance(5 * time.Second)

	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Errorf("unexpected order: %v", order)
	}
	if got := c.Now(); !got.Equal(time.Unix(5, 0)) {
		t.Errorf("expected now=5s, got %v", got)
	}
}

func TestClock_TimersArmedDuringAdvanceFire(t *testing.T) {
	c := NewClock(time.Unix(0, 0))
	ticks := 0
	var tick func()
	tick = func() {
		ticks++
		c.AfterFunc(time.Second, tick)
	}
	c.AfterFunc(time.Second, tick)

	c.Advance(10 * time.Second)

	if ticks != 10 {
		t.Errorf("expected 10 ticks, got %d", ticks)
	}
}

func TestClock_StopPreventsFire(t *testing.T) {
	c := NewClock(time.Unix(0, 0))
	fired := false
	tm := c.AfterFunc(time.Second, func() { fired = true })

	if !tm.Stop() {
		t.Error("expected first Stop to report true")
	}
	if tm.Stop() {
		t.Error("expected second Stop to report false")
	}
	c.Advance(2 * time.Second)
	if fired {
		t.Error("stopped timer fired")
	}
}

func TestExecutor_PostIsRunToCompletion(t *testing.T) {
	e := NewExecutor()
	var order []int
	e.Post(func() {
		order = append(order, 1)
		e.Post(func() { order = append(order, 3) })
		order = append(order, 2)
	})

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("unexpected order: %v", order)
	}
}

func TestExecutor_GoIsParked(t *testing.T) {
	e := NewExecutor()
	ran := 0
	e.Go(func() { ran++ })
	e.Go(func() { ran++ })

	if ran != 0 {
		t.Fatal("Go work ran before release")
	}
	if e.Parked() != 2 {
		t.Errorf("expected 2 parked, got %d", e.Parked())
	}
	if n := e.RunPending(); n != 2 {
		t.Errorf("expected 2 runs, got %d", n)
	}
	if ran != 2 {
		t.Errorf("expected ran=2, got %d", ran)
	}
}
