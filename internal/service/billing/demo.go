package billing

import "fmt"

// DemoCounterName is the durable counter key.
const DemoCounterName = "demo_seconds_used"

// DefaultDemoCeiling is the demo allowance in seconds.
const DefaultDemoCeiling = 180

// CounterStore persists named integer counters.
type CounterStore interface {
	Counter(name string) (int, error)
	SetCounter(name string, value int) error
}

// DemoCounter is the durable demo-seconds counter. It only resets through
// Reset.
type DemoCounter struct {
	store   CounterStore
	ceiling int
	value   int
}

// NewDemoCounter loads the counter from store.
func NewDemoCounter(store CounterStore, ceiling int) (*DemoCounter, error) {
	if ceiling <= 0 {
		ceiling = DefaultDemoCeiling
	}
	v, err := store.Counter(DemoCounterName)
	if err != nil {
		return nil, fmt.Errorf("load demo counter: %w", err)
	}
	return &DemoCounter{store: store, ceiling: ceiling, value: min(max(v, 0), ceiling)}, nil
}

// Value is the number of demo seconds used.
func (d *DemoCounter) Value() int { return d.value }

// Ceiling is the demo allowance.
func (d *DemoCounter) Ceiling() int { return d.ceiling }

// Exhausted reports whether the allowance is used up.
func (d *DemoCounter) Exhausted() bool { return d.value >= d.ceiling }

// Increment adds one second, never past the ceiling. The in-memory value
// advances even when persisting fails.
func (d *DemoCounter) Increment() (int, error) {
	if d.value >= d.ceiling {
		return d.value, nil
	}
	d.value++
	if err := d.store.SetCounter(DemoCounterName, d.value); err != nil {
		return d.value, fmt.Errorf("persist demo counter: %w", err)
	}
	return d.value, nil
}

// Reset zeroes the counter.
func (d *DemoCounter) Reset() error {
	d.value = 0
	if err := d.store.SetCounter(DemoCounterName, 0); err != nil {
		return fmt.Errorf("reset demo counter: %w", err)
	}
	return nil
}

// Latch fires once until reset.
type Latch struct {
	fired bool
}

// Fire reports true the first time it is called after a reset.
func (l *Latch) Fire() bool {
	if l.fired {
		return false
	}
	l.fired = true
	return true
}

// Reset re-arms the latch.
func (l *Latch) Reset() { l.fired = false }

// Fired reports whether the latch has fired.
func (l *Latch) Fired() bool { return l.fired }
