package typing

import (
	"iter"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/benbjohnson/clock"
)

// DelayPolicy decides how long to wait before revealing the next character,
// based on the character just revealed.
type DelayPolicy struct {
	Whitespace  time.Duration
	Punctuation time.Duration
	Default     time.Duration
}

// DefaultPolicy approximates a natural reading pace
func DefaultPolicy() DelayPolicy {
	return DelayPolicy{
		Whitespace:  20 * time.Millisecond,
		Punctuation: 80 * time.Millisecond,
		Default:     30 * time.Millisecond,
	}
}

// After returns the pause that follows r
func (p DelayPolicy) After(r rune) time.Duration {
	switch {
	case unicode.IsSpace(r):
		return p.Whitespace
	case r == '.' || r == ',' || r == '!' || r == '?':
		return p.Punctuation
	default:
		return p.Default
	}
}

// Step reveals the first Index characters after waiting Delay
type Step struct {
	Index int
	Delay time.Duration
}

// Schedule lazily yields one step per character of text
func (p DelayPolicy) Schedule(text string) iter.Seq[Step] {
	return func(yield func(Step) bool) {
		prev, first := rune(0), true
		i := 0
		for _, r := range text {
			delay := p.Default
			if !first {
				delay = p.After(prev)
			}
			i++
			if !yield(Step{Index: i, Delay: delay}) {
				return
			}
			prev, first = r, false
		}
	}
}

// Duration is the time a full reveal of text takes
func (p DelayPolicy) Duration(text string) time.Duration {
	var total time.Duration
	for step := range p.Schedule(text) {
		total += step.Delay
	}
	return total
}

// Revealer runs reveal schedules on a clock
type Revealer struct {
	clock  clock.Clock
	policy DelayPolicy
}

// NewRevealer creates a revealer; tests pass clock.NewMock()
func NewRevealer(clk clock.Clock, policy DelayPolicy) *Revealer {
	return &Revealer{clock: clk, policy: policy}
}

// Start begins revealing text. onReveal is called from the reveal goroutine
// with each new index, in increasing order.
func (r *Revealer) Start(text string, onReveal func(index int)) *Reveal {
	rv := &Reveal{
		length: len([]rune(text)),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	start := r.clock.Now()
	go rv.run(r.clock, start, r.policy.Schedule(text), onReveal)
	return rv
}

// Reveal is one running reveal
type Reveal struct {
	length   int
	index    atomic.Int64
	finished atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// run waits for absolute deadlines measured from start so late wakeups do not
// push the rest of the schedule back.
func (rv *Reveal) run(clk clock.Clock, start time.Time, schedule iter.Seq[Step], onReveal func(int)) {
	defer close(rv.done)

	var elapsed time.Duration
	for step := range schedule {
		elapsed += step.Delay
		if wait := start.Add(elapsed).Sub(clk.Now()); wait > 0 {
			timer := clk.Timer(wait)
			select {
			case <-timer.C:
			case <-rv.stop:
				timer.Stop()
				return
			}
		} else {
			select {
			case <-rv.stop:
				return
			default:
			}
		}

		rv.index.Store(int64(step.Index))
		if onReveal != nil {
			onReveal(step.Index)
		}
	}
	rv.finished.Store(true)
}

// Done is closed once the reveal finished or was stopped
func (rv *Reveal) Done() <-chan struct{} {
	return rv.done
}

// Stop cancels the reveal at its next tick. It does not wait.
func (rv *Reveal) Stop() {
	rv.stopOnce.Do(func() { close(rv.stop) })
}

// Index is the number of characters revealed so far
func (rv *Reveal) Index() int {
	return int(rv.index.Load())
}

// Len is the length of the text in characters
func (rv *Reveal) Len() int {
	return rv.length
}

// Finished reports whether every character was revealed
func (rv *Reveal) Finished() bool {
	return rv.finished.Load()
}
