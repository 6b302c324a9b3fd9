package typing

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// advanceUntil moves the mock clock forward in small steps until done closes
func advanceUntil(t *testing.T, mock *clock.Mock, done <-chan struct{}, step time.Duration) time.Duration {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	var advanced time.Duration
	for {
		select {
		case <-done:
			return advanced
		default:
		}
		if time.Now().After(deadline) {
			t.Fatal("reveal did not finish in time")
		}
		mock.Add(step)
		advanced += step
	}
}

func TestDelayPolicy_After(t *testing.T) {
	p := DefaultPolicy()

	assert.Equal(t, 20*time.Millisecond, p.After(' '))
	assert.Equal(t, 20*time.Millisecond, p.After('\n'))
	for _, r := range ".,!?" {
		assert.Equal(t, 80*time.Millisecond, p.After(r), "rune %q", r)
	}
	assert.Equal(t, 30*time.Millisecond, p.After('a'))
	assert.Equal(t, 30*time.Millisecond, p.After(';'))
}

func TestDelayPolicy_Schedule(t *testing.T) {
	p := DefaultPolicy()

	var steps []Step
	for s := range p.Schedule("Hi, a.") {
		steps = append(steps, s)
	}

	ms := time.Millisecond
	want := []Step{
		{1, 30 * ms}, // before 'H'
		{2, 30 * ms}, // after 'H'
		{3, 30 * ms}, // after 'i'
		{4, 80 * ms}, // after ','
		{5, 20 * ms}, // after ' '
		{6, 30 * ms}, // after 'a'
	}
	assert.Equal(t, want, steps)
	assert.Equal(t, 220*ms, p.Duration("Hi, a."))
	assert.Equal(t, time.Duration(0), p.Duration(""))
}

func TestDelayPolicy_ScheduleIsLazy(t *testing.T) {
	count := 0
	for s := range DefaultPolicy().Schedule("a long reply that is never fully consumed") {
		count++
		if s.Index == 3 {
			break
		}
	}
	assert.Equal(t, 3, count)
}

func TestDelayPolicy_ScheduleCountsRunes(t *testing.T) {
	var last Step
	for s := range DefaultPolicy().Schedule("¿Qué tal?") {
		last = s
	}
	assert.Equal(t, 9, last.Index)
}

func TestReveal_RunsToCompletion(t *testing.T) {
	mock := clock.NewMock()
	revealer := NewRevealer(mock, DefaultPolicy())
	text := "Great question! Try it."

	var mu sync.Mutex
	var indices []int
	rv := revealer.Start(text, func(i int) {
		mu.Lock()
		indices = append(indices, i)
		mu.Unlock()
	})

	advanced := advanceUntil(t, mock, rv.Done(), 10*time.Millisecond)

	total := DefaultPolicy().Duration(text)
	assert.GreaterOrEqual(t, advanced, total, "reveal must not outrun its schedule")
	assert.LessOrEqual(t, advanced, total+500*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, indices, len([]rune(text)))
	for i, idx := range indices {
		assert.Equal(t, i+1, idx)
	}
	assert.True(t, rv.Finished())
	assert.Equal(t, rv.Len(), rv.Index())
}

func TestReveal_Stop(t *testing.T) {
	mock := clock.NewMock()
	revealer := NewRevealer(mock, DefaultPolicy())

	rv := revealer.Start("This reply is long enough to interrupt halfway through.", nil)
	mock.Add(100 * time.Millisecond)

	rv.Stop()
	rv.Stop()

	select {
	case <-rv.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("stopped reveal did not finish")
	}

	assert.False(t, rv.Finished())
	assert.Less(t, rv.Index(), rv.Len())
}

func TestReveal_EmptyText(t *testing.T) {
	rv := NewRevealer(clock.NewMock(), DefaultPolicy()).Start("", nil)

	select {
	case <-rv.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("empty reveal did not finish")
	}
	assert.True(t, rv.Finished())
	assert.Equal(t, 0, rv.Len())
}
