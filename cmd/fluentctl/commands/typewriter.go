package commands

import (
	"fmt"
	"io"
	"sync"
)

// typewriter prints each newly revealed part of a reply
type typewriter struct {
	mu      sync.Mutex
	w       io.Writer
	printed int
}

func (t *typewriter) reveal(visible string, index int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if index < t.printed {
		t.printed = 0
	}
	runes := []rune(visible)
	if index > len(runes) {
		index = len(runes)
	}
	fmt.Fprint(t.w, string(runes[t.printed:index]))
	t.printed = index
}

// reset starts a new line for the next reply
func (t *typewriter) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.printed > 0 {
		fmt.Fprintln(t.w)
	}
	t.printed = 0
}
