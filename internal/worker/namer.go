package worker

import (
	"fmt"
	"sync"
)

// Namer issues screenshot object names of the form shot_<index>_<unix>.png.
// A name already issued by the same Namer gets a _<n> suffix. Within one
// worker run each index is used once, so the suffix only guards callers
// that reuse an index in the same second.
type Namer struct {
	clock  Clock
	mu     sync.Mutex
	issued map[string]int
}

// NewNamer returns a Namer for one run.
func NewNamer(clock Clock) *Namer {
	return &Namer{clock: clock, issued: make(map[string]int)}
}

// Next returns the name for the screenshot of the link at index.
func (n *Namer) Next(index int) string {
	base := fmt.Sprintf("shot_%d_%d", index, n.clock.Now().Unix())

	n.mu.Lock()
	seen := n.issued[base]
	n.issued[base] = seen + 1
	n.mu.Unlock()

	if seen == 0 {
		return base + ".png"
	}
	return fmt.Sprintf("%s_%d.png", base, seen)
}
