// Package edge turns level-sampled digital inputs into rising-edge events.
//
// The break-beam sensors are sampled once per control cycle. A vehicle that
// blocks the beam for several cycles must produce exactly one event, so each
// input remembers its previous sample and only the inactive to active
// transition is reported. There is no debounce; the cycle period is far
// longer than contact bounce on these modules.
package edge

import (
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/smartpark-core/internal/hal"
)

// ErrUnknownInput is returned by Poll for an ID that was never registered.
var ErrUnknownInput = errors.New("edge: unknown input")

type line struct {
	in        hal.Input
	activeLow bool
	prev      bool
}

// Detector tracks the previous sample of each registered input.
type Detector struct {
	mu    sync.Mutex
	lines map[string]*line
}

// NewDetector returns an empty Detector.
func NewDetector() *Detector {
	return &Detector{lines: make(map[string]*line)}
}

// Register adds an input. The initial state is inactive, so an input that is
// already asserted at startup fires on the first Poll.
func (d *Detector) Register(id string, in hal.Input, activeLow bool) {
	d.mu.Lock()
	d.lines[id] = &line{in: in, activeLow: activeLow}
	d.mu.Unlock()
}

// Poll samples the input and reports whether it just became active.
func (d *Detector) Poll(id string) (bool, error) {
	d.mu.Lock()
	l, ok := d.lines[id]
	d.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownInput, id)
	}
	return d.Observe(id, hal.Active(l.in, l.activeLow)), nil
}

// Observe records active as the latest sample for id and reports a rising
// edge. It is the pure half of Poll; unknown IDs are tracked on first use.
func (d *Detector) Observe(id string, active bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	l, ok := d.lines[id]
	if !ok {
		l = &line{}
		d.lines[id] = l
	}
	rising := active && !l.prev
	l.prev = active
	return rising
}

// Reset forgets every previous sample.
func (d *Detector) Reset() {
	d.mu.Lock()
	for _, l := range d.lines {
		l.prev = false
	}
	d.mu.Unlock()
}
