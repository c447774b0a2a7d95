// Package watch keeps an index in step with a repository tree: it
// watches the filesystem, coalesces bursts of change events, and
// applies the surviving changes to the index incrementally.
package watch

import (
	"sync"
	"time"
)

// Op classifies a file change.
type Op int

const (
	OpCreate Op = iota
	OpModify
	OpDelete
)

func (op Op) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	}
	return "unknown"
}

// Event is one file change, with Path relative to the watch root.
type Event struct {
	Path string
	Op   Op
}

// DefaultDebounceWindow is the coalescing window for change bursts.
const DefaultDebounceWindow = 500 * time.Millisecond

// debouncer coalesces rapid events per path:
// create then modify stays create, create then delete cancels out,
// modify then delete becomes delete, delete then create becomes modify.
type debouncer struct {
	window time.Duration
	out    chan []Event
	stopCh chan struct{}

	mu      sync.Mutex
	pending map[string]Event
	firstOp map[string]Op
	timer   *time.Timer
	stopped bool
}

func newDebouncer(window time.Duration) *debouncer {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &debouncer{
		window:  window,
		out:     make(chan []Event, 8),
		stopCh:  make(chan struct{}),
		pending: make(map[string]Event),
		firstOp: make(map[string]Op),
	}
}

func (d *debouncer) add(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	if _, ok := d.pending[ev.Path]; !ok {
		d.pending[ev.Path] = ev
		d.firstOp[ev.Path] = ev.Op
		d.schedule()
		return
	}

	switch first := d.firstOp[ev.Path]; {
	case first == OpCreate && ev.Op == OpDelete:
		// The file never outlived the window.
		delete(d.pending, ev.Path)
		delete(d.firstOp, ev.Path)
	case first == OpCreate:
		// Still new to the index.
	case first == OpDelete && ev.Op == OpCreate:
		d.pending[ev.Path] = Event{Path: ev.Path, Op: OpModify}
	default:
		d.pending[ev.Path] = ev
	}
	d.schedule()
}

func (d *debouncer) schedule() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

func (d *debouncer) flush() {
	d.mu.Lock()
	if d.stopped || len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}
	batch := make([]Event, 0, len(d.pending))
	for _, ev := range d.pending {
		batch = append(batch, ev)
	}
	d.pending = make(map[string]Event)
	d.firstOp = make(map[string]Op)
	d.mu.Unlock()

	// Backpressure here just delays the next flush; stop aborts a
	// blocked send.
	select {
	case d.out <- batch:
	case <-d.stopCh:
	}
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.stopCh)
}
