// Package status tracks the in-memory pipeline state of every active link and
// enforces the monotonic status state machine.
package status

import (
	"fmt"
	"sync"
	"time"

	"github.com/mkarpis/linkmind/internal/ingest"
)

// Change describes one observed status transition.
type Change struct {
	LinkID string
	Old    ingest.Status
	New    ingest.Status
	At     time.Time
}

// validNext encodes the allowed transitions. FETCHING and CLASSIFYING may
// re-enter themselves on retry; terminal states accept nothing.
var validNext = map[ingest.Status]map[ingest.Status]bool{
	ingest.StatusPending: {
		ingest.StatusFetching: true,
	},
	ingest.StatusFetching: {
		ingest.StatusFetching:      true,
		ingest.StatusFetchComplete: true,
		ingest.StatusFailed:        true,
	},
	ingest.StatusFetchComplete: {
		ingest.StatusClassifying: true,
	},
	ingest.StatusClassifying: {
		ingest.StatusClassifying: true,
		ingest.StatusSuccess:     true,
		ingest.StatusFailed:      true,
	},
	ingest.StatusSuccess: {},
	ingest.StatusFailed:  {},
}

type row struct {
	status  ingest.Status
	retries int
	updated time.Time
}

// Table is the process-wide status store. Writers are pipeline workers;
// readers are observers, which never block writers for long since all
// operations are short critical sections.
type Table struct {
	mu     sync.RWMutex
	rows   map[string]*row
	clock  ingest.Clock
	notify func(Change)
}

// NewTable builds a Table. notify, if non-nil, is invoked outside hot locks
// for every transition and must not block.
func NewTable(clock ingest.Clock, notify func(Change)) *Table {
	if clock == nil {
		clock = ingest.SystemClock{}
	}
	return &Table{
		rows:   make(map[string]*row),
		clock:  clock,
		notify: notify,
	}
}

// Seed registers a link at its resume status without a transition event.
func (t *Table) Seed(linkID string, s ingest.Status, retries int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows[linkID] = &row{status: s, retries: retries, updated: t.clock.Now()}
}

// Transition moves a link to the next status, enforcing the state machine.
func (t *Table) Transition(linkID string, next ingest.Status) (Change, error) {
	t.mu.Lock()
	r, ok := t.rows[linkID]
	if !ok {
		t.mu.Unlock()
		return Change{}, fmt.Errorf("unknown link %q", linkID)
	}
	old := r.status
	if !validNext[old][next] {
		t.mu.Unlock()
		return Change{}, fmt.Errorf("invalid transition %s -> %s for link %q", old, next, linkID)
	}
	r.status = next
	r.updated = t.clock.Now()
	ch := Change{LinkID: linkID, Old: old, New: next, At: r.updated}
	t.mu.Unlock()

	if t.notify != nil {
		t.notify(ch)
	}
	return ch, nil
}

// IncrementRetry bumps the retry counter for a link re-entering its current
// stage and returns the new count.
func (t *Table) IncrementRetry(linkID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.rows[linkID]
	if !ok {
		return 0
	}
	r.retries++
	return r.retries
}

// Get returns the current status of a link.
func (t *Table) Get(linkID string) (ingest.Status, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.rows[linkID]
	if !ok {
		return "", false
	}
	return r.status, true
}

// Retries returns the retry count recorded for a link.
func (t *Table) Retries(linkID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if r, ok := t.rows[linkID]; ok {
		return r.retries
	}
	return 0
}

// Counts aggregates the current population by status.
func (t *Table) Counts() map[ingest.Status]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	counts := make(map[ingest.Status]int, len(validNext))
	for _, r := range t.rows {
		counts[r.status]++
	}
	return counts
}

// InFlight reports how many links have not yet reached a terminal status.
func (t *Table) InFlight() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, r := range t.rows {
		if !r.status.Terminal() {
			n++
		}
	}
	return n
}
