// Package progress defines the status-change events emitted by the pipeline
// and the non-blocking hub that fans them out to observers.
package progress

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mkarpis/linkmind/internal/ingest"
)

// Event captures a single link status change.
type Event struct {
	// RunID identifies the pipeline run that produced the event.
	RunID uuid.UUID
	// LinkID is the stable identifier of the affected link.
	LinkID string
	// Old is the status before the transition; empty for initial seeding.
	Old ingest.Status
	// New is the status after the transition.
	New ingest.Status
	// TS is the timestamp recorded by the emitter.
	TS time.Time
	// Note carries low-volume context such as failure reasons.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.LinkID == "" {
		return errors.New("link id is required")
	}
	if e.New == "" {
		return errors.New("new status is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	return nil
}
