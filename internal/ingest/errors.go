package ingest

import (
	"errors"
	"fmt"
)

// ErrIndexUnavailable marks topic index storage failures. A routing error that
// wraps it aborts the whole run; without durable topic state the router's
// guarantees cannot hold.
var ErrIndexUnavailable = errors.New("topic index storage unavailable")

// FetchError is a transient fetch failure, retried up to the configured limit.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ClassifyError is a classification provider failure. A malformed or
// unparseable model response is a ClassifyError, never silently defaulted.
type ClassifyError struct {
	Err error
}

func (e *ClassifyError) Error() string {
	return fmt.Sprintf("classify: %v", e.Err)
}

func (e *ClassifyError) Unwrap() error { return e.Err }

// RoutingError is an embedding or index failure during memory routing. It
// fails the individual link without retry; if it wraps ErrIndexUnavailable it
// is fatal to the run.
type RoutingError struct {
	Err error
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("route: %v", e.Err)
}

func (e *RoutingError) Unwrap() error { return e.Err }
