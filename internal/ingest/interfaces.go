package ingest

import (
	"context"
	"time"
)

// Content is the raw result of fetching one URL.
type Content struct {
	Body        []byte
	ContentType string
	Title       string
}

// Fetcher retrieves the content behind a URL. Implementations may retry
// internally; the pipeline applies its own retry policy regardless.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Content, error)
}

// Classifier produces a structured classification for fetched content.
type Classifier interface {
	Classify(ctx context.Context, url, title string, content []byte) (ClassificationResult, error)
}

// Embedder converts text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// LinkStore is the durable link index. The pipeline reads it before
// scheduling and writes back after each durable or terminal transition.
type LinkStore interface {
	GetLink(ctx context.Context, id string) (LinkTask, bool, error)
	SaveLink(ctx context.Context, task LinkTask) error
}

// TopicStore persists topic centroids and link memberships. The
// read-compute-write cycle for a single topic is serialized against all other
// writers to that topic, and conservatively against creation of new topics.
// Every successful call is flushed before it returns.
type TopicStore interface {
	// Snapshot returns all topics ordered by id. It may be slightly stale
	// relative to a concurrently-completing update.
	Snapshot(ctx context.Context) ([]TopicEntry, error)
	// AppendMember folds an embedding into a topic's running mean and records
	// the membership. A link that is already a member leaves the topic
	// untouched and returns its current entry.
	AppendMember(ctx context.Context, topicID int64, linkID string, embedding []float64, notePath string) (TopicEntry, error)
	// CreateTopic allocates a new topic seeded with the embedding, unless a
	// topic created since the caller's snapshot already matches at or above
	// threshold, in which case the link joins that topic instead.
	CreateTopic(ctx context.Context, linkID string, embedding []float64, title, notePath string, threshold float64) (RoutingOutcome, error)
}

// Clock returns the current time (swappable in tests).
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall-clock implementation of Clock.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }
