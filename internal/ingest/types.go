// Package ingest defines core types shared across the pipeline subsystems.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Status represents the lifecycle state of a link inside the pipeline.
type Status string

// Link status values persisted in the link index.
const (
	StatusPending       Status = "PENDING"
	StatusFetching      Status = "FETCHING"
	StatusFetchComplete Status = "FETCH_COMPLETE"
	StatusClassifying   Status = "CLASSIFYING"
	StatusSuccess       Status = "SUCCESS"
	StatusFailed        Status = "FAILED"
)

// Terminal reports whether no further transitions may occur.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// LinkTask is the unit of work tracked per input URL. Once the task reaches a
// terminal status only observability metadata may change.
type LinkTask struct {
	ID             string                `json:"id"`
	URL            string                `json:"url"`
	Status         Status                `json:"status"`
	RetryCount     int                   `json:"retry_count"`
	ContentRef     string                `json:"content_ref,omitempty"`
	ContentType    string                `json:"content_type,omitempty"`
	Title          string                `json:"title,omitempty"`
	Classification *ClassificationResult `json:"classification,omitempty"`
	MemoryTopicID  int64                 `json:"memory_topic_id,omitempty"`
	MemoryNotePath string                `json:"memory_link_note_path,omitempty"`
	MemoryError    string                `json:"memory_error,omitempty"`
	LastError      string                `json:"last_error,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// ClassificationResult is the structured output of the classification
// collaborator. Numeric ranges are validated at the provider boundary and
// never trusted from the model.
type ClassificationResult struct {
	Category     string   `json:"category"`
	Tags         []string `json:"tags"`
	Summary      string   `json:"summary"`
	Confidence   float64  `json:"confidence"`
	QualityScore int      `json:"quality_score"`
}

// Validate enforces the numeric ranges promised by the classification contract.
func (c ClassificationResult) Validate() error {
	if c.Category == "" {
		return fmt.Errorf("category is required")
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0,1]", c.Confidence)
	}
	if c.QualityScore < 1 || c.QualityScore > 10 {
		return fmt.Errorf("quality_score %d outside [1,10]", c.QualityScore)
	}
	return nil
}

// TopicEntry is one persisted semantic cluster. Centroid always reflects the
// running mean of all member embeddings; centroid and member count are updated
// together, never observed partially updated.
type TopicEntry struct {
	ID          int64     `db:"id"`
	Title       string    `db:"title"`
	Centroid    []float64 `db:"-"`
	MemberCount int       `db:"member_count"`
	FilePath    string    `db:"file_path"`
}

// MemoryLinkEntry joins a routed link to its topic. Created exactly once per
// successfully routed link.
type MemoryLinkEntry struct {
	LinkID   string `db:"link_id"`
	TopicID  int64  `db:"topic_id"`
	NotePath string `db:"note_path"`
}

// RoutingOutcome reports where the router placed a link.
type RoutingOutcome struct {
	TopicID    int64
	Created    bool
	TopicTitle string
	TopicFile  string
}

// Summary aggregates terminal counts for one pipeline run.
type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// LinkID derives the stable identifier for a URL.
func LinkID(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])[:16]
}
