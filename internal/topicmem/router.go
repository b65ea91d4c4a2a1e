package topicmem

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mkarpis/linkmind/internal/ingest"
)

// DefaultThreshold is the similarity below which a link seeds a new topic.
const DefaultThreshold = 0.75

// RouteRequest carries everything the router needs to place one link.
type RouteRequest struct {
	LinkID    string
	Embedding []float64
	// Title seeds the label of a newly created topic.
	Title string
	// Hints bias topic titling only, never the numeric assignment.
	Hints []string
	// NotePath is recorded on the membership row.
	NotePath string
}

// Router assigns links to topics by nearest-centroid similarity. It holds no
// persistent state of its own; all durable mutation is delegated to the topic
// store's atomic update operations.
type Router struct {
	store     ingest.TopicStore
	threshold float64
	logger    *zap.Logger
}

// NewRouter builds a Router. A threshold outside (0,1) falls back to the
// default.
func NewRouter(store ingest.TopicStore, threshold float64, logger *zap.Logger) *Router {
	if threshold <= 0 || threshold >= 1 {
		threshold = DefaultThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{store: store, threshold: threshold, logger: logger}
}

// Threshold returns the configured similarity threshold.
func (r *Router) Threshold() float64 { return r.threshold }

// Route places one link into the topic memory: greedy single-pass
// nearest-centroid assignment over a snapshot, with the store serializing the
// durable read-modify-write per topic.
func (r *Router) Route(ctx context.Context, req RouteRequest) (ingest.RoutingOutcome, error) {
	if req.LinkID == "" {
		return ingest.RoutingOutcome{}, &ingest.RoutingError{Err: fmt.Errorf("link id is required")}
	}
	if len(req.Embedding) == 0 {
		return ingest.RoutingOutcome{}, &ingest.RoutingError{Err: fmt.Errorf("empty embedding for link %s", req.LinkID)}
	}

	snapshot, err := r.store.Snapshot(ctx)
	if err != nil {
		return ingest.RoutingOutcome{}, &ingest.RoutingError{Err: err}
	}

	best, sim, ok := Nearest(snapshot, req.Embedding)
	if ok && sim >= r.threshold {
		entry, err := r.store.AppendMember(ctx, best.ID, req.LinkID, req.Embedding, req.NotePath)
		if err != nil {
			return ingest.RoutingOutcome{}, &ingest.RoutingError{Err: err}
		}
		r.logger.Debug("link joined topic",
			zap.String("link_id", req.LinkID),
			zap.Int64("topic_id", entry.ID),
			zap.Float64("similarity", sim),
		)
		return ingest.RoutingOutcome{
			TopicID:    entry.ID,
			TopicTitle: entry.Title,
			TopicFile:  entry.FilePath,
		}, nil
	}

	title := r.newTopicTitle(req)
	outcome, err := r.store.CreateTopic(ctx, req.LinkID, req.Embedding, title, req.NotePath, r.threshold)
	if err != nil {
		return ingest.RoutingOutcome{}, &ingest.RoutingError{Err: err}
	}
	if outcome.Created {
		r.logger.Info("new topic created",
			zap.String("link_id", req.LinkID),
			zap.Int64("topic_id", outcome.TopicID),
			zap.String("title", outcome.TopicTitle),
		)
	}
	return outcome, nil
}

// newTopicTitle picks a label for a freshly created topic. Hints take
// precedence over the page title; both only affect naming.
func (r *Router) newTopicTitle(req RouteRequest) string {
	for _, h := range req.Hints {
		if s := strings.TrimSpace(h); s != "" {
			return s
		}
	}
	if s := strings.TrimSpace(req.Title); s != "" {
		return s
	}
	return "Topic " + req.LinkID
}
