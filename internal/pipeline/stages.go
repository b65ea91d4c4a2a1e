package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mkarpis/linkmind/internal/ingest"
	"github.com/mkarpis/linkmind/internal/notes"
	"github.com/mkarpis/linkmind/internal/queue"
	"github.com/mkarpis/linkmind/internal/topicmem"
)

func (c *Coordinator) fetchLoop(ctx context.Context, in, out *queue.Queue[ingest.LinkTask]) {
	for {
		task, ok, err := in.Dequeue(ctx)
		if err != nil || !ok {
			return
		}
		c.processFetch(ctx, task, out)
	}
}

func (c *Coordinator) classifyLoop(ctx context.Context, in *queue.Queue[ingest.LinkTask]) {
	for {
		task, ok, err := in.Dequeue(ctx)
		if err != nil || !ok {
			return
		}
		c.processClassify(ctx, task)
	}
}

// processFetch drives one link through the fetch stage and hands it to the
// classify queue. A panic is attributed to the link and recorded as its
// failure; it never takes down the worker.
func (c *Coordinator) processFetch(ctx context.Context, task ingest.LinkTask, out *queue.Queue[ingest.LinkTask]) {
	defer c.recoverLink(ctx, &task)

	if err := c.transition(task.ID, ingest.StatusFetching, ""); err != nil {
		c.deps.Logger.Warn("fetch transition rejected", zap.String("link_id", task.ID), zap.Error(err))
		return
	}
	task.Status = ingest.StatusFetching
	c.saveBestEffort(ctx, task)

	fetched, err := c.fetchWithRetry(ctx, &task)
	if err != nil {
		c.recordFailure(ctx, &task, "fetch", err)
		return
	}

	ref, err := c.deps.Content.Put(task.ID, fetched.Body)
	if err != nil {
		c.recordFailure(ctx, &task, "fetch", fmt.Errorf("cache content: %w", err))
		return
	}
	task.ContentRef = ref
	task.ContentType = fetched.ContentType
	if fetched.Title != "" {
		task.Title = fetched.Title
	}

	// Durable write first: a persist failure here fails the link while the
	// state machine is still at FETCHING, which allows FAILED.
	task.Status = ingest.StatusFetchComplete
	task.UpdatedAt = c.deps.Clock.Now()
	if err := c.deps.Links.SaveLink(ctx, task); err != nil {
		c.recordFailure(ctx, &task, "persist", err)
		return
	}
	if err := c.transition(task.ID, ingest.StatusFetchComplete, ""); err != nil {
		c.deps.Logger.Warn("fetch complete transition rejected", zap.String("link_id", task.ID), zap.Error(err))
		return
	}

	if err := out.Enqueue(ctx, task); err != nil {
		c.deps.Logger.Debug("classify enqueue abandoned", zap.String("link_id", task.ID), zap.Error(err))
	}
}

// processClassify drives one link through classification, embedding, topic
// routing, and note writing, ending at SUCCESS or FAILED.
func (c *Coordinator) processClassify(ctx context.Context, task ingest.LinkTask) {
	defer c.recoverLink(ctx, &task)

	if err := c.transition(task.ID, ingest.StatusClassifying, ""); err != nil {
		c.deps.Logger.Warn("classify transition rejected", zap.String("link_id", task.ID), zap.Error(err))
		return
	}
	task.Status = ingest.StatusClassifying
	c.saveBestEffort(ctx, task)

	body, err := c.deps.Content.Get(task.ContentRef)
	if err != nil {
		c.recordFailure(ctx, &task, "classify", fmt.Errorf("read cached content: %w", err))
		return
	}

	result, err := c.classifyWithRetry(ctx, &task, body)
	if err != nil {
		c.recordFailure(ctx, &task, "classify", err)
		return
	}
	task.Classification = &result

	outcome, notePath, err := c.routeToMemory(ctx, &task, result)
	if err != nil {
		task.MemoryError = err.Error()
		c.recordFailure(ctx, &task, "route", err)
		if errors.Is(err, ingest.ErrIndexUnavailable) {
			c.fatal(err)
		}
		return
	}
	task.MemoryTopicID = outcome.TopicID
	task.MemoryNotePath = notePath

	if err := c.transition(task.ID, ingest.StatusSuccess, ""); err != nil {
		c.deps.Logger.Warn("success transition rejected", zap.String("link_id", task.ID), zap.Error(err))
		return
	}
	task.Status = ingest.StatusSuccess
	task.UpdatedAt = c.deps.Clock.Now()
	if err := c.deps.Links.SaveLink(ctx, task); err != nil {
		c.deps.Logger.Error("terminal save failed", zap.String("link_id", task.ID), zap.Error(err))
	}

	c.mu.Lock()
	c.summary.Succeeded++
	c.mu.Unlock()
	c.deps.Logger.Info("link ingested",
		zap.String("link_id", task.ID),
		zap.Int64("topic_id", outcome.TopicID),
		zap.Bool("topic_created", outcome.Created),
	)
}

// routeToMemory embeds the classified link, assigns it a topic, and writes
// the markdown notes. All failures come back as RoutingError.
func (c *Coordinator) routeToMemory(ctx context.Context, task *ingest.LinkTask, result ingest.ClassificationResult) (ingest.RoutingOutcome, string, error) {
	ectx, cancel := context.WithTimeout(ctx, c.cfg.StageTimeout)
	embedding, err := c.deps.Embedder.Embed(ectx, embeddingText(task.Title, result))
	cancel()
	if err != nil {
		return ingest.RoutingOutcome{}, "", &ingest.RoutingError{Err: fmt.Errorf("embed: %w", err)}
	}

	// The canonical note path is known before routing; the note itself is
	// rewritten with topic details once the assignment is made.
	notePath, err := c.deps.Notes.WriteLinkNote(task.ID, linkNote(task, result, ingest.RoutingOutcome{}))
	if err != nil {
		return ingest.RoutingOutcome{}, "", &ingest.RoutingError{Err: fmt.Errorf("write note: %w", err)}
	}

	outcome, err := c.deps.Router.Route(ctx, topicmem.RouteRequest{
		LinkID:    task.ID,
		Embedding: embedding,
		Title:     preferredTitle(task, result),
		NotePath:  notePath,
	})
	if err != nil {
		return ingest.RoutingOutcome{}, "", err
	}

	if _, err := c.deps.Notes.WriteLinkNote(task.ID, linkNote(task, result, outcome)); err != nil {
		return ingest.RoutingOutcome{}, "", &ingest.RoutingError{Err: fmt.Errorf("finalize note: %w", err)}
	}
	if err := c.deps.Notes.AppendTopicEntry(outcome.TopicFile, outcome.TopicID, outcome.TopicTitle, notes.TopicEntry{
		LinkID:  task.ID,
		URL:     task.URL,
		Title:   task.Title,
		Summary: result.Summary,
	}); err != nil {
		return ingest.RoutingOutcome{}, "", &ingest.RoutingError{Err: fmt.Errorf("topic note: %w", err)}
	}
	return outcome, notePath, nil
}

func (c *Coordinator) fetchWithRetry(ctx context.Context, task *ingest.LinkTask) (ingest.Content, error) {
	for {
		sctx, cancel := context.WithTimeout(ctx, c.cfg.StageTimeout)
		fetched, err := c.deps.Fetcher.Fetch(sctx, task.URL)
		cancel()
		if err == nil {
			return fetched, nil
		}
		if cont := c.retryStage(ctx, task, ingest.StatusFetching, err); !cont {
			return ingest.Content{}, err
		}
	}
}

func (c *Coordinator) classifyWithRetry(ctx context.Context, task *ingest.LinkTask, body []byte) (ingest.ClassificationResult, error) {
	for {
		sctx, cancel := context.WithTimeout(ctx, c.cfg.StageTimeout)
		result, err := c.deps.Classifier.Classify(sctx, task.URL, task.Title, body)
		cancel()
		if err == nil {
			if verr := result.Validate(); verr != nil {
				err = &ingest.ClassifyError{Err: verr}
			} else {
				return result, nil
			}
		}
		if cont := c.retryStage(ctx, task, ingest.StatusClassifying, err); !cont {
			return ingest.ClassificationResult{}, err
		}
	}
}

// retryStage decides whether the failed attempt is retried. On retry it bumps
// the counter, re-enters the stage in place, and waits out the backoff.
func (c *Coordinator) retryStage(ctx context.Context, task *ingest.LinkTask, stage ingest.Status, cause error) bool {
	if ctx.Err() != nil {
		return false
	}
	attempt := task.RetryCount
	if !c.deps.Retry.ShouldRetry(cause, attempt) {
		return false
	}
	delay := c.deps.Retry.Backoff(attempt)

	task.RetryCount = c.table.IncrementRetry(task.ID)
	if err := c.transition(task.ID, stage, "retry: "+cause.Error()); err != nil {
		c.deps.Logger.Warn("retry transition rejected", zap.String("link_id", task.ID), zap.Error(err))
		return false
	}
	task.UpdatedAt = c.deps.Clock.Now()
	c.saveBestEffort(ctx, *task)

	c.deps.Logger.Debug("stage retrying",
		zap.String("link_id", task.ID),
		zap.String("stage", string(stage)),
		zap.Int("retry", task.RetryCount),
		zap.Duration("backoff", delay),
		zap.Error(cause),
	)
	return sleep(ctx, delay)
}

// recordFailure marks the link FAILED with its reason and counts it.
func (c *Coordinator) recordFailure(ctx context.Context, task *ingest.LinkTask, kind string, cause error) {
	task.LastError = fmt.Sprintf("%s: %v (retries %d)", kind, cause, task.RetryCount)
	if err := c.transition(task.ID, ingest.StatusFailed, task.LastError); err != nil {
		c.deps.Logger.Warn("failed transition rejected", zap.String("link_id", task.ID), zap.Error(err))
	}
	task.Status = ingest.StatusFailed
	task.UpdatedAt = c.deps.Clock.Now()
	if err := c.deps.Links.SaveLink(context.WithoutCancel(ctx), *task); err != nil {
		c.deps.Logger.Error("terminal save failed", zap.String("link_id", task.ID), zap.Error(err))
	}
	c.mu.Lock()
	c.summary.Failed++
	c.mu.Unlock()
	c.deps.Logger.Warn("link failed",
		zap.String("link_id", task.ID),
		zap.String("kind", kind),
		zap.Int("retries", task.RetryCount),
		zap.Error(cause),
	)
}

func (c *Coordinator) recoverLink(ctx context.Context, task *ingest.LinkTask) {
	r := recover()
	if r == nil {
		return
	}
	if s, ok := c.table.Get(task.ID); ok && s.Terminal() {
		c.deps.Logger.Error("panic after terminal status", zap.String("link_id", task.ID), zap.Any("panic", r))
		return
	}
	c.recordFailure(ctx, task, "panic", fmt.Errorf("%v", r))
}

func (c *Coordinator) saveBestEffort(ctx context.Context, task ingest.LinkTask) {
	if err := c.deps.Links.SaveLink(ctx, task); err != nil {
		c.deps.Logger.Warn("link save failed", zap.String("link_id", task.ID), zap.Error(err))
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func embeddingText(title string, result ingest.ClassificationResult) string {
	parts := make([]string, 0, 4)
	if title != "" {
		parts = append(parts, title)
	}
	parts = append(parts, result.Category)
	if len(result.Tags) > 0 {
		parts = append(parts, strings.Join(result.Tags, " "))
	}
	if result.Summary != "" {
		parts = append(parts, result.Summary)
	}
	return strings.Join(parts, "\n")
}

func preferredTitle(task *ingest.LinkTask, result ingest.ClassificationResult) string {
	if task.Title != "" {
		return task.Title
	}
	if result.Category != "" {
		return result.Category
	}
	return task.URL
}

func linkNote(task *ingest.LinkTask, result ingest.ClassificationResult, outcome ingest.RoutingOutcome) notes.LinkNote {
	return notes.LinkNote{
		URL:        task.URL,
		Title:      task.Title,
		Category:   result.Category,
		Tags:       result.Tags,
		Confidence: result.Confidence,
		Quality:    result.QualityScore,
		TopicID:    outcome.TopicID,
		TopicTitle: outcome.TopicTitle,
		Summary:    result.Summary,
		AddedAt:    task.CreatedAt,
	}
}
