// Package pipeline implements the ingestion coordinator: submission with
// resume semantics, bounded fetch and classify worker pools, and terminal
// accounting for one run.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mkarpis/linkmind/internal/content"
	"github.com/mkarpis/linkmind/internal/ingest"
	"github.com/mkarpis/linkmind/internal/notes"
	"github.com/mkarpis/linkmind/internal/progress"
	"github.com/mkarpis/linkmind/internal/queue"
	"github.com/mkarpis/linkmind/internal/status"
	"github.com/mkarpis/linkmind/internal/topicmem"
)

// Config controls pool sizes and retry behavior for one coordinator.
type Config struct {
	FetchWorkers    int           `mapstructure:"fetch_workers" yaml:"fetch_workers"`
	ClassifyWorkers int           `mapstructure:"classify_workers" yaml:"classify_workers"`
	QueueCapacity   int           `mapstructure:"queue_capacity" yaml:"queue_capacity"`
	MaxRetries      int           `mapstructure:"max_retries" yaml:"max_retries"`
	StageTimeout    time.Duration `mapstructure:"stage_timeout" yaml:"stage_timeout"`
	// ForceReprocess re-enters terminal links at PENDING instead of skipping.
	ForceReprocess bool `mapstructure:"force_reprocess" yaml:"force_reprocess"`
}

func (c Config) withDefaults() Config {
	if c.FetchWorkers <= 0 {
		c.FetchWorkers = 4
	}
	if c.ClassifyWorkers <= 0 {
		c.ClassifyWorkers = 2
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 64
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.StageTimeout <= 0 {
		c.StageTimeout = 2 * time.Minute
	}
	return c
}

// Deps are the collaborators the coordinator drives. All are required except
// Hub, Clock, Retry, and Logger, which default.
type Deps struct {
	Links      ingest.LinkStore
	Fetcher    ingest.Fetcher
	Classifier ingest.Classifier
	Embedder   ingest.Embedder
	Router     *topicmem.Router
	Notes      *notes.Writer
	Content    *content.Cache
	Hub        *progress.Hub
	Logger     *zap.Logger
	Clock      ingest.Clock
	Retry      ingest.RetryPolicy
}

// Coordinator owns one pipeline run: Submit, then Run to quiescence.
type Coordinator struct {
	cfg   Config
	deps  Deps
	runID uuid.UUID
	table *status.Table

	fetchTasks    []ingest.LinkTask
	classifyTasks []ingest.LinkTask

	mu      sync.Mutex
	summary ingest.Summary

	fatalOnce sync.Once
	fatalErr  error
	cancelRun context.CancelFunc
}

// New validates deps and builds a Coordinator.
func New(cfg Config, deps Deps) (*Coordinator, error) {
	switch {
	case deps.Links == nil:
		return nil, fmt.Errorf("link store is required")
	case deps.Fetcher == nil:
		return nil, fmt.Errorf("fetcher is required")
	case deps.Classifier == nil:
		return nil, fmt.Errorf("classifier is required")
	case deps.Embedder == nil:
		return nil, fmt.Errorf("embedder is required")
	case deps.Router == nil:
		return nil, fmt.Errorf("router is required")
	case deps.Notes == nil:
		return nil, fmt.Errorf("note writer is required")
	case deps.Content == nil:
		return nil, fmt.Errorf("content cache is required")
	}
	if deps.Clock == nil {
		deps.Clock = ingest.SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Retry == nil {
		deps.Retry = ingest.NewExponentialRetryPolicy(cfg.MaxRetries)
	}
	return &Coordinator{
		cfg:   cfg.withDefaults(),
		deps:  deps,
		runID: uuid.New(),
		table: status.NewTable(deps.Clock, nil),
	}, nil
}

// RunID identifies this coordinator's run in progress events.
func (c *Coordinator) RunID() uuid.UUID { return c.runID }

// StatusTable exposes the live status table for observers.
func (c *Coordinator) StatusTable() *status.Table { return c.table }

// Submit registers URLs for this run. Links whose durable status is absent or
// non-terminal are scheduled; terminal links are skipped unless
// ForceReprocess re-enters them at PENDING. Links with cached content resume
// at the classify stage without refetching.
func (c *Coordinator) Submit(ctx context.Context, urls []string) error {
	seen := make(map[string]bool, len(urls))
	for _, url := range urls {
		if url == "" {
			continue
		}
		id := ingest.LinkID(url)
		if seen[id] {
			continue
		}
		seen[id] = true
		if err := c.submitOne(ctx, id, url); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) submitOne(ctx context.Context, id, url string) error {
	now := c.deps.Clock.Now()
	task, found, err := c.deps.Links.GetLink(ctx, id)
	if err != nil {
		return fmt.Errorf("load link %s: %w", id, err)
	}

	if !found {
		task = ingest.LinkTask{
			ID:        id,
			URL:       url,
			Status:    ingest.StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return c.schedule(ctx, task, true)
	}

	if task.Status.Terminal() {
		if !c.cfg.ForceReprocess {
			c.mu.Lock()
			c.summary.Total++
			c.summary.Skipped++
			c.mu.Unlock()
			c.deps.Logger.Debug("link skipped", zap.String("link_id", id), zap.String("status", string(task.Status)))
			return nil
		}
		task.Status = ingest.StatusPending
		task.RetryCount = 0
		task.MemoryError = ""
		task.LastError = ""
		task.UpdatedAt = now
		return c.schedule(ctx, task, true)
	}

	// Non-terminal: resume. Cached content skips the fetch stage; anything
	// else re-enters at PENDING.
	if (task.Status == ingest.StatusFetchComplete || task.Status == ingest.StatusClassifying) && task.ContentRef != "" {
		task.Status = ingest.StatusFetchComplete
		task.UpdatedAt = now
		return c.schedule(ctx, task, false)
	}
	task.Status = ingest.StatusPending
	task.UpdatedAt = now
	return c.schedule(ctx, task, true)
}

func (c *Coordinator) schedule(ctx context.Context, task ingest.LinkTask, fetch bool) error {
	if err := c.deps.Links.SaveLink(ctx, task); err != nil {
		return fmt.Errorf("persist link %s: %w", task.ID, err)
	}
	c.table.Seed(task.ID, task.Status, task.RetryCount)
	c.emit(task.ID, "", task.Status, "submitted")

	c.mu.Lock()
	c.summary.Total++
	c.mu.Unlock()

	if fetch {
		c.fetchTasks = append(c.fetchTasks, task)
	} else {
		c.classifyTasks = append(c.classifyTasks, task)
	}
	return nil
}

// Run drives all submitted links to a terminal status and returns the
// summary. A single link failing never aborts the run; topic index storage
// failure does.
func (c *Coordinator) Run(ctx context.Context) (ingest.Summary, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.cancelRun = cancel

	fetchQ := queue.New[ingest.LinkTask](c.cfg.QueueCapacity)
	classifyQ := queue.New[ingest.LinkTask](c.cfg.QueueCapacity)

	var feeders sync.WaitGroup
	feeders.Add(2)
	go func() {
		defer feeders.Done()
		defer fetchQ.Close()
		for _, task := range c.fetchTasks {
			if err := fetchQ.Enqueue(runCtx, task); err != nil {
				return
			}
		}
	}()
	resumeDone := make(chan struct{})
	go func() {
		defer feeders.Done()
		defer close(resumeDone)
		for _, task := range c.classifyTasks {
			if err := classifyQ.Enqueue(runCtx, task); err != nil {
				return
			}
		}
	}()

	var fetchers sync.WaitGroup
	for i := 0; i < c.cfg.FetchWorkers; i++ {
		fetchers.Add(1)
		go func() {
			defer fetchers.Done()
			c.fetchLoop(runCtx, fetchQ, classifyQ)
		}()
	}

	// The classify queue completes once every producer has: the resume feeder
	// and the whole fetch pool.
	go func() {
		fetchers.Wait()
		<-resumeDone
		classifyQ.Close()
	}()

	var classifiers sync.WaitGroup
	for i := 0; i < c.cfg.ClassifyWorkers; i++ {
		classifiers.Add(1)
		go func() {
			defer classifiers.Done()
			c.classifyLoop(runCtx, classifyQ)
		}()
	}

	classifiers.Wait()
	feeders.Wait()

	c.mu.Lock()
	summary := c.summary
	c.mu.Unlock()

	if c.fatalErr != nil {
		return summary, c.fatalErr
	}
	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("run canceled: %w", err)
	}
	return summary, nil
}

// fatal records the first run-fatal error and cancels all workers.
func (c *Coordinator) fatal(err error) {
	c.fatalOnce.Do(func() {
		c.fatalErr = err
		c.deps.Logger.Error("pipeline run aborting", zap.Error(err))
		if c.cancelRun != nil {
			c.cancelRun()
		}
	})
}

func (c *Coordinator) emit(linkID string, old, next ingest.Status, note string) {
	if c.deps.Hub == nil {
		return
	}
	c.deps.Hub.Emit(progress.Event{
		RunID:  c.runID,
		LinkID: linkID,
		Old:    old,
		New:    next,
		TS:     c.deps.Clock.Now(),
		Note:   note,
	})
}

// transition advances the in-memory state machine and publishes the event.
func (c *Coordinator) transition(linkID string, next ingest.Status, note string) error {
	ch, err := c.table.Transition(linkID, next)
	if err != nil {
		return err
	}
	c.emit(linkID, ch.Old, ch.New, note)
	return nil
}
