package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/mkarpis/linkmind/internal/ingest"
)

type linkRow struct {
	ID             string        `db:"id"`
	URL            string        `db:"url"`
	Status         string        `db:"status"`
	RetryCount     int           `db:"retry_count"`
	ContentRef     string        `db:"content_ref"`
	ContentType    string        `db:"content_type"`
	Title          string        `db:"title"`
	Classification string        `db:"classification"`
	MemoryTopicID  sql.NullInt64 `db:"memory_topic_id"`
	MemoryNotePath string        `db:"memory_link_note_path"`
	MemoryError    string        `db:"memory_error"`
	LastError      string        `db:"last_error"`
	CreatedAt      time.Time     `db:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at"`
}

func (r linkRow) task() (ingest.LinkTask, error) {
	t := ingest.LinkTask{
		ID:             r.ID,
		URL:            r.URL,
		Status:         ingest.Status(r.Status),
		RetryCount:     r.RetryCount,
		ContentRef:     r.ContentRef,
		ContentType:    r.ContentType,
		Title:          r.Title,
		MemoryNotePath: r.MemoryNotePath,
		MemoryError:    r.MemoryError,
		LastError:      r.LastError,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.MemoryTopicID.Valid {
		t.MemoryTopicID = r.MemoryTopicID.Int64
	}
	if r.Classification != "" {
		var c ingest.ClassificationResult
		if err := json.Unmarshal([]byte(r.Classification), &c); err != nil {
			return ingest.LinkTask{}, fmt.Errorf("decode classification for %s: %w", r.ID, err)
		}
		t.Classification = &c
	}
	return t, nil
}

var linkColumns = []string{
	"id", "url", "status", "retry_count", "content_ref", "content_type",
	"title", "classification", "memory_topic_id", "memory_link_note_path",
	"memory_error", "last_error", "created_at", "updated_at",
}

// GetLink loads one link task by id.
func (s *Store) GetLink(ctx context.Context, id string) (ingest.LinkTask, bool, error) {
	query, args, err := sq.Select(linkColumns...).From("links").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return ingest.LinkTask{}, false, storageErr("build link query", err)
	}
	var row linkRow
	err = s.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return ingest.LinkTask{}, false, nil
	}
	if err != nil {
		return ingest.LinkTask{}, false, storageErr("get link", err)
	}
	task, err := row.task()
	if err != nil {
		return ingest.LinkTask{}, false, storageErr("get link", err)
	}
	return task, true, nil
}

// SaveLink upserts the full task row. Each call is one committed write, so a
// crash between calls loses at most the in-flight stage.
func (s *Store) SaveLink(ctx context.Context, task ingest.LinkTask) error {
	if task.ID == "" {
		return fmt.Errorf("link id is required")
	}

	classification := ""
	if task.Classification != nil {
		raw, err := json.Marshal(task.Classification)
		if err != nil {
			return fmt.Errorf("encode classification for %s: %w", task.ID, err)
		}
		classification = string(raw)
	}
	topicID := sql.NullInt64{Int64: task.MemoryTopicID, Valid: task.MemoryTopicID != 0}

	query, args, err := sq.Insert("links").
		Columns(linkColumns...).
		Values(task.ID, task.URL, string(task.Status), task.RetryCount,
			task.ContentRef, task.ContentType, task.Title, classification,
			topicID, task.MemoryNotePath, task.MemoryError, task.LastError,
			task.CreatedAt, task.UpdatedAt).
		Suffix(`ON CONFLICT(id) DO UPDATE SET
			url = excluded.url,
			status = excluded.status,
			retry_count = excluded.retry_count,
			content_ref = excluded.content_ref,
			content_type = excluded.content_type,
			title = excluded.title,
			classification = excluded.classification,
			memory_topic_id = excluded.memory_topic_id,
			memory_link_note_path = excluded.memory_link_note_path,
			memory_error = excluded.memory_error,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return storageErr("build link upsert", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return storageErr("save link", err)
	}
	return nil
}

// LinksByStatus returns tasks currently in the given status, ordered by id.
func (s *Store) LinksByStatus(ctx context.Context, status ingest.Status) ([]ingest.LinkTask, error) {
	query, args, err := sq.Select(linkColumns...).From("links").
		Where(sq.Eq{"status": string(status)}).OrderBy("id").ToSql()
	if err != nil {
		return nil, storageErr("build status query", err)
	}
	var rows []linkRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, storageErr("links by status", err)
	}
	tasks := make([]ingest.LinkTask, 0, len(rows))
	for _, r := range rows {
		t, err := r.task()
		if err != nil {
			return nil, storageErr("links by status", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}
