// Package index implements the persisted topic index and the durable link
// index over SQLite. Topic updates are atomic read-modify-write cycles,
// serialized per topic and flushed before returning.
package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/mkarpis/linkmind/internal/ingest"
	"github.com/mkarpis/linkmind/internal/topicmem"
)

// ErrTopicNotFound is returned when an update targets a topic id that does
// not exist. Topics are never deleted, so this indicates a caller bug.
var ErrTopicNotFound = errors.New("topic not found")

// Store owns the SQLite database backing the topic memory and link index.
type Store struct {
	db *sqlx.DB

	// mu serializes topic creation against all topic writers; appends to
	// existing topics take the read side plus a per-topic lock so each
	// topic's read-modify-write cycle is serialized. The database itself
	// queues the write transactions (IMMEDIATE begin + busy_timeout).
	mu         sync.RWMutex
	topicLocks sync.Map // topic id -> *sync.Mutex
}

var _ ingest.TopicStore = (*Store)(nil)
var _ ingest.LinkStore = (*Store)(nil)

// Open initializes the database at path, creating the schema if needed.
func Open(path string) (*Store, error) {
	// WAL for concurrent readers, FULL sync so every committed update is
	// flushed before the call returns. Transactions begin IMMEDIATE: the
	// write lock is taken at BEGIN, where busy_timeout applies, not at the
	// first UPDATE, where SQLite fails a deferred transaction with BUSY
	// instead of waiting. Pragmas ride on the DSN so every pooled
	// connection gets them.
	dsn := "file:" + path + "?_txlock=immediate" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(FULL)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(5000)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS topics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL DEFAULT '',
		centroid BLOB NOT NULL,
		member_count INTEGER NOT NULL DEFAULT 0,
		file_path TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS topic_links (
		link_id TEXT PRIMARY KEY,
		topic_id INTEGER NOT NULL REFERENCES topics(id),
		note_path TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_topic_links_topic ON topic_links(topic_id);

	CREATE TABLE IF NOT EXISTS links (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		status TEXT NOT NULL,
		retry_count INTEGER NOT NULL DEFAULT 0,
		content_ref TEXT NOT NULL DEFAULT '',
		content_type TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		classification TEXT NOT NULL DEFAULT '',
		memory_topic_id INTEGER,
		memory_link_note_path TEXT NOT NULL DEFAULT '',
		memory_error TEXT NOT NULL DEFAULT '',
		last_error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP,
		updated_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_links_status ON links(status);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *Store) lockTopic(id int64) *sync.Mutex {
	v, _ := s.topicLocks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ingest.ErrIndexUnavailable, op, err)
}

type topicRow struct {
	ID          int64  `db:"id"`
	Title       string `db:"title"`
	Centroid    []byte `db:"centroid"`
	MemberCount int    `db:"member_count"`
	FilePath    string `db:"file_path"`
}

func (r topicRow) entry() ingest.TopicEntry {
	return ingest.TopicEntry{
		ID:          r.ID,
		Title:       r.Title,
		Centroid:    topicmem.DecodeVector(r.Centroid),
		MemberCount: r.MemberCount,
		FilePath:    r.FilePath,
	}
}

const topicColumns = "id, title, centroid, member_count, file_path"

// Snapshot returns all topics ordered by id, centroids decoded.
func (s *Store) Snapshot(ctx context.Context) ([]ingest.TopicEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []topicRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT "+topicColumns+" FROM topics ORDER BY id"); err != nil {
		return nil, storageErr("snapshot topics", err)
	}
	entries := make([]ingest.TopicEntry, len(rows))
	for i, r := range rows {
		entries[i] = r.entry()
	}
	return entries, nil
}

// TopicCount returns the number of persisted topics.
func (s *Store) TopicCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM topics"); err != nil {
		return 0, storageErr("count topics", err)
	}
	return n, nil
}

// Membership returns the topic a link was routed to, if any.
func (s *Store) Membership(ctx context.Context, linkID string) (ingest.MemoryLinkEntry, bool, error) {
	var m ingest.MemoryLinkEntry
	err := s.db.GetContext(ctx, &m,
		"SELECT link_id, topic_id, note_path FROM topic_links WHERE link_id = ?", linkID)
	if errors.Is(err, sql.ErrNoRows) {
		return ingest.MemoryLinkEntry{}, false, nil
	}
	if err != nil {
		return ingest.MemoryLinkEntry{}, false, storageErr("membership lookup", err)
	}
	return m, true, nil
}

// AppendMember folds an embedding into the topic's running mean and records
// the membership, in one committed transaction. If the link is already a
// member of any topic the call is a no-op returning that topic's entry, so
// routing the same (link, embedding) pair twice never double-counts.
func (s *Store) AppendMember(ctx context.Context, topicID int64, linkID string, embedding []float64, notePath string) (ingest.TopicEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lock := s.lockTopic(topicID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return ingest.TopicEntry{}, storageErr("begin append", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if existing, ok, err := memberTopicTx(ctx, tx, linkID); err != nil {
		return ingest.TopicEntry{}, err
	} else if ok {
		return existing, nil
	}

	var row topicRow
	err = tx.GetContext(ctx, &row, "SELECT "+topicColumns+" FROM topics WHERE id = ?", topicID)
	if errors.Is(err, sql.ErrNoRows) {
		return ingest.TopicEntry{}, fmt.Errorf("%w: id %d", ErrTopicNotFound, topicID)
	}
	if err != nil {
		return ingest.TopicEntry{}, storageErr("read topic", err)
	}

	entry := row.entry()
	entry.Centroid = topicmem.MeanUpdate(entry.Centroid, entry.MemberCount, embedding)
	entry.MemberCount++

	if err := writeMemberTx(ctx, tx, entry, linkID, notePath); err != nil {
		return ingest.TopicEntry{}, err
	}
	if err := tx.Commit(); err != nil {
		return ingest.TopicEntry{}, storageErr("commit append", err)
	}
	return entry, nil
}

// CreateTopic allocates a new topic seeded with the embedding. The whole
// operation holds the creation lock and re-checks the nearest centroid inside
// it: a topic created since the caller's snapshot that matches at or above
// threshold absorbs the link instead, so concurrent near-identical embeddings
// collapse into a single topic.
func (s *Store) CreateTopic(ctx context.Context, linkID string, embedding []float64, title, notePath string, threshold float64) (ingest.RoutingOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return ingest.RoutingOutcome{}, storageErr("begin create", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if existing, ok, err := memberTopicTx(ctx, tx, linkID); err != nil {
		return ingest.RoutingOutcome{}, err
	} else if ok {
		return ingest.RoutingOutcome{
			TopicID:    existing.ID,
			TopicTitle: existing.Title,
			TopicFile:  existing.FilePath,
		}, nil
	}

	var rows []topicRow
	if err := tx.SelectContext(ctx, &rows, "SELECT "+topicColumns+" FROM topics ORDER BY id"); err != nil {
		return ingest.RoutingOutcome{}, storageErr("rescan topics", err)
	}
	entries := make([]ingest.TopicEntry, len(rows))
	for i, r := range rows {
		entries[i] = r.entry()
	}

	if best, sim, ok := topicmem.Nearest(entries, embedding); ok && sim >= threshold {
		best.Centroid = topicmem.MeanUpdate(best.Centroid, best.MemberCount, embedding)
		best.MemberCount++
		if err := writeMemberTx(ctx, tx, best, linkID, notePath); err != nil {
			return ingest.RoutingOutcome{}, err
		}
		if err := tx.Commit(); err != nil {
			return ingest.RoutingOutcome{}, storageErr("commit join", err)
		}
		return ingest.RoutingOutcome{
			TopicID:    best.ID,
			TopicTitle: best.Title,
			TopicFile:  best.FilePath,
		}, nil
	}

	res, err := tx.ExecContext(ctx,
		"INSERT INTO topics (title, centroid, member_count) VALUES (?, ?, 1)",
		title, topicmem.EncodeVector(embedding))
	if err != nil {
		return ingest.RoutingOutcome{}, storageErr("insert topic", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return ingest.RoutingOutcome{}, storageErr("topic id", err)
	}

	filePath := fmt.Sprintf("topic-%04d-%s.md", id, slugify(title))
	if _, err := tx.ExecContext(ctx, "UPDATE topics SET file_path = ? WHERE id = ?", filePath, id); err != nil {
		return ingest.RoutingOutcome{}, storageErr("set topic file", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO topic_links (link_id, topic_id, note_path) VALUES (?, ?, ?)",
		linkID, id, notePath); err != nil {
		return ingest.RoutingOutcome{}, storageErr("insert membership", err)
	}
	if err := tx.Commit(); err != nil {
		return ingest.RoutingOutcome{}, storageErr("commit create", err)
	}

	return ingest.RoutingOutcome{
		TopicID:    id,
		Created:    true,
		TopicTitle: title,
		TopicFile:  filePath,
	}, nil
}

func memberTopicTx(ctx context.Context, tx *sqlx.Tx, linkID string) (ingest.TopicEntry, bool, error) {
	var row topicRow
	err := tx.GetContext(ctx, &row,
		"SELECT t.id, t.title, t.centroid, t.member_count, t.file_path FROM topics t "+
			"JOIN topic_links tl ON tl.topic_id = t.id WHERE tl.link_id = ?", linkID)
	if errors.Is(err, sql.ErrNoRows) {
		return ingest.TopicEntry{}, false, nil
	}
	if err != nil {
		return ingest.TopicEntry{}, false, storageErr("member topic lookup", err)
	}
	return row.entry(), true, nil
}

func writeMemberTx(ctx context.Context, tx *sqlx.Tx, entry ingest.TopicEntry, linkID, notePath string) error {
	if _, err := tx.ExecContext(ctx,
		"UPDATE topics SET centroid = ?, member_count = ? WHERE id = ?",
		topicmem.EncodeVector(entry.Centroid), entry.MemberCount, entry.ID); err != nil {
		return storageErr("update centroid", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO topic_links (link_id, topic_id, note_path) VALUES (?, ?, ?)",
		linkID, entry.ID, notePath); err != nil {
		return storageErr("insert membership", err)
	}
	return nil
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(title string) string {
	slug := slugPattern.ReplaceAllString(strings.ToLower(title), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return "topic"
	}
	if len(slug) > 48 {
		slug = strings.Trim(slug[:48], "-")
	}
	return slug
}
