// Package notes renders the on-disk markdown memory: one canonical note per
// link and an append-only backlink section per topic.
package notes

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// LinkNote is everything rendered into a per-link note.
type LinkNote struct {
	URL        string
	Title      string
	Category   string
	Tags       []string
	Confidence float64
	Quality    int
	TopicID    int64
	TopicTitle string
	Summary    string
	AddedAt    time.Time
}

// TopicEntry is one backlink bullet appended to a topic file.
type TopicEntry struct {
	LinkID  string
	URL     string
	Title   string
	Summary string
}

// Writer persists notes under a root directory: links/<id>.md for link notes
// and topics/<file> for topic pages.
type Writer struct {
	root string

	// topicLocks serializes the read-modify-write append per topic file.
	// Link notes need no lock: no two workers hold the same link id.
	topicLocks sync.Map // topic file name -> *sync.Mutex
}

// NewWriter ensures the layout under root exists.
func NewWriter(root string) (*Writer, error) {
	for _, dir := range []string{root, filepath.Join(root, "links"), filepath.Join(root, "topics")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create notes dir %s: %w", dir, err)
		}
	}
	return &Writer{root: root}, nil
}

type linkFrontmatter struct {
	URL        string   `yaml:"url"`
	Title      string   `yaml:"title,omitempty"`
	Category   string   `yaml:"category,omitempty"`
	Tags       []string `yaml:"tags,omitempty"`
	Confidence float64  `yaml:"confidence,omitempty"`
	Quality    int      `yaml:"quality,omitempty"`
	Topic      string   `yaml:"topic,omitempty"`
	TopicID    int64    `yaml:"topic_id,omitempty"`
	AddedAt    string   `yaml:"added_at"`
}

// WriteLinkNote writes links/<id>.md, replacing any previous content so
// re-processing a link converges on one canonical note. Returns the path
// relative to the notes root.
func (w *Writer) WriteLinkNote(linkID string, note LinkNote) (string, error) {
	if err := validateComponent(linkID); err != nil {
		return "", err
	}

	fm := linkFrontmatter{
		URL:        note.URL,
		Title:      note.Title,
		Category:   note.Category,
		Tags:       note.Tags,
		Confidence: note.Confidence,
		Quality:    note.Quality,
		Topic:      note.TopicTitle,
		TopicID:    note.TopicID,
		AddedAt:    note.AddedAt.UTC().Format(time.RFC3339),
	}
	raw, err := yaml.Marshal(fm)
	if err != nil {
		return "", fmt.Errorf("encode frontmatter for %s: %w", linkID, err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(raw)
	b.WriteString("---\n\n")
	heading := note.Title
	if heading == "" {
		heading = note.URL
	}
	fmt.Fprintf(&b, "# %s\n\n", heading)
	if note.Summary != "" {
		b.WriteString(note.Summary)
		b.WriteString("\n")
	}

	rel := filepath.Join("links", linkID+".md")
	if err := writeFileAtomic(filepath.Join(w.root, rel), []byte(b.String())); err != nil {
		return "", err
	}
	return rel, nil
}

// AppendTopicEntry appends a backlink bullet to topics/<topicFile>, creating
// the file with frontmatter on first use. An entry already present for the
// link id leaves the file untouched. Appends to the same topic file are
// serialized, so concurrent workers never overwrite each other's entries.
func (w *Writer) AppendTopicEntry(topicFile string, topicID int64, topicTitle string, entry TopicEntry) error {
	if err := validateComponent(topicFile); err != nil {
		return err
	}
	lock := w.lockTopicFile(topicFile)
	lock.Lock()
	defer lock.Unlock()

	path := filepath.Join(w.root, "topics", topicFile)

	marker := fmt.Sprintf("<!-- link:%s -->", entry.LinkID)
	existing, err := os.ReadFile(path)
	switch {
	case err == nil:
		if strings.Contains(string(existing), marker) {
			return nil
		}
	case os.IsNotExist(err):
		existing = []byte(topicHeader(topicID, topicTitle))
	default:
		return fmt.Errorf("read topic file %s: %w", topicFile, err)
	}

	var b strings.Builder
	b.Write(existing)
	if len(existing) > 0 && existing[len(existing)-1] != '\n' {
		b.WriteByte('\n')
	}
	label := entry.Title
	if label == "" {
		label = entry.URL
	}
	fmt.Fprintf(&b, "- [%s](../links/%s.md) %s", label, entry.LinkID, marker)
	if entry.Summary != "" {
		fmt.Fprintf(&b, "\n  %s", firstLine(entry.Summary))
	}
	b.WriteByte('\n')

	return writeFileAtomic(path, []byte(b.String()))
}

func (w *Writer) lockTopicFile(name string) *sync.Mutex {
	v, _ := w.topicLocks.LoadOrStore(name, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func topicHeader(topicID int64, title string) string {
	var b strings.Builder
	b.WriteString("---\n")
	raw, _ := yaml.Marshal(struct {
		Topic   string `yaml:"topic"`
		TopicID int64  `yaml:"topic_id"`
	}{Topic: title, TopicID: topicID})
	b.Write(raw)
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "# %s\n\n## Links\n\n", title)
	return b.String()
}

// writeFileAtomic writes via a temp file plus rename so readers never observe
// a partially written note.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".note-*")
	if err != nil {
		return fmt.Errorf("create temp note: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write note: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close note: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("publish note %s: %w", filepath.Base(path), err)
	}
	return nil
}

func validateComponent(name string) error {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid note path component %q", name)
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}
