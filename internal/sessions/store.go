// Package sessions persists conversation state as one JSON document per
// session under a fixed directory. Save is the only writer and always goes
// through a temp file and rename, so readers never observe partial content.
package sessions

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/relay/pkg/models"
)

// ErrNotFound is returned by Load when no document exists for the id.
var ErrNotFound = errors.New("session not found")

// Store reads and writes session documents under dir.
type Store struct {
	dir string
	now func() time.Time
}

// NewStore creates a store rooted at dir (conventionally data/sessions).
func NewStore(dir string) *Store {
	return &Store{dir: dir, now: time.Now}
}

// newStoreAt is the test seam for clock injection.
func newStoreAt(dir string, now func() time.Time) *Store {
	return &Store{dir: dir, now: now}
}

// Dir returns the backing directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// GetOrCreate loads the session when a document exists, otherwise constructs
// an empty session with the given id or a fresh UUID when id is empty.
func (s *Store) GetOrCreate(id string) (*models.Session, error) {
	if id != "" {
		session, err := s.Load(id)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	} else {
		id = uuid.NewString()
	}
	now := s.now().UTC()
	return &models.Session{ID: id, CreatedAt: now, UpdatedAt: now}, nil
}

// Load returns the stored session or ErrNotFound when the file is absent.
func (s *Store) Load(id string) (*models.Session, error) {
	raw, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("read session %s: %w", id, err)
	}
	var session models.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &session, nil
}

// Save refreshes UpdatedAt and rewrites the document atomically.
func (s *Store) Save(session *models.Session) error {
	if session.ID == "" {
		return errors.New("session id is empty")
	}
	session.UpdatedAt = s.now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = session.UpdatedAt
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}
	payload, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session %s: %w", session.ID, err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+session.ID+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write session %s: %w", session.ID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path(session.ID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename session %s: %w", session.ID, err)
	}
	return nil
}

// Delete removes the session document. Deleting a missing session is not an
// error.
func (s *Store) Delete(id string) error {
	err := os.Remove(s.path(id))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

// Info is the best-effort listing entry for one stored session.
type Info struct {
	ID           string    `json:"id"`
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
	MessageCount int       `json:"message_count"`
}

// List enumerates stored sessions, newest first. Documents that fail to parse
// still appear with whatever the filesystem can tell us.
func (s *Store) List() ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read session directory: %w", err)
	}

	infos := make([]Info, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		info := Info{
			ID:   strings.TrimSuffix(name, ".json"),
			Path: filepath.Join(s.dir, name),
		}
		if fi, err := entry.Info(); err == nil {
			info.Size = fi.Size()
			info.UpdatedAt = fi.ModTime().UTC()
		}
		if session, err := s.Load(info.ID); err == nil {
			info.CreatedAt = session.CreatedAt
			info.UpdatedAt = session.UpdatedAt
			info.MessageCount = len(session.Messages)
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].UpdatedAt.After(infos[j].UpdatedAt) })
	return infos, nil
}

// ExportMarkdown renders a human-readable transcript of the session.
func (s *Store) ExportMarkdown(id string) (string, error) {
	session, err := s.Load(id)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Session %s\n\n", session.ID)
	fmt.Fprintf(&b, "- Created: %s\n", session.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Updated: %s\n", session.UpdatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Messages: %d\n", len(session.Messages))
	for _, msg := range session.Messages {
		fmt.Fprintf(&b, "\n## %s\n\n", strings.ToUpper(string(msg.Role)))
		content := strings.TrimSpace(msg.Content)
		if content != "" {
			b.WriteString(content)
			b.WriteString("\n")
		}
		for _, call := range msg.ToolCalls {
			fmt.Fprintf(&b, "\n- tool call `%s` (%s): `%s`\n", call.Name, call.ID, string(call.Arguments))
		}
	}
	return b.String(), nil
}

// PruneOlderThan deletes every session whose UpdatedAt is older than the given
// number of days, returning the deleted ids.
func (s *Store) PruneOlderThan(days int) ([]string, error) {
	if days < 0 {
		return nil, fmt.Errorf("days must be >= 0, got %d", days)
	}
	infos, err := s.List()
	if err != nil {
		return nil, err
	}
	cutoff := s.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	deleted := []string{}
	for _, info := range infos {
		if info.UpdatedAt.IsZero() || !info.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := s.Delete(info.ID); err != nil {
			return deleted, err
		}
		deleted = append(deleted, info.ID)
	}
	return deleted, nil
}
