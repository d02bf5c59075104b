// Package chat persists chat sessions as JSON documents inside the
// workspace metadata subtree, keeping them out of the tree and search index.
package chat

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stenmark/dagaz/internal/apperr"
)

// Message is a single utterance in a session.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is a stored conversation.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Messages  []Message `json:"messages"`
}

// Summary is the listing view of a session, without its messages.
type Summary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store reads and writes sessions under a single directory.
type Store struct {
	dir    string
	logger *slog.Logger

	mu sync.Mutex
}

// NewStore returns a store rooted at dir. The directory is created lazily
// on the first save.
func NewStore(dir string, logger *slog.Logger) *Store {
	return &Store{dir: dir, logger: logger}
}

func (s *Store) sessionPath(id string) (string, error) {
	// Session ids come from clients over HTTP; only uuid-shaped ids map
	// to files so the store can never be used for traversal.
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("chat: invalid session id %q: %w", id, apperr.ErrInvalidPath)
	}
	return filepath.Join(s.dir, id+".json"), nil
}

// List returns summaries of all sessions, most recently updated first.
func (s *Store) List() ([]Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Summary{}, nil
		}
		return nil, fmt.Errorf("chat: list sessions: %w", err)
	}

	summaries := make([]Summary, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		sess, err := s.read(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			s.logger.Warn("skipping unreadable chat session",
				slog.String("file", entry.Name()),
				slog.String("error", err.Error()))
			continue
		}
		summaries = append(summaries, Summary{
			ID:        sess.ID,
			Title:     sess.Title,
			CreatedAt: sess.CreatedAt,
			UpdatedAt: sess.UpdatedAt,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

// Get loads a session by id.
func (s *Store) Get(id string) (*Session, error) {
	path, err := s.sessionPath(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("chat: session %s: %w", id, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("chat: read session %s: %w", id, err)
	}
	return sess, nil
}

// Save persists a session. An empty id gets a fresh uuid; CreatedAt is set
// on first save and UpdatedAt on every save. The stored session is returned.
func (s *Store) Save(sess *Session) (*Session, error) {
	now := time.Now().UTC()
	if sess.ID == "" {
		sess.ID = uuid.NewString()
		sess.CreatedAt = now
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now

	path, err := s.sessionPath(sess.ID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("chat: create session dir: %w", err)
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("chat: encode session %s: %w", sess.ID, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("chat: write session %s: %w", sess.ID, err)
	}
	return sess, nil
}

// Delete removes a session by id.
func (s *Store) Delete(id string) error {
	path, err := s.sessionPath(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("chat: session %s: %w", id, apperr.ErrNotFound)
		}
		return fmt.Errorf("chat: delete session %s: %w", id, err)
	}
	return nil
}

func (s *Store) read(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return &sess, nil
}
