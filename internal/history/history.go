package history

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// PublicCap is the maximum number of entries kept in the public log.
const PublicCap = 50

const publicFile = "general.txt"

// Entry is one stored chat message.
type Entry struct {
	Sender string
	Text   string
}

// Store keeps chat history on disk: one capped public log plus one
// append-only file per private conversation pair. Lines are
// "sender|text"; the first separator wins, so texts may contain pipes.
type Store struct {
	root       string
	privateDir string
	publicMu   sync.Mutex
}

// New creates the history directories rooted at dir.
func New(dir string) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("history directory is required")
	}
	privateDir := filepath.Join(dir, "private")
	if err := os.MkdirAll(privateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	slog.Debug("history store initialized", "dir", dir)
	return &Store{root: dir, privateDir: privateDir}, nil
}

func (s *Store) publicPath() string {
	return filepath.Join(s.root, publicFile)
}

// PairPath returns the canonical file for a conversation pair. The
// lexicographically smaller name comes first, so (a,b) and (b,a) share
// one file.
func (s *Store) PairPath(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return filepath.Join(s.privateDir, a+"_"+b+".txt")
}

// AppendPublic adds one entry to the public log, evicting the oldest
// entries while the log is at capacity.
func (s *Store) AppendPublic(sender, text string) error {
	s.publicMu.Lock()
	defer s.publicMu.Unlock()

	entries, _, err := loadFile(s.publicPath())
	if err != nil {
		return fmt.Errorf("load public history: %w", err)
	}
	for len(entries) >= PublicCap {
		entries = entries[1:]
	}
	entries = append(entries, Entry{Sender: sender, Text: text})

	if err := rewriteFile(s.publicPath(), entries); err != nil {
		return fmt.Errorf("rewrite public history: %w", err)
	}
	slog.Debug("public history appended", "sender", sender, "entries", len(entries))
	return nil
}

// LoadPublic returns the public log oldest first. A missing file is an
// empty log.
func (s *Store) LoadPublic() ([]Entry, error) {
	s.publicMu.Lock()
	defer s.publicMu.Unlock()

	entries, _, err := loadFile(s.publicPath())
	if err != nil {
		return nil, fmt.Errorf("load public history: %w", err)
	}
	return entries, nil
}

// AppendPrivate adds one entry to the pair log for from and to.
func (s *Store) AppendPrivate(from, to, text string) error {
	f, err := os.OpenFile(s.PairPath(from, to), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open private history: %w", err)
	}
	_, writeErr := fmt.Fprintf(f, "%s|%s\n", from, text)
	closeErr := f.Close()
	if writeErr != nil {
		return fmt.Errorf("append private history: %w", writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close private history: %w", closeErr)
	}
	slog.Debug("private history appended", "from", from, "to", to)
	return nil
}

// LoadPrivate returns the pair log oldest first. found is false when the
// pair has never exchanged a message.
func (s *Store) LoadPrivate(a, b string) (entries []Entry, found bool, err error) {
	entries, found, err = loadFile(s.PairPath(a, b))
	if err != nil {
		return nil, false, fmt.Errorf("load private history: %w", err)
	}
	return entries, found, nil
}

func loadFile(path string) ([]Entry, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var entries []Entry
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		sep := strings.Index(line, "|")
		if sep < 0 {
			continue
		}
		entries = append(entries, Entry{Sender: line[:sep], Text: line[sep+1:]})
	}
	return entries, true, nil
}

// rewriteFile replaces path with the given entries via a temp file and
// rename, so a crash mid-write never truncates the log.
func rewriteFile(path string, entries []Entry) error {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.Sender)
		b.WriteByte('|')
		b.WriteString(e.Text)
		b.WriteByte('\n')
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".history-write-*")
	if err != nil {
		return fmt.Errorf("create temp history file: %w", err)
	}
	tmpPath := tmp.Name()

	_, writeErr := tmp.WriteString(b.String())
	closeErr := tmp.Close()
	if writeErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write history file: %w", writeErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close history file: %w", closeErr)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("move history file into place: %w", err)
	}
	return nil
}
