// Package spellignore persists the user's per-word spellcheck ignore list.
// The spellchecker itself (dictionary lookup) is an external collaborator;
// this package only owns the ignore-set invariant described in spec C9.
package spellignore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hkdb/ratmail/internal/logging"
)

// Store is an in-memory, lowercased set of ignored words backed by an
// append-only file. Safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	path string
	set  map[string]struct{}
	file *os.File
}

// Open loads the ignore file at dir/spell-ignore.txt, creating it if
// necessary, and primes the in-memory set from its contents.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create spell-ignore directory: %w", err)
	}
	path := filepath.Join(dir, "spell-ignore.txt")

	set := make(map[string]struct{})
	if f, err := os.Open(path); err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			word := strings.ToLower(strings.TrimSpace(scanner.Text()))
			if word != "" {
				set[word] = struct{}{}
			}
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read spell-ignore file: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open spell-ignore file for append: %w", err)
	}

	return &Store{path: path, set: set, file: f}, nil
}

// Close releases the underlying file handle.
func (s *Store) Close() error {
	return s.file.Close()
}

// Contains reports whether word (case-insensitively) is on the ignore list.
func (s *Store) Contains(word string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.set[strings.ToLower(word)]
	return ok
}

// Add appends word to the ignore file and the in-memory set. A word already
// present is a no-op (no duplicate line is written).
func (s *Store) Add(word string) error {
	lower := strings.ToLower(strings.TrimSpace(word))
	if lower == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.set[lower]; ok {
		return nil
	}

	if _, err := fmt.Fprintln(s.file, lower); err != nil {
		return fmt.Errorf("failed to append spell-ignore word: %w", err)
	}

	s.set[lower] = struct{}{}
	logger := logging.WithComponent("spellignore")
	logger.Debug().Str("word", lower).Msg("added ignore word")
	return nil
}

// Words returns a sorted-irrelevant snapshot of every ignored word.
func (s *Store) Words() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.set))
	for w := range s.set {
		out = append(out, w)
	}
	return out
}
