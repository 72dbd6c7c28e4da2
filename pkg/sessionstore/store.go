// Package sessionstore persists saved authentication state per phone number.
package sessionstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/seralabs/telepilot/pkg/phone"
)

// Record is the persistent session record written to session_<digits>.json.
//
// StorageState is opaque to the store; it is whatever snapshot the browser
// produced and is sufficient to reconstruct a logged-in context.
type Record struct {
	Phone        string          `json:"phone"`
	StorageState json.RawMessage `json:"storage_state"`
	Metadata     map[string]any  `json:"metadata,omitempty"`
}

// Store persists and loads session Records from an on-disk directory.
//
// Directory layout:
//
//	<root>/session_<digits>.json
//
// One record per phone; Save overwrites unconditionally (last-writer-wins).
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: strings.TrimSpace(root)}
}

func (s *Store) RootDir() string {
	return s.root
}

func (s *Store) sessionPath(number string) string {
	return filepath.Join(s.root, "session_"+phone.SafeKey(number)+".json")
}

func (s *Store) ensureRoot() error {
	if strings.TrimSpace(s.root) == "" {
		return fmt.Errorf("session store root dir is empty")
	}
	return os.MkdirAll(s.root, 0755)
}

// Save writes or overwrites the record for a phone number. The write is
// atomic (temp file + rename) so a reader never observes a partial record.
func (s *Store) Save(number string, storageState json.RawMessage, metadata map[string]any) error {
	number = phone.Normalize(number)
	if number == "" {
		return fmt.Errorf("phone is required")
	}
	if err := s.ensureRoot(); err != nil {
		return err
	}

	rec := Record{
		Phone:        number,
		StorageState: storageState,
		Metadata:     metadata,
	}
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session record: %w", err)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(s.root, "session.json.tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp session file: %w", err)
	}

	if err := os.Rename(tmpName, s.sessionPath(number)); err != nil {
		return fmt.Errorf("rename session file: %w", err)
	}
	return nil
}

// Load returns the record for a phone number, or (nil, nil) when absent.
func (s *Store) Load(number string) (*Record, error) {
	number = phone.Normalize(number)
	if number == "" {
		return nil, fmt.Errorf("phone is required")
	}
	b, err := os.ReadFile(s.sessionPath(number))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("parse session file: %w", err)
	}
	return &rec, nil
}

// Exists reports whether a session record is stored for the phone number.
func (s *Store) Exists(number string) bool {
	_, err := os.Stat(s.sessionPath(phone.Normalize(number)))
	return err == nil
}

// Delete removes the record for a phone number. Returns false when no
// record existed.
func (s *Store) Delete(number string) (bool, error) {
	number = phone.Normalize(number)
	if number == "" {
		return false, fmt.Errorf("phone is required")
	}
	err := os.Remove(s.sessionPath(number))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("delete session file: %w", err)
	}
	return true, nil
}

// List returns the phone numbers of all stored sessions, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sessions root: %w", err)
	}

	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "session_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(s.root, name))
		if err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal(b, &rec); err != nil || rec.Phone == "" {
			continue
		}
		out = append(out, rec.Phone)
	}

	sort.Strings(out)
	return out, nil
}
