package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store persists opaque credential blobs keyed by account id. Records are
// independent: corruption or absence of one must not affect others.
type Store interface {
	Load(accountID string) ([]byte, error)
	Save(accountID string, credential []byte) error
	Delete(accountID string) error
}

// FileStore keeps one credential file per account under a root directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the root directory when missing.
func NewFileStore(dir string) (*FileStore, error) {
	resolved := strings.TrimSpace(dir)
	if resolved == "" {
		resolved = "session"
	}
	if err := os.MkdirAll(resolved, 0o755); err != nil {
		return nil, fmt.Errorf("session: create store dir %s: %w", resolved, err)
	}
	return &FileStore{dir: resolved}, nil
}

func (s *FileStore) path(accountID string) string {
	return filepath.Join(s.dir, "botsession-"+sanitizeID(accountID)+".json")
}

// Load reads the credential record, ErrNoCredential when absent.
func (s *FileStore) Load(accountID string) ([]byte, error) {
	data, err := os.ReadFile(s.path(accountID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoCredential, accountID)
		}
		return nil, fmt.Errorf("session: read credential %s: %w", accountID, err)
	}
	return data, nil
}

// Save writes the credential record, replacing any previous one.
func (s *FileStore) Save(accountID string, credential []byte) error {
	if err := os.WriteFile(s.path(accountID), credential, 0o600); err != nil {
		return fmt.Errorf("session: write credential %s: %w", accountID, err)
	}
	return nil
}

// Delete removes the credential record. Idempotent, absence is not an error.
func (s *FileStore) Delete(accountID string) error {
	if err := os.Remove(s.path(accountID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("session: delete credential %s: %w", accountID, err)
	}
	return nil
}

// Has reports whether a credential record exists for accountID.
func (s *FileStore) Has(accountID string) bool {
	_, err := os.Stat(s.path(accountID))
	return err == nil
}

func sanitizeID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '@' || r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}
