package session

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/ggchat/pkg/dotdir"
)

const (
	sessionFile = "session.toml"

	currentVersion = 0
)

// Stored is the persisted session in session.toml.
type Stored struct {
	Version int    `toml:"version"`
	Token   string `toml:"token"`

	// Server is the base URL the token was issued for.
	Server string `toml:"server,omitempty"`
}

// Store reads and writes session.toml in the .ggchat/ directory.
type Store struct {
	ddm        *dotdir.Manager
	targetPath string
}

// NewStore creates a session Store. If override is non-empty it is used as
// the .ggchat/ directory; otherwise the standard dotdir resolution applies.
// When no .ggchat/ directory is found, one is created at ~/.ggchat/.
func NewStore(override string) (*Store, error) {
	st := &Store{ddm: dotdir.NewManager()}

	target, err := st.ddm.Ensure(override)
	if err != nil {
		return nil, err
	}

	st.targetPath = filepath.Join(target, sessionFile)
	return st, nil
}

// GetTarget returns the path to session.toml.
func (s *Store) GetTarget() string {
	return s.targetPath
}

// Load reads session.toml. Returns an empty Stored if the file does not
// exist.
func (s *Store) Load() (*Stored, error) {
	data, err := os.ReadFile(s.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Stored{Version: currentVersion}, nil
		}
		return nil, fmt.Errorf("reading session: %w", err)
	}

	stored := &Stored{}
	if err := toml.Unmarshal(data, stored); err != nil {
		return nil, fmt.Errorf("parsing session: %w", err)
	}

	return stored, nil
}

// Save writes the session with 0600 permissions.
func (s *Store) Save(stored *Stored) error {
	if stored == nil {
		return errors.New("cannot save nil session")
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(stored); err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	if err := os.WriteFile(s.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing session: %w", err)
	}

	return nil
}

// Remove deletes session.toml. A missing file is not an error.
func (s *Store) Remove() error {
	if err := os.Remove(s.targetPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing session: %w", err)
	}
	return nil
}

// Open loads the stored token into a new live Session.
func (s *Store) Open() (*Session, error) {
	stored, err := s.Load()
	if err != nil {
		return nil, err
	}
	return New(stored.Token), nil
}
