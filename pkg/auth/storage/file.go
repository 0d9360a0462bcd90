package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/gofrs/flock"
	"github.com/s155cp/memberctl/pkg/auth/types"
)

// LockTimeout bounds how long file operations wait for the cross-process
// lock. After that they proceed unlocked rather than hang the CLI.
const LockTimeout = 200 * time.Millisecond

// FileStorage implements file-based session storage.
//
// Writes go to a temp file that is renamed into place, and all access is
// serialized across processes with a sibling .lock file.
type FileStorage struct {
	path string
}

// NewFileStorage creates a new file-based storage.
func NewFileStorage(config *types.StorageConfig, appName string) (*FileStorage, error) {
	path := config.Path
	if path == "" {
		// Use XDG-compliant default path
		path = filepath.Join(xdg.ConfigHome, appName, "session.json")
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	return &FileStorage{
		path: path,
	}, nil
}

// Save writes the session to the file.
func (f *FileStorage) Save(ctx context.Context, session *types.Session) error {
	if err := validate(session); err != nil {
		return err
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	unlock, err := f.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace session file: %w", err)
	}

	return nil
}

// Load reads the session from the file.
func (f *FileStorage) Load(ctx context.Context) (*types.Session, error) {
	unlock, err := f.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var session types.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if session.Access == nil {
		return nil, ErrNotFound
	}

	return &session, nil
}

// Delete removes the session file.
func (f *FileStorage) Delete(ctx context.Context) error {
	unlock, err := f.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete session file: %w", err)
	}
	return nil
}

// GetPath returns the path to the session file.
func (f *FileStorage) GetPath() string {
	return f.path
}

// lock takes the cross-process lock. It fails open on timeout.
func (f *FileStorage) lock(ctx context.Context) (func(), error) {
	fl := flock.New(f.path + ".lock")

	ctx, cancel := context.WithTimeout(ctx, LockTimeout)
	defer cancel()

	locked, err := fl.TryLockContext(ctx, 10*time.Millisecond)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return func() {}, nil
		}
		return nil, fmt.Errorf("failed to lock session file: %w", err)
	}
	if !locked {
		return func() {}, nil
	}

	return func() { _ = fl.Unlock() }, nil
}
