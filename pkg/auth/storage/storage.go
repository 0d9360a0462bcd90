// Package storage provides persisted session storage for authentication.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/s155cp/memberctl/pkg/auth/types"
)

// ErrNotFound is returned by Load when no session is stored.
var ErrNotFound = errors.New("session not found")

// Factory creates session storage instances based on configuration.
type Factory struct{}

// NewFactory creates a new storage factory.
func NewFactory() *Factory {
	return &Factory{}
}

// SessionStore stores the {access, user} pair across process restarts.
type SessionStore interface {
	// Save stores a session, replacing any previous one.
	Save(ctx context.Context, session *types.Session) error
	// Load retrieves the stored session or ErrNotFound.
	Load(ctx context.Context) (*types.Session, error)
	// Delete removes the stored session. Deleting nothing is not an error.
	Delete(ctx context.Context) error
}

// Create creates a session storage instance based on the configuration.
func (f *Factory) Create(config *types.StorageConfig, appName string) (SessionStore, error) {
	if config == nil {
		return nil, fmt.Errorf("storage config is required")
	}

	switch config.Type {
	case types.StorageTypeFile, "":
		return NewFileStorage(config, appName)
	case types.StorageTypeKeyring:
		return NewKeyringStorage(config)
	case types.StorageTypeMemory:
		return NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", config.Type)
	}
}

// MultiStorage implements a multi-tier session storage with fallback.
// It tries to save to all storages but reads from the first available.
type MultiStorage struct {
	storages []SessionStore
}

// NewMultiStorage creates a new multi-tier storage.
func NewMultiStorage(storages ...SessionStore) *MultiStorage {
	return &MultiStorage{
		storages: storages,
	}
}

// Save saves the session to all available storages.
func (m *MultiStorage) Save(ctx context.Context, session *types.Session) error {
	var lastErr error
	saved := false

	for _, storage := range m.storages {
		if err := storage.Save(ctx, session); err != nil {
			lastErr = err
		} else {
			saved = true
		}
	}

	if !saved && lastErr != nil {
		return lastErr
	}

	return nil
}

// Load loads the session from the first storage that has one.
func (m *MultiStorage) Load(ctx context.Context) (*types.Session, error) {
	for _, storage := range m.storages {
		session, err := storage.Load(ctx)
		if err == nil && session != nil {
			return session, nil
		}
	}

	return nil, ErrNotFound
}

// Delete deletes the session from all storages.
func (m *MultiStorage) Delete(ctx context.Context) error {
	var errs []error

	for _, storage := range m.storages {
		if err := storage.Delete(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func validate(session *types.Session) error {
	if session == nil {
		return fmt.Errorf("session is nil")
	}
	if session.Access == nil || session.Access.Token == "" {
		return fmt.Errorf("session has no access token")
	}
	return nil
}
