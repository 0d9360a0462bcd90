package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/s155cp/memberctl/pkg/auth/types"
	"github.com/zalando/go-keyring"
)

// KeyringStorage implements OS keyring-based session storage.
type KeyringStorage struct {
	service string
	user    string
}

// NewKeyringStorage creates a new keyring-based storage.
func NewKeyringStorage(config *types.StorageConfig) (*KeyringStorage, error) {
	service := config.KeyringService
	if service == "" {
		return nil, fmt.Errorf("keyring_service is required for keyring storage")
	}

	user := config.KeyringUser
	if user == "" {
		user = "default"
	}

	return &KeyringStorage{
		service: service,
		user:    user,
	}, nil
}

// Save saves a session to the OS keyring.
func (k *KeyringStorage) Save(ctx context.Context, session *types.Session) error {
	if err := validate(session); err != nil {
		return err
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := keyring.Set(k.service, k.user, string(data)); err != nil {
		return fmt.Errorf("failed to store session in keyring: %w", err)
	}

	return nil
}

// Load loads a session from the OS keyring.
func (k *KeyringStorage) Load(ctx context.Context) (*types.Session, error) {
	data, err := keyring.Get(k.service, k.user)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve session from keyring: %w", err)
	}

	var session types.Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

// Delete deletes the session from the OS keyring.
func (k *KeyringStorage) Delete(ctx context.Context) error {
	if err := keyring.Delete(k.service, k.user); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to delete session from keyring: %w", err)
	}
	return nil
}

// GetService returns the keyring service name.
func (k *KeyringStorage) GetService() string {
	return k.service
}

// GetUser returns the keyring user name.
func (k *KeyringStorage) GetUser() string {
	return k.user
}
