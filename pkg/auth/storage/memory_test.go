package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/s155cp/memberctl/pkg/auth/types"
)

func TestMemoryStorage_SaveAndLoad(t *testing.T) {
	storage := NewMemoryStorage()
	ctx := context.Background()

	session := testSession("test-access-token")

	if err := storage.Save(ctx, session); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	loaded, err := storage.Load(ctx)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if loaded.Access.Token != session.Access.Token {
		t.Errorf("Token = %v, want %v", loaded.Access.Token, session.Access.Token)
	}
	if loaded.User.Email != session.User.Email {
		t.Errorf("Email = %v, want %v", loaded.User.Email, session.User.Email)
	}
	if storage.Saves() != 1 {
		t.Errorf("Saves() = %d, want 1", storage.Saves())
	}
}

func TestMemoryStorage_LoadNotFound(t *testing.T) {
	storage := NewMemoryStorage()

	_, err := storage.Load(context.Background())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStorage_Delete(t *testing.T) {
	storage := NewMemoryStorage()
	ctx := context.Background()

	_ = storage.Save(ctx, testSession("tok"))

	if err := storage.Delete(ctx); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := storage.Load(ctx); err == nil {
		t.Error("Load() should return error after deletion")
	}
	if storage.Deletes() != 1 {
		t.Errorf("Deletes() = %d, want 1", storage.Deletes())
	}
}

func TestMemoryStorage_SaveInvalid(t *testing.T) {
	storage := NewMemoryStorage()
	ctx := context.Background()

	if err := storage.Save(ctx, nil); err == nil {
		t.Error("Save() should return error for nil session")
	}
	if err := storage.Save(ctx, &types.Session{}); err == nil {
		t.Error("Save() should return error for session without access token")
	}
}

func TestMemoryStorage_Isolation(t *testing.T) {
	storage := NewMemoryStorage()
	ctx := context.Background()

	session := testSession("original")
	_ = storage.Save(ctx, session)

	// Mutating the caller's copy must not leak into the store.
	session.Access.Token = "modified"

	loaded, _ := storage.Load(ctx)
	if loaded.Access.Token != "original" {
		t.Errorf("Token = %v, want original", loaded.Access.Token)
	}

	loaded.Access.Token = "modified-again"
	reloaded, _ := storage.Load(ctx)
	if reloaded.Access.Token != "original" {
		t.Errorf("Token = %v, want original", reloaded.Access.Token)
	}
}
