package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/s155cp/memberctl/pkg/auth/types"
)

func testSession(token string) *types.Session {
	return &types.Session{
		Access: &types.AccessToken{Type: "Bearer", Token: token, Expiry: 1700000000000},
		User:   &types.User{ID: "u-1", FirstName: "Ada", LastName: "Rider", Email: "ada@example.com"},
	}
}

func TestFactory_Create(t *testing.T) {
	factory := NewFactory()

	tests := []struct {
		name    string
		config  *types.StorageConfig
		wantErr bool
	}{
		{
			name:    "nil config",
			config:  nil,
			wantErr: true,
		},
		{
			name:   "memory",
			config: &types.StorageConfig{Type: types.StorageTypeMemory},
		},
		{
			name:   "file",
			config: &types.StorageConfig{Type: types.StorageTypeFile, Path: filepath.Join(t.TempDir(), "s.json")},
		},
		{
			name:   "empty type defaults to file",
			config: &types.StorageConfig{Path: filepath.Join(t.TempDir(), "s.json")},
		},
		{
			name:   "keyring",
			config: &types.StorageConfig{Type: types.StorageTypeKeyring, KeyringService: "memberctl"},
		},
		{
			name:    "keyring without service",
			config:  &types.StorageConfig{Type: types.StorageTypeKeyring},
			wantErr: true,
		},
		{
			name:    "unknown",
			config:  &types.StorageConfig{Type: "floppy"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := factory.Create(tt.config, "memberctl-test")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Create() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && store == nil {
				t.Error("Create() returned nil store")
			}
		})
	}
}

func TestMultiStorage_SaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	first := NewMemoryStorage()
	second := NewMemoryStorage()
	multi := NewMultiStorage(first, second)

	if err := multi.Save(ctx, testSession("tok-1")); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	for i, s := range []*MemoryStorage{first, second} {
		loaded, err := s.Load(ctx)
		if err != nil {
			t.Fatalf("storage %d Load() failed: %v", i, err)
		}
		if loaded.Access.Token != "tok-1" {
			t.Errorf("storage %d token = %q, want tok-1", i, loaded.Access.Token)
		}
	}

	// Falls back to the second tier.
	first.Clear()
	loaded, err := multi.Load(ctx)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if loaded.Access.Token != "tok-1" {
		t.Errorf("token = %q, want tok-1", loaded.Access.Token)
	}

	if err := multi.Delete(ctx); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := multi.Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() after Delete error = %v, want ErrNotFound", err)
	}
}

func TestMultiStorage_SaveAllFail(t *testing.T) {
	multi := NewMultiStorage(NewMemoryStorage())
	if err := multi.Save(context.Background(), nil); err == nil {
		t.Error("Save(nil) should fail when every tier fails")
	}
}
