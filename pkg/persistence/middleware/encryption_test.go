package middleware_test

import (
	"context"
	"crypto/rand"
	"io"
	"testing"
	"time"

	"github.com/nvrdftd/evolve-ai-infra/pkg/adapters/memory"
	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
	"github.com/nvrdftd/evolve-ai-infra/pkg/persistence/middleware"
	"github.com/nvrdftd/evolve-ai-infra/pkg/ports"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		t.Fatal(err)
	}
	return k
}

func runRecord(id string) domain.RunRecord {
	now := time.Now().UTC()
	return domain.RunRecord{
		ID:     id,
		Graph:  "incident",
		Status: domain.StatusFailed,
		State: domain.State{
			Messages: []domain.Message{domain.HumanMessage("api latency is high")},
			Values:   map[string]any{"secret": "my-secret-sauce"},
		},
		Error:      "node applyRemedy failed",
		StartedAt:  now.Add(-time.Second),
		FinishedAt: now,
	}
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlyingStore := memory.NewStore()
	secureStore := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlyingStore)

	ctx := context.Background()
	if err := secureStore.Save(ctx, runRecord("run-1")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	stored, err := underlyingStore.Load(ctx, "run-1")
	if err != nil {
		t.Fatalf("Underlying load failed: %v", err)
	}
	if _, ok := stored.State.Values["secret"]; ok {
		t.Fatal("Expected secret to be hidden")
	}
	if len(stored.State.Messages) != 0 || stored.Error != "" {
		t.Fatal("Expected messages and error to be hidden")
	}
	if _, ok := stored.State.Values["__encrypted__"]; !ok {
		t.Fatal("Expected __encrypted__ field in values")
	}
	if stored.Status != domain.StatusFailed || stored.Graph != "incident" {
		t.Error("Expected listing metadata to stay readable")
	}

	loaded, err := secureStore.Load(ctx, "run-1")
	if err != nil {
		t.Fatalf("Load via middleware failed: %v", err)
	}
	if loaded.State.Values["secret"] != "my-secret-sauce" {
		t.Errorf("Expected 'my-secret-sauce', got %v", loaded.State.Values["secret"])
	}
	if loaded.Error != "node applyRemedy failed" || len(loaded.State.Messages) != 1 {
		t.Errorf("Unexpected decrypted record: %+v", loaded)
	}
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlyingStore := memory.NewStore()
	oldKey := generateKey(t)
	newKey := generateKey(t)
	ctx := context.Background()

	secureStoreOld := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: oldKey})(underlyingStore)
	if err := secureStoreOld.Save(ctx, runRecord("rotation")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	secureStoreNew := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})(underlyingStore)

	loaded, err := secureStoreNew.Load(ctx, "rotation")
	if err != nil {
		t.Fatalf("Load with rotated key failed: %v", err)
	}
	if loaded.State.Values["secret"] != "my-secret-sauce" {
		t.Errorf("Decryption with fallback key failed")
	}

	if err := secureStoreNew.Save(ctx, loaded); err != nil {
		t.Fatalf("Save with new key failed: %v", err)
	}
	if _, err := secureStoreOld.Load(ctx, "rotation"); err == nil {
		t.Error("Expected failure when loading new-key encryption with old-key middleware")
	}
}

func TestEncryptionMiddleware_RejectsPlainRecords(t *testing.T) {
	underlyingStore := memory.NewStore()
	ctx := context.Background()
	if err := underlyingStore.Save(ctx, runRecord("plain")); err != nil {
		t.Fatal(err)
	}

	secureStore := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlyingStore)
	if _, err := secureStore.Load(ctx, "plain"); err == nil {
		t.Error("Expected plain record to be rejected")
	}
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	store := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(memory.NewStore())
	ports.RunRunStoreContract(t, store)
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("Expected panic for invalid key size")
		}
	}()
	middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
}
