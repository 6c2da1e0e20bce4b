package middleware_test

import (
	"context"
	"testing"

	"github.com/nvrdftd/evolve-ai-infra/pkg/adapters/memory"
	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
	"github.com/nvrdftd/evolve-ai-infra/pkg/persistence/middleware"
)

func TestPIIMiddleware_Masking(t *testing.T) {
	underlyingStore := memory.NewStore()
	mw, err := middleware.NewPIIMiddleware([]string{"password", "(?i)token"})
	if err != nil {
		t.Fatal(err)
	}
	secureStore := mw(underlyingStore)

	ctx := context.Background()
	record := domain.RunRecord{
		ID:     "pii-run",
		Status: domain.StatusCompleted,
		State: domain.State{Values: map[string]any{
			"target":        "deployment/api",
			"user_password": "secret123",
			"webhook": map[string]any{
				"url":      "https://hooks.example.com",
				"APIToken": "abc",
			},
		}},
	}

	if err := secureStore.Save(ctx, record); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// The caller's record is left alone.
	if record.State.Values["user_password"] != "secret123" {
		t.Error("Middleware modified original record in memory!")
	}
	if record.State.Values["webhook"].(map[string]any)["APIToken"] != "abc" {
		t.Error("Middleware modified nested original value!")
	}

	stored, err := underlyingStore.Load(ctx, "pii-run")
	if err != nil {
		t.Fatalf("Underlying load failed: %v", err)
	}
	if stored.State.Values["target"] != "deployment/api" {
		t.Error("Target shouldn't be masked")
	}
	if stored.State.Values["user_password"] != middleware.Mask {
		t.Errorf("Password should be masked, got: %v", stored.State.Values["user_password"])
	}
	webhook := stored.State.Values["webhook"].(map[string]any)
	if webhook["APIToken"] != middleware.Mask {
		t.Errorf("Nested token should be masked, got: %v", webhook["APIToken"])
	}
	if webhook["url"] != "https://hooks.example.com" {
		t.Error("Nested url shouldn't be masked")
	}
}

func TestPIIMiddleware_InvalidPattern(t *testing.T) {
	if _, err := middleware.NewPIIMiddleware([]string{"("}); err == nil {
		t.Error("Expected error for invalid pattern")
	}
}

func TestChain(t *testing.T) {
	underlyingStore := memory.NewStore()
	pii, err := middleware.NewPIIMiddleware([]string{"password"})
	if err != nil {
		t.Fatal(err)
	}
	key := make([]byte, 32)
	store := middleware.Chain(underlyingStore, pii, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key}))

	ctx := context.Background()
	rec := domain.RunRecord{ID: "chained", State: domain.State{Values: map[string]any{"password": "hunter2"}}}
	if err := store.Save(ctx, rec); err != nil {
		t.Fatal(err)
	}
	loaded, err := store.Load(ctx, "chained")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.State.Values["password"] != middleware.Mask {
		t.Errorf("Expected masked value through the chain, got %v", loaded.State.Values["password"])
	}
}
