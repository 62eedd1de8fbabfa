package idempotency_test

import (
	"context"
	"errors"
	"testing"

	"github.com/agentmint/agentmint/internal/idempotency"
	"github.com/agentmint/agentmint/internal/store"
)

func TestCheckWithoutKeyProceeds(t *testing.T) {
	g := idempotency.NewGuard(store.NewMemoryStore())
	if err := g.Check(context.Background(), "", []byte("payload")); err != nil {
		t.Fatalf("empty key must opt out of the guard, got %v", err)
	}
	// Repeatedly, since nothing is recorded.
	if err := g.Check(context.Background(), "", []byte("payload")); err != nil {
		t.Fatalf("empty key must opt out of the guard, got %v", err)
	}
}

func TestCheckFirstUseProceeds(t *testing.T) {
	g := idempotency.NewGuard(store.NewMemoryStore())
	if err := g.Check(context.Background(), "key-1", []byte("payload")); err != nil {
		t.Fatalf("first use of a key must proceed, got %v", err)
	}
}

func TestCheckRejectsIdenticalReplay(t *testing.T) {
	g := idempotency.NewGuard(store.NewMemoryStore())
	ctx := context.Background()

	if err := g.Check(ctx, "key-1", []byte("payload")); err != nil {
		t.Fatalf("first use failed: %v", err)
	}
	err := g.Check(ctx, "key-1", []byte("payload"))
	var conflict *idempotency.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected *ConflictError for identical replay, got %v", err)
	}
}

func TestCheckRejectsKeyReuseWithDifferentPayload(t *testing.T) {
	g := idempotency.NewGuard(store.NewMemoryStore())
	ctx := context.Background()

	if err := g.Check(ctx, "key-1", []byte("payload-a")); err != nil {
		t.Fatalf("first use failed: %v", err)
	}
	err := g.Check(ctx, "key-1", []byte("payload-b"))
	var conflict *idempotency.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected *ConflictError for reused key, got %v", err)
	}
}
