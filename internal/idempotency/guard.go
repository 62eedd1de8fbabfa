// Package idempotency guards mutating requests against key reuse.
// Callers may send an idempotency key with a request; the guard pins
// the key to the checksum of the first body it sees and rejects every
// later request carrying the same key.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/agentmint/agentmint/internal/store"
	"github.com/agentmint/agentmint/pkg/models"
)

// ConflictError is returned when an idempotency key has been seen
// before, whether the replayed body matches the original or not.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("idempotency conflict: %s", e.Reason)
}

// Guard checks idempotency keys against the store.
type Guard struct {
	store store.IdempotencyStore
}

func NewGuard(s store.IdempotencyStore) *Guard {
	return &Guard{store: s}
}

// Check records the key on first use and rejects any reuse. An empty
// key means the caller opted out; the request proceeds unguarded.
func (g *Guard) Check(ctx context.Context, key string, payload []byte) error {
	if key == "" {
		return nil
	}

	sum := sha256.Sum256(payload)
	checksum := hex.EncodeToString(sum[:])

	existing, err := g.store.GetIdempotencyRecord(ctx, key)
	if err != nil {
		var notFound *store.ErrNotFound
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to look up idempotency key: %w", err)
		}
		putErr := g.store.PutIdempotencyRecord(ctx, &models.IdempotencyRecord{
			Key:       key,
			Checksum:  checksum,
			CreatedAt: time.Now().UTC(),
		})
		if putErr != nil {
			var conflict *store.ErrConflict
			if errors.As(putErr, &conflict) {
				// Lost the race to a concurrent request with the same key.
				return &ConflictError{Reason: "key already used by a concurrent request"}
			}
			return fmt.Errorf("failed to record idempotency key: %w", putErr)
		}
		return nil
	}

	if existing.Checksum == checksum {
		return &ConflictError{Reason: "duplicate request: key was already used for an identical payload"}
	}
	return &ConflictError{Reason: "key was already used for a different payload"}
}
