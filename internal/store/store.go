// Package store provides the storage interface and implementations for
// the AgentMint control plane. The in-memory store serves local dev and
// tests; PostgreSQL backs production.
package store

import (
	"context"

	"github.com/agentmint/agentmint/pkg/models"
)

// Store is the primary storage interface. All handler and service code
// depends on this interface, making it easy to swap between in-memory
// (tests) and PostgreSQL (production) implementations.
type Store interface {
	TemplateStore
	AgentStore
	IdempotencyStore
	MigrationLogStore

	// Ping checks if the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error
}

// ── Template Store ──────────────────────────────────────────

type TemplateStore interface {
	// PublishVersion upserts the template-id row, inserts the new
	// version row, marks it latest and clears the latest flag on every
	// other version of the same template, all as one logical unit. A
	// duplicate (template_id, version) pair returns *ErrConflict.
	PublishVersion(ctx context.Context, tv *models.TemplateVersion) error

	GetTemplate(ctx context.Context, templateID string) (*models.TemplateRecord, error)
	ListTemplates(ctx context.Context) ([]models.TemplateRecord, error)

	GetVersion(ctx context.Context, templateID, version string) (*models.TemplateVersion, error)
	GetLatestVersion(ctx context.Context, templateID string) (*models.TemplateVersion, error)
	ListVersions(ctx context.Context, templateID string) ([]models.TemplateVersion, error)
}

// ── Agent Instance Store ────────────────────────────────────

type AgentStore interface {
	CreateAgentInstance(ctx context.Context, a *models.AgentRecord) error
	GetAgentInstance(ctx context.Context, agentID string) (*models.AgentRecord, error)
	UpdateAgentInstance(ctx context.Context, a *models.AgentRecord) error
	ListAgentInstances(ctx context.Context, userID string) ([]models.AgentRecord, error)
}

// ── Idempotency Store ───────────────────────────────────────

type IdempotencyStore interface {
	GetIdempotencyRecord(ctx context.Context, key string) (*models.IdempotencyRecord, error)

	// PutIdempotencyRecord is insert-only: a key that already exists
	// returns *ErrConflict. Records are immutable once written.
	PutIdempotencyRecord(ctx context.Context, rec *models.IdempotencyRecord) error
}

// ── Migration Log Store ─────────────────────────────────────

type MigrationLogStore interface {
	// AppendMigrationLog persists one upgrade-attempt record.
	// Entries are append-only.
	AppendMigrationLog(ctx context.Context, entry *models.MigrationLogEntry) error

	// ListMigrationLogs returns entries for an agent, newest first.
	ListMigrationLogs(ctx context.Context, agentID string, limit int) ([]models.MigrationLogEntry, error)
}

// ── Errors ──────────────────────────────────────────────────

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}

// ErrConflict is returned when an insert violates a uniqueness
// constraint, such as republishing an existing template version.
type ErrConflict struct {
	Entity string
	Key    string
}

func (e *ErrConflict) Error() string {
	return e.Entity + " already exists: " + e.Key
}
