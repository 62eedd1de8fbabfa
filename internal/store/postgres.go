package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/agentmint/agentmint/pkg/models"
)

const pgUniqueViolation = "23505"

// PostgresStore implements Store backed by PostgreSQL via pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to PostgreSQL and runs schema migrations.
func NewPostgresStore(ctx context.Context, connString string, maxConns int) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	poolCfg.MaxConns = int32(maxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info().Msg("PostgreSQL store initialized")
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS am_templates (
			template_id TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS am_template_versions (
			template_id TEXT NOT NULL REFERENCES am_templates(template_id),
			version     TEXT NOT NULL,
			checksum    TEXT NOT NULL,
			format      TEXT NOT NULL,
			raw_source  TEXT NOT NULL,
			payload     JSONB NOT NULL,
			is_latest   BOOLEAN NOT NULL DEFAULT FALSE,
			created_by  TEXT NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (template_id, version)
		)`,
		`CREATE TABLE IF NOT EXISTS am_agent_instances (
			agent_id    TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL,
			template_id TEXT NOT NULL,
			version     TEXT NOT NULL,
			name        TEXT NOT NULL DEFAULT '',
			variables   JSONB NOT NULL DEFAULT '{}',
			revision    INT NOT NULL DEFAULT 1,
			created_at  TIMESTAMPTZ NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_am_agent_instances_user ON am_agent_instances(user_id)`,
		`CREATE TABLE IF NOT EXISTS am_idempotency_records (
			key        TEXT PRIMARY KEY,
			checksum   TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS am_migration_log (
			id           TEXT PRIMARY KEY,
			agent_id     TEXT NOT NULL,
			from_version TEXT NOT NULL,
			to_version   TEXT NOT NULL,
			dry_run      BOOLEAN NOT NULL,
			plan         JSONB NOT NULL,
			diff         JSONB NOT NULL,
			status       TEXT NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_am_migration_log_agent ON am_migration_log(agent_id, created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// ── Template Store ──────────────────────────────────────────

func (s *PostgresStore) PublishVersion(ctx context.Context, tv *models.TemplateVersion) error {
	payload, err := json.Marshal(tv.Template)
	if err != nil {
		return fmt.Errorf("failed to encode template payload: %w", err)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	_, err = tx.Exec(ctx, `
		INSERT INTO am_templates (template_id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (template_id) DO UPDATE SET name = $2, updated_at = $3`,
		tv.TemplateID, tv.Template.Name, now)
	if err != nil {
		return fmt.Errorf("failed to upsert template: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO am_template_versions
			(template_id, version, checksum, format, raw_source, payload, is_latest, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7, $8)`,
		tv.TemplateID, tv.Version, tv.Checksum, tv.Format, tv.RawSource, string(payload), tv.CreatedBy, tv.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return &ErrConflict{Entity: "template version", Key: tv.TemplateID + "@" + tv.Version}
		}
		return fmt.Errorf("failed to insert template version: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE am_template_versions SET is_latest = (version = $2)
		WHERE template_id = $1`,
		tv.TemplateID, tv.Version)
	if err != nil {
		return fmt.Errorf("failed to mark latest version: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) GetTemplate(ctx context.Context, templateID string) (*models.TemplateRecord, error) {
	var rec models.TemplateRecord
	err := s.pool.QueryRow(ctx, `
		SELECT template_id, name, created_at, updated_at
		FROM am_templates WHERE template_id = $1`, templateID).
		Scan(&rec.TemplateID, &rec.Name, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "template", Key: templateID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return &rec, nil
}

func (s *PostgresStore) ListTemplates(ctx context.Context) ([]models.TemplateRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT template_id, name, created_at, updated_at
		FROM am_templates ORDER BY template_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	out := make([]models.TemplateRecord, 0)
	for rows.Next() {
		var rec models.TemplateRecord
		if err := rows.Scan(&rec.TemplateID, &rec.Name, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan template row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) scanVersion(row pgx.Row) (*models.TemplateVersion, error) {
	var tv models.TemplateVersion
	var payload []byte
	err := row.Scan(&tv.TemplateID, &tv.Version, &tv.Checksum, &tv.Format,
		&tv.RawSource, &payload, &tv.IsLatest, &tv.CreatedBy, &tv.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &tv.Template); err != nil {
		return nil, fmt.Errorf("failed to decode template payload: %w", err)
	}
	return &tv, nil
}

const versionColumns = `template_id, version, checksum, format, raw_source, payload, is_latest, created_by, created_at`

func (s *PostgresStore) GetVersion(ctx context.Context, templateID, version string) (*models.TemplateVersion, error) {
	tv, err := s.scanVersion(s.pool.QueryRow(ctx, `
		SELECT `+versionColumns+` FROM am_template_versions
		WHERE template_id = $1 AND version = $2`, templateID, version))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "template version", Key: templateID + "@" + version}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template version: %w", err)
	}
	return tv, nil
}

func (s *PostgresStore) GetLatestVersion(ctx context.Context, templateID string) (*models.TemplateVersion, error) {
	tv, err := s.scanVersion(s.pool.QueryRow(ctx, `
		SELECT `+versionColumns+` FROM am_template_versions
		WHERE template_id = $1 AND is_latest`, templateID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "template", Key: templateID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest version: %w", err)
	}
	return tv, nil
}

func (s *PostgresStore) ListVersions(ctx context.Context, templateID string) ([]models.TemplateVersion, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+versionColumns+` FROM am_template_versions
		WHERE template_id = $1 ORDER BY created_at`, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	out := make([]models.TemplateVersion, 0)
	for rows.Next() {
		tv, err := s.scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version row: %w", err)
		}
		out = append(out, *tv)
	}
	return out, rows.Err()
}

// ── Agent Instance Store ────────────────────────────────────

func (s *PostgresStore) CreateAgentInstance(ctx context.Context, a *models.AgentRecord) error {
	vars, err := json.Marshal(a.Variables)
	if err != nil {
		return fmt.Errorf("failed to encode variables: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO am_agent_instances
			(agent_id, user_id, template_id, version, name, variables, revision, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.AgentID, a.UserID, a.TemplateID, a.Version, a.Name, string(vars), a.Revision, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return &ErrConflict{Entity: "agent instance", Key: a.AgentID}
		}
		return fmt.Errorf("failed to insert agent instance: %w", err)
	}
	return nil
}

func (s *PostgresStore) scanAgent(row pgx.Row) (*models.AgentRecord, error) {
	var a models.AgentRecord
	var vars []byte
	err := row.Scan(&a.AgentID, &a.UserID, &a.TemplateID, &a.Version,
		&a.Name, &vars, &a.Revision, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(vars, &a.Variables); err != nil {
		return nil, fmt.Errorf("failed to decode variables: %w", err)
	}
	return &a, nil
}

const agentColumns = `agent_id, user_id, template_id, version, name, variables, revision, created_at, updated_at`

func (s *PostgresStore) GetAgentInstance(ctx context.Context, agentID string) (*models.AgentRecord, error) {
	a, err := s.scanAgent(s.pool.QueryRow(ctx, `
		SELECT `+agentColumns+` FROM am_agent_instances WHERE agent_id = $1`, agentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "agent instance", Key: agentID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent instance: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) UpdateAgentInstance(ctx context.Context, a *models.AgentRecord) error {
	vars, err := json.Marshal(a.Variables)
	if err != nil {
		return fmt.Errorf("failed to encode variables: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE am_agent_instances
		SET version = $2, name = $3, variables = $4, revision = $5, updated_at = $6
		WHERE agent_id = $1`,
		a.AgentID, a.Version, a.Name, string(vars), a.Revision, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update agent instance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "agent instance", Key: a.AgentID}
	}
	return nil
}

func (s *PostgresStore) ListAgentInstances(ctx context.Context, userID string) ([]models.AgentRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+agentColumns+` FROM am_agent_instances
		WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list agent instances: %w", err)
	}
	defer rows.Close()

	out := make([]models.AgentRecord, 0)
	for rows.Next() {
		a, err := s.scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent row: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// ── Idempotency Store ───────────────────────────────────────

func (s *PostgresStore) GetIdempotencyRecord(ctx context.Context, key string) (*models.IdempotencyRecord, error) {
	var rec models.IdempotencyRecord
	err := s.pool.QueryRow(ctx, `
		SELECT key, checksum, created_at FROM am_idempotency_records WHERE key = $1`, key).
		Scan(&rec.Key, &rec.Checksum, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "idempotency record", Key: key}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get idempotency record: %w", err)
	}
	return &rec, nil
}

func (s *PostgresStore) PutIdempotencyRecord(ctx context.Context, rec *models.IdempotencyRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO am_idempotency_records (key, checksum, created_at)
		VALUES ($1, $2, $3)`,
		rec.Key, rec.Checksum, rec.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return &ErrConflict{Entity: "idempotency record", Key: rec.Key}
		}
		return fmt.Errorf("failed to insert idempotency record: %w", err)
	}
	return nil
}

// ── Migration Log Store ─────────────────────────────────────

func (s *PostgresStore) AppendMigrationLog(ctx context.Context, entry *models.MigrationLogEntry) error {
	plan, err := json.Marshal(entry.Plan)
	if err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}
	diff, err := json.Marshal(entry.Diff)
	if err != nil {
		return fmt.Errorf("failed to encode diff: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO am_migration_log
			(id, agent_id, from_version, to_version, dry_run, plan, diff, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, entry.AgentID, entry.FromVersion, entry.ToVersion,
		entry.DryRun, string(plan), string(diff), entry.Status, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append migration log: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListMigrationLogs(ctx context.Context, agentID string, limit int) ([]models.MigrationLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, agent_id, from_version, to_version, dry_run, plan, diff, status, created_at
		FROM am_migration_log
		WHERE agent_id = $1 ORDER BY created_at DESC LIMIT $2`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list migration logs: %w", err)
	}
	defer rows.Close()

	out := make([]models.MigrationLogEntry, 0)
	for rows.Next() {
		var e models.MigrationLogEntry
		var plan, diff []byte
		if err := rows.Scan(&e.ID, &e.AgentID, &e.FromVersion, &e.ToVersion,
			&e.DryRun, &plan, &diff, &e.Status, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration log row: %w", err)
		}
		if err := json.Unmarshal(plan, &e.Plan); err != nil {
			return nil, fmt.Errorf("failed to decode plan: %w", err)
		}
		if err := json.Unmarshal(diff, &e.Diff); err != nil {
			return nil, fmt.Errorf("failed to decode diff: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
