// In-memory Store implementation, used when PostgreSQL is not
// configured (local dev, tests).
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/agentmint/agentmint/pkg/models"
)

// MemoryStore implements Store with in-memory maps.
type MemoryStore struct {
	mu        sync.RWMutex
	templates map[string]*models.TemplateRecord     // key: template_id
	versions  map[string][]*models.TemplateVersion  // key: template_id → publish order
	agents    map[string]*models.AgentRecord        // key: agent_id
	idem      map[string]*models.IdempotencyRecord  // key: idempotency key
	logs      []*models.MigrationLogEntry           // append-only
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		templates: make(map[string]*models.TemplateRecord),
		versions:  make(map[string][]*models.TemplateVersion),
		agents:    make(map[string]*models.AgentRecord),
		idem:      make(map[string]*models.IdempotencyRecord),
		logs:      make([]*models.MigrationLogEntry, 0),
	}
}

func (m *MemoryStore) Ping(_ context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

// ── Template Store ──────────────────────────────────────────

func (m *MemoryStore) PublishVersion(_ context.Context, tv *models.TemplateVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.versions[tv.TemplateID] {
		if existing.Version == tv.Version {
			return &ErrConflict{Entity: "template version", Key: tv.TemplateID + "@" + tv.Version}
		}
	}

	now := time.Now().UTC()
	if rec, ok := m.templates[tv.TemplateID]; ok {
		rec.Name = tv.Template.Name
		rec.UpdatedAt = now
	} else {
		m.templates[tv.TemplateID] = &models.TemplateRecord{
			TemplateID: tv.TemplateID,
			Name:       tv.Template.Name,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
	}

	cp := *tv
	cp.IsLatest = true
	for _, existing := range m.versions[tv.TemplateID] {
		existing.IsLatest = false
	}
	m.versions[tv.TemplateID] = append(m.versions[tv.TemplateID], &cp)
	return nil
}

func (m *MemoryStore) GetTemplate(_ context.Context, templateID string) (*models.TemplateRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.templates[templateID]
	if !ok {
		return nil, &ErrNotFound{Entity: "template", Key: templateID}
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) ListTemplates(_ context.Context) ([]models.TemplateRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.TemplateRecord, 0, len(m.templates))
	for _, rec := range m.templates {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TemplateID < out[j].TemplateID })
	return out, nil
}

func (m *MemoryStore) GetVersion(_ context.Context, templateID, version string) (*models.TemplateVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, tv := range m.versions[templateID] {
		if tv.Version == version {
			cp := *tv
			return &cp, nil
		}
	}
	return nil, &ErrNotFound{Entity: "template version", Key: templateID + "@" + version}
}

func (m *MemoryStore) GetLatestVersion(_ context.Context, templateID string) (*models.TemplateVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, tv := range m.versions[templateID] {
		if tv.IsLatest {
			cp := *tv
			return &cp, nil
		}
	}
	return nil, &ErrNotFound{Entity: "template", Key: templateID}
}

func (m *MemoryStore) ListVersions(_ context.Context, templateID string) ([]models.TemplateVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	versions := m.versions[templateID]
	out := make([]models.TemplateVersion, len(versions))
	for i, tv := range versions {
		out[i] = *tv
	}
	return out, nil
}

// ── Agent Instance Store ────────────────────────────────────

func (m *MemoryStore) CreateAgentInstance(_ context.Context, a *models.AgentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[a.AgentID]; ok {
		return &ErrConflict{Entity: "agent instance", Key: a.AgentID}
	}
	cp := *a
	m.agents[a.AgentID] = &cp
	return nil
}

func (m *MemoryStore) GetAgentInstance(_ context.Context, agentID string) (*models.AgentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[agentID]
	if !ok {
		return nil, &ErrNotFound{Entity: "agent instance", Key: agentID}
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) UpdateAgentInstance(_ context.Context, a *models.AgentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[a.AgentID]; !ok {
		return &ErrNotFound{Entity: "agent instance", Key: a.AgentID}
	}
	cp := *a
	m.agents[a.AgentID] = &cp
	return nil
}

func (m *MemoryStore) ListAgentInstances(_ context.Context, userID string) ([]models.AgentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.AgentRecord, 0)
	for _, a := range m.agents {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ── Idempotency Store ───────────────────────────────────────

func (m *MemoryStore) GetIdempotencyRecord(_ context.Context, key string) (*models.IdempotencyRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.idem[key]
	if !ok {
		return nil, &ErrNotFound{Entity: "idempotency record", Key: key}
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) PutIdempotencyRecord(_ context.Context, rec *models.IdempotencyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.idem[rec.Key]; ok {
		return &ErrConflict{Entity: "idempotency record", Key: rec.Key}
	}
	cp := *rec
	m.idem[rec.Key] = &cp
	return nil
}

// ── Migration Log Store ─────────────────────────────────────

func (m *MemoryStore) AppendMigrationLog(_ context.Context, entry *models.MigrationLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *entry
	m.logs = append(m.logs, &cp)
	return nil
}

func (m *MemoryStore) ListMigrationLogs(_ context.Context, agentID string, limit int) ([]models.MigrationLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	out := make([]models.MigrationLogEntry, 0)
	for i := len(m.logs) - 1; i >= 0 && len(out) < limit; i-- {
		if m.logs[i].AgentID == agentID {
			out = append(out, *m.logs[i])
		}
	}
	return out, nil
}
