package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/agentmint/agentmint/internal/metrics"
	"github.com/agentmint/agentmint/internal/queue"
	"github.com/agentmint/agentmint/internal/runtime"
	"github.com/agentmint/agentmint/internal/store"
	"github.com/agentmint/agentmint/pkg/models"
)

const scriptWarning = "script step will only execute during a non-dry-run apply by an external worker; the control plane does not run scripts"

// Executor carries out upgrade plans against the runtime service and
// records every attempt in the migration log.
type Executor struct {
	store        store.Store
	runtime      runtime.Client
	queue        queue.Queue
	proxyBaseURL string
}

func NewExecutor(s store.Store, rt runtime.Client, q queue.Queue, proxyBaseURL string) *Executor {
	return &Executor{store: s, runtime: rt, queue: q, proxyBaseURL: proxyBaseURL}
}

// ProxyEndpoint is the per-user gateway path an upgraded agent's
// model traffic is routed through.
func (e *Executor) ProxyEndpoint(userID string) string {
	return e.proxyBaseURL + "/v1/proxy/" + userID
}

// Preview computes the diff and warnings an apply of this plan would
// produce, without touching the runtime or the store.
func (e *Executor) Preview(plan []models.MigrationStep, userID string) models.UpgradePreview {
	endpoint := e.ProxyEndpoint(userID)
	preview := models.UpgradePreview{
		Plan: plan,
		Diff: []models.DiffOp{
			{Op: "set", Path: "llm_config.endpoint", Value: endpoint},
			{Op: "set", Path: "embedding_config.endpoint", Value: endpoint},
		},
		Warnings: []string{},
	}
	for _, step := range plan {
		if step.Type == models.StepScript {
			preview.Warnings = append(preview.Warnings, scriptWarning)
		}
	}
	return preview
}

// DryRun records a dry-run attempt and returns its preview. The agent
// and the runtime service are left untouched.
func (e *Executor) DryRun(ctx context.Context, agent *models.AgentRecord, target string, plan []models.MigrationStep) (*models.UpgradePreview, error) {
	preview := e.Preview(plan, agent.UserID)
	entry := &models.MigrationLogEntry{
		ID:          uuid.New().String(),
		AgentID:     agent.AgentID,
		FromVersion: agent.Version,
		ToVersion:   target,
		DryRun:      true,
		Plan:        plan,
		Diff:        preview.Diff,
		Status:      models.MigrationStatusDryRun,
		CreatedAt:   time.Now().UTC(),
	}
	if err := e.store.AppendMigrationLog(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to record dry run: %w", err)
	}
	metrics.UpgradeTotal.WithLabelValues("dry_run", "ok").Inc()
	return &preview, nil
}

// Apply executes the plan: the agent's runtime config is fetched, its
// routing endpoints rewritten to the per-user proxy path, the patch
// pushed to the runtime, and the stored agent row advanced to the
// target version. There is no rollback; a failure between the runtime
// patch and the row update surfaces as an error with the runtime
// already updated.
func (e *Executor) Apply(ctx context.Context, agent *models.AgentRecord, target string, plan []models.MigrationStep) (*models.UpgradePreview, error) {
	preview := e.Preview(plan, agent.UserID)
	fromVersion := agent.Version

	current, err := e.runtime.Fetch(ctx, agent.AgentID)
	if err != nil {
		metrics.UpgradeTotal.WithLabelValues("apply", "error").Inc()
		return nil, err
	}

	endpoint := e.ProxyEndpoint(agent.UserID)
	llm := cloneConfig(current.LLMConfig)
	emb := cloneConfig(current.EmbeddingConfig)
	llm["endpoint"] = endpoint
	emb["endpoint"] = endpoint

	if _, err := e.runtime.Update(ctx, agent.AgentID, &models.RuntimeAgentPatch{
		LLMConfig:       llm,
		EmbeddingConfig: emb,
	}); err != nil {
		metrics.UpgradeTotal.WithLabelValues("apply", "error").Inc()
		return nil, err
	}

	for _, w := range preview.Warnings {
		log.Warn().Str("agent_id", agent.AgentID).Msg(w)
	}

	agent.Version = target
	agent.Revision++
	agent.UpdatedAt = time.Now().UTC()
	if err := e.store.UpdateAgentInstance(ctx, agent); err != nil {
		metrics.UpgradeTotal.WithLabelValues("apply", "error").Inc()
		return nil, fmt.Errorf("runtime updated but failed to advance agent record: %w", err)
	}

	entry := &models.MigrationLogEntry{
		ID:          uuid.New().String(),
		AgentID:     agent.AgentID,
		FromVersion: fromVersion,
		ToVersion:   target,
		DryRun:      false,
		Plan:        plan,
		Diff:        preview.Diff,
		Status:      models.MigrationStatusApplied,
		CreatedAt:   time.Now().UTC(),
	}
	if err := e.store.AppendMigrationLog(ctx, entry); err != nil {
		log.Error().Err(err).Str("agent_id", agent.AgentID).Msg("upgrade applied but migration log append failed")
	}

	metrics.UpgradeTotal.WithLabelValues("apply", "ok").Inc()
	log.Info().
		Str("agent_id", agent.AgentID).
		Str("from", entry.FromVersion).
		Str("to", target).
		Msg("agent upgraded")
	return &preview, nil
}

// EnqueueApply hands the upgrade to the job queue and records it as
// queued. The agent row is not advanced here; the worker that drains
// the queue performs the apply.
func (e *Executor) EnqueueApply(ctx context.Context, agent *models.AgentRecord, target string) error {
	job := models.UpgradeJob{
		AgentID:       agent.AgentID,
		TargetVersion: target,
		UserID:        agent.UserID,
	}
	if err := e.queue.Enqueue(ctx, job); err != nil {
		metrics.UpgradeTotal.WithLabelValues("queued", "error").Inc()
		return fmt.Errorf("failed to enqueue upgrade: %w", err)
	}

	entry := &models.MigrationLogEntry{
		ID:          uuid.New().String(),
		AgentID:     agent.AgentID,
		FromVersion: agent.Version,
		ToVersion:   target,
		DryRun:      false,
		Plan:        []models.MigrationStep{},
		Diff:        []models.DiffOp{},
		Status:      models.MigrationStatusQueued,
		CreatedAt:   time.Now().UTC(),
	}
	if err := e.store.AppendMigrationLog(ctx, entry); err != nil {
		log.Error().Err(err).Str("agent_id", agent.AgentID).Msg("upgrade queued but migration log append failed")
	}

	metrics.UpgradeTotal.WithLabelValues("queued", "ok").Inc()
	log.Info().
		Str("agent_id", agent.AgentID).
		Str("target", target).
		Msg("agent upgrade queued")
	return nil
}

func cloneConfig(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src)+1)
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
