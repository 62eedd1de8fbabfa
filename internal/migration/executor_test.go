package migration_test

import (
	"context"
	"testing"

	"github.com/agentmint/agentmint/internal/migration"
	"github.com/agentmint/agentmint/internal/queue"
	"github.com/agentmint/agentmint/internal/store"
	"github.com/agentmint/agentmint/pkg/models"
)

// fakeRuntime records the calls the executor makes.
type fakeRuntime struct {
	agent       *models.RuntimeAgent
	lastPatch   *models.RuntimeAgentPatch
	updateCalls int
}

func (f *fakeRuntime) Create(_ context.Context, cfg *models.RuntimeAgentConfig) (*models.RuntimeAgent, error) {
	return &models.RuntimeAgent{ID: "rt-1", Name: cfg.Name, LLMConfig: cfg.LLMConfig, EmbeddingConfig: cfg.EmbeddingConfig}, nil
}

func (f *fakeRuntime) Fetch(_ context.Context, _ string) (*models.RuntimeAgent, error) {
	return f.agent, nil
}

func (f *fakeRuntime) Update(_ context.Context, _ string, patch *models.RuntimeAgentPatch) (*models.RuntimeAgent, error) {
	f.lastPatch = patch
	f.updateCalls++
	return f.agent, nil
}

func newTestExecutor(t *testing.T) (*migration.Executor, store.Store, *fakeRuntime, *queue.MemoryQueue) {
	t.Helper()
	s := store.NewMemoryStore()
	rt := &fakeRuntime{
		agent: &models.RuntimeAgent{
			ID:              "agent-1",
			LLMConfig:       map[string]interface{}{"model": "gpt-4o", "endpoint": "https://api.openai.com"},
			EmbeddingConfig: map[string]interface{}{"model": "text-embedding-3-small"},
		},
	}
	q := queue.NewMemoryQueue()
	return migration.NewExecutor(s, rt, q, "http://gateway:4000"), s, rt, q
}

func testAgent() *models.AgentRecord {
	return &models.AgentRecord{
		AgentID:    "agent-1",
		UserID:     "alice",
		TemplateID: "support-bot",
		Version:    "1.0.0",
		Revision:   1,
	}
}

func TestPreviewRewritesEndpoints(t *testing.T) {
	exec, _, _, _ := newTestExecutor(t)

	plan := []models.MigrationStep{patchStep("rename field")}
	preview := exec.Preview(plan, "alice")

	if len(preview.Diff) != 2 {
		t.Fatalf("expected 2 diff ops, got %d", len(preview.Diff))
	}
	want := "http://gateway:4000/v1/proxy/alice"
	for _, op := range preview.Diff {
		if op.Op != "set" {
			t.Errorf("expected set op, got %s", op.Op)
		}
		if op.Value != want {
			t.Errorf("expected endpoint %s, got %v", want, op.Value)
		}
	}
	if len(preview.Warnings) != 0 {
		t.Errorf("json_patch plan should produce no warnings, got %v", preview.Warnings)
	}

	// Deterministic for the same inputs.
	again := exec.Preview(plan, "alice")
	if len(again.Diff) != 2 || again.Diff[0].Value != want {
		t.Error("preview must be deterministic")
	}
}

func TestPreviewWarnsOnScriptSteps(t *testing.T) {
	exec, _, _, _ := newTestExecutor(t)

	plan := []models.MigrationStep{
		{Type: models.StepScript, Code: "migrate()"},
		patchStep("x"),
		{Type: models.StepScript, Code: "cleanup()"},
	}
	preview := exec.Preview(plan, "alice")
	if len(preview.Warnings) != 2 {
		t.Errorf("expected one warning per script step, got %v", preview.Warnings)
	}
}

func TestDryRunDoesNotTouchRuntimeOrAgent(t *testing.T) {
	exec, s, rt, _ := newTestExecutor(t)
	ctx := context.Background()

	agent := testAgent()
	if err := s.CreateAgentInstance(ctx, agent); err != nil {
		t.Fatalf("create agent failed: %v", err)
	}

	preview, err := exec.DryRun(ctx, agent, "1.1.0", []models.MigrationStep{patchStep("x")})
	if err != nil {
		t.Fatalf("dry run failed: %v", err)
	}
	if len(preview.Plan) != 1 {
		t.Errorf("expected plan in preview, got %d steps", len(preview.Plan))
	}
	if rt.updateCalls != 0 {
		t.Error("dry run must not call the runtime")
	}

	stored, _ := s.GetAgentInstance(ctx, "agent-1")
	if stored.Version != "1.0.0" || stored.Revision != 1 {
		t.Errorf("dry run must not advance the agent: %+v", stored)
	}

	logs, _ := s.ListMigrationLogs(ctx, "agent-1", 0)
	if len(logs) != 1 || logs[0].Status != models.MigrationStatusDryRun {
		t.Fatalf("expected one dry_run log entry, got %+v", logs)
	}
	if !logs[0].DryRun {
		t.Error("log entry must be flagged as dry run")
	}
}

func TestApplyAdvancesAgentAndLogs(t *testing.T) {
	exec, s, rt, _ := newTestExecutor(t)
	ctx := context.Background()

	agent := testAgent()
	if err := s.CreateAgentInstance(ctx, agent); err != nil {
		t.Fatalf("create agent failed: %v", err)
	}

	if _, err := exec.Apply(ctx, agent, "1.1.0", []models.MigrationStep{patchStep("x")}); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	if rt.updateCalls != 1 {
		t.Fatalf("expected one runtime update, got %d", rt.updateCalls)
	}
	want := "http://gateway:4000/v1/proxy/alice"
	if rt.lastPatch.LLMConfig["endpoint"] != want {
		t.Errorf("llm endpoint not rewritten: %v", rt.lastPatch.LLMConfig)
	}
	if rt.lastPatch.EmbeddingConfig["endpoint"] != want {
		t.Errorf("embedding endpoint not rewritten: %v", rt.lastPatch.EmbeddingConfig)
	}
	// Other config keys pass through untouched.
	if rt.lastPatch.LLMConfig["model"] != "gpt-4o" {
		t.Errorf("model key must be preserved: %v", rt.lastPatch.LLMConfig)
	}

	stored, _ := s.GetAgentInstance(ctx, "agent-1")
	if stored.Version != "1.1.0" {
		t.Errorf("expected version 1.1.0, got %s", stored.Version)
	}
	if stored.Revision != 2 {
		t.Errorf("expected revision 2, got %d", stored.Revision)
	}

	logs, _ := s.ListMigrationLogs(ctx, "agent-1", 0)
	if len(logs) != 1 {
		t.Fatalf("expected one log entry, got %d", len(logs))
	}
	entry := logs[0]
	if entry.Status != models.MigrationStatusApplied || entry.DryRun {
		t.Errorf("unexpected log entry: %+v", entry)
	}
	if entry.FromVersion != "1.0.0" || entry.ToVersion != "1.1.0" {
		t.Errorf("log must record the pre-upgrade version: %+v", entry)
	}
}

func TestApplySkipsScriptStepsWithWarning(t *testing.T) {
	exec, s, rt, _ := newTestExecutor(t)
	ctx := context.Background()

	agent := testAgent()
	if err := s.CreateAgentInstance(ctx, agent); err != nil {
		t.Fatalf("create agent failed: %v", err)
	}

	plan := []models.MigrationStep{
		patchStep("x"),
		{Type: models.StepScript, Code: "reindex()"},
	}
	preview, err := exec.Apply(ctx, agent, "1.1.0", plan)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	if len(preview.Warnings) != 1 {
		t.Fatalf("expected one script warning on apply, got %v", preview.Warnings)
	}

	// The script never runs: the runtime patch is still only the
	// endpoint rewrite, nothing else.
	if rt.updateCalls != 1 {
		t.Fatalf("expected one runtime update, got %d", rt.updateCalls)
	}
	want := "http://gateway:4000/v1/proxy/alice"
	if rt.lastPatch.LLMConfig["endpoint"] != want {
		t.Errorf("llm endpoint not rewritten: %v", rt.lastPatch.LLMConfig)
	}
	if rt.lastPatch.EmbeddingConfig["endpoint"] != want {
		t.Errorf("embedding endpoint not rewritten: %v", rt.lastPatch.EmbeddingConfig)
	}
	if len(rt.lastPatch.LLMConfig) != 2 || len(rt.lastPatch.EmbeddingConfig) != 2 {
		t.Errorf("patch must carry only the fetched config plus the endpoint: %v / %v",
			rt.lastPatch.LLMConfig, rt.lastPatch.EmbeddingConfig)
	}

	stored, _ := s.GetAgentInstance(ctx, "agent-1")
	if stored.Version != "1.1.0" {
		t.Errorf("expected version 1.1.0, got %s", stored.Version)
	}

	logs, _ := s.ListMigrationLogs(ctx, "agent-1", 0)
	if len(logs) != 1 || logs[0].Status != models.MigrationStatusApplied {
		t.Fatalf("expected one applied log entry, got %+v", logs)
	}
	if len(logs[0].Plan) != 2 {
		t.Errorf("log must record the full plan including the script step: %+v", logs[0].Plan)
	}
}

func TestEnqueueApplyQueuesJobAndLogs(t *testing.T) {
	exec, s, rt, q := newTestExecutor(t)
	ctx := context.Background()

	agent := testAgent()
	if err := s.CreateAgentInstance(ctx, agent); err != nil {
		t.Fatalf("create agent failed: %v", err)
	}

	if err := exec.EnqueueApply(ctx, agent, "1.1.0"); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	jobs := q.Jobs()
	if len(jobs) != 1 {
		t.Fatalf("expected 1 queued job, got %d", len(jobs))
	}
	if jobs[0].AgentID != "agent-1" || jobs[0].TargetVersion != "1.1.0" || jobs[0].UserID != "alice" {
		t.Errorf("unexpected job: %+v", jobs[0])
	}

	if rt.updateCalls != 0 {
		t.Error("queued apply must not touch the runtime synchronously")
	}
	stored, _ := s.GetAgentInstance(ctx, "agent-1")
	if stored.Version != "1.0.0" {
		t.Errorf("queued apply must not advance the agent: %+v", stored)
	}

	logs, _ := s.ListMigrationLogs(ctx, "agent-1", 0)
	if len(logs) != 1 || logs[0].Status != models.MigrationStatusQueued {
		t.Fatalf("expected one queued log entry, got %+v", logs)
	}
}
