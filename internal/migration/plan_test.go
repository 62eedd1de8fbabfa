package migration_test

import (
	"errors"
	"testing"

	"github.com/agentmint/agentmint/internal/migration"
	"github.com/agentmint/agentmint/pkg/models"
)

func edge(from, to string, steps ...models.MigrationStep) models.MigrationEdge {
	return models.MigrationEdge{FromVersion: from, ToVersion: to, Steps: steps}
}

func patchStep(desc string) models.MigrationStep {
	return models.MigrationStep{
		Type:        models.StepJSONPatch,
		Patch:       map[string]interface{}{"persona": desc},
		Description: desc,
	}
}

func TestBuildPlanConcatenatesEdges(t *testing.T) {
	edges := []models.MigrationEdge{
		edge("1.0.0", "1.1.0", patchStep("first")),
		edge("1.1.0", "2.0.0", patchStep("second"), patchStep("third")),
	}

	plan, err := migration.BuildPlan("1.0.0", "2.0.0", edges)
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}
	if len(plan) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(plan))
	}
	for i, want := range []string{"first", "second", "third"} {
		if plan[i].Description != want {
			t.Errorf("step %d: expected %q, got %q", i, want, plan[i].Description)
		}
	}
}

func TestBuildPlanEqualVersions(t *testing.T) {
	plan, err := migration.BuildPlan("1.0.0", "1.0.0", nil)
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}
	if len(plan) != 0 {
		t.Errorf("expected empty plan, got %d steps", len(plan))
	}
}

func TestBuildPlanNoPath(t *testing.T) {
	edges := []models.MigrationEdge{edge("1.0.0", "1.1.0")}
	_, err := migration.BuildPlan("1.0.0", "2.0.0", edges)
	var noPath *migration.NoPathError
	if !errors.As(err, &noPath) {
		t.Fatalf("expected *NoPathError, got %v", err)
	}
	if noPath.From != "1.0.0" || noPath.Target != "2.0.0" {
		t.Errorf("unexpected error detail: %+v", noPath)
	}
}

func TestBuildPlanDetectsCycle(t *testing.T) {
	edges := []models.MigrationEdge{
		edge("1.0.0", "1.1.0"),
		edge("1.1.0", "1.0.0"),
	}
	_, err := migration.BuildPlan("1.0.0", "2.0.0", edges)
	var cycle *migration.CycleError
	if !errors.As(err, &cycle) {
		t.Fatalf("expected *CycleError, got %v", err)
	}
}
