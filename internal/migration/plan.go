// Package migration plans and executes agent upgrades between
// published template versions. A plan is the concatenation of the
// steps along the unique linear path of declared migration edges from
// the agent's current version to the target.
package migration

import (
	"fmt"

	"github.com/agentmint/agentmint/pkg/models"
)

// NoPathError means no chain of declared edges connects the agent's
// current version to the target.
type NoPathError struct {
	From   string
	Target string
}

func (e *NoPathError) Error() string {
	return fmt.Sprintf("no migration path from %s to %s", e.From, e.Target)
}

// CycleError means the edge walk revisited a version before reaching
// the target.
type CycleError struct {
	Version string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("migration path contains a cycle at version %s", e.Version)
}

// BuildPlan walks edges from current to target, concatenating each
// traversed edge's steps in order. Equal versions yield an empty plan.
// The walk follows the first edge whose from_version matches the
// frontier; a revisited version aborts with CycleError.
func BuildPlan(current, target string, edges []models.MigrationEdge) ([]models.MigrationStep, error) {
	plan := []models.MigrationStep{}
	if current == target {
		return plan, nil
	}

	visited := map[string]bool{}
	frontier := current
	for frontier != target {
		if visited[frontier] {
			return nil, &CycleError{Version: frontier}
		}
		visited[frontier] = true

		var next *models.MigrationEdge
		for i := range edges {
			if edges[i].FromVersion == frontier {
				next = &edges[i]
				break
			}
		}
		if next == nil {
			return nil, &NoPathError{From: current, Target: target}
		}
		plan = append(plan, next.Steps...)
		frontier = next.ToVersion
	}
	return plan, nil
}
