package template

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/agentmint/agentmint/pkg/models"
)

// ValidationError carries the full list of rule violations found in a
// template. It is only constructed from a non-empty error list.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("template validation failed: %s", strings.Join(e.Errors, "; "))
}

// Validate checks a parsed template for structural completeness and
// accumulates every violation. It never mutates state and does not
// consult persistence.
func Validate(t *models.Template) models.ValidationResult {
	errs := []string{}

	if t.SchemaVersion == "" {
		errs = append(errs, "schema_version is required")
	}
	if t.TemplateID == "" {
		errs = append(errs, "template_id is required")
	}
	if t.Name == "" {
		errs = append(errs, "name is required")
	}
	if t.Version == "" {
		errs = append(errs, "version is required")
	} else if _, err := semver.StrictNewVersion(t.Version); err != nil {
		errs = append(errs, fmt.Sprintf("version %q is not a valid semantic version", t.Version))
	}
	if t.MinRuntimeVersion == "" {
		errs = append(errs, "min_runtime_version is required")
	} else if _, err := semver.StrictNewVersion(t.MinRuntimeVersion); err != nil {
		errs = append(errs, fmt.Sprintf("min_runtime_version %q is not a valid semantic version", t.MinRuntimeVersion))
	}
	if t.Engine.Model == "" {
		errs = append(errs, "engine.model is required")
	}
	if t.Engine.EmbeddingModel == "" {
		errs = append(errs, "engine.embedding_model is required")
	}
	if strings.TrimSpace(t.Persona) == "" {
		errs = append(errs, "persona must not be empty")
	}

	for i, edge := range t.Migrations {
		if edge.FromVersion == "" {
			errs = append(errs, fmt.Sprintf("migrations[%d]: from_version is required", i))
		}
		if edge.ToVersion == "" {
			errs = append(errs, fmt.Sprintf("migrations[%d]: to_version is required", i))
		}
		for j, step := range edge.Steps {
			switch step.Type {
			case models.StepJSONPatch:
				if len(step.Patch) == 0 {
					errs = append(errs, fmt.Sprintf("migrations[%d].steps[%d]: json_patch step requires a patch body", i, j))
				}
			case models.StepScript:
				if strings.TrimSpace(step.Code) == "" {
					errs = append(errs, fmt.Sprintf("migrations[%d].steps[%d]: script step requires code", i, j))
				}
			default:
				errs = append(errs, fmt.Sprintf("migrations[%d].steps[%d]: unknown step type %q", i, j, step.Type))
			}
		}
	}

	return models.ValidationResult{Valid: len(errs) == 0, Errors: errs}
}
