// Package models defines the shared domain types for the AgentMint
// control plane: published agent templates, their migration graphs,
// running agent instances, and the records the control plane keeps
// about writes and upgrades.
package models

import "time"

// ── Template definition file ────────────────────────────────

// Template is the parsed form of an agent definition file. The same
// struct is decoded from JSON and YAML sources; the raw text is kept
// alongside it in TemplateVersion for archival and checksumming.
type Template struct {
	SchemaVersion     string          `json:"schema_version" yaml:"schema_version"`
	TemplateID        string          `json:"template_id" yaml:"template_id"`
	Name              string          `json:"name" yaml:"name"`
	Version           string          `json:"version" yaml:"version"`
	MinRuntimeVersion string          `json:"min_runtime_version" yaml:"min_runtime_version"`
	Persona           string          `json:"persona" yaml:"persona"`
	Engine            Engine          `json:"engine" yaml:"engine"`
	Variables         []Variable      `json:"variables,omitempty" yaml:"variables,omitempty"`
	Migrations        []MigrationEdge `json:"migrations,omitempty" yaml:"migrations,omitempty"`
}

// Engine names the models an agent built from this template runs on.
type Engine struct {
	Model          string `json:"model" yaml:"model"`
	EmbeddingModel string `json:"embedding_model" yaml:"embedding_model"`
}

// Variable declares a template variable that must (or may) be bound
// when the template is instantiated into an agent.
type Variable struct {
	Name     string `json:"name" yaml:"name"`
	Required bool   `json:"required" yaml:"required"`
	Default  string `json:"default,omitempty" yaml:"default,omitempty"`
}

// MigrationEdge is a declared upgrade path between two published
// versions of the same template, carrying an ordered list of steps.
type MigrationEdge struct {
	FromVersion string          `json:"from_version" yaml:"from_version"`
	ToVersion   string          `json:"to_version" yaml:"to_version"`
	Steps       []MigrationStep `json:"steps" yaml:"steps"`
}

// Migration step types.
const (
	StepJSONPatch = "json_patch"
	StepScript    = "script"
)

// MigrationStep is a tagged variant: a json_patch step carries Patch,
// a script step carries Code (and an optional human Description).
// Script steps are planned but never executed by the apply path; the
// executor emits a warning instead.
type MigrationStep struct {
	Type        string                 `json:"type" yaml:"type"`
	Patch       map[string]interface{} `json:"patch,omitempty" yaml:"patch,omitempty"`
	Code        string                 `json:"code,omitempty" yaml:"code,omitempty"`
	Description string                 `json:"description,omitempty" yaml:"description,omitempty"`
}

// ── Stored rows ─────────────────────────────────────────────

// TemplateRecord is the template-id row. One per template id; the
// per-version payloads live in TemplateVersion rows.
type TemplateRecord struct {
	TemplateID string    `json:"template_id"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TemplateVersion is one published version of a template. Exactly one
// row exists per (template_id, version); at most one row per template
// id carries IsLatest at any time.
type TemplateVersion struct {
	TemplateID string    `json:"template_id"`
	Version    string    `json:"version"`
	Checksum   string    `json:"checksum"`
	Format     string    `json:"format"`
	RawSource  string    `json:"raw_source"`
	Template   Template  `json:"template"`
	IsLatest   bool      `json:"is_latest"`
	CreatedBy  string    `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
}

// AgentRecord is the control plane's row for a running agent instance.
// AgentID is minted by the external runtime service. Version is
// advanced only by a successful non-dry-run upgrade.
type AgentRecord struct {
	AgentID    string            `json:"agent_id"`
	UserID     string            `json:"user_id"`
	TemplateID string            `json:"template_id"`
	Version    string            `json:"version"`
	Name       string            `json:"name,omitempty"`
	Variables  map[string]string `json:"variables,omitempty"`
	Revision   int               `json:"revision"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// IdempotencyRecord pins a caller-supplied idempotency key to the
// checksum of the first request body seen for it. Immutable once
// written.
type IdempotencyRecord struct {
	Key       string    `json:"key"`
	Checksum  string    `json:"checksum"`
	CreatedAt time.Time `json:"created_at"`
}

// Migration log statuses.
const (
	MigrationStatusDryRun  = "dry_run"
	MigrationStatusApplied = "applied"
	MigrationStatusQueued  = "queued"
)

// MigrationLogEntry is the append-only audit record of one upgrade
// attempt. Never mutated after insertion.
type MigrationLogEntry struct {
	ID          string          `json:"id"`
	AgentID     string          `json:"agent_id"`
	FromVersion string          `json:"from_version"`
	ToVersion   string          `json:"to_version"`
	DryRun      bool            `json:"dry_run"`
	Plan        []MigrationStep `json:"plan"`
	Diff        []DiffOp        `json:"diff"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}

// DiffOp is a single preview/apply mutation, currently always a "set"
// of a routing endpoint.
type DiffOp struct {
	Op    string      `json:"op"`
	Path  string      `json:"path"`
	Value interface{} `json:"value"`
}

// ── Runtime service wire shapes ─────────────────────────────

// RuntimeAgent is the agent record as the external runtime service
// returns it.
type RuntimeAgent struct {
	ID              string                 `json:"id"`
	Name            string                 `json:"name,omitempty"`
	LLMConfig       map[string]interface{} `json:"llm_config"`
	EmbeddingConfig map[string]interface{} `json:"embedding_config"`
}

// RuntimeAgentConfig is the payload for creating an agent in the
// runtime service.
type RuntimeAgentConfig struct {
	Name            string                 `json:"name"`
	Persona         string                 `json:"persona"`
	LLMConfig       map[string]interface{} `json:"llm_config"`
	EmbeddingConfig map[string]interface{} `json:"embedding_config"`
	Variables       map[string]string      `json:"variables,omitempty"`
}

// RuntimeAgentPatch is a partial update of an agent's runtime
// configuration. Nil maps are omitted from the request body.
type RuntimeAgentPatch struct {
	LLMConfig       map[string]interface{} `json:"llm_config,omitempty"`
	EmbeddingConfig map[string]interface{} `json:"embedding_config,omitempty"`
}

// ── API request/response shapes ─────────────────────────────

// ValidationResult accumulates every rule violation found in a
// template; Valid is true iff Errors is empty.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
	Format string   `json:"format,omitempty"`
}

// PublishResponse is returned by a successful template publish.
type PublishResponse struct {
	TemplateID string `json:"template_id"`
	Version    string `json:"version"`
	Checksum   string `json:"checksum"`
	IsLatest   bool   `json:"is_latest"`
}

// CreateAgentRequest instantiates a template into a running agent.
type CreateAgentRequest struct {
	TemplateID string            `json:"template_id"`
	Version    string            `json:"version,omitempty"`
	UseLatest  bool              `json:"use_latest,omitempty"`
	AgentName  string            `json:"agent_name,omitempty"`
	Variables  map[string]string `json:"variables,omitempty"`
}

// UpgradeAgentRequest asks to move an agent instance to another
// published version of its template.
type UpgradeAgentRequest struct {
	TargetVersion string `json:"target_version,omitempty"`
	UseLatest     bool   `json:"use_latest,omitempty"`
	DryRun        bool   `json:"dry_run,omitempty"`
	UseQueue      bool   `json:"use_queue,omitempty"`
}

// UpgradePreview is the dry-run result: the computed plan, the
// endpoint-rewrite diff, and warnings for steps that will not run.
type UpgradePreview struct {
	Plan     []MigrationStep `json:"plan"`
	Diff     []DiffOp        `json:"diff"`
	Warnings []string        `json:"warnings"`
}

// UpgradeJob is handed to the job queue for asynchronous apply.
type UpgradeJob struct {
	AgentID       string `json:"agent_id"`
	TargetVersion string `json:"target_version"`
	UserID        string `json:"user_id"`
}
