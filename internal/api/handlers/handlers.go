// Package handlers implements the HTTP handlers for the AgentMint
// control plane: template publishing and validation, agent instance
// lifecycle, and version upgrades.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/agentmint/agentmint/internal/api/middleware"
	"github.com/agentmint/agentmint/internal/idempotency"
	"github.com/agentmint/agentmint/internal/migration"
	"github.com/agentmint/agentmint/internal/registry"
	"github.com/agentmint/agentmint/internal/runtime"
	"github.com/agentmint/agentmint/internal/store"
	"github.com/agentmint/agentmint/internal/template"
	"github.com/agentmint/agentmint/pkg/models"
)

const maxTemplateBytes = 1 << 20 // 1 MiB

// Handlers holds all handler dependencies.
type Handlers struct {
	Store    store.Store
	Registry *registry.Registry
	Guard    *idempotency.Guard
	Executor *migration.Executor
	Runtime  runtime.Client
	Version  string
}

// New creates a new Handlers instance with all dependencies.
func New(s store.Store, reg *registry.Registry, guard *idempotency.Guard, exec *migration.Executor, rt runtime.Client, version string) *Handlers {
	return &Handlers{
		Store:    s,
		Registry: reg,
		Guard:    guard,
		Executor: exec,
		Runtime:  rt,
		Version:  version,
	}
}

// ── Template Handlers ────────────────────────────────────────

// PublishTemplate accepts a raw template file (JSON or YAML) in the
// request body and runs the full publish pipeline.
func (h *Handlers) PublishTemplate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTemplateBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	userID := middleware.GetUserID(r.Context())
	idemKey := r.Header.Get("X-Idempotency-Key")

	resp, err := h.Registry.Publish(r.Context(), string(body), userID, idemKey)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, resp)
}

// ValidateTemplate parses and validates a template without persisting
// anything. It always returns 200 with a ValidationResult; a parse
// failure is reported inside the result, not as an HTTP error.
func (h *Handlers) ValidateTemplate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTemplateBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	t, _, format, err := template.Parse(string(body))
	if err != nil {
		respondJSON(w, http.StatusOK, models.ValidationResult{
			Valid:  false,
			Errors: []string{err.Error()},
		})
		return
	}

	result := template.Validate(t)
	result.Format = format
	respondJSON(w, http.StatusOK, result)
}

func (h *Handlers) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.Store.ListTemplates(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, templates)
}

func (h *Handlers) ListTemplateVersions(w http.ResponseWriter, r *http.Request) {
	templateID := chi.URLParam(r, "templateID")

	if _, err := h.Store.GetTemplate(r.Context(), templateID); err != nil {
		respondDomainError(w, err)
		return
	}
	versions, err := h.Store.ListVersions(r.Context(), templateID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, versions)
}

func (h *Handlers) GetTemplateVersion(w http.ResponseWriter, r *http.Request) {
	templateID := chi.URLParam(r, "templateID")
	version := chi.URLParam(r, "version")

	tv, err := h.Registry.Resolve(r.Context(), templateID, version, version == "latest")
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, tv)
}

// ── Agent Instance Handlers ──────────────────────────────────

// CreateAgent instantiates a published template version into a running
// agent on the runtime service and records it for the calling user.
func (h *Handlers) CreateAgent(w http.ResponseWriter, r *http.Request) {
	var req models.CreateAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.TemplateID == "" {
		respondError(w, http.StatusBadRequest, "template_id is required")
		return
	}

	userID := middleware.GetUserID(r.Context())

	tv, err := h.Registry.Resolve(r.Context(), req.TemplateID, req.Version, req.UseLatest)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	if missing := missingRequiredVariables(tv.Template.Variables, req.Variables); len(missing) > 0 {
		respondDomainError(w, &template.ValidationError{Errors: missing})
		return
	}

	name := req.AgentName
	if name == "" {
		name = tv.Template.Name
	}
	endpoint := h.Executor.ProxyEndpoint(userID)

	created, err := h.Runtime.Create(r.Context(), &models.RuntimeAgentConfig{
		Name:    name,
		Persona: tv.Template.Persona,
		LLMConfig: map[string]interface{}{
			"model":    tv.Template.Engine.Model,
			"endpoint": endpoint,
		},
		EmbeddingConfig: map[string]interface{}{
			"model":    tv.Template.Engine.EmbeddingModel,
			"endpoint": endpoint,
		},
		Variables: req.Variables,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	now := time.Now().UTC()
	agent := &models.AgentRecord{
		AgentID:    created.ID,
		UserID:     userID,
		TemplateID: tv.TemplateID,
		Version:    tv.Version,
		Name:       name,
		Variables:  req.Variables,
		Revision:   1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := h.Store.CreateAgentInstance(r.Context(), agent); err != nil {
		respondDomainError(w, err)
		return
	}

	log.Info().
		Str("agent_id", agent.AgentID).
		Str("template_id", agent.TemplateID).
		Str("version", agent.Version).
		Str("user_id", userID).
		Msg("agent instance created")
	respondJSON(w, http.StatusCreated, agent)
}

func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	agents, err := h.Store.ListAgentInstances(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if agents == nil {
		agents = []models.AgentRecord{}
	}
	respondJSON(w, http.StatusOK, agents)
}

func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	agent, ok := h.loadOwnedAgent(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, agent)
}

// UpgradeAgent moves an agent instance to another published version of
// its template: dry-run preview, synchronous apply, or queued apply.
func (h *Handlers) UpgradeAgent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTemplateBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	// Key reuse is rejected before any other work, including for
	// requests that would otherwise fail later.
	if err := h.Guard.Check(r.Context(), r.Header.Get("X-Idempotency-Key"), body); err != nil {
		respondDomainError(w, err)
		return
	}

	var req models.UpgradeAgentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.TargetVersion == "" && !req.UseLatest {
		respondError(w, http.StatusBadRequest, "target_version or use_latest is required")
		return
	}

	agent, ok := h.loadOwnedAgent(w, r)
	if !ok {
		return
	}

	target, err := h.Registry.Resolve(r.Context(), agent.TemplateID, req.TargetVersion, req.UseLatest)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	if req.UseQueue {
		if err := h.Executor.EnqueueApply(r.Context(), agent, target.Version); err != nil {
			respondDomainError(w, err)
			return
		}
		respondJSON(w, http.StatusAccepted, map[string]string{
			"message":        "upgrade queued",
			"agent_id":       agent.AgentID,
			"target_version": target.Version,
		})
		return
	}

	plan, err := migration.BuildPlan(agent.Version, target.Version, target.Template.Migrations)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	if req.DryRun {
		preview, err := h.Executor.DryRun(r.Context(), agent, target.Version, plan)
		if err != nil {
			respondDomainError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"dry_run":        true,
			"agent_id":       agent.AgentID,
			"from_version":   agent.Version,
			"target_version": target.Version,
			"plan":           preview.Plan,
			"diff":           preview.Diff,
			"warnings":       preview.Warnings,
		})
		return
	}

	fromVersion := agent.Version
	preview, err := h.Executor.Apply(r.Context(), agent, target.Version, plan)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"applied":        true,
		"agent_id":       agent.AgentID,
		"from_version":   fromVersion,
		"new_version":    target.Version,
		"target_version": target.Version,
		"plan":           preview.Plan,
		"diff":           preview.Diff,
		"warnings":       preview.Warnings,
	})
}

func (h *Handlers) ListAgentMigrations(w http.ResponseWriter, r *http.Request) {
	agent, ok := h.loadOwnedAgent(w, r)
	if !ok {
		return
	}

	limit := 0
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil {
			limit = n
		}
	}

	logs, err := h.Store.ListMigrationLogs(r.Context(), agent.AgentID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, logs)
}

// loadOwnedAgent loads the path agent and enforces ownership. Agents
// owned by other users are indistinguishable from missing ones.
func (h *Handlers) loadOwnedAgent(w http.ResponseWriter, r *http.Request) (*models.AgentRecord, bool) {
	agentID := chi.URLParam(r, "agentID")
	userID := middleware.GetUserID(r.Context())

	agent, err := h.Store.GetAgentInstance(r.Context(), agentID)
	if err != nil {
		respondDomainError(w, err)
		return nil, false
	}
	if agent.UserID != userID {
		respondError(w, http.StatusNotFound, (&store.ErrNotFound{Entity: "agent instance", Key: agentID}).Error())
		return nil, false
	}
	return agent, true
}

func missingRequiredVariables(declared []models.Variable, provided map[string]string) []string {
	var missing []string
	for _, v := range declared {
		if !v.Required || v.Default != "" {
			continue
		}
		if _, ok := provided[v.Name]; !ok {
			missing = append(missing, "required variable "+v.Name+" is not bound")
		}
	}
	return missing
}

// ── Error mapping ────────────────────────────────────────────

// respondDomainError maps typed domain errors to HTTP statuses.
func respondDomainError(w http.ResponseWriter, err error) {
	var (
		parseErr      *template.ParseError
		validationErr *template.ValidationError
		idemConflict  *idempotency.ConflictError
		verConflict   *registry.ConflictError
		storeConflict *store.ErrConflict
		notFound      *store.ErrNotFound
		noPath        *migration.NoPathError
		cycle         *migration.CycleError
		upstream      *runtime.UpstreamError
	)

	switch {
	case errors.As(err, &parseErr):
		respondError(w, http.StatusBadRequest, parseErr.Error())
	case errors.As(err, &validationErr):
		respondJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":  "template validation failed",
			"errors": validationErr.Errors,
		})
	case errors.As(err, &idemConflict):
		respondError(w, http.StatusConflict, idemConflict.Error())
	case errors.As(err, &verConflict):
		respondError(w, http.StatusConflict, verConflict.Error())
	case errors.As(err, &storeConflict):
		respondError(w, http.StatusConflict, storeConflict.Error())
	case errors.As(err, &notFound):
		respondError(w, http.StatusNotFound, notFound.Error())
	case errors.As(err, &noPath):
		respondError(w, http.StatusBadRequest, noPath.Error())
	case errors.As(err, &cycle):
		respondError(w, http.StatusBadRequest, cycle.Error())
	case errors.As(err, &upstream):
		respondJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error":           "runtime service error",
			"upstream_status": upstream.StatusCode,
			"upstream_body":   upstream.Body,
		})
	default:
		log.Error().Err(err).Msg("unhandled error")
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
