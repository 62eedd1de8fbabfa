// Package registry owns the template publish pipeline: parse,
// validate, gate the version against already-published ones, and
// persist the new version as a single storage operation.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog/log"

	"github.com/agentmint/agentmint/internal/archive"
	"github.com/agentmint/agentmint/internal/cache"
	"github.com/agentmint/agentmint/internal/idempotency"
	"github.com/agentmint/agentmint/internal/metrics"
	"github.com/agentmint/agentmint/internal/store"
	"github.com/agentmint/agentmint/internal/template"
	"github.com/agentmint/agentmint/pkg/models"
)

// ConflictError is returned when a publish is rejected by version
// gating: the version already exists or is older than the newest one.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict: %s", e.Reason)
}

// Registry publishes and resolves template versions.
type Registry struct {
	store    store.Store
	guard    *idempotency.Guard
	archiver archive.Archiver
	cache    cache.TemplateCache
}

func New(s store.Store, guard *idempotency.Guard, archiver archive.Archiver, c cache.TemplateCache) *Registry {
	return &Registry{store: s, guard: guard, archiver: archiver, cache: c}
}

// Assess gates a candidate version against the versions already
// published for the same template. A candidate is rejected iff it
// duplicates an existing version or is lower than the highest one.
// Stored versions that no longer parse as semver are skipped.
func Assess(next string, existing []string) (bool, string) {
	nextVer, err := semver.StrictNewVersion(next)
	if err != nil {
		return false, fmt.Sprintf("version %q is not a valid semantic version", next)
	}

	var max *semver.Version
	for _, v := range existing {
		if v == next {
			return false, fmt.Sprintf("version %s is already published", next)
		}
		ver, err := semver.StrictNewVersion(v)
		if err != nil {
			continue
		}
		if max == nil || ver.GreaterThan(max) {
			max = ver
		}
	}
	if max != nil && nextVer.LessThan(max) {
		return false, fmt.Sprintf("version %s is older than the latest published version %s", next, max)
	}
	return true, ""
}

// Publish runs the full pipeline for one raw template file. The
// idempotency key is checked before any other work; parse and
// validation failures surface as their typed errors so the API layer
// can map them.
func (r *Registry) Publish(ctx context.Context, raw, userID, idemKey string) (*models.PublishResponse, error) {
	if err := r.guard.Check(ctx, idemKey, []byte(raw)); err != nil {
		return nil, err
	}

	t, canonical, format, err := template.Parse(raw)
	if err != nil {
		metrics.PublishTotal.WithLabelValues("parse_error").Inc()
		return nil, err
	}

	result := template.Validate(t)
	if !result.Valid {
		metrics.PublishTotal.WithLabelValues("invalid").Inc()
		return nil, &template.ValidationError{Errors: result.Errors}
	}

	versions, err := r.store.ListVersions(ctx, t.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("failed to list published versions: %w", err)
	}
	existing := make([]string, len(versions))
	for i, v := range versions {
		existing[i] = v.Version
	}
	if ok, reason := Assess(t.Version, existing); !ok {
		metrics.PublishTotal.WithLabelValues("conflict").Inc()
		return nil, &ConflictError{Reason: reason}
	}

	tv := &models.TemplateVersion{
		TemplateID: t.TemplateID,
		Version:    t.Version,
		Checksum:   template.Checksum(canonical),
		Format:     format,
		RawSource:  canonical,
		Template:   *t,
		IsLatest:   true,
		CreatedBy:  userID,
		CreatedAt:  time.Now().UTC(),
	}
	if err := r.store.PublishVersion(ctx, tv); err != nil {
		// A uniqueness violation here means we lost a race with a
		// concurrent publish of the same version.
		var conflict *store.ErrConflict
		if errors.As(err, &conflict) {
			metrics.PublishTotal.WithLabelValues("conflict").Inc()
		} else {
			metrics.PublishTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	// Archive and cache warm are best effort once the row is durable.
	if r.archiver != nil {
		if _, err := r.archiver.ArchiveTemplate(ctx, tv.TemplateID, tv.Version, canonical); err != nil {
			log.Warn().Err(err).Str("template_id", tv.TemplateID).Msg("template archive failed")
		}
	}
	r.cache.Put(ctx, tv, true)

	metrics.PublishTotal.WithLabelValues("ok").Inc()
	log.Info().
		Str("template_id", tv.TemplateID).
		Str("version", tv.Version).
		Str("format", format).
		Str("user_id", userID).
		Msg("template version published")

	return &models.PublishResponse{
		TemplateID: tv.TemplateID,
		Version:    tv.Version,
		Checksum:   tv.Checksum,
		IsLatest:   true,
	}, nil
}

// Resolve returns a specific published version, or the latest when
// useLatest is set or version is empty. Reads go through the cache.
func (r *Registry) Resolve(ctx context.Context, templateID, version string, useLatest bool) (*models.TemplateVersion, error) {
	lookup := version
	if useLatest || version == "" {
		lookup = cache.LatestAlias
	}
	if tv := r.cache.Get(ctx, templateID, lookup); tv != nil {
		return tv, nil
	}

	var tv *models.TemplateVersion
	var err error
	if lookup == cache.LatestAlias {
		tv, err = r.store.GetLatestVersion(ctx, templateID)
	} else {
		tv, err = r.store.GetVersion(ctx, templateID, version)
	}
	if err != nil {
		return nil, err
	}

	r.cache.Put(ctx, tv, tv.IsLatest)
	return tv, nil
}
