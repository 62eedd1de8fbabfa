// Package cache provides a read-through cache for published template
// versions. Caching is best effort: every cache failure is logged and
// swallowed, and the store stays the source of truth.
package cache

import (
	"context"

	"github.com/agentmint/agentmint/pkg/models"
)

// LatestAlias is the version alias under which the newest published
// version of a template is cached.
const LatestAlias = "latest"

// TemplateCache caches template versions by (template_id, version).
type TemplateCache interface {
	// Put stores a version; when latest is true the latest alias is
	// updated as well.
	Put(ctx context.Context, tv *models.TemplateVersion, latest bool)

	// Get returns the cached version or nil on a miss. The version may
	// be LatestAlias.
	Get(ctx context.Context, templateID, version string) *models.TemplateVersion
}

// NoopCache disables caching.
type NoopCache struct{}

func (NoopCache) Put(_ context.Context, _ *models.TemplateVersion, _ bool) {}

func (NoopCache) Get(_ context.Context, _, _ string) *models.TemplateVersion { return nil }
