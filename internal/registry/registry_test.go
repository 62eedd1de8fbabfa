package registry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/agentmint/agentmint/internal/cache"
	"github.com/agentmint/agentmint/internal/idempotency"
	"github.com/agentmint/agentmint/internal/metrics"
	"github.com/agentmint/agentmint/internal/registry"
	"github.com/agentmint/agentmint/internal/store"
	"github.com/agentmint/agentmint/internal/template"
	"github.com/agentmint/agentmint/pkg/models"
)

func newTestRegistry(t *testing.T) (*registry.Registry, store.Store) {
	t.Helper()
	s := store.NewMemoryStore()
	guard := idempotency.NewGuard(s)
	return registry.New(s, guard, nil, cache.NoopCache{}), s
}

func templateSource(version string) string {
	return `{
		"schema_version": "1",
		"template_id": "support-bot",
		"name": "Support Bot",
		"version": "` + version + `",
		"min_runtime_version": "0.5.0",
		"persona": "You are a helpful support agent.",
		"engine": {"model": "gpt-4o", "embedding_model": "text-embedding-3-small"}
	}`
}

func TestAssess(t *testing.T) {
	tests := []struct {
		name     string
		next     string
		existing []string
		allow    bool
	}{
		{"first version", "1.0.0", nil, true},
		{"newer than max", "1.1.0", []string{"1.0.0"}, true},
		{"duplicate", "1.0.0", []string{"1.0.0"}, false},
		{"older than max", "1.0.0", []string{"1.1.0"}, false},
		{"older than max among many", "1.2.0", []string{"1.0.0", "2.0.0"}, false},
		{"not semver", "latest", nil, false},
		{"skips unparseable existing", "1.1.0", []string{"garbage", "1.0.0"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := registry.Assess(tt.next, tt.existing)
			if ok != tt.allow {
				t.Errorf("Assess(%q, %v) = %v (%s), expected %v", tt.next, tt.existing, ok, reason, tt.allow)
			}
		})
	}
}

func TestPublishThenUpgradeLatest(t *testing.T) {
	reg, s := newTestRegistry(t)
	ctx := context.Background()

	resp, err := reg.Publish(ctx, templateSource("1.0.0"), "alice", "")
	if err != nil {
		t.Fatalf("publish 1.0.0 failed: %v", err)
	}
	if !resp.IsLatest || resp.Version != "1.0.0" {
		t.Errorf("unexpected publish response: %+v", resp)
	}

	if _, err := reg.Publish(ctx, templateSource("1.1.0"), "alice", ""); err != nil {
		t.Fatalf("publish 1.1.0 failed: %v", err)
	}

	latest, err := s.GetLatestVersion(ctx, "support-bot")
	if err != nil {
		t.Fatalf("GetLatestVersion failed: %v", err)
	}
	if latest.Version != "1.1.0" {
		t.Errorf("expected latest 1.1.0, got %s", latest.Version)
	}

	versions, err := s.ListVersions(ctx, "support-bot")
	if err != nil {
		t.Fatalf("ListVersions failed: %v", err)
	}
	latestCount := 0
	for _, v := range versions {
		if v.IsLatest {
			latestCount++
		}
	}
	if latestCount != 1 {
		t.Errorf("expected exactly one latest version, got %d", latestCount)
	}
}

func TestPublishRejectsDuplicateVersion(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	if _, err := reg.Publish(ctx, templateSource("1.0.0"), "alice", ""); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	_, err := reg.Publish(ctx, templateSource("1.0.0"), "alice", "")
	var conflict *registry.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected *ConflictError, got %v", err)
	}
}

func TestPublishRejectsOlderVersion(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	if _, err := reg.Publish(ctx, templateSource("2.0.0"), "alice", ""); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	_, err := reg.Publish(ctx, templateSource("1.0.0"), "alice", "")
	var conflict *registry.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected *ConflictError, got %v", err)
	}
}

// racingStore simulates losing a publish race: version gating saw no
// existing versions, but the insert hits the uniqueness constraint.
type racingStore struct {
	store.Store
}

func (r *racingStore) PublishVersion(_ context.Context, tv *models.TemplateVersion) error {
	return &store.ErrConflict{Entity: "template version", Key: tv.TemplateID + "@" + tv.Version}
}

func TestPublishCountsUniquenessRaceAsConflict(t *testing.T) {
	s := &racingStore{Store: store.NewMemoryStore()}
	guard := idempotency.NewGuard(s)
	reg := registry.New(s, guard, nil, cache.NoopCache{})

	before := testutil.ToFloat64(metrics.PublishTotal.WithLabelValues("conflict"))
	_, err := reg.Publish(context.Background(), templateSource("1.0.0"), "alice", "")
	var conflict *store.ErrConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("expected *store.ErrConflict, got %v", err)
	}
	after := testutil.ToFloat64(metrics.PublishTotal.WithLabelValues("conflict"))
	if after != before+1 {
		t.Errorf("expected the race to count as a conflict, delta %v", after-before)
	}
}

func TestPublishRejectsInvalidTemplate(t *testing.T) {
	reg, _ := newTestRegistry(t)
	_, err := reg.Publish(context.Background(), `{"template_id": "x"}`, "alice", "")
	var validation *template.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if len(validation.Errors) == 0 {
		t.Error("expected accumulated violations")
	}
}

func TestPublishHonorsIdempotencyKey(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	src := templateSource("1.0.0")
	if _, err := reg.Publish(ctx, src, "alice", "idem-1"); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	_, err := reg.Publish(ctx, src, "alice", "idem-1")
	var conflict *idempotency.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected *idempotency.ConflictError on replay, got %v", err)
	}
}

func TestResolveLatestAndPinned(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	if _, err := reg.Publish(ctx, templateSource("1.0.0"), "alice", ""); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if _, err := reg.Publish(ctx, templateSource("1.1.0"), "alice", ""); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	pinned, err := reg.Resolve(ctx, "support-bot", "1.0.0", false)
	if err != nil {
		t.Fatalf("resolve pinned failed: %v", err)
	}
	if pinned.Version != "1.0.0" {
		t.Errorf("expected 1.0.0, got %s", pinned.Version)
	}

	latest, err := reg.Resolve(ctx, "support-bot", "", true)
	if err != nil {
		t.Fatalf("resolve latest failed: %v", err)
	}
	if latest.Version != "1.1.0" {
		t.Errorf("expected 1.1.0, got %s", latest.Version)
	}

	_, err = reg.Resolve(ctx, "support-bot", "9.9.9", false)
	var notFound *store.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected *ErrNotFound, got %v", err)
	}
}
