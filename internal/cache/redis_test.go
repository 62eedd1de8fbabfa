package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/agentmint/agentmint/internal/cache"
	"github.com/agentmint/agentmint/pkg/models"
)

func newTestCache(t *testing.T) *cache.RedisCache {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCache(context.Background(), "redis://"+mr.Addr(), time.Minute)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestPutAndGet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	tv := &models.TemplateVersion{
		TemplateID: "support-bot",
		Version:    "1.0.0",
		Checksum:   "abc",
		Template:   models.Template{TemplateID: "support-bot", Version: "1.0.0"},
	}
	c.Put(ctx, tv, false)

	got := c.Get(ctx, "support-bot", "1.0.0")
	if got == nil {
		t.Fatal("expected cache hit")
	}
	if got.Checksum != "abc" || got.Template.TemplateID != "support-bot" {
		t.Errorf("unexpected cached value: %+v", got)
	}
}

func TestLatestAlias(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	tv := &models.TemplateVersion{TemplateID: "support-bot", Version: "1.1.0", IsLatest: true}
	c.Put(ctx, tv, true)

	got := c.Get(ctx, "support-bot", cache.LatestAlias)
	if got == nil {
		t.Fatal("expected latest alias hit")
	}
	if got.Version != "1.1.0" {
		t.Errorf("expected 1.1.0 under latest alias, got %s", got.Version)
	}
}

func TestGetMiss(t *testing.T) {
	c := newTestCache(t)
	if got := c.Get(context.Background(), "support-bot", "9.9.9"); got != nil {
		t.Errorf("expected miss, got %+v", got)
	}
}
