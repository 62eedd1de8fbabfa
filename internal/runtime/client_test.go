package runtime_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/agentmint/agentmint/internal/runtime"
	"github.com/agentmint/agentmint/pkg/models"
)

func TestCreateAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/agents" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var cfg models.RuntimeAgentConfig
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(models.RuntimeAgent{
			ID:              "rt-abc",
			Name:            cfg.Name,
			LLMConfig:       cfg.LLMConfig,
			EmbeddingConfig: cfg.EmbeddingConfig,
		})
	}))
	defer srv.Close()

	c := runtime.NewHTTPClient(srv.URL, 5*time.Second)
	agent, err := c.Create(context.Background(), &models.RuntimeAgentConfig{
		Name:      "Support Bot",
		LLMConfig: map[string]interface{}{"model": "gpt-4o"},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if agent.ID != "rt-abc" || agent.Name != "Support Bot" {
		t.Errorf("unexpected agent: %+v", agent)
	}
}

func TestFetchAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/agents/rt-abc" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(models.RuntimeAgent{ID: "rt-abc"})
	}))
	defer srv.Close()

	c := runtime.NewHTTPClient(srv.URL, 5*time.Second)
	agent, err := c.Fetch(context.Background(), "rt-abc")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if agent.ID != "rt-abc" {
		t.Errorf("unexpected agent: %+v", agent)
	}
}

func TestUpdateAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/v1/agents/rt-abc" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var patch models.RuntimeAgentPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			t.Errorf("failed to decode patch: %v", err)
		}
		json.NewEncoder(w).Encode(models.RuntimeAgent{ID: "rt-abc", LLMConfig: patch.LLMConfig})
	}))
	defer srv.Close()

	c := runtime.NewHTTPClient(srv.URL, 5*time.Second)
	agent, err := c.Update(context.Background(), "rt-abc", &models.RuntimeAgentPatch{
		LLMConfig: map[string]interface{}{"endpoint": "http://gateway/v1/proxy/alice"},
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if agent.LLMConfig["endpoint"] != "http://gateway/v1/proxy/alice" {
		t.Errorf("unexpected agent: %+v", agent)
	}
}

func TestUpstreamErrorPassesBodyThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("runtime is draining"))
	}))
	defer srv.Close()

	c := runtime.NewHTTPClient(srv.URL, 5*time.Second)
	_, err := c.Fetch(context.Background(), "rt-abc")

	var upstream *runtime.UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected *UpstreamError, got %v", err)
	}
	if upstream.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", upstream.StatusCode)
	}
	if upstream.Body != "runtime is draining" {
		t.Errorf("body must pass through verbatim, got %q", upstream.Body)
	}
}
