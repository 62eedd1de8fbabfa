package middleware_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/agentmint/agentmint/internal/api/middleware"
)

func TestIdentityResolution(t *testing.T) {
	tests := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{"from header", "alice", "", "alice"},
		{"from query", "", "bob", "bob"},
		{"header wins over query", "alice", "bob", "alice"},
		{"fallback", "", "", "anonymous"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := middleware.Identity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = middleware.GetUserID(r.Context())
			}))

			url := "/api/v1/agents"
			if tt.query != "" {
				url += "?user_id=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, url, nil)
			if tt.header != "" {
				req.Header.Set("X-User-Id", tt.header)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)

			if got != tt.want {
				t.Errorf("expected user %q, got %q", tt.want, got)
			}
		})
	}
}

func TestLoggerRecordsResolvedUser(t *testing.T) {
	var buf bytes.Buffer
	orig := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = orig }()

	h := middleware.Identity(middleware.Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/agents", nil)
	req.Header.Set("X-User-Id", "alice")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	line := buf.String()
	if !strings.Contains(line, `"user_id":"alice"`) {
		t.Errorf("access line must carry the resolved user, got %s", line)
	}
	if !strings.Contains(line, `"status":418`) {
		t.Errorf("access line must carry the response status, got %s", line)
	}
}
