package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/hylla/draftwork/internal/adapters/storage/sqlite"
	"github.com/hylla/draftwork/internal/app"
	"github.com/hylla/draftwork/internal/eventbus"
)

func newTestDeps(t *testing.T) Dependencies {
	t.Helper()
	repo, err := sqlite.Open(filepath.Join(t.TempDir(), "draftwork.db"))
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	bus := eventbus.New()
	return Dependencies{
		Service: app.NewService(repo, bus, nil, nil, nil),
		Bus:     bus,
	}
}

func TestNewHandlerRequiresDependencies(t *testing.T) {
	deps := newTestDeps(t)

	if _, _, err := NewHandler(Config{}, Dependencies{Bus: deps.Bus}); err == nil {
		t.Fatal("expected error for missing service")
	}
	if _, _, err := NewHandler(Config{}, Dependencies{Service: deps.Service}); err == nil {
		t.Fatal("expected error for missing bus")
	}
	if _, _, err := NewHandler(Config{APIEndpoint: "/same", MCPEndpoint: "/same"}, deps); err == nil {
		t.Fatal("expected endpoint collision error")
	}
}

func TestNewHandlerAppliesEndpointDefaults(t *testing.T) {
	_, cfg, err := NewHandler(Config{}, newTestDeps(t))
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	if cfg.HTTPBind != defaultBindAddress {
		t.Fatalf("bind = %q", cfg.HTTPBind)
	}
	if cfg.APIEndpoint != "/api/v1" || cfg.MCPEndpoint != "/mcp" {
		t.Fatalf("endpoints = %q %q", cfg.APIEndpoint, cfg.MCPEndpoint)
	}
}

func TestHealthEndpoints(t *testing.T) {
	handler, _, err := NewHandler(Config{}, newTestDeps(t))
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	server := httptest.NewServer(handler)
	defer server.Close()

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := server.Client().Get(server.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d", path, resp.StatusCode)
		}
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	deps := newTestDeps(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Config{HTTPBind: "127.0.0.1:0"}, deps)
	}()
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}
