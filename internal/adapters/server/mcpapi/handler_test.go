package mcpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hylla/draftwork/internal/adapters/storage/sqlite"
	"github.com/hylla/draftwork/internal/app"
	"github.com/hylla/draftwork/internal/domain"
	"github.com/hylla/draftwork/internal/eventbus"
	"github.com/mark3labs/mcp-go/mcp"
)

var (
	mcpAdmin   = domain.UserRef{ID: "u-admin", Handle: "ana", DisplayName: "Ana Duarte", Role: domain.RoleAdmin}
	mcpCreator = domain.UserRef{ID: "u-bob", Handle: "bob", DisplayName: "Bob Kovac", Role: domain.RoleCreator}
)

func newTestTools(t *testing.T) (*tools, *app.Service) {
	t.Helper()
	repo, err := sqlite.Open(filepath.Join(t.TempDir(), "draftwork.db"))
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	for idx, user := range []domain.UserRef{mcpAdmin, mcpCreator} {
		if err := repo.UpsertUser(context.Background(), user, idx); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}
	service := app.NewService(repo, eventbus.New(), nil, nil, nil)
	return &tools{service: service}, service
}

func toolRequest(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// callToolResultText decodes the first textual content block from a CallToolResult.
func callToolResultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil {
		t.Fatalf("result = nil, want non-nil")
	}
	if len(result.Content) == 0 {
		t.Fatalf("result content is empty")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content[0] has unexpected type %T", result.Content[0])
	}
	return text.Text
}

func mustCreateItem(t *testing.T, service *app.Service, name string) domain.WorkItem {
	t.Helper()
	item, err := service.CreateItem(context.Background(), app.CreateItemInput{Name: name, Actor: mcpAdmin})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	return item
}

func TestGetItemTool(t *testing.T) {
	tls, service := newTestTools(t)
	item := mustCreateItem(t, service, "Banner")

	result, err := tls.handleGetItem(context.Background(), toolRequest(map[string]any{
		"actor_id": mcpAdmin.ID,
		"item_id":  float64(item.ID),
	}))
	if err != nil {
		t.Fatalf("handleGetItem() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", callToolResultText(t, result))
	}

	var decoded domain.WorkItem
	if err := json.Unmarshal([]byte(callToolResultText(t, result)), &decoded); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if decoded.ID != item.ID || decoded.Name != "Banner" {
		t.Fatalf("decoded item: %+v", decoded)
	}
}

func TestGetItemToolNotFound(t *testing.T) {
	tls, _ := newTestTools(t)

	result, err := tls.handleGetItem(context.Background(), toolRequest(map[string]any{
		"actor_id": mcpAdmin.ID,
		"item_id":  float64(99),
	}))
	if err != nil {
		t.Fatalf("handleGetItem() error = %v", err)
	}
	if !result.IsError {
		t.Fatalf("IsError = false, want true")
	}
	if text := callToolResultText(t, result); !strings.HasPrefix(text, "not_found:") {
		t.Fatalf("error text: %s", text)
	}
}

func TestListItemsToolFiltersByStatus(t *testing.T) {
	tls, service := newTestTools(t)
	mustCreateItem(t, service, "First")
	second := mustCreateItem(t, service, "Second")
	if _, err := service.Assign(context.Background(), second.ID, mcpCreator.ID, mcpAdmin); err != nil {
		t.Fatalf("assign: %v", err)
	}

	result, err := tls.handleListItems(context.Background(), toolRequest(map[string]any{
		"actor_id": mcpAdmin.ID,
		"status":   "assigned",
	}))
	if err != nil {
		t.Fatalf("handleListItems() error = %v", err)
	}
	var decoded struct {
		Items []domain.WorkItem `json:"items"`
	}
	if err := json.Unmarshal([]byte(callToolResultText(t, result)), &decoded); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(decoded.Items) != 1 || decoded.Items[0].Name != "Second" {
		t.Fatalf("filtered items: %+v", decoded.Items)
	}
}

func TestUpdateStatusToolEnforcesPolicy(t *testing.T) {
	tls, service := newTestTools(t)
	item := mustCreateItem(t, service, "Banner")

	result, err := tls.handleUpdateStatus(context.Background(), toolRequest(map[string]any{
		"actor_id": mcpAdmin.ID,
		"item_id":  float64(item.ID),
		"status":   "published",
	}))
	if err != nil {
		t.Fatalf("handleUpdateStatus() error = %v", err)
	}
	if !result.IsError {
		t.Fatalf("IsError = false, want true")
	}
	if text := callToolResultText(t, result); !strings.HasPrefix(text, "invalid_transition:") {
		t.Fatalf("error text: %s", text)
	}

	result, err = tls.handleUpdateStatus(context.Background(), toolRequest(map[string]any{
		"actor_id": mcpAdmin.ID,
		"item_id":  float64(item.ID),
		"status":   "assigned",
	}))
	if err != nil {
		t.Fatalf("handleUpdateStatus() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", callToolResultText(t, result))
	}
}

func TestAddCommentTool(t *testing.T) {
	tls, service := newTestTools(t)
	item := mustCreateItem(t, service, "Banner")

	result, err := tls.handleAddComment(context.Background(), toolRequest(map[string]any{
		"actor_id": mcpCreator.ID,
		"item_id":  float64(item.ID),
		"body":     "ready for review @ana",
	}))
	if err != nil {
		t.Fatalf("handleAddComment() error = %v", err)
	}
	var decoded domain.Comment
	if err := json.Unmarshal([]byte(callToolResultText(t, result)), &decoded); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if decoded.ID != 1 || decoded.Author.Handle != "bob" {
		t.Fatalf("comment: %+v", decoded)
	}
}

func TestToolRejectsUnknownActor(t *testing.T) {
	tls, _ := newTestTools(t)
	result, err := tls.handleListItems(context.Background(), toolRequest(map[string]any{
		"actor_id": "u-ghost",
	}))
	if err != nil {
		t.Fatalf("handleListItems() error = %v", err)
	}
	if !result.IsError {
		t.Fatalf("IsError = false, want true")
	}
}

// TestHandlerUsesStatelessTransport verifies MCP transport does not issue session ids.
func TestHandlerUsesStatelessTransport(t *testing.T) {
	_, service := newTestTools(t)
	handler, err := NewHandler(Config{}, service)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}

	server := httptest.NewServer(handler)
	defer server.Close()

	payload, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "initialize",
		"params": map[string]any{
			"protocolVersion": mcp.LATEST_PROTOCOL_VERSION,
			"clientInfo": map[string]any{
				"name":    "draftwork-test",
				"version": "1.0.0",
			},
		},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, server.URL+"/mcp", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")

	resp, err := server.Client().Do(req)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if sessionID := resp.Header.Get("Mcp-Session-Id"); sessionID != "" {
		t.Fatalf("session id issued on stateless transport: %q", sessionID)
	}
}
