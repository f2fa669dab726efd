// Package mcpapi provides a stateless MCP streamable-HTTP adapter exposing
// the work-item pipeline as tools.
package mcpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/hylla/draftwork/internal/adapters/server/common"
	"github.com/hylla/draftwork/internal/app"
	"github.com/hylla/draftwork/internal/domain"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Config captures MCP transport configuration.
type Config struct {
	ServerName    string
	ServerVersion string
	EndpointPath  string
}

// Handler wraps one stateless MCP streamable HTTP handler.
type Handler struct {
	httpHandler http.Handler
}

// NewHandler builds the MCP adapter over the work-item service.
func NewHandler(cfg Config, service *app.Service) (*Handler, error) {
	if service == nil {
		return nil, fmt.Errorf("work item service is required")
	}
	cfg = normalizeConfig(cfg)

	mcpSrv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	registerTools(mcpSrv, &tools{service: service})

	streamable := mcpserver.NewStreamableHTTPServer(
		mcpSrv,
		mcpserver.WithEndpointPath(cfg.EndpointPath),
		mcpserver.WithStateLess(true),
	)
	return &Handler{httpHandler: streamable}, nil
}

// ServeHTTP handles one MCP streamable HTTP request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.httpHandler == nil {
		http.Error(w, "mcp handler unavailable", http.StatusServiceUnavailable)
		return
	}
	h.httpHandler.ServeHTTP(w, r)
}

// normalizeConfig applies deterministic defaults to MCP adapter config.
func normalizeConfig(cfg Config) Config {
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "draftwork"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	cfg.EndpointPath = strings.TrimSpace(cfg.EndpointPath)
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	cfg.EndpointPath = "/" + strings.Trim(cfg.EndpointPath, "/")
	return cfg
}

// tools carries the service dependency shared by all tool handlers.
type tools struct {
	service *app.Service
}

// registerTools wires the pipeline tools onto the MCP server.
func registerTools(srv *mcpserver.MCPServer, t *tools) {
	srv.AddTool(
		mcp.NewTool(
			"draftwork.get_item",
			mcp.WithDescription("Return one work item with its comments, activity ledger, and blockers."),
			mcp.WithString("actor_id", mcp.Required(), mcp.Description("Acting user id")),
			mcp.WithNumber("item_id", mcp.Required(), mcp.Description("Work item id")),
		),
		t.handleGetItem,
	)
	srv.AddTool(
		mcp.NewTool(
			"draftwork.list_items",
			mcp.WithDescription("List all work items, newest first."),
			mcp.WithString("actor_id", mcp.Required(), mcp.Description("Acting user id")),
			mcp.WithString("status", mcp.Description("Optional status filter")),
		),
		t.handleListItems,
	)
	srv.AddTool(
		mcp.NewTool(
			"draftwork.update_status",
			mcp.WithDescription("Move one work item to a new pipeline status, subject to the role transition policy."),
			mcp.WithString("actor_id", mcp.Required(), mcp.Description("Acting user id")),
			mcp.WithNumber("item_id", mcp.Required(), mcp.Description("Work item id")),
			mcp.WithString("status", mcp.Required(), mcp.Description("Target status"),
				mcp.Enum("new", "assigned", "in_progress", "submitted", "needs_fixes", "reviewed", "published", "archived")),
		),
		t.handleUpdateStatus,
	)
	srv.AddTool(
		mcp.NewTool(
			"draftwork.add_comment",
			mcp.WithDescription("Append one comment to a work item. @handle mentions notify directory users."),
			mcp.WithString("actor_id", mcp.Required(), mcp.Description("Acting user id")),
			mcp.WithNumber("item_id", mcp.Required(), mcp.Description("Work item id")),
			mcp.WithString("body", mcp.Required(), mcp.Description("Comment body")),
		),
		t.handleAddComment,
	)
}

// actor resolves the acting user named by the request.
func (t *tools) actor(ctx context.Context, req mcp.CallToolRequest) (domain.UserRef, error) {
	actorID, err := req.RequireString("actor_id")
	if err != nil {
		return domain.UserRef{}, err
	}
	return common.ResolveActor(ctx, t.service, actorID)
}

func (t *tools) handleGetItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, err := t.actor(ctx, req); err != nil {
		return toolResultFromError(err), nil
	}
	itemID, err := req.RequireInt("item_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	item, err := t.service.GetItem(ctx, int64(itemID))
	if err != nil {
		return toolResultFromError(err), nil
	}
	result, err := mcp.NewToolResultJSON(item)
	if err != nil {
		return nil, fmt.Errorf("encode get_item result: %w", err)
	}
	return result, nil
}

func (t *tools) handleListItems(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, err := t.actor(ctx, req); err != nil {
		return toolResultFromError(err), nil
	}
	items, err := t.service.ListItems(ctx)
	if err != nil {
		return toolResultFromError(err), nil
	}
	if filter := domain.NormalizeStatus(domain.Status(req.GetString("status", ""))); filter != "" {
		if !domain.IsValidStatus(filter) {
			return toolResultFromError(domain.ErrInvalidStatus), nil
		}
		filtered := items[:0]
		for _, item := range items {
			if item.Status == filter {
				filtered = append(filtered, item)
			}
		}
		items = filtered
	}
	result, err := mcp.NewToolResultJSON(map[string]any{"items": items})
	if err != nil {
		return nil, fmt.Errorf("encode list_items result: %w", err)
	}
	return result, nil
}

func (t *tools) handleUpdateStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actor, err := t.actor(ctx, req)
	if err != nil {
		return toolResultFromError(err), nil
	}
	itemID, err := req.RequireInt("item_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	statusRaw, err := req.RequireString("status")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	status := domain.Status(statusRaw)
	item, err := t.service.UpdateItem(ctx, int64(itemID), app.ItemPatch{Status: &status}, actor)
	if err != nil {
		return toolResultFromError(err), nil
	}
	result, err := mcp.NewToolResultJSON(item)
	if err != nil {
		return nil, fmt.Errorf("encode update_status result: %w", err)
	}
	return result, nil
}

func (t *tools) handleAddComment(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actor, err := t.actor(ctx, req)
	if err != nil {
		return toolResultFromError(err), nil
	}
	itemID, err := req.RequireInt("item_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	body, err := req.RequireString("body")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	comment, err := t.service.AddComment(ctx, int64(itemID), body, actor)
	if err != nil {
		return toolResultFromError(err), nil
	}
	result, err := mcp.NewToolResultJSON(comment)
	if err != nil {
		return nil, fmt.Errorf("encode add_comment result: %w", err)
	}
	return result, nil
}

// toolResultFromError maps service errors into MCP-visible tool errors with
// the same stable codes the REST surface uses.
func toolResultFromError(err error) *mcp.CallToolResult {
	_, apiErr := common.Classify(err)
	return mcp.NewToolResultError(apiErr.Code + ": " + apiErr.Message)
}
