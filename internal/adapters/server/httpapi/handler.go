// Package httpapi provides the REST HTTP adapter mounted under `/api/v1`.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/hylla/draftwork/internal/adapters/server/common"
	"github.com/hylla/draftwork/internal/app"
	"github.com/hylla/draftwork/internal/domain"
	"github.com/hylla/draftwork/internal/eventbus"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// streamHeartbeat paces SSE keep-alive comments so idle proxies hold the
// connection open.
const streamHeartbeat = 15 * time.Second

// streamBuffer bounds the per-subscriber event queue. The bus must never
// block on a slow client; overflow drops the event and the client resyncs.
const streamBuffer = 64

// Handler serves the versioned API subrouter.
type Handler struct {
	service *app.Service
	bus     *eventbus.Bus
}

// NewHandler constructs the HTTP API adapter.
func NewHandler(service *app.Service, bus *eventbus.Bus) *Handler {
	return &Handler{service: service, bus: bus}
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := normalizePath(r.URL.Path)
	segments := strings.Split(path, "/")

	switch {
	case path == "users":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleListUsers(w, r)
	case path == "items":
		switch r.Method {
		case http.MethodGet:
			h.handleListItems(w, r)
		case http.MethodPost:
			h.handleCreateItem(w, r)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	case len(segments) >= 2 && segments[0] == "items":
		itemID, err := strconv.ParseInt(segments[1], 10, 64)
		if err != nil || itemID <= 0 {
			writeNotFound(w)
			return
		}
		h.routeItem(w, r, itemID, segments[2:])
	default:
		writeNotFound(w)
	}
}

// routeItem dispatches `/items/{id}` and its subresources.
func (h *Handler) routeItem(w http.ResponseWriter, r *http.Request, itemID int64, rest []string) {
	switch {
	case len(rest) == 0:
		switch r.Method {
		case http.MethodGet:
			h.handleGetItem(w, r, itemID)
		case http.MethodPatch:
			h.handleUpdateItem(w, r, itemID)
		case http.MethodDelete:
			h.handleDeleteItem(w, r, itemID)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPatch, http.MethodDelete)
		}
	case len(rest) == 1 && rest[0] == "events":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleStreamEvents(w, r, itemID)
	case len(rest) == 1 && rest[0] == "assign":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleAssign(w, r, itemID)
	case len(rest) == 1 && rest[0] == "self_assign":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleClaim(w, r, itemID)
	case len(rest) == 1 && rest[0] == "comments":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleAddComment(w, r, itemID)
	case len(rest) >= 1 && rest[0] == "blockers":
		h.routeBlockers(w, r, itemID, rest[1:])
	default:
		writeNotFound(w)
	}
}

// routeBlockers dispatches `/items/{id}/blockers` and below.
func (h *Handler) routeBlockers(w http.ResponseWriter, r *http.Request, itemID int64, rest []string) {
	if len(rest) == 0 {
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleAddBlocker(w, r, itemID)
		return
	}

	blockerID, err := strconv.ParseInt(rest[0], 10, 64)
	if err != nil || blockerID <= 0 {
		writeNotFound(w)
		return
	}
	rest = rest[1:]

	switch {
	case len(rest) == 0:
		switch r.Method {
		case http.MethodPatch:
			h.handleUpdateBlocker(w, r, itemID, blockerID)
		case http.MethodDelete:
			h.handleDeleteBlocker(w, r, itemID, blockerID)
		default:
			writeMethodNotAllowed(w, http.MethodPatch, http.MethodDelete)
		}
	case len(rest) == 1 && rest[0] == "messages":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleAddBlockerMessage(w, r, itemID, blockerID)
	case len(rest) == 3 && rest[0] == "messages" && rest[2] == "solution":
		messageID, err := strconv.ParseInt(rest[1], 10, 64)
		if err != nil || messageID <= 0 {
			writeNotFound(w)
			return
		}
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleMarkSolution(w, r, itemID, blockerID, messageID)
	default:
		writeNotFound(w)
	}
}

// actor resolves the acting user from the request header.
func (h *Handler) actor(r *http.Request) (domain.UserRef, error) {
	return common.ResolveActor(r.Context(), h.service, r.Header.Get(common.ActorHeader))
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	directory, err := h.service.Directory(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": directory})
}

func (h *Handler) handleListItems(w http.ResponseWriter, r *http.Request) {
	if _, err := h.actor(r); err != nil {
		writeErrorFrom(w, err)
		return
	}
	items, err := h.service.ListItems(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// createItemRequest is the POST /items payload.
type createItemRequest struct {
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	BriefURL     string  `json:"brief_url"`
	AssetURL     string  `json:"asset_url"`
	Price        float64 `json:"price"`
	ReviewerName string  `json:"reviewer_name"`
	FlowPayload  string  `json:"flow_payload"`
}

func (h *Handler) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actor(r)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	var req createItemRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	item, err := h.service.CreateItem(r.Context(), app.CreateItemInput{
		Name:         req.Name,
		Description:  req.Description,
		BriefURL:     req.BriefURL,
		AssetURL:     req.AssetURL,
		Price:        req.Price,
		ReviewerName: req.ReviewerName,
		FlowPayload:  req.FlowPayload,
		Actor:        actor,
	})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *Handler) handleGetItem(w http.ResponseWriter, r *http.Request, itemID int64) {
	if _, err := h.actor(r); err != nil {
		writeErrorFrom(w, err)
		return
	}
	item, err := h.service.GetItem(r.Context(), itemID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// updateItemRequest is the PATCH /items/{id} payload. Absent fields stay
// untouched; a status field routes through the transition policy.
type updateItemRequest struct {
	Name         *string  `json:"name"`
	Description  *string  `json:"description"`
	BriefURL     *string  `json:"brief_url"`
	AssetURL     *string  `json:"asset_url"`
	Price        *float64 `json:"price"`
	ReviewerName *string  `json:"reviewer_name"`
	FlowPayload  *string  `json:"flow_payload"`
	Status       *string  `json:"status"`
}

func (h *Handler) handleUpdateItem(w http.ResponseWriter, r *http.Request, itemID int64) {
	actor, err := h.actor(r)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	var req updateItemRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	patch := app.ItemPatch{
		Name:         req.Name,
		Description:  req.Description,
		BriefURL:     req.BriefURL,
		AssetURL:     req.AssetURL,
		Price:        req.Price,
		ReviewerName: req.ReviewerName,
		FlowPayload:  req.FlowPayload,
	}
	if req.Status != nil {
		status := domain.Status(*req.Status)
		patch.Status = &status
	}
	item, err := h.service.UpdateItem(r.Context(), itemID, patch, actor)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handler) handleDeleteItem(w http.ResponseWriter, r *http.Request, itemID int64) {
	actor, err := h.actor(r)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	if err := h.service.DeleteItem(r.Context(), itemID, actor); err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// assignRequest is the POST /items/{id}/assign payload.
type assignRequest struct {
	UserID string `json:"user_id"`
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request, itemID int64) {
	actor, err := h.actor(r)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	var req assignRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	item, err := h.service.Assign(r.Context(), itemID, req.UserID, actor)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handler) handleClaim(w http.ResponseWriter, r *http.Request, itemID int64) {
	actor, err := h.actor(r)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	item, err := h.service.SelfAssign(r.Context(), itemID, actor)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// commentRequest is the POST comments/messages payload.
type commentRequest struct {
	Body string `json:"body"`
}

func (h *Handler) handleAddComment(w http.ResponseWriter, r *http.Request, itemID int64) {
	actor, err := h.actor(r)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	var req commentRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	comment, err := h.service.AddComment(r.Context(), itemID, req.Body, actor)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

// blockerRequest is the POST /items/{id}/blockers payload.
type blockerRequest struct {
	Type        string `json:"type"`
	Priority    string `json:"priority"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (h *Handler) handleAddBlocker(w http.ResponseWriter, r *http.Request, itemID int64) {
	actor, err := h.actor(r)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	var req blockerRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	blocker, err := h.service.AddBlocker(r.Context(), itemID, domain.BlockerInput{
		Type:        domain.BlockerType(req.Type),
		Priority:    domain.BlockerPriority(req.Priority),
		Title:       req.Title,
		Description: req.Description,
	}, actor)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, blocker)
}

// updateBlockerRequest is the PATCH blocker payload.
type updateBlockerRequest struct {
	Status          string `json:"status"`
	ResolutionNotes string `json:"resolution_notes"`
}

func (h *Handler) handleUpdateBlocker(w http.ResponseWriter, r *http.Request, itemID, blockerID int64) {
	actor, err := h.actor(r)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	var req updateBlockerRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	blocker, err := h.service.UpdateBlockerStatus(r.Context(), itemID, blockerID, domain.BlockerStatus(req.Status), req.ResolutionNotes, actor)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, blocker)
}

func (h *Handler) handleDeleteBlocker(w http.ResponseWriter, r *http.Request, itemID, blockerID int64) {
	actor, err := h.actor(r)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	if err := h.service.DeleteBlocker(r.Context(), itemID, blockerID, actor); err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAddBlockerMessage(w http.ResponseWriter, r *http.Request, itemID, blockerID int64) {
	actor, err := h.actor(r)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	var req commentRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	message, err := h.service.AddBlockerMessage(r.Context(), itemID, blockerID, req.Body, actor)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, message)
}

func (h *Handler) handleMarkSolution(w http.ResponseWriter, r *http.Request, itemID, blockerID, messageID int64) {
	actor, err := h.actor(r)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	if err := h.service.MarkBlockerSolution(r.Context(), itemID, blockerID, messageID, actor); err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStreamEvents serves the per-item SSE stream. Clients snapshot first
// and resync after any gap, so the stream only promises at-least-once from
// the moment the subscription is live.
func (h *Handler) handleStreamEvents(w http.ResponseWriter, r *http.Request, itemID int64) {
	if _, err := h.actor(r); err != nil {
		writeErrorFrom(w, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErrorFrom(w, errors.New("streaming unsupported by connection"))
		return
	}
	if _, err := h.service.GetItem(r.Context(), itemID); err != nil {
		writeErrorFrom(w, err)
		return
	}

	subscriberID := uuid.NewString()
	events := make(chan domain.Event, streamBuffer)
	unsubscribe := h.bus.Subscribe(itemID, func(event domain.Event) {
		select {
		case events <- event:
		default:
			// Slow consumer; dropping is safe because reconnect resyncs.
			log.Warn("dropping stream event for slow subscriber", "item_id", itemID, "subscriber_id", subscriberID)
		}
	})
	defer unsubscribe()
	log.Debug("stream subscriber attached", "item_id", itemID, "subscriber_id", subscriberID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case event := <-events:
			data, err := domain.EncodeEvent(event)
			if err != nil {
				log.Error("encoding stream event", "item_id", itemID, "error", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
			if _, deleted := event.(domain.ItemDeleted); deleted {
				return
			}
		}
	}
}

// normalizePath canonicalizes one request path for route matching.
func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.Trim(path, "/")
	return path
}

// writeErrorFrom maps service errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	status, apiErr := common.Classify(err)
	writeJSONError(w, status, apiErr)
}

// writeNotFound writes the structured 404 response.
func writeNotFound(w http.ResponseWriter) {
	writeJSONError(w, http.StatusNotFound, common.APIError{
		Code:    common.CodeNotFound,
		Message: "endpoint not found",
	})
}

// writeMethodNotAllowed writes a structured 405 response with `Allow` headers.
func writeMethodNotAllowed(w http.ResponseWriter, methods ...string) {
	if len(methods) > 0 {
		w.Header().Set("Allow", strings.Join(methods, ", "))
	}
	writeJSONError(w, http.StatusMethodNotAllowed, common.APIError{
		Code:    "method_not_allowed",
		Message: "method not allowed",
	})
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr common.APIError) {
	writeJSON(w, statusCode, common.ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one required JSON request body with strict shape checks.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", errors.Join(domain.ErrInvalidBody, err))
	}
	// Reject trailing payloads so malformed JSON bodies fail closed.
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", domain.ErrInvalidBody)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	default:
		return nil
	}
}
