package sync

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hylla/draftwork/internal/domain"
)

// streamRetryDelay paces reconnection attempts after a dropped stream.
const streamRetryDelay = 2 * time.Second

// Client talks to the server's item API: snapshot fetches over REST and live
// events over the per-item SSE stream.
type Client struct {
	baseURL string
	actorID string
	httpc   *http.Client
}

// NewClient creates an API client. A nil http.Client falls back to a default
// with a sane snapshot timeout; the stream request manages its own lifetime
// through the context.
func NewClient(baseURL, actorID string, httpc *http.Client) *Client {
	if httpc == nil {
		httpc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		actorID: actorID,
		httpc:   httpc,
	}
}

// FetchItem loads one item snapshot. A 404 maps to domain.ErrNotFound.
func (c *Client) FetchItem(ctx context.Context, itemID int64) (domain.WorkItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/api/v1/items/%d", c.baseURL, itemID), nil)
	if err != nil {
		return domain.WorkItem{}, fmt.Errorf("fetch item: %w", err)
	}
	req.Header.Set("X-Actor-ID", c.actorID)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return domain.WorkItem{}, fmt.Errorf("fetch item: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return domain.WorkItem{}, fmt.Errorf("fetch item %d: %w", itemID, domain.ErrNotFound)
	default:
		return domain.WorkItem{}, fmt.Errorf("fetch item %d: unexpected status %s", itemID, resp.Status)
	}

	var item domain.WorkItem
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return domain.WorkItem{}, fmt.Errorf("fetch item %d: decode: %w", itemID, err)
	}
	return item, nil
}

// StreamEvents subscribes to one item's SSE stream and hands each decoded
// event to the handler. Blocks until the context is cancelled or the stream
// drops; malformed frames are dropped and logged, never fatal to the stream.
func (c *Client) StreamEvents(ctx context.Context, itemID int64, handler func(domain.Event)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/api/v1/items/%d/events", c.baseURL, itemID), nil)
	if err != nil {
		return fmt.Errorf("stream events: %w", err)
	}
	req.Header.Set("X-Actor-ID", c.actorID)
	req.Header.Set("Accept", "text/event-stream")

	// The snapshot client enforces a request timeout; the stream must live
	// until cancelled, so it goes through a transport-only client.
	streamClient := &http.Client{Transport: c.httpc.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("stream events: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("stream events for item %d: %w", itemID, domain.ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream events for item %d: unexpected status %s", itemID, resp.Status)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if data.Len() > 0 {
				c.dispatch(itemID, data.String(), handler)
				data.Reset()
			}
			continue
		}
		if payload, ok := strings.CutPrefix(line, "data:"); ok {
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(payload, " "))
		}
		// id:, event:, retry:, and comment lines carry nothing we use.
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stream events for item %d: %w", itemID, err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return io.EOF
}

func (c *Client) dispatch(itemID int64, payload string, handler func(domain.Event)) {
	event, err := domain.DecodeEvent([]byte(payload))
	if err != nil {
		log.Debug("dropping malformed stream frame", "item_id", itemID, "error", err)
		return
	}
	handler(event)
}

// Watch keeps one controller converged: snapshot, resync, then consume the
// stream; on a drop it reconnects snapshot-first so increments never apply to
// an unknown base. Returns when the context ends or the item is deleted.
func (c *Client) Watch(ctx context.Context, ctrl *Controller) error {
	itemID := ctrl.ItemID()
	for {
		if ctrl.Closed() {
			return nil
		}
		snapshot, err := c.FetchItem(ctx, itemID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			ctrl.MarkDeleted()
			return nil
		case err != nil:
			log.Warn("snapshot fetch failed, retrying", "item_id", itemID, "error", err)
		default:
			ctrl.Resync(snapshot)
			err = c.StreamEvents(ctx, itemID, ctrl.Apply)
			if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
				log.Warn("event stream dropped", "item_id", itemID, "error", err)
			}
			if !ctrl.CanMutate() || ctrl.Closed() {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(streamRetryDelay):
		}
	}
}
