// Package catalog provides the local publication catalog adapter. It mints
// opaque library handles and tracks which ones are live; the core only ever
// records the handle it is given.
package catalog

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/hylla/draftwork/internal/domain"
)

// Local is an in-process catalog. Handles survive for the process lifetime
// only; a hosted catalog would persist them.
type Local struct {
	mu        sync.Mutex
	published map[string]int64
}

// NewLocal constructs an empty local catalog.
func NewLocal() *Local {
	return &Local{published: make(map[string]int64)}
}

// Publish mints a fresh handle for the item and marks it live.
func (l *Local) Publish(_ context.Context, item domain.WorkItem) (string, error) {
	handle := "lib-" + uuid.NewString()
	l.mu.Lock()
	l.published[handle] = item.ID
	l.mu.Unlock()
	log.Info("item published to catalog", "item_id", item.ID, "handle", handle)
	return handle, nil
}

// Unpublish takes a handle out of the live set. Unknown handles are a no-op so
// archive retries stay idempotent.
func (l *Local) Unpublish(_ context.Context, externalID string) error {
	l.mu.Lock()
	_, known := l.published[externalID]
	delete(l.published, externalID)
	l.mu.Unlock()
	if !known {
		log.Debug("unpublish for unknown catalog handle", "handle", externalID)
	}
	return nil
}

// IsLive reports whether a handle is currently published.
func (l *Local) IsLive(externalID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.published[externalID]
	return ok
}
