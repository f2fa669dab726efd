// Package sync keeps a client's view of one work item converged with the
// server as push events and the client's own mutation responses arrive on
// independent channels.
package sync

import (
	stdsync "sync"
	"time"

	"github.com/hylla/draftwork/internal/domain"
)

// PulseWindow is how long the "recently updated" flag stays armed after an
// update event. Cosmetic only.
const PulseWindow = 2 * time.Second

// Clock returns the current time.
type Clock func() time.Time

// ClientView is a snapshot of the controller's local projection. Never
// authoritative; reconstructed from server fetch and patched by events.
type ClientView struct {
	Item            domain.WorkItem
	Deleted         bool
	RecentlyUpdated bool
}

// Controller merges server-pushed events and local mutation responses into one
// ClientView. All reducers are synchronous and non-blocking; push delivery and
// REST responses for the same mutation deduplicate instead of double-applying.
type Controller struct {
	mu         stdsync.Mutex
	itemID     int64
	item       domain.WorkItem
	deleted    bool
	closed     bool
	pulseUntil time.Time
	pulse      time.Duration
	clock      Clock
}

// New creates a controller tracking one item, seeded from a server snapshot.
func New(snapshot domain.WorkItem, clock Clock) *Controller {
	return NewWithPulse(snapshot, clock, PulseWindow)
}

// NewWithPulse creates a controller with a custom recently-updated window.
func NewWithPulse(snapshot domain.WorkItem, clock Clock, pulse time.Duration) *Controller {
	if clock == nil {
		clock = time.Now
	}
	if pulse <= 0 {
		pulse = PulseWindow
	}
	return &Controller{itemID: snapshot.ID, item: snapshot, clock: clock, pulse: pulse}
}

// ItemID returns the tracked item id.
func (c *Controller) ItemID() int64 {
	return c.itemID
}

// View returns the current projection. The recently-updated pulse is derived
// from the clock, so no timer goroutine runs behind it.
func (c *Controller) View() ClientView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ClientView{
		Item:            c.item,
		Deleted:         c.deleted,
		RecentlyUpdated: !c.deleted && c.clock().Before(c.pulseUntil),
	}
}

// CanMutate reports whether mutation attempts may still be issued. False once
// the item is deleted.
func (c *Controller) CanMutate() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.deleted
}

// Apply merges one pushed event. Events for other items and events arriving
// after deletion are ignored; duplicate deliveries converge to the same view.
func (c *Controller) Apply(event domain.Event) {
	if event == nil || event.EventItemID() != c.itemID {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deleted || c.closed {
		return
	}
	switch ev := event.(type) {
	case domain.ItemUpdated:
		c.mergeDelta(ev.Delta)
		c.pulseUntil = c.clock().Add(c.pulse)
	case domain.CommentCreated:
		c.insertComment(ev.Comment)
	case domain.ItemDeleted:
		c.deleted = true
	}
}

// ApplyMutationResult merges the REST response of a locally issued item
// mutation. The response and the matching pushed event carry the same fact, so
// a snapshot at or behind the local revision is dropped.
func (c *Controller) ApplyMutationResult(item domain.WorkItem) {
	if item.ID != c.itemID {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deleted || c.closed || item.Revision <= c.item.Revision {
		return
	}
	c.item = item
	c.pulseUntil = c.clock().Add(c.pulse)
}

// ApplyCommentResult merges the REST response of a locally issued comment,
// through the same idempotent insert the pushed echo takes.
func (c *Controller) ApplyCommentResult(comment domain.Comment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deleted || c.closed {
		return
	}
	c.insertComment(comment)
}

// Resync replaces the view wholesale with a fresh server snapshot. Required
// after a dropped stream: increments from an unknown base are never trusted.
func (c *Controller) Resync(snapshot domain.WorkItem) {
	if snapshot.ID != c.itemID {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.item = snapshot
	c.deleted = false
}

// MarkDeleted moves the view to its terminal deleted state. Used when a resync
// fetch reports the item gone.
func (c *Controller) MarkDeleted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = true
}

// Close detaches the controller. No merge lands after Close returns; the watch
// loop observes it and stops reconnecting.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// Closed reports whether Close has been called.
func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// mergeDelta shallow-merges present fields; absent fields stay untouched.
func (c *Controller) mergeDelta(delta domain.ItemDelta) {
	if delta.Name != nil {
		c.item.Name = *delta.Name
	}
	if delta.Description != nil {
		c.item.Description = *delta.Description
	}
	if delta.BriefURL != nil {
		c.item.BriefURL = *delta.BriefURL
	}
	if delta.AssetURL != nil {
		c.item.AssetURL = *delta.AssetURL
	}
	if delta.Price != nil {
		c.item.Price = *delta.Price
	}
	if delta.Status != nil {
		c.item.Status = *delta.Status
	}
	if delta.AssignedTo != nil {
		assignee := *delta.AssignedTo
		c.item.AssignedTo = &assignee
	}
	if delta.ClearAssignee {
		c.item.AssignedTo = nil
	}
	if delta.ReviewerName != nil {
		c.item.ReviewerName = *delta.ReviewerName
	}
	if delta.FlowPayload != nil {
		c.item.FlowPayload = *delta.FlowPayload
	}
	if delta.PublicLibraryID != nil {
		c.item.PublicLibraryID = *delta.PublicLibraryID
	}
	if delta.Blockers != nil {
		c.item.Blockers = append([]domain.Blocker(nil), delta.Blockers...)
	}
	if delta.UpdatedAt != nil {
		c.item.UpdatedAt = *delta.UpdatedAt
	}
}

// insertComment appends only unseen ids, so echoes and duplicate deliveries
// leave the sequence unchanged.
func (c *Controller) insertComment(comment domain.Comment) {
	for _, existing := range c.item.Comments {
		if existing.ID == comment.ID {
			return
		}
	}
	c.item.Comments = append(c.item.Comments, comment)
	c.pulseUntil = c.clock().Add(c.pulse)
}
