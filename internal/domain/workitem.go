package domain

import (
	"slices"
	"strings"
	"time"
)

// Status represents canonical pipeline states for a work item.
type Status string

// Canonical pipeline states, in rough pipeline order.
const (
	StatusNew        Status = "new"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusSubmitted  Status = "submitted"
	StatusNeedsFixes Status = "needs_fixes"
	StatusReviewed   Status = "reviewed"
	StatusPublished  Status = "published"
	StatusArchived   Status = "archived"
)

// validStatuses stores the fixed enumerated status set.
var validStatuses = []Status{
	StatusNew,
	StatusAssigned,
	StatusInProgress,
	StatusSubmitted,
	StatusNeedsFixes,
	StatusReviewed,
	StatusPublished,
	StatusArchived,
}

// Role describes the actor class performing an operation.
type Role string

// Role values.
const (
	RoleAdmin   Role = "admin"
	RoleCreator Role = "creator"
)

// UserRef identifies a directory user referenced by items, comments, and activities.
type UserRef struct {
	ID          string `json:"id"`
	Handle      string `json:"handle"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role"`
}

// Activity is one append-only audit-ledger entry. Every successful mutation
// appends exactly one.
type Activity struct {
	ID         int64     `json:"id"`
	Actor      UserRef   `json:"actor"`
	Action     string    `json:"action"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// WorkItem is the aggregate tracked by the pipeline. The server-side record is
// authoritative; client views are projections of it.
type WorkItem struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	BriefURL        string     `json:"brief_url"`
	AssetURL        string     `json:"asset_url"`
	Price           float64    `json:"price"`
	Status          Status     `json:"status"`
	AssignedTo      *UserRef   `json:"assigned_to,omitempty"`
	CreatedBy       UserRef    `json:"created_by"`
	ReviewerName    string     `json:"reviewer_name"`
	FlowPayload     string     `json:"flow_payload"`
	PublicLibraryID string     `json:"public_library_id"`
	Comments        []Comment  `json:"comments"`
	Activities      []Activity `json:"activities"`
	Blockers        []Blocker  `json:"blockers"`
	Revision        int64      `json:"revision"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// WorkItemInput holds input values for work item creation.
type WorkItemInput struct {
	Name         string
	Description  string
	BriefURL     string
	AssetURL     string
	Price        float64
	ReviewerName string
	FlowPayload  string
	CreatedBy    UserRef
}

// NewWorkItem constructs a normalized unassigned item in status "new". The
// identifier is assigned by the persistence layer on create.
func NewWorkItem(in WorkItemInput, now time.Time) (WorkItem, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return WorkItem{}, ErrInvalidName
	}
	if strings.TrimSpace(in.CreatedBy.ID) == "" {
		return WorkItem{}, ErrInvalidID
	}

	ts := now.UTC()
	return WorkItem{
		Name:         in.Name,
		Description:  strings.TrimSpace(in.Description),
		BriefURL:     strings.TrimSpace(in.BriefURL),
		AssetURL:     strings.TrimSpace(in.AssetURL),
		Price:        in.Price,
		Status:       StatusNew,
		CreatedBy:    in.CreatedBy,
		ReviewerName: strings.TrimSpace(in.ReviewerName),
		FlowPayload:  strings.TrimSpace(in.FlowPayload),
		CreatedAt:    ts,
		UpdatedAt:    ts,
		Revision:     1,
	}, nil
}

// IsAssignedTo reports whether userID is the current assignee.
func (w *WorkItem) IsAssignedTo(userID string) bool {
	return w.AssignedTo != nil && w.AssignedTo.ID == userID
}

// SetAssignee records the assignee. The caller enforces role and race rules;
// the invariant kept here is that only creator-role users hold assignments.
func (w *WorkItem) SetAssignee(user UserRef, now time.Time) error {
	if strings.TrimSpace(user.ID) == "" {
		return ErrInvalidID
	}
	if user.Role != RoleCreator {
		return ErrInvalidRole
	}
	assignee := user
	w.AssignedTo = &assignee
	w.UpdatedAt = now.UTC()
	return nil
}

// ClearAssignee removes the current assignment.
func (w *WorkItem) ClearAssignee(now time.Time) {
	w.AssignedTo = nil
	w.UpdatedAt = now.UTC()
}

// SetStatus records an already-validated status value.
func (w *WorkItem) SetStatus(status Status, now time.Time) error {
	status = NormalizeStatus(status)
	if !IsValidStatus(status) {
		return ErrInvalidStatus
	}
	w.Status = status
	w.UpdatedAt = now.UTC()
	return nil
}

// AppendComment appends a comment, skipping ids already present. Comments and
// activities never lose entries once appended.
func (w *WorkItem) AppendComment(comment Comment, now time.Time) {
	for _, existing := range w.Comments {
		if existing.ID == comment.ID {
			return
		}
	}
	w.Comments = append(w.Comments, comment)
	w.UpdatedAt = now.UTC()
}

// NextCommentID returns the next server-assigned comment id, unique within the item.
func (w *WorkItem) NextCommentID() int64 {
	var maxID int64
	for _, comment := range w.Comments {
		if comment.ID > maxID {
			maxID = comment.ID
		}
	}
	return maxID + 1
}

// AppendActivity appends one audit entry with the next ledger id.
func (w *WorkItem) AppendActivity(actor UserRef, action, detail string, now time.Time) {
	var maxID int64
	for _, entry := range w.Activities {
		if entry.ID > maxID {
			maxID = entry.ID
		}
	}
	w.Activities = append(w.Activities, Activity{
		ID:         maxID + 1,
		Actor:      actor,
		Action:     action,
		Detail:     detail,
		OccurredAt: now.UTC(),
	})
}

// NextBlockerID returns the next server-assigned blocker id within the item.
func (w *WorkItem) NextBlockerID() int64 {
	var maxID int64
	for _, blocker := range w.Blockers {
		if blocker.ID > maxID {
			maxID = blocker.ID
		}
	}
	return maxID + 1
}

// FindBlocker returns a pointer into the item's blocker slice, or nil.
func (w *WorkItem) FindBlocker(blockerID int64) *Blocker {
	for idx := range w.Blockers {
		if w.Blockers[idx].ID == blockerID {
			return &w.Blockers[idx]
		}
	}
	return nil
}

// RemoveBlocker deletes a blocker. Blockers with discussion messages are kept.
func (w *WorkItem) RemoveBlocker(blockerID int64, now time.Time) error {
	for idx := range w.Blockers {
		if w.Blockers[idx].ID != blockerID {
			continue
		}
		if len(w.Blockers[idx].Discussion) > 0 {
			return ErrBlockerHasDiscussion
		}
		w.Blockers = append(w.Blockers[:idx], w.Blockers[idx+1:]...)
		w.UpdatedAt = now.UTC()
		return nil
	}
	return ErrNotFound
}

// NormalizeStatus canonicalizes status values.
func NormalizeStatus(status Status) Status {
	return Status(strings.TrimSpace(strings.ToLower(string(status))))
}

// IsValidStatus reports whether the status is one of the enumerated set.
func IsValidStatus(status Status) bool {
	return slices.Contains(validStatuses, NormalizeStatus(status))
}

// NormalizeRole canonicalizes role values.
func NormalizeRole(role Role) Role {
	return Role(strings.TrimSpace(strings.ToLower(string(role))))
}

// IsValidRole reports whether the role is supported.
func IsValidRole(role Role) bool {
	role = NormalizeRole(role)
	return role == RoleAdmin || role == RoleCreator
}
