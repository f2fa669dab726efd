package domain

import (
	"slices"
	"strings"
	"time"
)

// BlockerType classifies the impediment recorded by a blocker.
type BlockerType string

// BlockerType values.
const (
	BlockerTypeMissingIntegration BlockerType = "missing_integration"
	BlockerTypeMissingAction      BlockerType = "missing_action"
	BlockerTypePlatformLimitation BlockerType = "platform_limitation"
	BlockerTypeBug                BlockerType = "bug"
	BlockerTypeOther              BlockerType = "other"
)

// validBlockerTypes stores supported blocker type values.
var validBlockerTypes = []BlockerType{
	BlockerTypeMissingIntegration,
	BlockerTypeMissingAction,
	BlockerTypePlatformLimitation,
	BlockerTypeBug,
	BlockerTypeOther,
}

// BlockerPriority ranks blocker urgency.
type BlockerPriority string

// BlockerPriority values.
const (
	BlockerPriorityLow      BlockerPriority = "low"
	BlockerPriorityMedium   BlockerPriority = "medium"
	BlockerPriorityHigh     BlockerPriority = "high"
	BlockerPriorityCritical BlockerPriority = "critical"
)

// validBlockerPriorities stores supported priority values.
var validBlockerPriorities = []BlockerPriority{
	BlockerPriorityLow,
	BlockerPriorityMedium,
	BlockerPriorityHigh,
	BlockerPriorityCritical,
}

// BlockerStatus tracks blocker lifecycle state.
type BlockerStatus string

// BlockerStatus values. Legal transitions: open -> in_progress -> resolved,
// or open -> resolved directly.
const (
	BlockerStatusOpen       BlockerStatus = "open"
	BlockerStatusInProgress BlockerStatus = "in_progress"
	BlockerStatusResolved   BlockerStatus = "resolved"
)

// BlockerMessage is one append-only entry in a blocker's discussion thread.
type BlockerMessage struct {
	ID         int64     `json:"id"`
	Author     UserRef   `json:"author"`
	Body       string    `json:"body"`
	IsSolution bool      `json:"is_solution"`
	CreatedAt  time.Time `json:"created_at"`
}

// Blocker records an impediment to completing a work item, with its own
// lifecycle and discussion sub-thread.
type Blocker struct {
	ID              int64            `json:"id"`
	Type            BlockerType      `json:"type"`
	Priority        BlockerPriority  `json:"priority"`
	Status          BlockerStatus    `json:"status"`
	Title           string           `json:"title"`
	Description     string           `json:"description"`
	ResolutionNotes string           `json:"resolution_notes"`
	CreatedBy       UserRef          `json:"created_by"`
	ResolvedBy      *UserRef         `json:"resolved_by,omitempty"`
	Discussion      []BlockerMessage `json:"discussion"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// BlockerInput holds input values for blocker creation.
type BlockerInput struct {
	Type        BlockerType
	Priority    BlockerPriority
	Title       string
	Description string
	CreatedBy   UserRef
}

// NewBlocker constructs a normalized open blocker.
func NewBlocker(id int64, in BlockerInput, now time.Time) (Blocker, error) {
	if id <= 0 {
		return Blocker{}, ErrInvalidID
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return Blocker{}, ErrInvalidName
	}

	blockerType := BlockerType(strings.TrimSpace(strings.ToLower(string(in.Type))))
	if blockerType == "" {
		blockerType = BlockerTypeOther
	}
	if !slices.Contains(validBlockerTypes, blockerType) {
		return Blocker{}, ErrInvalidBlockerType
	}

	priority := BlockerPriority(strings.TrimSpace(strings.ToLower(string(in.Priority))))
	if priority == "" {
		priority = BlockerPriorityMedium
	}
	if !slices.Contains(validBlockerPriorities, priority) {
		return Blocker{}, ErrInvalidBlockerPriority
	}

	ts := now.UTC()
	return Blocker{
		ID:          id,
		Type:        blockerType,
		Priority:    priority,
		Status:      BlockerStatusOpen,
		Title:       in.Title,
		Description: strings.TrimSpace(in.Description),
		CreatedBy:   in.CreatedBy,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}, nil
}

// DiscussionCount reports the discussion thread size.
func (b *Blocker) DiscussionCount() int {
	return len(b.Discussion)
}

// Transition moves the blocker to a new lifecycle status. Resolution requires a
// resolver reference; resolution notes are optional.
func (b *Blocker) Transition(to BlockerStatus, resolver UserRef, notes string, now time.Time) error {
	to = BlockerStatus(strings.TrimSpace(strings.ToLower(string(to))))
	legal := false
	switch b.Status {
	case BlockerStatusOpen:
		legal = to == BlockerStatusInProgress || to == BlockerStatusResolved
	case BlockerStatusInProgress:
		legal = to == BlockerStatusResolved
	}
	if !legal {
		return ErrInvalidBlockerStatus
	}

	b.Status = to
	b.UpdatedAt = now.UTC()
	if to == BlockerStatusResolved {
		resolvedBy := resolver
		b.ResolvedBy = &resolvedBy
		b.ResolutionNotes = strings.TrimSpace(notes)
	}
	return nil
}

// NextMessageID returns the next discussion message id within the blocker.
func (b *Blocker) NextMessageID() int64 {
	var maxID int64
	for _, message := range b.Discussion {
		if message.ID > maxID {
			maxID = message.ID
		}
	}
	return maxID + 1
}

// AppendMessage appends one discussion message, skipping ids already present.
func (b *Blocker) AppendMessage(message BlockerMessage, now time.Time) error {
	if strings.TrimSpace(message.Body) == "" {
		return ErrInvalidBody
	}
	for _, existing := range b.Discussion {
		if existing.ID == message.ID {
			return nil
		}
	}
	message.Body = strings.TrimSpace(message.Body)
	message.CreatedAt = message.CreatedAt.UTC()
	b.Discussion = append(b.Discussion, message)
	b.UpdatedAt = now.UTC()
	return nil
}

// MarkSolution flags one discussion message as the accepted solution.
func (b *Blocker) MarkSolution(messageID int64, now time.Time) error {
	for idx := range b.Discussion {
		if b.Discussion[idx].ID == messageID {
			b.Discussion[idx].IsSolution = true
			b.UpdatedAt = now.UTC()
			return nil
		}
	}
	return ErrNotFound
}
