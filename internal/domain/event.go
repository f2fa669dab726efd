package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event is the tagged union of domain events published on a work item's topic.
// Exactly three variants exist: ItemUpdated, CommentCreated, ItemDeleted.
type Event interface {
	// EventItemID returns the topic key: the id of the item the event concerns.
	EventItemID() int64
	isEvent()
}

// ItemDelta carries only the fields changed by one mutation. Nil fields were
// not touched; subscribers shallow-merge present fields and leave the rest.
type ItemDelta struct {
	Name            *string    `json:"name,omitempty"`
	Description     *string    `json:"description,omitempty"`
	BriefURL        *string    `json:"brief_url,omitempty"`
	AssetURL        *string    `json:"asset_url,omitempty"`
	Price           *float64   `json:"price,omitempty"`
	Status          *Status    `json:"status,omitempty"`
	AssignedTo      *UserRef   `json:"assigned_to,omitempty"`
	ClearAssignee   bool       `json:"clear_assignee,omitempty"`
	ReviewerName    *string    `json:"reviewer_name,omitempty"`
	FlowPayload     *string    `json:"flow_payload,omitempty"`
	PublicLibraryID *string    `json:"public_library_id,omitempty"`
	Blockers        []Blocker  `json:"blockers,omitempty"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
}

// ItemUpdated reports a field-level change to one work item.
type ItemUpdated struct {
	ID    int64     `json:"id"`
	Delta ItemDelta `json:"delta"`
}

// CommentCreated reports one newly appended comment.
type CommentCreated struct {
	ItemID  int64   `json:"item_id"`
	Comment Comment `json:"comment"`
}

// ItemDeleted reports that the item no longer exists.
type ItemDeleted struct {
	ID int64 `json:"id"`
}

func (e ItemUpdated) EventItemID() int64    { return e.ID }
func (e CommentCreated) EventItemID() int64 { return e.ItemID }
func (e ItemDeleted) EventItemID() int64    { return e.ID }

func (ItemUpdated) isEvent()    {}
func (CommentCreated) isEvent() {}
func (ItemDeleted) isEvent()    {}

// Wire event type tags shared by the SSE transport and the stream client.
const (
	WireItemUpdated    = "item.updated"
	WireCommentCreated = "comment.created"
	WireItemDeleted    = "item.deleted"
)

// wireEnvelope is the JSON shape events travel in.
type wireEnvelope struct {
	Type    string     `json:"type"`
	ID      int64      `json:"id,omitempty"`
	ItemID  int64      `json:"item_id,omitempty"`
	Delta   *ItemDelta `json:"delta,omitempty"`
	Comment *Comment   `json:"comment,omitempty"`
}

// EncodeEvent marshals an event into its wire JSON form.
func EncodeEvent(event Event) ([]byte, error) {
	var envelope wireEnvelope
	switch ev := event.(type) {
	case ItemUpdated:
		delta := ev.Delta
		envelope = wireEnvelope{Type: WireItemUpdated, ID: ev.ID, Delta: &delta}
	case CommentCreated:
		comment := ev.Comment
		envelope = wireEnvelope{Type: WireCommentCreated, ItemID: ev.ItemID, Comment: &comment}
	case ItemDeleted:
		envelope = wireEnvelope{Type: WireItemDeleted, ID: ev.ID}
	default:
		return nil, fmt.Errorf("encode event: unknown variant %T", event)
	}
	return json.Marshal(envelope)
}

// DecodeEvent unmarshals one wire JSON event. Unknown type tags and malformed
// payloads return an error; callers drop and log them rather than failing the
// stream.
func DecodeEvent(data []byte) (Event, error) {
	var envelope wireEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	switch envelope.Type {
	case WireItemUpdated:
		if envelope.ID <= 0 || envelope.Delta == nil {
			return nil, fmt.Errorf("decode event: malformed %s payload", WireItemUpdated)
		}
		return ItemUpdated{ID: envelope.ID, Delta: *envelope.Delta}, nil
	case WireCommentCreated:
		if envelope.ItemID <= 0 || envelope.Comment == nil {
			return nil, fmt.Errorf("decode event: malformed %s payload", WireCommentCreated)
		}
		return CommentCreated{ItemID: envelope.ItemID, Comment: *envelope.Comment}, nil
	case WireItemDeleted:
		if envelope.ID <= 0 {
			return nil, fmt.Errorf("decode event: malformed %s payload", WireItemDeleted)
		}
		return ItemDeleted{ID: envelope.ID}, nil
	default:
		return nil, fmt.Errorf("decode event: unknown type %q", envelope.Type)
	}
}
