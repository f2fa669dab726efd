package domain

import (
	"strings"
	"time"
)

// Comment stores one authored note on a work item. Comments are immutable once
// created; the server assigns ids unique within their item.
type Comment struct {
	ID        int64     `json:"id"`
	Author    UserRef   `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// NewComment constructs a normalized comment.
func NewComment(id int64, author UserRef, body string, now time.Time) (Comment, error) {
	if id <= 0 {
		return Comment{}, ErrInvalidID
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return Comment{}, ErrInvalidBody
	}
	if strings.TrimSpace(author.ID) == "" {
		return Comment{}, ErrInvalidID
	}
	return Comment{
		ID:        id,
		Author:    author,
		Body:      body,
		CreatedAt: now.UTC(),
	}, nil
}
