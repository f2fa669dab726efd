package tui

import (
	"context"

	"github.com/hylla/draftwork/internal/domain"
)

// Option defines a functional option for model configuration.
type Option func(*Model)

// WithWatchFunc installs the background stream loop started by Init. The
// function should block until the stream ends or ctx is cancelled.
func WithWatchFunc(fn func(context.Context) error) Option {
	return func(m *Model) {
		m.watch = fn
	}
}

// WithFetchFunc installs the snapshot fetch used by the manual resync key.
func WithFetchFunc(fn func(context.Context) (domain.WorkItem, error)) Option {
	return func(m *Model) {
		m.fetch = fn
	}
}

// WithTitle overrides the header title shown above the item view.
func WithTitle(title string) Option {
	return func(m *Model) {
		if title != "" {
			m.title = title
		}
	}
}
