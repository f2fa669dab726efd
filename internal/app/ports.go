package app

import (
	"context"
	"time"

	"github.com/hylla/draftwork/internal/domain"
)

// Repository is the persistence collaborator. Implementations treat each call
// as atomic; SaveItem enforces optimistic concurrency on the item revision and
// fails with domain.ErrConflict on a mismatch.
type Repository interface {
	CreateItem(context.Context, domain.WorkItem) (domain.WorkItem, error)
	LoadItem(context.Context, int64) (domain.WorkItem, error)
	SaveItem(context.Context, domain.WorkItem) (domain.WorkItem, error)
	DeleteItem(context.Context, int64) error
	ListItems(context.Context) ([]domain.WorkItem, error)

	GetUser(context.Context, string) (domain.UserRef, error)
	GetUserByHandle(context.Context, string) (domain.UserRef, error)
	ListUsers(context.Context) ([]domain.UserRef, error)
}

// Publisher fans a domain event out to the item's subscribers. Called only
// after durable persistence succeeds.
type Publisher interface {
	Publish(domain.Event)
}

// Catalog is the external publication collaborator. The core records the
// returned handle and does not model the catalog's own state.
type Catalog interface {
	Publish(context.Context, domain.WorkItem) (string, error)
	Unpublish(context.Context, string) error
}

// Notifier dispatches a fire-and-forget reminder signal; delivery transport is
// external and failures never fail the triggering mutation.
type Notifier interface {
	Notify(ctx context.Context, userID string, itemID int64, kind string)
}

// Reminder kinds passed to Notifier.Notify.
const (
	ReminderKindMention = "mention"
)

// Clock returns the current time.
type Clock func() time.Time
