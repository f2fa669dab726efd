package common

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hylla/draftwork/internal/domain"
)

// ActorHeader carries the authenticated actor id. Session issuance is
// external; by the time a request reaches these surfaces the id is trusted.
const ActorHeader = "X-Actor-ID"

// ErrMissingActor reports a request without an actor identity.
var ErrMissingActor = errors.New("actor id is required")

// UserLookup resolves directory users.
type UserLookup interface {
	GetUser(ctx context.Context, userID string) (domain.UserRef, error)
}

// ResolveActor loads the acting user for a request. Unknown ids fail with the
// domain's not-found sentinel so both surfaces report them consistently.
func ResolveActor(ctx context.Context, users UserLookup, actorID string) (domain.UserRef, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return domain.UserRef{}, ErrMissingActor
	}
	actor, err := users.GetUser(ctx, actorID)
	if err != nil {
		return domain.UserRef{}, fmt.Errorf("resolve actor %q: %w", actorID, err)
	}
	return actor, nil
}
