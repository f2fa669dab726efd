// Package notify provides reminder dispatch adapters.
package notify

import (
	"context"

	"github.com/charmbracelet/log"
)

// Log records reminder signals in the process log. Stands in for a push
// transport; mention fan-out semantics do not depend on delivery.
type Log struct{}

// Notify implements the app notifier port.
func (Log) Notify(_ context.Context, userID string, itemID int64, kind string) {
	log.Info("reminder dispatched", "user_id", userID, "item_id", itemID, "kind", kind)
}
