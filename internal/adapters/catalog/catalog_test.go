package catalog

import (
	"context"
	"testing"

	"github.com/hylla/draftwork/internal/domain"
)

func TestPublishMintsUniqueHandles(t *testing.T) {
	local := NewLocal()
	first, err := local.Publish(context.Background(), domain.WorkItem{ID: 1})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	second, err := local.Publish(context.Background(), domain.WorkItem{ID: 2})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if first == second {
		t.Fatalf("handles collide: %q", first)
	}
	if !local.IsLive(first) || !local.IsLive(second) {
		t.Fatal("published handles not live")
	}
}

func TestUnpublishIsIdempotent(t *testing.T) {
	local := NewLocal()
	handle, err := local.Publish(context.Background(), domain.WorkItem{ID: 1})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := local.Unpublish(context.Background(), handle); err != nil {
		t.Fatalf("Unpublish() error = %v", err)
	}
	if local.IsLive(handle) {
		t.Fatal("handle still live after unpublish")
	}
	if err := local.Unpublish(context.Background(), handle); err != nil {
		t.Fatalf("repeat Unpublish() error = %v", err)
	}
}
