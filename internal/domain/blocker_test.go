package domain

import (
	"errors"
	"testing"
	"time"
)

var blockerNow = time.Date(2026, 8, 12, 10, 0, 0, 0, time.UTC)

func testCreator() UserRef {
	return UserRef{ID: "u-2", Handle: "bob", DisplayName: "Bob Kovac", Role: RoleCreator}
}

// TestNewBlockerDefaults verifies type and priority defaults and open status.
func TestNewBlockerDefaults(t *testing.T) {
	blocker, err := NewBlocker(1, BlockerInput{Title: "  webhook missing  ", CreatedBy: testCreator()}, blockerNow)
	if err != nil {
		t.Fatalf("NewBlocker: %v", err)
	}
	if blocker.Title != "webhook missing" {
		t.Fatalf("title: %q", blocker.Title)
	}
	if blocker.Type != BlockerTypeOther || blocker.Priority != BlockerPriorityMedium {
		t.Fatalf("defaults: type=%s priority=%s", blocker.Type, blocker.Priority)
	}
	if blocker.Status != BlockerStatusOpen {
		t.Fatalf("status: %s", blocker.Status)
	}
}

// TestNewBlockerRejectsInvalidEnums verifies enum validation.
func TestNewBlockerRejectsInvalidEnums(t *testing.T) {
	if _, err := NewBlocker(1, BlockerInput{Title: "x", Type: "mystery"}, blockerNow); !errors.Is(err, ErrInvalidBlockerType) {
		t.Fatalf("type: got %v", err)
	}
	if _, err := NewBlocker(1, BlockerInput{Title: "x", Priority: "urgent"}, blockerNow); !errors.Is(err, ErrInvalidBlockerPriority) {
		t.Fatalf("priority: got %v", err)
	}
	if _, err := NewBlocker(1, BlockerInput{Title: "   "}, blockerNow); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("title: got %v", err)
	}
}

// TestBlockerTransitions verifies the open/in_progress/resolved lifecycle.
func TestBlockerTransitions(t *testing.T) {
	resolver := UserRef{ID: "u-1", Handle: "alice", Role: RoleAdmin}

	t.Run("open to in_progress to resolved", func(t *testing.T) {
		blocker, _ := NewBlocker(1, BlockerInput{Title: "x", CreatedBy: testCreator()}, blockerNow)
		if err := blocker.Transition(BlockerStatusInProgress, resolver, "", blockerNow); err != nil {
			t.Fatalf("to in_progress: %v", err)
		}
		if err := blocker.Transition(BlockerStatusResolved, resolver, "patched upstream", blockerNow); err != nil {
			t.Fatalf("to resolved: %v", err)
		}
		if blocker.ResolvedBy == nil || blocker.ResolvedBy.ID != "u-1" {
			t.Fatal("resolver not recorded")
		}
		if blocker.ResolutionNotes != "patched upstream" {
			t.Fatalf("notes: %q", blocker.ResolutionNotes)
		}
	})

	t.Run("open straight to resolved", func(t *testing.T) {
		blocker, _ := NewBlocker(1, BlockerInput{Title: "x", CreatedBy: testCreator()}, blockerNow)
		if err := blocker.Transition(BlockerStatusResolved, resolver, "", blockerNow); err != nil {
			t.Fatalf("to resolved: %v", err)
		}
	})

	t.Run("illegal moves rejected", func(t *testing.T) {
		blocker, _ := NewBlocker(1, BlockerInput{Title: "x", CreatedBy: testCreator()}, blockerNow)
		if err := blocker.Transition(BlockerStatusOpen, resolver, "", blockerNow); !errors.Is(err, ErrInvalidBlockerStatus) {
			t.Fatalf("open->open: got %v", err)
		}
		_ = blocker.Transition(BlockerStatusResolved, resolver, "", blockerNow)
		if err := blocker.Transition(BlockerStatusInProgress, resolver, "", blockerNow); !errors.Is(err, ErrInvalidBlockerStatus) {
			t.Fatalf("resolved->in_progress: got %v", err)
		}
	})
}

// TestBlockerDiscussion verifies append-only ids, dedup, and solution flagging.
func TestBlockerDiscussion(t *testing.T) {
	blocker, _ := NewBlocker(1, BlockerInput{Title: "x", CreatedBy: testCreator()}, blockerNow)

	first := BlockerMessage{ID: blocker.NextMessageID(), Author: testCreator(), Body: "repro attached", CreatedAt: blockerNow}
	if err := blocker.AppendMessage(first, blockerNow); err != nil {
		t.Fatalf("append: %v", err)
	}
	// Duplicate ids are skipped, not doubled.
	if err := blocker.AppendMessage(first, blockerNow); err != nil {
		t.Fatalf("append duplicate: %v", err)
	}
	if blocker.DiscussionCount() != 1 {
		t.Fatalf("discussion count: %d", blocker.DiscussionCount())
	}

	second := BlockerMessage{ID: blocker.NextMessageID(), Author: testCreator(), Body: "use the v2 endpoint"}
	if second.ID != 2 {
		t.Fatalf("next message id: %d", second.ID)
	}
	if err := blocker.AppendMessage(second, blockerNow); err != nil {
		t.Fatalf("append second: %v", err)
	}

	if err := blocker.MarkSolution(2, blockerNow); err != nil {
		t.Fatalf("mark solution: %v", err)
	}
	if !blocker.Discussion[1].IsSolution {
		t.Fatal("solution flag not set")
	}
	if err := blocker.MarkSolution(99, blockerNow); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing message: got %v", err)
	}
}
