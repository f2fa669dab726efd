package eventbus

import (
	"sync"
	"testing"

	"github.com/hylla/draftwork/internal/domain"
)

// TestPublishDeliversInOrder verifies per-topic publication order.
func TestPublishDeliversInOrder(t *testing.T) {
	bus := New()
	var got []int64
	unsubscribe := bus.Subscribe(1, func(event domain.Event) {
		got = append(got, event.(domain.CommentCreated).Comment.ID)
	})
	defer unsubscribe()

	for id := int64(1); id <= 5; id++ {
		bus.Publish(domain.CommentCreated{ItemID: 1, Comment: domain.Comment{ID: id}})
	}

	if len(got) != 5 {
		t.Fatalf("deliveries: %d, want 5", len(got))
	}
	for idx, id := range got {
		if id != int64(idx+1) {
			t.Fatalf("order broken at %d: %v", idx, got)
		}
	}
}

// TestPublishScopesToTopic verifies events for one item never reach another
// item's subscribers.
func TestPublishScopesToTopic(t *testing.T) {
	bus := New()
	var itemOne, itemTwo int
	defer bus.Subscribe(1, func(domain.Event) { itemOne++ })()
	defer bus.Subscribe(2, func(domain.Event) { itemTwo++ })()

	bus.Publish(domain.ItemDeleted{ID: 1})
	bus.Publish(domain.ItemUpdated{ID: 2})
	bus.Publish(domain.ItemUpdated{ID: 2})

	if itemOne != 1 || itemTwo != 2 {
		t.Fatalf("deliveries: item1=%d item2=%d", itemOne, itemTwo)
	}
}

// TestUnsubscribeStopsDelivery verifies the returned func is synchronous and
// idempotent.
func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := New()
	var count int
	unsubscribe := bus.Subscribe(1, func(domain.Event) { count++ })

	bus.Publish(domain.ItemUpdated{ID: 1})
	unsubscribe()
	unsubscribe()
	bus.Publish(domain.ItemUpdated{ID: 1})

	if count != 1 {
		t.Fatalf("deliveries after unsubscribe: %d, want 1", count)
	}
	if n := bus.SubscriberCount(1); n != 0 {
		t.Fatalf("subscriber count: %d, want 0", n)
	}
}

// TestConcurrentPublishDifferentItems verifies independent topics do not
// corrupt each other under parallel publishers.
func TestConcurrentPublishDifferentItems(t *testing.T) {
	bus := New()
	const perTopic = 200

	counts := make([]int, 4)
	var mu sync.Mutex
	for topicIdx := range counts {
		itemID := int64(topicIdx + 1)
		idx := topicIdx
		defer bus.Subscribe(itemID, func(domain.Event) {
			mu.Lock()
			counts[idx]++
			mu.Unlock()
		})()
	}

	var wg sync.WaitGroup
	for topicIdx := range counts {
		itemID := int64(topicIdx + 1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perTopic; i++ {
				bus.Publish(domain.ItemUpdated{ID: itemID})
			}
		}()
	}
	wg.Wait()

	for idx, count := range counts {
		if count != perTopic {
			t.Fatalf("topic %d: %d deliveries, want %d", idx+1, count, perTopic)
		}
	}
}

// TestPublishWithoutSubscribersIsNoop verifies publishing to an empty topic is safe.
func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	bus := New()
	bus.Publish(domain.ItemUpdated{ID: 42})
	bus.Publish(nil)
}
