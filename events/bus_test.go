package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestBus_PublishInOrder(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t).Sugar())

	var got []string
	bus.Subscribe(TopicSaveRequested, func(e Event) { got = append(got, "first:"+e.Blob) })
	bus.Subscribe(TopicSaveRequested, func(e Event) { got = append(got, "second:"+e.Blob) })
	bus.Subscribe(TopicRemoteStateAvailable, func(e Event) { got = append(got, "other") })

	n := bus.Publish(Event{Topic: TopicSaveRequested, Blob: "B1"})

	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"first:B1", "second:B1"}, got)
}

func TestBus_NoSubscribers(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t).Sugar())
	assert.Equal(t, 0, bus.Publish(Event{Topic: TopicSaveRequested, Blob: "x"}))
}

func TestSubscription_Unsubscribe(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t).Sugar())

	calls := 0
	sub := bus.Subscribe(TopicSaveRequested, func(Event) { calls++ })
	bus.Publish(Event{Topic: TopicSaveRequested})

	sub.Unsubscribe()
	sub.Unsubscribe() // idempotent
	bus.Publish(Event{Topic: TopicSaveRequested})

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, bus.Subscribers(TopicSaveRequested))
}

func TestSubscription_UnsubscribeOnlyRemovesItself(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t).Sugar())

	var a, b int
	subA := bus.Subscribe(TopicSaveRequested, func(Event) { a++ })
	bus.Subscribe(TopicSaveRequested, func(Event) { b++ })

	subA.Unsubscribe()
	bus.Publish(Event{Topic: TopicSaveRequested})

	assert.Equal(t, 0, a)
	assert.Equal(t, 1, b)
}

func TestBus_HandlerMayUnsubscribeDuringPublish(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t).Sugar())

	var sub *Subscription
	calls := 0
	sub = bus.Subscribe(TopicRemoteStateAvailable, func(Event) {
		calls++
		sub.Unsubscribe()
	})

	bus.Publish(Event{Topic: TopicRemoteStateAvailable})
	bus.Publish(Event{Topic: TopicRemoteStateAvailable})

	assert.Equal(t, 1, calls)
}

func TestBus_ConcurrentPublishSubscribe(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t).Sugar())

	var mu sync.Mutex
	total := 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sub := bus.Subscribe(TopicSaveRequested, func(Event) {
				mu.Lock()
				total++
				mu.Unlock()
			})
			sub.Unsubscribe()
		}()
		go func() {
			defer wg.Done()
			bus.Publish(Event{Topic: TopicSaveRequested})
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, bus.Subscribers(TopicSaveRequested))
}
