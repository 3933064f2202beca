package events

import (
	"context"
	"testing"
	"time"

	"automl-engine/core/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopic_PublishInSubscriptionOrder(t *testing.T) {
	topic := NewTopic[int]("numbers")
	var got []string

	topic.Subscribe(func(n int) { got = append(got, "first") })
	topic.Subscribe(func(n int) { got = append(got, "second") })
	topic.Publish(1)

	assert.Equal(t, []string{"first", "second"}, got)
}

func TestTopic_Unsubscribe(t *testing.T) {
	topic := NewTopic[string]("words")
	calls := 0
	unsubscribe := topic.Subscribe(func(string) { calls++ })

	topic.Publish("a")
	unsubscribe()
	unsubscribe()
	topic.Publish("b")

	assert.Equal(t, 1, calls)
}

func TestTopic_PanickingHandlerDoesNotStopDelivery(t *testing.T) {
	topic := NewTopic[int]("numbers")
	delivered := false
	topic.Subscribe(func(int) { panic("boom") })
	topic.Subscribe(func(int) { delivered = true })

	assert.NotPanics(t, func() { topic.Publish(7) })
	assert.True(t, delivered)
}

func TestTopic_Watch(t *testing.T) {
	topic := NewTopic[int]("numbers")
	ctx, cancel := context.WithCancel(context.Background())
	ch := topic.Watch(ctx, 2)

	topic.Publish(1)
	topic.Publish(2)
	topic.Publish(3) // dropped, buffer is full

	assert.Equal(t, 1, <-ch)
	assert.Equal(t, 2, <-ch)

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("watch channel was not closed")
	}
}

func TestBus_TypedTopics(t *testing.T) {
	bus := NewBus()
	var seen models.JobEvent
	bus.JobLifecycle.Subscribe(func(e models.JobEvent) { seen = e })

	bus.JobLifecycle.Publish(models.JobEvent{Type: models.EventJobCreated, JobID: "job-1", ToStatus: models.JobStatusPending})

	require.Equal(t, "job-1", seen.JobID)
	assert.Equal(t, models.EventJobCreated, seen.Type)
}
