// Package events delivers engine notifications to in-process subscribers.
// Delivery is synchronous with the mutation that triggered it and at most once.
package events

import (
	"context"
	"sync"
	"time"

	"automl-engine/core/models"

	log "github.com/golang/glog"
)

// Handler receives one event payload
type Handler[T any] func(T)

// Topic is a typed publish/subscribe channel for one event kind
type Topic[T any] struct {
	name     string
	mu       sync.RWMutex
	nextID   int
	handlers map[int]Handler[T]
	order    []int
}

// NewTopic creates an empty topic
func NewTopic[T any](name string) *Topic[T] {
	return &Topic[T]{name: name, handlers: make(map[int]Handler[T])}
}

// Subscribe registers a handler and returns a function that removes it
func (t *Topic[T]) Subscribe(h Handler[T]) (unsubscribe func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextID
	t.nextID++
	t.handlers[id] = h
	t.order = append(t.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			delete(t.handlers, id)
			for i, v := range t.order {
				if v == id {
					t.order = append(t.order[:i], t.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish calls every handler in subscription order on the caller's
// goroutine. A panicking handler is logged and does not stop delivery.
func (t *Topic[T]) Publish(event T) {
	t.mu.RLock()
	handlers := make([]Handler[T], 0, len(t.order))
	for _, id := range t.order {
		handlers = append(handlers, t.handlers[id])
	}
	t.mu.RUnlock()

	for _, h := range handlers {
		t.deliver(h, event)
	}
}

func (t *Topic[T]) deliver(h Handler[T], event T) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("events: %s subscriber panicked: %v", t.name, r)
		}
	}()
	h(event)
}

// Watch returns a channel fed with events until ctx is done. Events are
// dropped when the buffer is full.
func (t *Topic[T]) Watch(ctx context.Context, buffer int) <-chan T {
	ch := make(chan T, buffer)
	var mu sync.Mutex
	closed := false

	unsubscribe := t.Subscribe(func(event T) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- event:
		default:
			log.Warningf("events: %s watcher is full, dropping event", t.name)
		}
	})

	go func() {
		<-ctx.Done()
		unsubscribe()
		mu.Lock()
		closed = true
		close(ch)
		mu.Unlock()
	}()
	return ch
}

// Bus groups the engine's topics
type Bus struct {
	JobLifecycle       *Topic[models.JobEvent]
	FeatureEngineering *Topic[models.FeatureEngineeringEvent]
	OptimizationRuns   *Topic[models.OptimizationRunEvent]
	ModelSelections    *Topic[models.ModelSelectionEvent]
}

// NewBus creates a bus with empty topics
func NewBus() *Bus {
	return &Bus{
		JobLifecycle:       NewTopic[models.JobEvent]("job_lifecycle"),
		FeatureEngineering: NewTopic[models.FeatureEngineeringEvent](string(models.EventFeatureEngineeringCreated)),
		OptimizationRuns:   NewTopic[models.OptimizationRunEvent](string(models.EventHyperparameterOptimizationCreated)),
		ModelSelections:    NewTopic[models.ModelSelectionEvent](string(models.EventModelSelectionCreated)),
	}
}

// PublishJob announces a lifecycle change of job. from is nil for creation.
func (b *Bus) PublishJob(eventType models.EventType, from *models.JobStatus, job *models.Job, reason string, at time.Time) {
	b.JobLifecycle.Publish(models.JobEvent{
		Type:       eventType,
		JobID:      job.ID,
		At:         at,
		FromStatus: from,
		ToStatus:   job.Status,
		Reason:     reason,
		Job:        job.Clone(),
	})
}
