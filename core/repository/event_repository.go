package repository

import (
	"sync"

	"automl-engine/core/models"
)

// EventLog keeps the lifecycle event history of each job in memory
type EventLog struct {
	mu     sync.RWMutex
	nextID int64
	events map[string][]models.JobEvent
}

// NewEventLog creates an empty event log
func NewEventLog() *EventLog {
	return &EventLog{events: make(map[string][]models.JobEvent)}
}

// Record appends an event and assigns its id
func (l *EventLog) Record(event models.JobEvent) models.JobEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	event.ID = l.nextID
	event.Job = event.Job.Clone()
	l.events[event.JobID] = append(l.events[event.JobID], event)
	return event
}

// GetJobEvents retrieves events for a job, newest first. A limit <= 0 returns all.
func (l *EventLog) GetJobEvents(jobID string, limit int) []models.JobEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	history := l.events[jobID]
	n := len(history)
	if limit > 0 && limit < n {
		n = limit
	}
	events := make([]models.JobEvent, 0, n)
	for i := len(history) - 1; i >= 0 && len(events) < n; i-- {
		event := history[i]
		event.Job = event.Job.Clone()
		events = append(events, event)
	}
	return events
}
