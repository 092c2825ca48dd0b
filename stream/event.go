// Package stream fans rotation lifecycle events out to in-process
// subscribers. The Broker is an ext.Extension; register it with
// engine.WithExtension and subscribe to the topics you care about.
package stream

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	EventRequestStarted   EventType = "request.started"
	EventRequestAdvanced  EventType = "request.advanced"
	EventRejection        EventType = "request.rejection_recorded"
	EventRequestAccepted  EventType = "request.accepted"
	EventRequestExhausted EventType = "request.exhausted"
	EventResponseExpired  EventType = "response.expired"

	EventJobScheduled EventType = "job.scheduled"
	EventJobStarted   EventType = "job.started"
	EventJobCompleted EventType = "job.completed"
	EventJobRetrying  EventType = "job.retrying"
	EventJobFailed    EventType = "job.failed"
)

// Event is the envelope delivered to subscribers.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"ts"`

	// Topic is the entity topic the event belongs to, e.g. request:<id>.
	Topic string `json:"topic"`

	// ChannelID is set for request events so they can be routed to
	// channel topics.
	ChannelID string `json:"channel_id,omitempty"`

	Data json.RawMessage `json:"data"`
}

// RequestEventData is the payload of request.* and response.* events.
type RequestEventData struct {
	RequestID   string   `json:"request_id"`
	RequesterID string   `json:"requester_id,omitempty"`
	Holder      string   `json:"holder,omitempty"`
	From        string   `json:"from,omitempty"`
	User        string   `json:"user,omitempty"`
	Reason      string   `json:"reason,omitempty"`
	Rejected    []string `json:"rejected,omitempty"`
}

// JobEventData is the payload of job.* events.
type JobEventData struct {
	JobID     string `json:"job_id"`
	RequestID string `json:"request_id,omitempty"`
	Queue     string `json:"queue"`
	RunAt     string `json:"run_at,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms,omitempty"`
	Attempt   int    `json:"attempt,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Decode unmarshals the payload into v.
func (e *Event) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}
