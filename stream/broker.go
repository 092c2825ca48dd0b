package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/bystander/ext"
	"github.com/xraph/bystander/id"
	"github.com/xraph/bystander/job"
	"github.com/xraph/bystander/request"
)

// Compile-time interface checks.
var (
	_ ext.Extension         = (*Broker)(nil)
	_ ext.RequestStarted    = (*Broker)(nil)
	_ ext.RequestAdvanced   = (*Broker)(nil)
	_ ext.RejectionRecorded = (*Broker)(nil)
	_ ext.RequestAccepted   = (*Broker)(nil)
	_ ext.RequestExhausted  = (*Broker)(nil)
	_ ext.ResponseExpired   = (*Broker)(nil)
	_ ext.JobScheduled      = (*Broker)(nil)
	_ ext.JobStarted        = (*Broker)(nil)
	_ ext.JobCompleted      = (*Broker)(nil)
	_ ext.JobRetrying       = (*Broker)(nil)
	_ ext.JobFailed         = (*Broker)(nil)
	_ ext.Shutdown          = (*Broker)(nil)
)

// DefaultBufferSize is the per-subscriber event buffer.
const DefaultBufferSize = 256

// Broker receives lifecycle hooks and publishes them as Events.
type Broker struct {
	topics *registry
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	subs map[string]*Subscriber

	bufferSize int

	published atomic.Int64
	dropped   atomic.Int64
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber event buffer.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) {
		if size > 0 {
			b.bufferSize = size
		}
	}
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) BrokerOption {
	return func(b *Broker) { b.now = now }
}

// NewBroker creates a Broker.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	b := &Broker{
		topics:     newRegistry(),
		logger:     logger,
		now:        time.Now,
		subs:       make(map[string]*Subscriber),
		bufferSize: DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements ext.Extension.
func (b *Broker) Name() string { return "stream-broker" }

// Subscribe registers a subscriber on topics. Subscribing again with the
// same id replaces the earlier subscriber.
func (b *Broker) Subscribe(subscriberID string, topics ...string) (*Subscriber, error) {
	return b.SubscribeFiltered(subscriberID, nil, topics...)
}

// SubscribeFiltered is Subscribe with a predicate applied before
// buffering.
func (b *Broker) SubscribeFiltered(subscriberID string, filter func(*Event) bool, topics ...string) (*Subscriber, error) {
	for _, t := range topics {
		if err := ValidateTopic(t); err != nil {
			return nil, err
		}
	}
	b.RemoveSubscriber(subscriberID)

	sub := newSubscriber(subscriberID, b.bufferSize, filter)
	b.mu.Lock()
	b.subs[subscriberID] = sub
	b.mu.Unlock()
	for _, t := range topics {
		b.topics.add(t, sub)
	}
	return sub, nil
}

// Unsubscribe removes a subscriber from some topics. Its channel stays open.
func (b *Broker) Unsubscribe(subscriberID string, topics ...string) {
	for _, t := range topics {
		b.topics.remove(t, subscriberID)
	}
}

// RemoveSubscriber drops a subscriber from every topic and closes it.
func (b *Broker) RemoveSubscriber(subscriberID string) {
	b.topics.removeAll(subscriberID)
	b.mu.Lock()
	sub, ok := b.subs[subscriberID]
	delete(b.subs, subscriberID)
	b.mu.Unlock()
	if ok {
		sub.close()
	}
}

// BrokerStats is a snapshot of broker counters.
type BrokerStats struct {
	Subscribers int   `json:"subscribers"`
	Published   int64 `json:"published"`
	Dropped     int64 `json:"dropped"`
}

// Stats returns broker counters.
func (b *Broker) Stats() BrokerStats {
	b.mu.Lock()
	n := len(b.subs)
	b.mu.Unlock()
	return BrokerStats{
		Subscribers: n,
		Published:   b.published.Load(),
		Dropped:     b.dropped.Load(),
	}
}

// SubscriberCount returns the number of subscribers on topic.
func (b *Broker) SubscriberCount(topic string) int { return b.topics.count(topic) }

func (b *Broker) publish(evt *Event) {
	for _, sub := range b.topics.targets(topicsFor(evt)) {
		if sub.send(evt) {
			b.published.Add(1)
		} else if sub.filter == nil || sub.filter(evt) {
			b.dropped.Add(1)
		}
	}
}

func (b *Broker) requestEvent(t EventType, r *request.Request, data RequestEventData) {
	data.RequestID = r.ID.String()
	data.RequesterID = r.RequesterID
	b.publish(&Event{
		Type:      t,
		Timestamp: b.now().UTC(),
		Topic:     RequestTopic(data.RequestID),
		ChannelID: r.ChannelID,
		Data:      mustMarshal(data),
	})
}

func (b *Broker) jobEvent(t EventType, j *job.Job, data JobEventData) {
	data.JobID = j.ID.String()
	data.RequestID = j.RequestID
	data.Queue = j.Queue
	evt := &Event{
		Type:      t,
		Timestamp: b.now().UTC(),
		Data:      mustMarshal(data),
	}
	if j.RequestID != "" {
		evt.Topic = RequestTopic(j.RequestID)
	}
	b.publish(evt)
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic("stream: marshal event data: " + err.Error())
	}
	return data
}

// ── Request lifecycle hooks ─────────────────────────

func (b *Broker) OnRequestStarted(_ context.Context, r *request.Request) error {
	b.requestEvent(EventRequestStarted, r, RequestEventData{Holder: r.Current})
	return nil
}

func (b *Broker) OnRequestAdvanced(_ context.Context, r *request.Request, from string, reason ext.Reason) error {
	b.requestEvent(EventRequestAdvanced, r, RequestEventData{
		Holder: r.Current,
		From:   from,
		Reason: string(reason),
	})
	return nil
}

func (b *Broker) OnRejectionRecorded(_ context.Context, r *request.Request, user string) error {
	b.requestEvent(EventRejection, r, RequestEventData{
		Holder:   r.Current,
		User:     user,
		Rejected: r.Rejected,
	})
	return nil
}

func (b *Broker) OnRequestAccepted(_ context.Context, r *request.Request, user string) error {
	b.requestEvent(EventRequestAccepted, r, RequestEventData{User: user})
	return nil
}

func (b *Broker) OnRequestExhausted(_ context.Context, r *request.Request, reason ext.Reason) error {
	b.requestEvent(EventRequestExhausted, r, RequestEventData{
		Reason:   string(reason),
		Rejected: r.Rejected,
	})
	return nil
}

func (b *Broker) OnResponseExpired(_ context.Context, requestID id.RequestID, user string) error {
	data := RequestEventData{User: user}
	evt := &Event{Type: EventResponseExpired, Timestamp: b.now().UTC()}
	if !requestID.IsNil() {
		data.RequestID = requestID.String()
		evt.Topic = RequestTopic(data.RequestID)
	}
	evt.Data = mustMarshal(data)
	b.publish(evt)
	return nil
}

// ── Job lifecycle hooks ─────────────────────────────

func (b *Broker) OnJobScheduled(_ context.Context, j *job.Job) error {
	b.jobEvent(EventJobScheduled, j, JobEventData{RunAt: j.RunAt.UTC().Format(time.RFC3339)})
	return nil
}

func (b *Broker) OnJobStarted(_ context.Context, j *job.Job) error {
	b.jobEvent(EventJobStarted, j, JobEventData{Attempt: j.RetryCount + 1})
	return nil
}

func (b *Broker) OnJobCompleted(_ context.Context, j *job.Job, elapsed time.Duration) error {
	b.jobEvent(EventJobCompleted, j, JobEventData{ElapsedMs: elapsed.Milliseconds()})
	return nil
}

func (b *Broker) OnJobRetrying(_ context.Context, j *job.Job, attempt int, nextRunAt time.Time) error {
	b.jobEvent(EventJobRetrying, j, JobEventData{
		Attempt: attempt,
		RunAt:   nextRunAt.UTC().Format(time.RFC3339),
	})
	return nil
}

func (b *Broker) OnJobFailed(_ context.Context, j *job.Job, jobErr error) error {
	b.jobEvent(EventJobFailed, j, JobEventData{Error: jobErr.Error()})
	return nil
}

// ── Shutdown ────────────────────────────────────────

func (b *Broker) OnShutdown(_ context.Context) error {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string]*Subscriber)
	b.mu.Unlock()

	for subID, sub := range subs {
		b.topics.removeAll(subID)
		sub.close()
	}
	b.logger.Info("stream broker shut down", slog.Int("subscribers", len(subs)))
	return nil
}
