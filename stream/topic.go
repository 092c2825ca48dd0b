package stream

import (
	"fmt"
	"strings"
	"sync"
)

// Topics:
//
//	request:<requestID>  one request from start to finish
//	channel:<channelID>  every request raised in a channel
//	requests             all request and response events
//	jobs                 all timeout job events
//	firehose             everything
const (
	TopicRequests = "requests"
	TopicJobs     = "jobs"
	TopicFirehose = "firehose"
)

// RequestTopic returns the topic for a single request.
func RequestTopic(requestID string) string { return "request:" + requestID }

// ChannelTopic returns the topic for a channel.
func ChannelTopic(channelID string) string { return "channel:" + channelID }

// ValidateTopic reports whether topic is one a subscriber may join.
func ValidateTopic(topic string) error {
	switch topic {
	case TopicRequests, TopicJobs, TopicFirehose:
		return nil
	}
	kind, ident, ok := strings.Cut(topic, ":")
	if !ok || ident == "" {
		return fmt.Errorf("stream: invalid topic %q", topic)
	}
	switch kind {
	case "request", "channel":
		return nil
	}
	return fmt.Errorf("stream: unknown topic kind %q", kind)
}

// topicsFor lists every topic evt is published on.
func topicsFor(evt *Event) []string {
	topics := []string{TopicFirehose}
	if strings.HasPrefix(string(evt.Type), "job.") {
		topics = append(topics, TopicJobs)
	} else {
		topics = append(topics, TopicRequests)
	}
	if evt.Topic != "" {
		topics = append(topics, evt.Topic)
	}
	if evt.ChannelID != "" {
		topics = append(topics, ChannelTopic(evt.ChannelID))
	}
	return topics
}

// registry maps topics to their subscribers.
type registry struct {
	mu     sync.RWMutex
	topics map[string]map[string]*Subscriber
}

func newRegistry() *registry {
	return &registry{topics: make(map[string]map[string]*Subscriber)}
}

func (r *registry) add(topic string, sub *Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs := r.topics[topic]
	if subs == nil {
		subs = make(map[string]*Subscriber)
		r.topics[topic] = subs
	}
	subs[sub.id] = sub
}

func (r *registry) remove(topic, subID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(topic, subID)
}

func (r *registry) removeAll(subID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for topic := range r.topics {
		r.removeLocked(topic, subID)
	}
}

func (r *registry) removeLocked(topic, subID string) {
	subs := r.topics[topic]
	delete(subs, subID)
	if len(subs) == 0 {
		delete(r.topics, topic)
	}
}

// targets returns the distinct subscribers on any of topics.
func (r *registry) targets(topics []string) []*Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]*Subscriber)
	for _, t := range topics {
		for subID, sub := range r.topics[t] {
			seen[subID] = sub
		}
	}
	out := make([]*Subscriber, 0, len(seen))
	for _, sub := range seen {
		out = append(out, sub)
	}
	return out
}

func (r *registry) count(topic string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics[topic])
}
