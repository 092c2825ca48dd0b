// Package gateway defines what the rotation engine needs from a chat
// platform: a Directory to resolve who may receive a task and a Notifier
// to deliver prompts and announcements. The platform client itself lives
// outside this module; gateway/memory provides an in-process
// implementation for tests and local runs.
package gateway

import "context"

// Action is a candidate's answer to a prompt.
type Action string

const (
	ActionAccept Action = "accept"
	ActionReject Action = "reject"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	return a == ActionAccept || a == ActionReject
}

// Prompt asks the recipient to accept or reject. CallbackID carries the
// request ID back with the answer.
type Prompt struct {
	CallbackID string
	Actions    []Action
}

// Message is a notification. Quote holds the task text, rendered apart
// from the lead sentence.
type Message struct {
	Text   string
	Quote  string
	Prompt *Prompt
}

// Directory resolves candidate eligibility.
type Directory interface {
	// GroupMembers returns the user IDs of a user group.
	GroupMembers(ctx context.Context, groupID string) ([]string, error)
	// ChannelMembers returns the user IDs of a channel.
	ChannelMembers(ctx context.Context, channelID string) ([]string, error)
	// IsActive reports whether a user account is active.
	IsActive(ctx context.Context, userID string) (bool, error)
}

// Notifier delivers messages.
type Notifier interface {
	// NotifyUser sends a message only userID can see in channelID.
	NotifyUser(ctx context.Context, channelID, userID string, msg Message) error
	// PostChannel sends a message everyone in channelID can see.
	PostChannel(ctx context.Context, channelID string, msg Message) error
}

// Gateway is a full chat platform binding.
type Gateway interface {
	Directory
	Notifier
}
