// Package memory implements gateway.Gateway in process. The directory is
// a set of maps, loadable from YAML, and every delivered message is
// recorded. Intended for unit tests and for running bystander locally
// without a chat platform.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/xraph/bystander/gateway"
)

var _ gateway.Gateway = (*Gateway)(nil)

// Directory is the YAML shape of a directory file:
//
//	groups:
//	  S100: [U1, U2]
//	channels:
//	  C1: [U1, U2, U3]
//	inactive: [U3]
type Directory struct {
	Groups   map[string][]string `yaml:"groups"`
	Channels map[string][]string `yaml:"channels"`
	Inactive []string            `yaml:"inactive"`
}

// Delivery is one recorded message.
type Delivery struct {
	ChannelID string
	// UserID is empty for channel posts.
	UserID  string
	Message gateway.Message
}

// Private reports whether the delivery was visible to one user only.
func (d Delivery) Private() bool { return d.UserID != "" }

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger logs every delivery at info level.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// Gateway is an in-memory gateway.Gateway. Safe for concurrent use.
type Gateway struct {
	mu         sync.Mutex
	dir        Directory
	deliveries []Delivery
	failures   map[string]error
	logger     *slog.Logger
}

// New returns a Gateway over dir.
func New(dir Directory, opts ...Option) *Gateway {
	g := &Gateway{
		dir:      dir,
		failures: make(map[string]error),
	}
	if g.dir.Groups == nil {
		g.dir.Groups = make(map[string][]string)
	}
	if g.dir.Channels == nil {
		g.dir.Channels = make(map[string][]string)
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// FromYAML parses a directory document.
func FromYAML(data []byte, opts ...Option) (*Gateway, error) {
	var dir Directory
	if err := yaml.Unmarshal(data, &dir); err != nil {
		return nil, fmt.Errorf("gateway/memory: parse directory: %w", err)
	}
	return New(dir, opts...), nil
}

// Load reads a directory file.
func Load(path string, opts ...Option) (*Gateway, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gateway/memory: read directory: %w", err)
	}
	return FromYAML(data, opts...)
}

// Operation names accepted by FailOn.
const (
	OpGroupMembers   = "group_members"
	OpChannelMembers = "channel_members"
	OpIsActive       = "is_active"
	OpNotifyUser     = "notify_user"
	OpPostChannel    = "post_channel"
)

// FailOn makes every later call to op return err. A nil err clears it.
func (g *Gateway) FailOn(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.failures, op)
		return
	}
	g.failures[op] = err
}

// SetChannel replaces the members of a channel.
func (g *Gateway) SetChannel(channelID string, members ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dir.Channels[channelID] = members
}

// SetGroup replaces the members of a group.
func (g *Gateway) SetGroup(groupID string, members ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dir.Groups[groupID] = members
}

// Deactivate marks users inactive.
func (g *Gateway) Deactivate(users ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dir.Inactive = append(g.dir.Inactive, users...)
}

// GroupMembers implements gateway.Directory.
func (g *Gateway) GroupMembers(_ context.Context, groupID string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failures[OpGroupMembers]; err != nil {
		return nil, err
	}
	members, ok := g.dir.Groups[groupID]
	if !ok {
		return nil, fmt.Errorf("gateway/memory: unknown group %q", groupID)
	}
	return slices.Clone(members), nil
}

// ChannelMembers implements gateway.Directory.
func (g *Gateway) ChannelMembers(_ context.Context, channelID string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failures[OpChannelMembers]; err != nil {
		return nil, err
	}
	members, ok := g.dir.Channels[channelID]
	if !ok {
		return nil, fmt.Errorf("gateway/memory: unknown channel %q", channelID)
	}
	return slices.Clone(members), nil
}

// IsActive implements gateway.Directory.
func (g *Gateway) IsActive(_ context.Context, userID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failures[OpIsActive]; err != nil {
		return false, err
	}
	return !slices.Contains(g.dir.Inactive, userID), nil
}

// NotifyUser implements gateway.Notifier.
func (g *Gateway) NotifyUser(_ context.Context, channelID, userID string, msg gateway.Message) error {
	return g.deliver(OpNotifyUser, Delivery{ChannelID: channelID, UserID: userID, Message: msg})
}

// PostChannel implements gateway.Notifier.
func (g *Gateway) PostChannel(_ context.Context, channelID string, msg gateway.Message) error {
	return g.deliver(OpPostChannel, Delivery{ChannelID: channelID, Message: msg})
}

func (g *Gateway) deliver(op string, d Delivery) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failures[op]; err != nil {
		return err
	}
	g.deliveries = append(g.deliveries, d)
	if g.logger != nil {
		attrs := []any{
			slog.String("channel_id", d.ChannelID),
			slog.String("text", d.Message.Text),
		}
		if d.UserID != "" {
			attrs = append(attrs, slog.String("user_id", d.UserID))
		}
		if d.Message.Quote != "" {
			attrs = append(attrs, slog.String("quote", d.Message.Quote))
		}
		if d.Message.Prompt != nil {
			attrs = append(attrs, slog.String("callback_id", d.Message.Prompt.CallbackID))
		}
		g.logger.Info("message delivered", attrs...)
	}
	return nil
}

// Deliveries returns a copy of every recorded delivery in order.
func (g *Gateway) Deliveries() []Delivery {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.deliveries)
}

// DeliveriesTo returns the private deliveries addressed to userID.
func (g *Gateway) DeliveriesTo(userID string) []Delivery {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []Delivery
	for _, d := range g.deliveries {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	return out
}

// Prompts returns the user IDs that received an accept/reject prompt, in
// order.
func (g *Gateway) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for _, d := range g.deliveries {
		if d.Message.Prompt != nil {
			out = append(out, d.UserID)
		}
	}
	return out
}

// Reset forgets recorded deliveries.
func (g *Gateway) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deliveries = nil
}
