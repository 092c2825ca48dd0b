package candidate

import (
	"context"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/bystander"
	"github.com/xraph/bystander/gateway"
)

// DefaultLookupConcurrency bounds parallel directory calls per Resolve.
const DefaultLookupConcurrency = 8

// Resolver expands and filters mentions against a gateway.Directory.
type Resolver struct {
	dir    gateway.Directory
	logger *slog.Logger
	limit  int
}

// NewResolver returns a Resolver over dir.
func NewResolver(dir gateway.Directory, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{dir: dir, logger: logger, limit: DefaultLookupConcurrency}
}

// SetLookupConcurrency changes how many directory calls run at once.
// Values below 1 mean one at a time.
func (r *Resolver) SetLookupConcurrency(n int) {
	r.limit = max(n, 1)
}

// Resolve returns the eligible candidates for a request: mentioned users
// plus members of mentioned groups, restricted to members of channelID,
// without the requester and without inactive accounts. Order follows first
// appearance.
//
// Any directory failure aborts the whole pipeline with a
// *bystander.GatewayError.
func (r *Resolver) Resolve(ctx context.Context, m Mentions, requesterID, channelID string) ([]string, error) {
	expanded, err := r.groupMembers(ctx, m.Groups)
	if err != nil {
		return nil, err
	}
	users := slices.Clone(m.Users)
	for _, members := range expanded {
		users = union(users, members)
	}

	members, err := r.dir.ChannelMembers(ctx, channelID)
	if err != nil {
		return nil, bystander.NewGatewayError("channel_members", err)
	}
	users = slices.DeleteFunc(users, func(u string) bool {
		return !slices.Contains(members, u)
	})

	users = slices.DeleteFunc(users, func(u string) bool { return u == requesterID })

	active, err := r.activity(ctx, users)
	if err != nil {
		return nil, err
	}
	eligible := users[:0]
	for i, u := range users {
		if active[i] {
			eligible = append(eligible, u)
		}
	}

	r.logger.Debug("candidates resolved",
		slog.String("requester_id", requesterID),
		slog.String("channel_id", channelID),
		slog.Any("users", m.Users),
		slog.Any("groups", m.Groups),
		slog.Any("candidates", eligible),
	)
	return eligible, nil
}

// groupMembers fetches every group concurrently. Results keep the order
// of groups.
func (r *Resolver) groupMembers(ctx context.Context, groups []string) ([][]string, error) {
	out := make([][]string, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.limit)
	for i, group := range groups {
		g.Go(func() error {
			members, err := r.dir.GroupMembers(gctx, group)
			if err != nil {
				return bystander.NewGatewayError("group_members", err)
			}
			out[i] = members
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// activity reports, index for index, whether each user is active.
func (r *Resolver) activity(ctx context.Context, users []string) ([]bool, error) {
	out := make([]bool, len(users))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.limit)
	for i, u := range users {
		g.Go(func() error {
			active, err := r.dir.IsActive(gctx, u)
			if err != nil {
				return bystander.NewGatewayError("is_active", err)
			}
			out[i] = active
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func union(dst, src []string) []string {
	for _, s := range src {
		if !slices.Contains(dst, s) {
			dst = append(dst, s)
		}
	}
	return dst
}
