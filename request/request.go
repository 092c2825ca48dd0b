// Package request defines the persisted state of one in-flight rotation
// and the store contract it is kept in.
package request

import (
	"fmt"
	"slices"

	"github.com/xraph/bystander"
	"github.com/xraph/bystander/id"
)

// MinCandidates is the fewest candidates a request can hold. Rotating a
// task among fewer than two people is meaningless.
const MinCandidates = 2

// Request is the sole persisted entity of a rotation. It is created once
// the candidate list is known, rewritten on every transition and deleted
// on any terminal outcome.
type Request struct {
	bystander.Entity

	ID          id.RequestID `json:"-"`
	RequesterID string       `json:"requester_id"`
	ChannelID   string       `json:"channel_id"`
	Text        string       `json:"text"`

	// Candidates is fixed after the initial shuffle and never reordered.
	Candidates []string `json:"candidates"`

	// Current is the candidate holding the task. Empty means none.
	Current string `json:"current,omitempty"`

	// Rejected lists candidates who declined, in the order they did so.
	// It only grows.
	Rejected []string `json:"rejected"`
}

// HasRejected reports whether user has declined this request.
func (r *Request) HasRejected(user string) bool {
	return slices.Contains(r.Rejected, user)
}

// Reject records that user declined. It returns false if the rejection
// was already recorded.
func (r *Request) Reject(user string) bool {
	if r.HasRejected(user) {
		return false
	}
	r.Rejected = append(r.Rejected, user)
	return true
}

// Next returns the candidate that follows Current in the fixed order and
// has not declined, or "" once the tail is exhausted.
//
// The scan only moves forward and never wraps around: candidates placed
// before the current holder are not asked again, even if they never
// explicitly declined. When Current is not a candidate the scan starts at
// the head of the list.
func (r *Request) Next() string {
	remaining := r.Candidates
	if i := slices.Index(r.Candidates, r.Current); i >= 0 {
		remaining = r.Candidates[i+1:]
	}
	for _, c := range remaining {
		if r.HasRejected(c) {
			continue
		}
		return c
	}
	return ""
}

// Validate checks the structural invariants of a live request.
func (r *Request) Validate() error {
	if len(r.Candidates) < MinCandidates {
		return fmt.Errorf("%w: %d candidates", bystander.ErrInvalidRequest, len(r.Candidates))
	}
	if r.Current == "" {
		return nil
	}
	if !slices.Contains(r.Candidates, r.Current) {
		return fmt.Errorf("%w: current %q is not a candidate", bystander.ErrInvalidRequest, r.Current)
	}
	if r.HasRejected(r.Current) {
		return fmt.Errorf("%w: current %q already rejected", bystander.ErrInvalidRequest, r.Current)
	}
	return nil
}

// Clone returns a deep copy of r.
func (r *Request) Clone() *Request {
	cp := *r
	cp.Candidates = slices.Clone(r.Candidates)
	cp.Rejected = slices.Clone(r.Rejected)
	return &cp
}
