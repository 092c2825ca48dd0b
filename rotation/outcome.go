package rotation

import (
	"github.com/xraph/bystander"
	"github.com/xraph/bystander/id"
	"github.com/xraph/bystander/request"
)

// Outcome is the transition a single event produced.
type Outcome int

const (
	// OutcomeStarted: a request was created and its first candidate prompted.
	OutcomeStarted Outcome = iota + 1
	// OutcomeAdvanced: the task moved to the next candidate.
	OutcomeAdvanced
	// OutcomeRecorded: a rejection from someone other than the holder was
	// recorded; the holder is unchanged.
	OutcomeRecorded
	// OutcomeAccepted: someone accepted; the request is gone.
	OutcomeAccepted
	// OutcomeAborted: every remaining candidate declined; the request is gone.
	OutcomeAborted
	// OutcomeGivenUp: the last holder never answered; the request is gone.
	OutcomeGivenUp
	// OutcomeExpired: the request no longer exists (resolved or TTL ran out).
	OutcomeExpired
	// OutcomeStale: a timeout fired for a candidate who is no longer the
	// holder. Nothing changed.
	OutcomeStale
)

var outcomeNames = map[Outcome]string{
	OutcomeStarted:  "started",
	OutcomeAdvanced: "advanced",
	OutcomeRecorded: "recorded",
	OutcomeAccepted: "accepted",
	OutcomeAborted:  "aborted",
	OutcomeGivenUp:  "given_up",
	OutcomeExpired:  "expired",
	OutcomeStale:    "stale",
}

func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return "unknown"
}

// Terminal reports whether the request was deleted by this transition.
func (o Outcome) Terminal() bool {
	return o == OutcomeAccepted || o == OutcomeAborted || o == OutcomeGivenUp
}

// Result describes what one engine call did.
type Result struct {
	Outcome   Outcome
	RequestID id.RequestID

	// Request is a snapshot taken after the transition. It is nil for
	// OutcomeExpired.
	Request *request.Request

	// Holder is the candidate holding the task after the transition, or,
	// for OutcomeAccepted, the user who accepted. Empty otherwise.
	Holder string
}

// Err returns bystander.ErrRequestExpired for OutcomeExpired and nil for
// every other outcome.
func (r Result) Err() error {
	if r.Outcome == OutcomeExpired {
		return bystander.ErrRequestExpired
	}
	return nil
}
