// Package harmony deterministically selects one winning proposal among
// competing agent outputs. Resolution is a pure function of the inputs
// so replays and retries always pick the same winner.
package harmony

import (
	"errors"
	"time"
)

// ErrNoProposals is returned when Resolve is called with no candidates.
var ErrNoProposals = errors.New("harmony: no proposals to resolve")

// Proposal is one competing output offered for resolution.
type Proposal struct {
	AgentID    string
	Priority   int
	Confidence float64
	Timestamp  time.Time
	Payload    map[string]any
}

// Resolve selects exactly one accepted proposal. Tie-break order:
// higher priority, then higher confidence, then later timestamp.
func Resolve(proposals []Proposal) (Proposal, error) {
	if len(proposals) == 0 {
		return Proposal{}, ErrNoProposals
	}
	winner := proposals[0]
	for _, p := range proposals[1:] {
		if outranks(p, winner) {
			winner = p
		}
	}
	return winner, nil
}

func outranks(a, b Proposal) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return a.Timestamp.After(b.Timestamp)
}
