package ports

import (
	"context"
	"time"
)

type GovernanceEventKind string

const (
	EventProposalCreated GovernanceEventKind = "proposal.created"
	EventVoteCast        GovernanceEventKind = "vote.cast"
	EventStatusChanged   GovernanceEventKind = "proposal.status"
	EventSignalSent      GovernanceEventKind = "proposal.signal"
)

type GovernanceEvent struct {
	Kind       GovernanceEventKind `json:"kind"`
	ScopeID    string              `json:"scope_id"`
	RequestID  string              `json:"request_id"`
	ProposalID string              `json:"proposal_id"`
	Category   string              `json:"category,omitempty"`
	Status     string              `json:"status,omitempty"`
	FromStatus string              `json:"from_status,omitempty"`
	Principal  string              `json:"principal,omitempty"`
	Choice     string              `json:"choice,omitempty"`
	Weight     uint64              `json:"weight,omitempty"`
	YesVotes   uint64              `json:"yes_votes"`
	NoVotes    uint64              `json:"no_votes"`
	At         time.Time           `json:"at"`
}

// EventPublisher delivers lifecycle events. Publish must not block on slow consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event GovernanceEvent) error
}
