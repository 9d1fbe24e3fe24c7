package ports

import (
	"context"
	"errors"
	"time"

	"govsync/internal/domain/governance"
)

var ErrVoteNotFound = errors.New("vote not found")

type ProposalFilter struct {
	ScopeID     string
	Statuses    []governance.ProposalStatus
	SignalState governance.SignalState
	Limit       int
}

type VoteCast struct {
	VoteID     string
	ProposalID string
	Principal  string
	Choice     governance.VoteChoice
	Weight     uint64
	CastAt     time.Time
}

type ProposalReadRepository interface {
	GetProposalByKey(ctx context.Context, scopeID string, requestID string) (governance.Proposal, error)
	GetProposalByID(ctx context.Context, proposalID string) (governance.Proposal, error)
	ListProposals(ctx context.Context, filter ProposalFilter) ([]governance.Proposal, error)
	GetVote(ctx context.Context, proposalID string, principal string) (governance.VoteRecord, error)
}

// GovernanceRepository is the vote ledger. It is the only writer of proposals and votes.
type GovernanceRepository interface {
	ProposalReadRepository

	// InsertProposalIfAbsent creates p unless (scope_id, request_id) exists and
	// returns the stored row either way. inserted is false when another writer won.
	InsertProposalIfAbsent(ctx context.Context, p governance.Proposal) (stored governance.Proposal, inserted bool, err error)

	// CastVote checks the proposal, inserts the vote and bumps the tally in one transaction.
	CastVote(ctx context.Context, in VoteCast) (governance.VoteRecord, governance.Proposal, error)

	// TransitionStatus moves a proposal from -> to only if it is still in from.
	// An empty signal leaves signal_state untouched.
	TransitionStatus(ctx context.Context, proposalID string, from governance.ProposalStatus, to governance.ProposalStatus, signal governance.SignalState, at time.Time) (bool, error)

	// ClaimSignal takes a pending approve/reject call, or one stuck in sending since
	// before staleBefore, for a passed or rejected proposal.
	ClaimSignal(ctx context.Context, proposalID string, staleBefore time.Time, at time.Time) (bool, error)

	// FinishSignal records the outcome of a claimed call.
	FinishSignal(ctx context.Context, proposalID string, outcome governance.SignalState, at time.Time) error
}
