package governance

import "time"

type ExternalRequest struct {
	ID            string
	ScopeID       string
	OperationType string
	Category      OperationCategory
	Status        RequestStatus
	Title         string
	Requester     string
	CreatedAt     time.Time
	ExpirationDt  time.Time
}

type Proposal struct {
	ID               string
	ScopeID          string
	RequestID        string
	OperationType    string
	Category         OperationCategory
	ThresholdPct     uint8
	TotalVotingPower uint64
	YesVotes         uint64
	NoVotes          uint64
	VoterCount       uint64
	Status           ProposalStatus
	SignalState      SignalState
	CreatedAt        time.Time
	ExpiresAt        time.Time
	UpdatedAt        time.Time
}

func (p Proposal) RiskTier() RiskTier {
	return TierForPct(p.ThresholdPct)
}

type VoteRecord struct {
	ID         string
	ProposalID string
	Principal  string
	Choice     VoteChoice
	Weight     uint64
	CastAt     time.Time
}
