package governance

import (
	"math"
	"math/big"
	"time"
)

// MaxWeight bounds weights and tallies so they fit a signed 64-bit column.
const MaxWeight uint64 = math.MaxInt64

// CheckVotePreconditions applies the cast checks in order, first failure wins.
// The uniqueness check is left to the ledger's insert.
func CheckVotePreconditions(p Proposal, now time.Time, weight uint64) error {
	if p.Status != ProposalActive {
		return ErrProposalNotActive
	}
	if now.After(p.ExpiresAt) {
		return ErrProposalExpired
	}
	if weight == 0 {
		return ErrNoVotingPower
	}
	if weight > MaxWeight {
		return ErrInvalidWeight
	}
	return nil
}

// AddTally returns p's tally after adding weight to choice.
func AddTally(p Proposal, choice VoteChoice, weight uint64) (yes uint64, no uint64, err error) {
	yes, no = p.YesVotes, p.NoVotes
	switch choice {
	case VoteYes:
		if yes > MaxWeight-weight {
			return 0, 0, ErrInvalidWeight
		}
		yes += weight
	case VoteNo:
		if no > MaxWeight-weight {
			return 0, 0, ErrInvalidWeight
		}
		no += weight
	default:
		return 0, 0, ErrInvalidChoice
	}
	return yes, no, nil
}

// ReachedThreshold reports yes/total*100 >= pct using exact integer math.
func ReachedThreshold(yes, total uint64, pct uint8) bool {
	if total == 0 {
		return false
	}
	lhs := new(big.Int).Mul(new(big.Int).SetUint64(yes), big.NewInt(100))
	rhs := new(big.Int).Mul(new(big.Int).SetUint64(total), big.NewInt(int64(pct)))
	return lhs.Cmp(rhs) >= 0
}

// RequiredYes is ceil(total*pct/100).
func RequiredYes(total uint64, pct uint8) uint64 {
	n := new(big.Int).Mul(new(big.Int).SetUint64(total), big.NewInt(int64(pct)))
	n.Add(n, big.NewInt(99))
	n.Quo(n, big.NewInt(100))
	return n.Uint64()
}

// Unreachable reports whether no votes leave too little power for Yes to reach the threshold.
func Unreachable(no, total uint64, pct uint8) bool {
	if total == 0 {
		return false
	}
	required := RequiredYes(total, pct)
	return no > total-required
}

// Evaluate returns the status an active proposal should move to at now.
// Non-active proposals are returned unchanged; executed is only reached by observation.
func Evaluate(p Proposal, now time.Time) ProposalStatus {
	if p.Status != ProposalActive {
		return p.Status
	}
	if ReachedThreshold(p.YesVotes, p.TotalVotingPower, p.ThresholdPct) {
		return ProposalPassed
	}
	if Unreachable(p.NoVotes, p.TotalVotingPower, p.ThresholdPct) {
		return ProposalRejected
	}
	if now.After(p.ExpiresAt) {
		return ProposalExpired
	}
	return ProposalActive
}

// ObserveRequest returns executed when the external request reached a final status
// and the proposal has not been executed yet. Rejected is final for the request source,
// whether governance signalled it or an operator rejected the request directly.
func ObserveRequest(p Proposal, status RequestStatus) (ProposalStatus, bool) {
	if p.Status == ProposalExecuted {
		return p.Status, false
	}
	if status.Terminal() || status == RequestRejected {
		return ProposalExecuted, true
	}
	return p.Status, false
}

// ExpiresAt prefers the request's own expiration and falls back to the category duration.
func ExpiresAt(req ExternalRequest, now time.Time) time.Time {
	if !req.ExpirationDt.IsZero() {
		return req.ExpirationDt.UTC()
	}
	base := req.CreatedAt
	if base.IsZero() {
		base = now
	}
	return base.Add(VotingDuration(req.Category)).UTC()
}

// SignalFor returns the outbound signal state a transition into to starts with.
func SignalFor(to ProposalStatus) SignalState {
	if to == ProposalPassed || to == ProposalRejected {
		return SignalPending
	}
	return SignalNone
}
