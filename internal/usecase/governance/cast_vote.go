package governance

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"govsync/internal/bootstrap/logging"
	domaingov "govsync/internal/domain/governance"
	"govsync/internal/errs"
	"govsync/internal/ids"
	"govsync/internal/ports"
)

// CastVote records principal's weighted vote and then evaluates the proposal.
// The vote is durable once this returns nil, even if evaluation failed.
func (s *Service) CastVote(ctx context.Context, input CastVoteInput) (domaingov.VoteRecord, error) {
	if err := s.checkReady(ctx); err != nil {
		return domaingov.VoteRecord{}, err
	}
	if err := s.checkCollaborators(); err != nil {
		return domaingov.VoteRecord{}, err
	}
	scopeID, requestID, err := normalizeKey(input.ScopeID, input.RequestID)
	if err != nil {
		return domaingov.VoteRecord{}, err
	}
	principal := strings.TrimSpace(input.Principal)
	if principal == "" {
		return domaingov.VoteRecord{}, domaingov.ErrPrincipalRequired
	}
	if input.Choice != domaingov.VoteYes && input.Choice != domaingov.VoteNo {
		return domaingov.VoteRecord{}, domaingov.ErrInvalidChoice
	}
	ctx = logging.WithAttrs(
		logging.WithProposal(serviceCtx(ctx, "cast_vote"), scopeID, requestID),
		slog.String("principal", principal),
	)

	p, err := s.repo.GetProposalByKey(ctx, scopeID, requestID)
	if err != nil {
		return domaingov.VoteRecord{}, err
	}

	// Status and deadline are re-checked inside the ledger transaction; checking
	// here first avoids an oracle call for a vote that cannot count.
	now := s.now()
	if p.Status != domaingov.ProposalActive {
		return domaingov.VoteRecord{}, domaingov.ErrProposalNotActive
	}
	if now.After(p.ExpiresAt) {
		return domaingov.VoteRecord{}, domaingov.ErrProposalExpired
	}

	weight, err := s.oracle.GetVotingPower(ctx, principal, scopeID)
	if err != nil {
		return domaingov.VoteRecord{}, oracleError(err)
	}

	vote, updated, err := s.repo.CastVote(ctx, ports.VoteCast{
		VoteID:     ids.NewVoteID(now),
		ProposalID: p.ID,
		Principal:  principal,
		Choice:     input.Choice,
		Weight:     weight,
		CastAt:     now,
	})
	if err != nil {
		var already *domaingov.AlreadyVotedError
		if errors.As(err, &already) {
			logging.Info(ctx, "duplicate vote refused", slog.String("existing_choice", string(already.Existing.Choice)))
		}
		return domaingov.VoteRecord{}, err
	}

	logging.Info(ctx, "vote recorded",
		slog.String("proposal_id", updated.ID),
		slog.String("choice", string(vote.Choice)),
		slog.Uint64("weight", vote.Weight),
		slog.Uint64("yes_votes", updated.YesVotes),
		slog.Uint64("no_votes", updated.NoVotes),
	)
	event := proposalEvent(ports.EventVoteCast, updated, now)
	event.Principal = vote.Principal
	event.Choice = string(vote.Choice)
	event.Weight = vote.Weight
	s.publishBestEffort(ctx, event)

	if _, err := s.evaluate(ctx, updated.ID); err != nil {
		logging.Error(ctx, "evaluate after vote failed",
			slog.String("proposal_id", updated.ID),
			slog.Any("err", errs.Loggable(err)),
		)
	}
	return vote, nil
}
