package governance

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"govsync/internal/bootstrap/logging"
	domaingov "govsync/internal/domain/governance"
	"govsync/internal/errs"
	"govsync/internal/ports"
)

// EvaluateProposal applies threshold, rejection and expiry rules to an active proposal.
// A proposal that resolves to passed or rejected is signalled to the request source
// exactly once, after the status change is committed.
func (s *Service) EvaluateProposal(ctx context.Context, proposalID string) (domaingov.Proposal, error) {
	if err := s.checkReady(ctx); err != nil {
		return domaingov.Proposal{}, err
	}
	if err := s.checkCollaborators(); err != nil {
		return domaingov.Proposal{}, err
	}
	proposalID = strings.TrimSpace(proposalID)
	if proposalID == "" {
		return domaingov.Proposal{}, errors.New("proposal id is required")
	}
	return s.evaluate(serviceCtx(ctx, "evaluate"), proposalID)
}

func (s *Service) evaluate(ctx context.Context, proposalID string) (domaingov.Proposal, error) {
	var (
		current domaingov.Proposal
		from    domaingov.ProposalStatus
		moved   bool
		raced   bool
	)
	now := s.now()

	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		p, err := s.repo.GetProposalByID(txCtx, proposalID)
		if err != nil {
			return err
		}
		current = p

		next := domaingov.Evaluate(p, now)
		if next == p.Status {
			return nil
		}
		ok, err := s.repo.TransitionStatus(txCtx, p.ID, p.Status, next, domaingov.SignalFor(next), now)
		if err != nil {
			return err
		}
		if !ok {
			raced = true
			return nil
		}
		from = p.Status
		current.Status = next
		current.SignalState = domaingov.SignalFor(next)
		current.UpdatedAt = now
		moved = true
		return nil
	}); err != nil {
		return domaingov.Proposal{}, err
	}

	if raced {
		return s.repo.GetProposalByID(ctx, proposalID)
	}
	if !moved {
		return current, nil
	}

	s.announceTransition(ctx, current, from, now)
	if current.SignalState == domaingov.SignalPending {
		return s.deliverSignal(ctx, current)
	}
	return current, nil
}

// deliverSignal calls approve or reject for a claimed pending signal. Retryable
// failures leave the signal pending for the reconciler; others mark it failed.
func (s *Service) deliverSignal(ctx context.Context, p domaingov.Proposal) (domaingov.Proposal, error) {
	ctx = logging.WithProposal(ctx, p.ScopeID, p.RequestID)
	now := s.now()

	claimed, err := s.repo.ClaimSignal(ctx, p.ID, now.Add(-s.opts.SignalLease), now)
	if err != nil {
		return p, err
	}
	if !claimed {
		return p, nil
	}

	var callErr error
	switch p.Status {
	case domaingov.ProposalPassed:
		callErr = s.requests.ApproveRequest(ctx, p.ScopeID, p.RequestID, s.opts.ApproveReason)
	case domaingov.ProposalRejected:
		callErr = s.requests.RejectRequest(ctx, p.ScopeID, p.RequestID, s.opts.RejectReason)
	}

	outcome := domaingov.SignalSent
	if callErr != nil {
		outcome = domaingov.SignalFailed
		if errs.IsRetryable(callErr) {
			outcome = domaingov.SignalPending
		}
	}
	if err := s.repo.FinishSignal(ctx, p.ID, outcome, s.now()); err != nil {
		if callErr == nil {
			return p, err
		}
		logging.Error(ctx, "record signal outcome failed", slog.Any("err", errs.Loggable(err)))
	}
	p.SignalState = outcome

	if callErr != nil {
		logging.Error(ctx, "signal request source failed",
			slog.String("proposal_id", p.ID),
			slog.String("status", string(p.Status)),
			slog.String("signal_state", string(outcome)),
			slog.Any("err", errs.Loggable(callErr)),
		)
		return p, requestSourceError(callErr)
	}

	logging.Info(ctx, "request source signalled",
		slog.String("proposal_id", p.ID),
		slog.String("status", string(p.Status)),
	)
	s.publishBestEffort(ctx, proposalEvent(ports.EventSignalSent, p, s.now()))
	return p, nil
}

// markExecuted settles p once the request source reports the request as done.
func (s *Service) markExecuted(ctx context.Context, p domaingov.Proposal) (bool, error) {
	now := s.now()
	ok, err := s.repo.TransitionStatus(ctx, p.ID, p.Status, domaingov.ProposalExecuted, "", now)
	if err != nil || !ok {
		return false, err
	}
	from := p.Status
	p.Status = domaingov.ProposalExecuted
	p.UpdatedAt = now
	s.announceTransition(ctx, p, from, now)
	return true, nil
}

func (s *Service) announceTransition(ctx context.Context, p domaingov.Proposal, from domaingov.ProposalStatus, at time.Time) {
	ctx = logging.WithProposal(ctx, p.ScopeID, p.RequestID)
	logging.Info(ctx, "proposal status changed",
		slog.String("proposal_id", p.ID),
		slog.String("from", string(from)),
		slog.String("to", string(p.Status)),
		slog.Uint64("yes_votes", p.YesVotes),
		slog.Uint64("no_votes", p.NoVotes),
		slog.Uint64("total_voting_power", p.TotalVotingPower),
	)
	event := proposalEvent(ports.EventStatusChanged, p, at)
	event.FromStatus = string(from)
	s.publishBestEffort(ctx, event)
}
