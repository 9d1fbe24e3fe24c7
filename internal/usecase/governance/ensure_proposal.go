package governance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"govsync/internal/bootstrap/logging"
	domaingov "govsync/internal/domain/governance"
	"govsync/internal/errs"
	"govsync/internal/ids"
	"govsync/internal/ports"
)

// EnsureProposal returns the proposal for (scope, request), materializing it from the
// request source on first use. Concurrent callers converge on a single proposal.
func (s *Service) EnsureProposal(ctx context.Context, input EnsureProposalInput) (domaingov.Proposal, error) {
	if err := s.checkReady(ctx); err != nil {
		return domaingov.Proposal{}, err
	}
	scopeID, requestID, err := normalizeKey(input.ScopeID, input.RequestID)
	if err != nil {
		return domaingov.Proposal{}, err
	}
	ctx = logging.WithProposal(serviceCtx(ctx, "ensure_proposal"), scopeID, requestID)

	existing, err := s.repo.GetProposalByKey(ctx, scopeID, requestID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domaingov.ErrProposalNotFound) {
		return domaingov.Proposal{}, err
	}

	if err := s.checkCollaborators(); err != nil {
		return domaingov.Proposal{}, err
	}

	req, err := s.requests.GetRequest(ctx, scopeID, requestID)
	if err != nil {
		return domaingov.Proposal{}, requestSourceError(err)
	}
	if hint := strings.TrimSpace(input.Category); hint != "" && !strings.EqualFold(hint, string(categoryOf(req))) {
		logging.Warn(ctx, "caller category differs from request",
			slog.String("hint", hint),
			slog.String("category", string(categoryOf(req))),
		)
	}

	if proposer := strings.TrimSpace(input.Proposer); proposer != "" && s.opts.MinVotingPowerToPropose > 0 {
		power, err := s.oracle.GetVotingPower(ctx, proposer, scopeID)
		if err != nil {
			return domaingov.Proposal{}, oracleError(err)
		}
		if power < s.opts.MinVotingPowerToPropose {
			return domaingov.Proposal{}, fmt.Errorf("%w: %s holds %d, needs %d",
				domaingov.ErrInsufficientVotingPower, proposer, power, s.opts.MinVotingPowerToPropose)
		}
	}

	p, _, err := s.materialize(ctx, req)
	return p, err
}

// EnsureProposalsForScope materializes every open request in the scope that has no
// proposal yet and returns how many were created.
func (s *Service) EnsureProposalsForScope(ctx context.Context, scopeID string) (int, error) {
	if err := s.checkReady(ctx); err != nil {
		return 0, err
	}
	if err := s.checkCollaborators(); err != nil {
		return 0, err
	}
	scopeID = strings.TrimSpace(scopeID)
	if scopeID == "" {
		return 0, domaingov.ErrScopeRequired
	}
	ctx = logging.WithAttrs(serviceCtx(ctx, "ensure_scope"), slog.String("scope_id", scopeID))

	open, err := s.requests.ListOpenRequests(ctx, scopeID)
	if err != nil {
		return 0, requestSourceError(err)
	}

	created := 0
	var failures []error
	for _, req := range open {
		if err := ctx.Err(); err != nil {
			return created, errs.Wrap(err, "check context")
		}
		if req.ScopeID == "" {
			req.ScopeID = scopeID
		}
		if _, err := s.repo.GetProposalByKey(ctx, req.ScopeID, req.ID); err == nil {
			continue
		} else if !errors.Is(err, domaingov.ErrProposalNotFound) {
			return created, err
		}

		_, inserted, err := s.materialize(logging.WithProposal(ctx, req.ScopeID, req.ID), req)
		if err != nil {
			logging.Warn(ctx, "materialize proposal failed",
				slog.String("request_id", req.ID),
				slog.Any("err", errs.Loggable(err)),
			)
			failures = append(failures, errs.Wrapf(err, "request %s", req.ID))
			continue
		}
		if inserted {
			created++
		}
	}
	return created, errors.Join(failures...)
}

// materialize snapshots the scope's total voting power and inserts the proposal if absent.
func (s *Service) materialize(ctx context.Context, req domaingov.ExternalRequest) (domaingov.Proposal, bool, error) {
	if !req.Status.Votable() {
		return domaingov.Proposal{}, false, fmt.Errorf("%w: request %s is %s",
			domaingov.ErrInvalidRequestState, req.ID, req.Status)
	}

	total, err := s.oracle.TotalVotingPower(ctx, req.ScopeID)
	if err != nil {
		return domaingov.Proposal{}, false, oracleError(err)
	}
	if total == 0 {
		return domaingov.Proposal{}, false, fmt.Errorf("%w: scope %s", domaingov.ErrZeroVotingPower, req.ScopeID)
	}
	if total > domaingov.MaxWeight {
		return domaingov.Proposal{}, false, fmt.Errorf("%w: total voting power %d", domaingov.ErrInvalidWeight, total)
	}

	now := s.now()
	category := categoryOf(req)
	threshold := domaingov.ResolveThreshold(category)
	p := domaingov.Proposal{
		ID:               ids.NewProposalID(),
		ScopeID:          req.ScopeID,
		RequestID:        req.ID,
		OperationType:    req.OperationType,
		Category:         category,
		ThresholdPct:     threshold.Pct,
		TotalVotingPower: total,
		Status:           domaingov.ProposalActive,
		SignalState:      domaingov.SignalNone,
		CreatedAt:        now,
		ExpiresAt:        domaingov.ExpiresAt(req, now),
		UpdatedAt:        now,
	}

	stored, inserted, err := s.repo.InsertProposalIfAbsent(ctx, p)
	if err != nil {
		return domaingov.Proposal{}, false, err
	}
	if inserted {
		logging.Info(ctx, "proposal created",
			slog.String("proposal_id", stored.ID),
			slog.String("category", string(stored.Category)),
			slog.Int("threshold_pct", int(stored.ThresholdPct)),
			slog.Uint64("total_voting_power", stored.TotalVotingPower),
			slog.Time("expires_at", stored.ExpiresAt),
		)
		s.publishBestEffort(ctx, proposalEvent(ports.EventProposalCreated, stored, now))
	}
	return stored, inserted, nil
}

func categoryOf(req domaingov.ExternalRequest) domaingov.OperationCategory {
	if req.Category != "" {
		return req.Category
	}
	return domaingov.ParseOperationCategory(req.OperationType)
}
