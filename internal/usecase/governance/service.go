package governance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"govsync/internal/bootstrap/logging"
	domaingov "govsync/internal/domain/governance"
	"govsync/internal/errs"
	"govsync/internal/ports"
)

const (
	defaultApproveReason    = "Approved by community governance vote"
	defaultRejectReason     = "Rejected by community governance vote"
	defaultSignalLease      = 2 * time.Minute
	defaultReconcileWorkers = 4

	cacheLastReconcileKey = "reconcile:last_tick"
)

type Options struct {
	ApproveReason string
	RejectReason  string

	// MinVotingPowerToPropose applies to EnsureProposal calls that name a proposer.
	MinVotingPowerToPropose uint64

	// Scopes are materialized in bulk on every reconcile tick.
	Scopes []string

	ReconcileConcurrency int

	// SignalLease is how long an approve/reject call may stay in flight before
	// another reconcile tick may retry it.
	SignalLease time.Duration

	Now func() time.Time
}

type Service struct {
	repo     ports.GovernanceRepository
	uow      ports.UnitOfWork
	cache    ports.Cache
	requests ports.RequestSource
	oracle   ports.VotingPowerOracle
	events   ports.EventPublisher
	opts     Options
}

// NewService wires the governance usecases. cache and events are optional.
func NewService(
	repo ports.GovernanceRepository,
	uow ports.UnitOfWork,
	cache ports.Cache,
	requests ports.RequestSource,
	oracle ports.VotingPowerOracle,
	events ports.EventPublisher,
	opts Options,
) *Service {
	if strings.TrimSpace(opts.ApproveReason) == "" {
		opts.ApproveReason = defaultApproveReason
	}
	if strings.TrimSpace(opts.RejectReason) == "" {
		opts.RejectReason = defaultRejectReason
	}
	if opts.ReconcileConcurrency <= 0 {
		opts.ReconcileConcurrency = defaultReconcileWorkers
	}
	if opts.SignalLease <= 0 {
		opts.SignalLease = defaultSignalLease
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		repo:     repo,
		uow:      uow,
		cache:    cache,
		requests: requests,
		oracle:   oracle,
		events:   events,
		opts:     opts,
	}
}

type EnsureProposalInput struct {
	ScopeID   string
	RequestID string
	// Category is advisory; the request source's operation type wins.
	Category string
	// Proposer, when set, must hold MinVotingPowerToPropose in the scope.
	Proposer string
}

type CastVoteInput struct {
	ScopeID   string
	RequestID string
	Principal string
	Choice    domaingov.VoteChoice
}

type ListProposalsInput struct {
	ScopeID  string
	Statuses []domaingov.ProposalStatus
	Limit    int
}

type ReconcileResult struct {
	Materialized int
	Checked      int
	Transitioned int
	Executed     int
	SignalsSent  int
	Failed       int
}

func (s *Service) now() time.Time {
	return s.opts.Now().UTC()
}

func (s *Service) checkReady(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}
	if s.repo == nil {
		return errors.New("governance repository is required")
	}
	if s.uow == nil {
		return errors.New("governance unit of work is required")
	}
	return nil
}

func (s *Service) checkCollaborators() error {
	if s.requests == nil {
		return errors.New("request source is required")
	}
	if s.oracle == nil {
		return errors.New("voting power oracle is required")
	}
	return nil
}

func normalizeKey(scopeID string, requestID string) (string, string, error) {
	scopeID = strings.TrimSpace(scopeID)
	if scopeID == "" {
		return "", "", domaingov.ErrScopeRequired
	}
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return "", "", domaingov.ErrRequestIDRequired
	}
	return scopeID, requestID, nil
}

func (s *Service) publishBestEffort(ctx context.Context, event ports.GovernanceEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		logging.Warn(ctx, "publish governance event failed",
			slog.String("kind", string(event.Kind)),
			slog.String("proposal_id", event.ProposalID),
			slog.Any("err", errs.Loggable(err)),
		)
	}
}

func (s *Service) setCacheBestEffort(ctx context.Context, key string, value string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, 0); err != nil {
		logging.Warn(ctx, "cache set failed", slog.String("key", key), slog.Any("err", errs.Loggable(err)))
	}
}

func proposalEvent(kind ports.GovernanceEventKind, p domaingov.Proposal, at time.Time) ports.GovernanceEvent {
	return ports.GovernanceEvent{
		Kind:       kind,
		ScopeID:    p.ScopeID,
		RequestID:  p.RequestID,
		ProposalID: p.ID,
		Category:   string(p.Category),
		Status:     string(p.Status),
		YesVotes:   p.YesVotes,
		NoVotes:    p.NoVotes,
		At:         at,
	}
}

// oracleError tags oracle failures with ErrVotingPowerUnavailable, keeping the cause.
func oracleError(err error) error {
	if errors.Is(err, domaingov.ErrVotingPowerUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", domaingov.ErrVotingPowerUnavailable, err)
}

func requestSourceError(err error) error {
	if errors.Is(err, domaingov.ErrRequestNotFound) || errors.Is(err, domaingov.ErrRequestSourceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", domaingov.ErrRequestSourceUnavailable, err)
}

func serviceCtx(ctx context.Context, op string) context.Context {
	return logging.WithAttrs(ctx, slog.String("component", "governance"), slog.String("op", op))
}
