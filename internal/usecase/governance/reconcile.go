package governance

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"govsync/internal/bootstrap/logging"
	domaingov "govsync/internal/domain/governance"
	"govsync/internal/errs"
	"govsync/internal/ports"
)

var openStatuses = []domaingov.ProposalStatus{
	domaingov.ProposalActive,
	domaingov.ProposalPassed,
	domaingov.ProposalRejected,
	domaingov.ProposalExpired,
}

// ReconcileOnce runs one reconciliation tick: bulk materialization for the configured
// scopes, then a sync of every non-executed proposal against its external request.
// Per-proposal failures are logged and counted; they never stop the tick.
func (s *Service) ReconcileOnce(ctx context.Context) (ReconcileResult, error) {
	if err := s.checkReady(ctx); err != nil {
		return ReconcileResult{}, err
	}
	if err := s.checkCollaborators(); err != nil {
		return ReconcileResult{}, err
	}
	ctx = serviceCtx(ctx, "reconcile")
	started := s.now()

	var result ReconcileResult
	for _, scopeID := range s.opts.Scopes {
		scopeID = strings.TrimSpace(scopeID)
		if scopeID == "" {
			continue
		}
		created, err := s.EnsureProposalsForScope(ctx, scopeID)
		result.Materialized += created
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, errs.Wrap(ctxErr, "check context")
			}
			result.Failed++
			logging.Warn(ctx, "scope materialization incomplete",
				slog.String("scope_id", scopeID),
				slog.Any("err", errs.Loggable(err)),
			)
		}
	}

	open, err := s.repo.ListProposals(ctx, ports.ProposalFilter{Statuses: openStatuses})
	if err != nil {
		return result, err
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.ReconcileConcurrency)
	for _, p := range open {
		g.Go(func() error {
			outcome, err := s.reconcileProposal(gctx, p)

			mu.Lock()
			defer mu.Unlock()
			result.Checked++
			if outcome.transitioned {
				result.Transitioned++
			}
			if outcome.executed {
				result.Executed++
			}
			if outcome.signalled {
				result.SignalsSent++
			}
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				result.Failed++
				logging.Warn(logging.WithProposal(gctx, p.ScopeID, p.RequestID), "reconcile proposal failed",
					slog.String("proposal_id", p.ID),
					slog.Any("err", errs.Loggable(err)),
				)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, errs.Wrap(err, "reconcile proposals")
	}

	s.setCacheBestEffort(ctx, cacheLastReconcileKey, started.Format(time.RFC3339Nano))
	logging.Debug(ctx, "reconcile tick done",
		slog.Int("materialized", result.Materialized),
		slog.Int("checked", result.Checked),
		slog.Int("transitioned", result.Transitioned),
		slog.Int("executed", result.Executed),
		slog.Int("signals_sent", result.SignalsSent),
		slog.Int("failed", result.Failed),
	)
	return result, nil
}

// LastReconciledAt reports when the last successful tick started.
func (s *Service) LastReconciledAt(ctx context.Context) (time.Time, bool, error) {
	if s.cache == nil {
		return time.Time{}, false, nil
	}
	raw, ok, err := s.cache.Get(ctx, cacheLastReconcileKey)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, errs.Wrapf(err, "parse %s", cacheLastReconcileKey)
	}
	return at, true, nil
}

type reconcileOutcome struct {
	transitioned bool
	executed     bool
	signalled    bool
}

func (s *Service) reconcileProposal(ctx context.Context, p domaingov.Proposal) (reconcileOutcome, error) {
	var outcome reconcileOutcome
	ctx = logging.WithProposal(ctx, p.ScopeID, p.RequestID)

	req, err := s.requests.GetRequest(ctx, p.ScopeID, p.RequestID)
	if err != nil {
		return outcome, requestSourceError(err)
	}

	if _, settle := domaingov.ObserveRequest(p, req.Status); settle {
		ok, err := s.markExecuted(ctx, p)
		if err != nil {
			return outcome, err
		}
		if ok {
			if p.Status == domaingov.ProposalActive {
				logging.Info(ctx, "request settled outside governance",
					slog.String("proposal_id", p.ID),
					slog.String("request_status", string(req.Status)),
				)
			}
			outcome.transitioned = true
			outcome.executed = true
		}
		return outcome, nil
	}

	switch {
	case p.Status == domaingov.ProposalActive:
		updated, err := s.evaluate(ctx, p.ID)
		if err != nil {
			return outcome, err
		}
		outcome.transitioned = updated.Status != p.Status
		outcome.signalled = updated.SignalState == domaingov.SignalSent
	case p.SignalState == domaingov.SignalPending || p.SignalState == domaingov.SignalSending:
		updated, err := s.deliverSignal(ctx, p)
		if err != nil {
			return outcome, err
		}
		outcome.signalled = updated.SignalState == domaingov.SignalSent
	}
	return outcome, nil
}
