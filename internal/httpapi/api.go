package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"govsync/internal/auth"
	domaingov "govsync/internal/domain/governance"
	"govsync/internal/infrastructure/events"
	govuc "govsync/internal/usecase/governance"
)

// GovernanceService is the subset of the governance usecases served over HTTP.
type GovernanceService interface {
	GetProposal(ctx context.Context, scopeID string, requestID string) (domaingov.Proposal, error)
	EnsureProposal(ctx context.Context, input govuc.EnsureProposalInput) (domaingov.Proposal, error)
	ListProposals(ctx context.Context, input govuc.ListProposalsInput) ([]domaingov.Proposal, error)
	CastVote(ctx context.Context, input govuc.CastVoteInput) (domaingov.VoteRecord, error)
	GetVote(ctx context.Context, scopeID string, requestID string, principal string) (domaingov.VoteRecord, error)
	LastReconciledAt(ctx context.Context) (time.Time, bool, error)
}

type Options struct {
	// Tokens enables bearer authentication for writes. Without it the caller
	// names itself in the X-Principal header, which is only fit for local use.
	Tokens *auth.Tokens

	Hub     *events.Hub
	Metrics *events.Metrics

	RateLimitRPS   float64
	RateLimitBurst int
}

type API struct {
	svc     GovernanceService
	tokens  *auth.Tokens
	hub     *events.Hub
	metrics *events.Metrics
	limiter *principalLimiter
}

func New(svc GovernanceService, opts Options) *API {
	return &API{
		svc:     svc,
		tokens:  opts.Tokens,
		hub:     opts.Hub,
		metrics: opts.Metrics,
		limiter: newPrincipalLimiter(opts.RateLimitRPS, opts.RateLimitBurst),
	}
}

// Handler builds the router.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(a.recoverer)
	r.Use(a.logRequests)
	r.Use(a.instrument)

	r.Get("/healthz", a.health)
	if a.metrics != nil {
		r.Method(http.MethodGet, "/metrics", a.metrics.Handler())
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Get("/stream", a.stream)
		v1.Route("/scopes/{scope}", func(sr chi.Router) {
			sr.Get("/proposals", a.listProposals)
			sr.Route("/requests/{request}", func(rr chi.Router) {
				rr.Get("/proposal", a.getProposal)
				rr.Get("/votes/{principal}", a.getVote)

				rr.Group(func(w chi.Router) {
					w.Use(a.authenticate)
					w.Use(a.rateLimit)
					w.Post("/proposal", a.ensureProposal)
					w.Post("/votes", a.castVote)
				})
			})
		})
	})
	return r
}
