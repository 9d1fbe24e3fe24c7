package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"govsync/internal/auth"
	domaingov "govsync/internal/domain/governance"
	"govsync/internal/errs"
	"govsync/internal/infrastructure/events"
	"govsync/internal/ports"
	govuc "govsync/internal/usecase/governance"
)

type fakeService struct {
	proposal   domaingov.Proposal
	vote       domaingov.VoteRecord
	err        error
	lastVote   govuc.CastVoteInput
	lastEnsure govuc.EnsureProposalInput
	lastList   govuc.ListProposalsInput
}

func (f *fakeService) GetProposal(context.Context, string, string) (domaingov.Proposal, error) {
	return f.proposal, f.err
}

func (f *fakeService) EnsureProposal(_ context.Context, input govuc.EnsureProposalInput) (domaingov.Proposal, error) {
	f.lastEnsure = input
	return f.proposal, f.err
}

func (f *fakeService) ListProposals(_ context.Context, input govuc.ListProposalsInput) ([]domaingov.Proposal, error) {
	f.lastList = input
	if f.err != nil {
		return nil, f.err
	}
	return []domaingov.Proposal{f.proposal}, nil
}

func (f *fakeService) CastVote(_ context.Context, input govuc.CastVoteInput) (domaingov.VoteRecord, error) {
	f.lastVote = input
	return f.vote, f.err
}

func (f *fakeService) GetVote(context.Context, string, string, string) (domaingov.VoteRecord, error) {
	return f.vote, f.err
}

func (f *fakeService) LastReconciledAt(context.Context) (time.Time, bool, error) {
	return time.Time{}, false, nil
}

func newTestAPI(t *testing.T, svc *fakeService, opts Options) (http.Handler, *auth.Tokens) {
	t.Helper()
	tokens, err := auth.NewTokens("test-secret", "", time.Hour)
	if err != nil {
		t.Fatalf("NewTokens() error = %v", err)
	}
	if opts.Tokens == nil {
		opts.Tokens = tokens
	}
	return New(svc, opts).Handler(), tokens
}

func doRequest(h http.Handler, method string, path string, body string, token string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return resp
}

func sampleProposal() domaingov.Proposal {
	return domaingov.Proposal{
		ID:               "p-1",
		ScopeID:          "dao",
		RequestID:        "7",
		Category:         domaingov.CategoryTransfer,
		ThresholdPct:     75,
		TotalVotingPower: 1000,
		Status:           domaingov.ProposalActive,
		SignalState:      domaingov.SignalNone,
	}
}

func TestCastVoteUsesTokenPrincipal(t *testing.T) {
	svc := &fakeService{vote: domaingov.VoteRecord{ID: "v-1", Principal: "alice", Choice: domaingov.VoteYes, Weight: 400}}
	h, tokens := newTestAPI(t, svc, Options{})
	token, _, err := tokens.Issue("alice", nil, 0)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	rec := doRequest(h, http.MethodPost, "/v1/scopes/dao/requests/7/votes", `{"choice":"approve"}`, token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if svc.lastVote.Principal != "alice" || svc.lastVote.Choice != domaingov.VoteYes || svc.lastVote.ScopeID != "dao" || svc.lastVote.RequestID != "7" {
		t.Fatalf("CastVote input = %+v", svc.lastVote)
	}

	var vote voteResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &vote); err != nil {
		t.Fatalf("decode vote: %v", err)
	}
	if vote.Weight != 400 || vote.Choice != "yes" {
		t.Fatalf("vote = %+v", vote)
	}
}

func TestWriteRoutesRequireAuthentication(t *testing.T) {
	h, tokens := newTestAPI(t, &fakeService{}, Options{})

	if rec := doRequest(h, http.MethodPost, "/v1/scopes/dao/requests/7/votes", `{"choice":"yes"}`, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d", rec.Code)
	}
	if rec := doRequest(h, http.MethodPost, "/v1/scopes/dao/requests/7/votes", `{"choice":"yes"}`, "garbage"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d", rec.Code)
	}

	scoped, _, err := tokens.Issue("alice", []string{"other"}, 0)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if rec := doRequest(h, http.MethodPost, "/v1/scopes/dao/requests/7/votes", `{"choice":"yes"}`, scoped); rec.Code != http.StatusForbidden {
		t.Fatalf("wrong scope status = %d", rec.Code)
	}

	if rec := doRequest(h, http.MethodGet, "/v1/scopes/dao/requests/7/proposal", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("read without token status = %d", rec.Code)
	}
}

func TestServiceErrorsMapToStatus(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		status    int
		code      string
		retryable bool
	}{
		{"not found", domaingov.ErrProposalNotFound, http.StatusNotFound, "proposal_not_found", false},
		{"not active", domaingov.ErrProposalNotActive, http.StatusConflict, "proposal_not_active", false},
		{"expired", domaingov.ErrProposalExpired, http.StatusConflict, "proposal_expired", false},
		{"no power", domaingov.ErrNoVotingPower, http.StatusForbidden, "no_voting_power", false},
		{"oracle down", fmt.Errorf("%w: %w", domaingov.ErrVotingPowerUnavailable, errs.Retryable(errors.New("dial"))), http.StatusServiceUnavailable, "voting_power_unavailable", true},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "internal", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, tokens := newTestAPI(t, &fakeService{err: tc.err}, Options{})
			token, _, err := tokens.Issue("alice", nil, 0)
			if err != nil {
				t.Fatalf("Issue() error = %v", err)
			}
			rec := doRequest(h, http.MethodPost, "/v1/scopes/dao/requests/7/votes", `{"choice":"no"}`, token)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			resp := decodeError(t, rec)
			if resp.Code != tc.code || resp.Retryable != tc.retryable {
				t.Fatalf("error body = %+v", resp)
			}
		})
	}
}

func TestAlreadyVotedReturnsExistingVote(t *testing.T) {
	existing := domaingov.VoteRecord{ID: "v-1", Principal: "alice", Choice: domaingov.VoteYes, Weight: 400}
	h, tokens := newTestAPI(t, &fakeService{err: &domaingov.AlreadyVotedError{Existing: existing}}, Options{})
	token, _, err := tokens.Issue("alice", nil, 0)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	rec := doRequest(h, http.MethodPost, "/v1/scopes/dao/requests/7/votes", `{"choice":"no"}`, token)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeError(t, rec)
	if resp.Code != "already_voted" || resp.Existing == nil || resp.Existing.Choice != "yes" {
		t.Fatalf("error body = %+v", resp)
	}
}

func TestCastVoteRejectsBadBody(t *testing.T) {
	h, tokens := newTestAPI(t, &fakeService{}, Options{})
	token, _, err := tokens.Issue("alice", nil, 0)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if rec := doRequest(h, http.MethodPost, "/v1/scopes/dao/requests/7/votes", `{"choice":"maybe"}`, token); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid choice status = %d", rec.Code)
	}
	if rec := doRequest(h, http.MethodPost, "/v1/scopes/dao/requests/7/votes", `{"choice":"yes","weight":9}`, token); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown field status = %d", rec.Code)
	}
}

func TestEnsureProposalPassesProposer(t *testing.T) {
	svc := &fakeService{proposal: sampleProposal()}
	h, tokens := newTestAPI(t, svc, Options{})
	token, _, err := tokens.Issue("alice", nil, 0)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	rec := doRequest(h, http.MethodPost, "/v1/scopes/dao/requests/7/proposal", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if svc.lastEnsure.Proposer != "alice" || svc.lastEnsure.RequestID != "7" {
		t.Fatalf("EnsureProposal input = %+v", svc.lastEnsure)
	}

	var p proposalResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode proposal: %v", err)
	}
	if p.RequiredYes != 750 || p.RiskTier != string(domaingov.TierForPct(75)) {
		t.Fatalf("proposal = %+v", p)
	}
}

func TestListProposalsParsesFilters(t *testing.T) {
	svc := &fakeService{proposal: sampleProposal()}
	h, _ := newTestAPI(t, svc, Options{})

	rec := doRequest(h, http.MethodGet, "/v1/scopes/dao/proposals?status=active,passed&limit=10", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(svc.lastList.Statuses) != 2 || svc.lastList.Limit != 10 || svc.lastList.ScopeID != "dao" {
		t.Fatalf("ListProposals input = %+v", svc.lastList)
	}

	if rec := doRequest(h, http.MethodGet, "/v1/scopes/dao/proposals?status=bogus", "", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad status filter = %d", rec.Code)
	}
}

func TestRateLimitPerPrincipal(t *testing.T) {
	h, tokens := newTestAPI(t, &fakeService{}, Options{RateLimitRPS: 0.001, RateLimitBurst: 1})
	alice, _, _ := tokens.Issue("alice", nil, 0)
	bob, _, _ := tokens.Issue("bob", nil, 0)

	if rec := doRequest(h, http.MethodPost, "/v1/scopes/dao/requests/7/votes", `{"choice":"yes"}`, alice); rec.Code != http.StatusCreated {
		t.Fatalf("first status = %d", rec.Code)
	}
	if rec := doRequest(h, http.MethodPost, "/v1/scopes/dao/requests/7/votes", `{"choice":"yes"}`, alice); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d", rec.Code)
	}
	if rec := doRequest(h, http.MethodPost, "/v1/scopes/dao/requests/7/votes", `{"choice":"yes"}`, bob); rec.Code != http.StatusCreated {
		t.Fatalf("other principal status = %d", rec.Code)
	}
}

func TestMetricsEndpointCountsRequests(t *testing.T) {
	metrics := events.NewMetrics()
	h, _ := newTestAPI(t, &fakeService{proposal: sampleProposal()}, Options{Metrics: metrics})

	doRequest(h, http.MethodGet, "/v1/scopes/dao/requests/7/proposal", "", "")
	rec := doRequest(h, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `route="/v1/scopes/{scope}/requests/{request}/proposal"`) {
		t.Fatalf("metrics missing route label:\n%s", rec.Body.String())
	}
}

func TestStreamDeliversScopedEvents(t *testing.T) {
	hub := events.NewHub()
	h, _ := newTestAPI(t, &fakeService{}, Options{Hub: hub})
	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/stream?scope=dao"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("stream never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	ctx := context.Background()
	_ = hub.Publish(ctx, ports.GovernanceEvent{Kind: ports.EventVoteCast, ScopeID: "other", ProposalID: "skip"})
	_ = hub.Publish(ctx, ports.GovernanceEvent{Kind: ports.EventVoteCast, ScopeID: "dao", ProposalID: "p-1"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got ports.GovernanceEvent
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if got.ProposalID != "p-1" || got.Kind != ports.EventVoteCast {
		t.Fatalf("event = %+v", got)
	}
}
