package governance

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	domaingov "govsync/internal/domain/governance"
	"govsync/internal/errs"
	"govsync/internal/infrastructure/cache"
	"govsync/internal/infrastructure/persistence/sqlite/model"
	sqliterepo "govsync/internal/infrastructure/persistence/sqlite/repository"
	sqliteuow "govsync/internal/infrastructure/persistence/sqlite/uow"
	"govsync/internal/ports"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fakeRequests struct {
	mu         sync.Mutex
	requests   map[string]domaingov.ExternalRequest
	approved   int
	rejected   int
	calls      int
	approveErr error
	reasons    []string
}

func newFakeRequests() *fakeRequests {
	return &fakeRequests{requests: make(map[string]domaingov.ExternalRequest)}
}

func (f *fakeRequests) add(req domaingov.ExternalRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests[req.ScopeID+"/"+req.ID] = req
}

func (f *fakeRequests) setStatus(scopeID string, requestID string, status domaingov.RequestStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req := f.requests[scopeID+"/"+requestID]
	req.Status = status
	f.requests[scopeID+"/"+requestID] = req
}

func (f *fakeRequests) GetRequest(_ context.Context, scopeID string, requestID string) (domaingov.ExternalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[scopeID+"/"+requestID]
	if !ok {
		return domaingov.ExternalRequest{}, domaingov.ErrRequestNotFound
	}
	return req, nil
}

func (f *fakeRequests) ListOpenRequests(_ context.Context, scopeID string) ([]domaingov.ExternalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domaingov.ExternalRequest
	for _, req := range f.requests {
		if req.ScopeID == scopeID && req.Status.Votable() {
			out = append(out, req)
		}
	}
	return out, nil
}

func (f *fakeRequests) ApproveRequest(_ context.Context, scopeID string, requestID string, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.approveErr != nil {
		return f.approveErr
	}
	f.approved++
	f.reasons = append(f.reasons, reason)
	return nil
}

func (f *fakeRequests) RejectRequest(_ context.Context, scopeID string, requestID string, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.rejected++
	f.reasons = append(f.reasons, reason)
	return nil
}

func (f *fakeRequests) counts() (approved int, rejected int, calls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.approved, f.rejected, f.calls
}

type fakeOracle struct {
	weights map[string]uint64
	total   uint64
	err     error
}

func (o *fakeOracle) GetVotingPower(_ context.Context, principal string, _ string) (uint64, error) {
	if o.err != nil {
		return 0, o.err
	}
	return o.weights[principal], nil
}

func (o *fakeOracle) TotalVotingPower(context.Context, string) (uint64, error) {
	if o.err != nil {
		return 0, o.err
	}
	return o.total, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []ports.GovernanceEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event ports.GovernanceEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) kinds() []ports.GovernanceEventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ports.GovernanceEventKind, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Kind)
	}
	return out
}

type testEnv struct {
	svc       *Service
	requests  *fakeRequests
	oracle    *fakeOracle
	clock     *testClock
	published *recordingPublisher
	db        *gorm.DB
}

func setupService(t *testing.T, opts Options) *testEnv {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "governance.sqlite")
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(model.All()...); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	env := &testEnv{
		requests: newFakeRequests(),
		oracle: &fakeOracle{
			weights: map[string]uint64{"alice": 400, "bob": 400, "carol": 300, "dave": 50},
			total:   1000,
		},
		clock:     &testClock{now: baseTime.Add(time.Hour)},
		published: &recordingPublisher{},
		db:        db,
	}
	opts.Now = env.clock.Now
	env.svc = NewService(
		sqliterepo.NewGovernanceRepository(db),
		sqliteuow.NewUnitOfWork(db),
		cache.NewKVStore(db),
		env.requests,
		env.oracle,
		env.published,
		opts,
	)
	return env
}

func transferRequest(scopeID string, requestID string) domaingov.ExternalRequest {
	return domaingov.ExternalRequest{
		ID:            requestID,
		ScopeID:       scopeID,
		OperationType: "Transfer",
		Category:      domaingov.CategoryTransfer,
		Status:        domaingov.RequestCreated,
		CreatedAt:     baseTime,
	}
}

func (e *testEnv) ensure(t *testing.T, scopeID string, requestID string) domaingov.Proposal {
	t.Helper()
	p, err := e.svc.EnsureProposal(context.Background(), EnsureProposalInput{ScopeID: scopeID, RequestID: requestID})
	if err != nil {
		t.Fatalf("EnsureProposal() error = %v", err)
	}
	return p
}

func (e *testEnv) vote(scopeID string, requestID string, principal string, choice domaingov.VoteChoice) error {
	_, err := e.svc.CastVote(context.Background(), CastVoteInput{
		ScopeID:   scopeID,
		RequestID: requestID,
		Principal: principal,
		Choice:    choice,
	})
	return err
}

func TestEnsureProposalSnapshotsThresholdAndPower(t *testing.T) {
	env := setupService(t, Options{})
	env.requests.add(transferRequest("dao", "7"))

	p := env.ensure(t, "dao", "7")
	if p.Status != domaingov.ProposalActive || p.ThresholdPct != 75 || p.TotalVotingPower != 1000 {
		t.Fatalf("proposal = %+v", p)
	}
	if !p.ExpiresAt.Equal(baseTime.Add(48 * time.Hour)) {
		t.Fatalf("ExpiresAt = %v", p.ExpiresAt)
	}

	env.oracle.total = 5000
	again := env.ensure(t, "dao", "7")
	if again.ID != p.ID || again.TotalVotingPower != 1000 {
		t.Fatalf("second EnsureProposal() = %+v, want snapshot of %s", again, p.ID)
	}
}

func TestEnsureProposalConcurrentCallersShareOneProposal(t *testing.T) {
	env := setupService(t, Options{})
	env.requests.add(transferRequest("dao", "7"))

	const callers = 8
	ids := make([]string, callers)
	errCh := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := env.svc.EnsureProposal(context.Background(), EnsureProposalInput{ScopeID: "dao", RequestID: "7"})
			if err != nil {
				errCh <- err
				return
			}
			ids[i] = p.ID
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("EnsureProposal() error = %v", err)
	}
	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("ids = %v, want one proposal", ids)
		}
	}

	var count int64
	if err := env.db.Model(&model.Proposal{}).Count(&count).Error; err != nil {
		t.Fatalf("count proposals: %v", err)
	}
	if count != 1 {
		t.Fatalf("proposal rows = %d, want 1", count)
	}
}

func TestEnsureProposalGuards(t *testing.T) {
	env := setupService(t, Options{MinVotingPowerToPropose: 100})
	ctx := context.Background()

	approved := transferRequest("dao", "1")
	approved.Status = domaingov.RequestApproved
	env.requests.add(approved)
	if _, err := env.svc.EnsureProposal(ctx, EnsureProposalInput{ScopeID: "dao", RequestID: "1"}); !errors.Is(err, domaingov.ErrInvalidRequestState) {
		t.Fatalf("EnsureProposal(approved request) error = %v", err)
	}

	if _, err := env.svc.EnsureProposal(ctx, EnsureProposalInput{ScopeID: "dao", RequestID: "missing"}); !errors.Is(err, domaingov.ErrRequestNotFound) {
		t.Fatalf("EnsureProposal(missing) error = %v", err)
	}

	env.requests.add(transferRequest("dao", "2"))
	if _, err := env.svc.EnsureProposal(ctx, EnsureProposalInput{ScopeID: "dao", RequestID: "2", Proposer: "dave"}); !errors.Is(err, domaingov.ErrInsufficientVotingPower) {
		t.Fatalf("EnsureProposal(weak proposer) error = %v", err)
	}
	if _, err := env.svc.EnsureProposal(ctx, EnsureProposalInput{ScopeID: "dao", RequestID: "2", Proposer: "alice"}); err != nil {
		t.Fatalf("EnsureProposal(alice) error = %v", err)
	}

	env.requests.add(transferRequest("empty", "1"))
	env.oracle.total = 0
	if _, err := env.svc.EnsureProposal(ctx, EnsureProposalInput{ScopeID: "empty", RequestID: "1"}); !errors.Is(err, domaingov.ErrZeroVotingPower) {
		t.Fatalf("EnsureProposal(zero total) error = %v", err)
	}

	if _, err := env.svc.EnsureProposal(ctx, EnsureProposalInput{ScopeID: " ", RequestID: "1"}); !errors.Is(err, domaingov.ErrScopeRequired) {
		t.Fatalf("EnsureProposal(blank scope) error = %v", err)
	}
}

func TestCastVotePassesAndApprovesOnce(t *testing.T) {
	env := setupService(t, Options{ApproveReason: "community approved"})
	env.requests.add(transferRequest("dao", "7"))
	env.ensure(t, "dao", "7")

	if err := env.vote("dao", "7", "alice", domaingov.VoteYes); err != nil {
		t.Fatalf("CastVote(alice) error = %v", err)
	}
	if err := env.vote("dao", "7", "bob", domaingov.VoteYes); err != nil {
		t.Fatalf("CastVote(bob) error = %v", err)
	}

	p, err := env.svc.GetProposal(context.Background(), "dao", "7")
	if err != nil {
		t.Fatalf("GetProposal() error = %v", err)
	}
	if p.Status != domaingov.ProposalPassed || p.SignalState != domaingov.SignalSent || p.YesVotes != 800 {
		t.Fatalf("proposal = %s/%s yes=%d", p.Status, p.SignalState, p.YesVotes)
	}

	if err := env.vote("dao", "7", "carol", domaingov.VoteNo); !errors.Is(err, domaingov.ErrProposalNotActive) {
		t.Fatalf("CastVote(after pass) error = %v", err)
	}
	if _, err := env.svc.ReconcileOnce(context.Background()); err != nil {
		t.Fatalf("ReconcileOnce() error = %v", err)
	}

	approved, rejected, _ := env.requests.counts()
	if approved != 1 || rejected != 0 {
		t.Fatalf("approve/reject calls = %d/%d, want 1/0", approved, rejected)
	}
	if env.requests.reasons[0] != "community approved" {
		t.Fatalf("reason = %q", env.requests.reasons[0])
	}

	kinds := env.published.kinds()
	want := []ports.GovernanceEventKind{
		ports.EventProposalCreated,
		ports.EventVoteCast,
		ports.EventVoteCast,
		ports.EventStatusChanged,
		ports.EventSignalSent,
	}
	if len(kinds) != len(want) {
		t.Fatalf("events = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("events = %v, want %v", kinds, want)
		}
	}
}

func TestCastVoteRejectsOnceThresholdIsUnreachable(t *testing.T) {
	env := setupService(t, Options{})
	env.requests.add(transferRequest("dao", "7"))
	env.ensure(t, "dao", "7")

	// 75% of 1000 needs 750 yes; 300 no leaves only 700.
	if err := env.vote("dao", "7", "carol", domaingov.VoteNo); err != nil {
		t.Fatalf("CastVote(carol) error = %v", err)
	}
	p, err := env.svc.GetProposal(context.Background(), "dao", "7")
	if err != nil {
		t.Fatalf("GetProposal() error = %v", err)
	}
	if p.Status != domaingov.ProposalRejected {
		t.Fatalf("status = %s, want rejected", p.Status)
	}
	approved, rejected, _ := env.requests.counts()
	if approved != 0 || rejected != 1 {
		t.Fatalf("approve/reject calls = %d/%d, want 0/1", approved, rejected)
	}
}

func TestCastVoteRefusesWithoutChangingTally(t *testing.T) {
	env := setupService(t, Options{})
	env.requests.add(transferRequest("dao", "7"))
	env.ensure(t, "dao", "7")

	if err := env.vote("dao", "7", "nobody", domaingov.VoteYes); !errors.Is(err, domaingov.ErrNoVotingPower) {
		t.Fatalf("CastVote(zero weight) error = %v", err)
	}
	if err := env.vote("dao", "7", "dave", domaingov.VoteYes); err != nil {
		t.Fatalf("CastVote(dave) error = %v", err)
	}
	err := env.vote("dao", "7", "dave", domaingov.VoteNo)
	var already *domaingov.AlreadyVotedError
	if !errors.As(err, &already) || already.Existing.Choice != domaingov.VoteYes {
		t.Fatalf("CastVote(duplicate) error = %v", err)
	}
	if err := env.vote("dao", "missing", "dave", domaingov.VoteYes); !errors.Is(err, domaingov.ErrProposalNotFound) {
		t.Fatalf("CastVote(no proposal) error = %v", err)
	}

	p, err := env.svc.GetProposal(context.Background(), "dao", "7")
	if err != nil {
		t.Fatalf("GetProposal() error = %v", err)
	}
	if p.YesVotes != 50 || p.NoVotes != 0 {
		t.Fatalf("tally = %d/%d, want 50/0", p.YesVotes, p.NoVotes)
	}

	voted, err := env.svc.HasVoted(context.Background(), "dao", "7", "dave")
	if err != nil || !voted {
		t.Fatalf("HasVoted(dave) = %v, %v", voted, err)
	}
	voted, err = env.svc.HasVoted(context.Background(), "dao", "7", "alice")
	if err != nil || voted {
		t.Fatalf("HasVoted(alice) = %v, %v", voted, err)
	}
}

func TestCastVoteOracleFailureIsUnavailable(t *testing.T) {
	env := setupService(t, Options{})
	env.requests.add(transferRequest("dao", "7"))
	env.ensure(t, "dao", "7")

	env.oracle.err = errs.Retryable(errors.New("connection refused"))
	err := env.vote("dao", "7", "alice", domaingov.VoteYes)
	if !errors.Is(err, domaingov.ErrVotingPowerUnavailable) || !errs.IsRetryable(err) {
		t.Fatalf("CastVote() error = %v, want retryable voting power unavailable", err)
	}
}

func TestReconcileExpiresWithoutSignal(t *testing.T) {
	env := setupService(t, Options{})
	env.requests.add(transferRequest("dao", "7"))
	env.ensure(t, "dao", "7")
	if err := env.vote("dao", "7", "alice", domaingov.VoteYes); err != nil {
		t.Fatalf("CastVote() error = %v", err)
	}

	env.clock.Set(baseTime.Add(48*time.Hour + time.Second))
	if err := env.vote("dao", "7", "bob", domaingov.VoteYes); !errors.Is(err, domaingov.ErrProposalExpired) {
		t.Fatalf("CastVote(after deadline) error = %v", err)
	}

	result, err := env.svc.ReconcileOnce(context.Background())
	if err != nil {
		t.Fatalf("ReconcileOnce() error = %v", err)
	}
	if result.Transitioned != 1 {
		t.Fatalf("result = %+v", result)
	}

	p, err := env.svc.GetProposal(context.Background(), "dao", "7")
	if err != nil {
		t.Fatalf("GetProposal() error = %v", err)
	}
	if p.Status != domaingov.ProposalExpired || p.SignalState != domaingov.SignalNone {
		t.Fatalf("proposal = %s/%s", p.Status, p.SignalState)
	}
	if _, _, calls := env.requests.counts(); calls != 0 {
		t.Fatalf("request source calls = %d, want 0", calls)
	}
}

func TestReconcileExecutesSettledRequests(t *testing.T) {
	cases := []domaingov.RequestStatus{
		domaingov.RequestCompleted,
		domaingov.RequestFailed,
		domaingov.RequestCancelled,
		domaingov.RequestRejected,
	}
	for _, status := range cases {
		t.Run(string(status), func(t *testing.T) {
			env := setupService(t, Options{})
			env.requests.add(transferRequest("dao", "7"))
			env.ensure(t, "dao", "7")

			env.requests.setStatus("dao", "7", status)
			result, err := env.svc.ReconcileOnce(context.Background())
			if err != nil {
				t.Fatalf("ReconcileOnce() error = %v", err)
			}
			if result.Executed != 1 {
				t.Fatalf("result = %+v", result)
			}

			if err := env.vote("dao", "7", "alice", domaingov.VoteYes); !errors.Is(err, domaingov.ErrProposalNotActive) {
				t.Fatalf("CastVote(executed) error = %v", err)
			}

			items, err := env.svc.ListProposals(context.Background(), ListProposalsInput{
				ScopeID:  "dao",
				Statuses: []domaingov.ProposalStatus{domaingov.ProposalExecuted},
			})
			if err != nil || len(items) != 1 {
				t.Fatalf("ListProposals(executed) = %d, %v", len(items), err)
			}
		})
	}
}

func TestReconcileSettlesManualRejectionBeforeVotesPass(t *testing.T) {
	env := setupService(t, Options{})
	env.requests.add(transferRequest("dao", "7"))
	env.ensure(t, "dao", "7")

	env.requests.setStatus("dao", "7", domaingov.RequestRejected)
	if _, err := env.svc.ReconcileOnce(context.Background()); err != nil {
		t.Fatalf("ReconcileOnce() error = %v", err)
	}

	p, err := env.svc.GetProposal(context.Background(), "dao", "7")
	if err != nil {
		t.Fatalf("GetProposal() error = %v", err)
	}
	if p.Status != domaingov.ProposalExecuted {
		t.Fatalf("status = %s, want executed after manual rejection", p.Status)
	}

	for _, principal := range []string{"alice", "bob"} {
		if err := env.vote("dao", "7", principal, domaingov.VoteYes); !errors.Is(err, domaingov.ErrProposalNotActive) {
			t.Fatalf("CastVote(%s) error = %v, want ErrProposalNotActive", principal, err)
		}
	}

	if approved, _, _ := env.requests.counts(); approved != 0 {
		t.Fatalf("approve calls = %d, want 0", approved)
	}
}

func TestReconcileRetriesPendingSignal(t *testing.T) {
	env := setupService(t, Options{})
	env.requests.add(transferRequest("dao", "7"))
	env.ensure(t, "dao", "7")

	env.requests.approveErr = errs.Retryable(errors.New("treasury unavailable"))
	if err := env.vote("dao", "7", "alice", domaingov.VoteYes); err != nil {
		t.Fatalf("CastVote(alice) error = %v", err)
	}
	if err := env.vote("dao", "7", "bob", domaingov.VoteYes); err != nil {
		t.Fatalf("CastVote(bob) error = %v, want vote kept despite signal failure", err)
	}

	p, err := env.svc.GetProposal(context.Background(), "dao", "7")
	if err != nil {
		t.Fatalf("GetProposal() error = %v", err)
	}
	if p.Status != domaingov.ProposalPassed || p.SignalState != domaingov.SignalPending {
		t.Fatalf("proposal = %s/%s, want passed/pending", p.Status, p.SignalState)
	}

	env.requests.mu.Lock()
	env.requests.approveErr = nil
	env.requests.mu.Unlock()

	result, err := env.svc.ReconcileOnce(context.Background())
	if err != nil {
		t.Fatalf("ReconcileOnce() error = %v", err)
	}
	if result.SignalsSent != 1 {
		t.Fatalf("result = %+v", result)
	}
	approved, _, calls := env.requests.counts()
	if approved != 1 || calls != 2 {
		t.Fatalf("approved = %d calls = %d, want 1 and 2", approved, calls)
	}
}

func TestReconcileMaterializesConfiguredScopes(t *testing.T) {
	env := setupService(t, Options{Scopes: []string{"dao"}})
	env.requests.add(transferRequest("dao", "1"))
	env.requests.add(transferRequest("dao", "2"))
	done := transferRequest("dao", "3")
	done.Status = domaingov.RequestCompleted
	env.requests.add(done)

	result, err := env.svc.ReconcileOnce(context.Background())
	if err != nil {
		t.Fatalf("ReconcileOnce() error = %v", err)
	}
	if result.Materialized != 2 || result.Checked != 2 {
		t.Fatalf("first tick = %+v", result)
	}

	result, err = env.svc.ReconcileOnce(context.Background())
	if err != nil {
		t.Fatalf("ReconcileOnce() error = %v", err)
	}
	if result.Materialized != 0 {
		t.Fatalf("second tick = %+v", result)
	}

	at, ok, err := env.svc.LastReconciledAt(context.Background())
	if err != nil || !ok || !at.Equal(env.clock.Now()) {
		t.Fatalf("LastReconciledAt() = %v, %v, %v", at, ok, err)
	}
}
