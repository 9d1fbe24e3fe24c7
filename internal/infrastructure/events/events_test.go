package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"govsync/internal/ports"
)

func TestHubDeliversToSubscribers(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())

	ch := hub.Subscribe(ctx)
	if err := hub.Publish(context.Background(), ports.GovernanceEvent{Kind: ports.EventVoteCast, ProposalID: "p-1"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case event := <-ch:
		if event.ProposalID != "p-1" {
			t.Fatalf("event = %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatalf("no event delivered")
	}

	cancel()
	deadline := time.Now().Add(time.Second)
	for hub.Subscribers() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("Subscribers() = %d after cancel", hub.Subscribers())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMetricsCountsEvents(t *testing.T) {
	m := NewMetrics()
	ctx := context.Background()

	_ = m.Publish(ctx, ports.GovernanceEvent{Kind: ports.EventProposalCreated, Category: "Transfer"})
	_ = m.Publish(ctx, ports.GovernanceEvent{Kind: ports.EventVoteCast, Choice: "yes", Weight: 250})
	_ = m.Publish(ctx, ports.GovernanceEvent{Kind: ports.EventVoteCast, Choice: "yes", Weight: 50})
	_ = m.Publish(ctx, ports.GovernanceEvent{Kind: ports.EventStatusChanged, FromStatus: "active", Status: "passed"})

	if got := testutil.ToFloat64(m.proposalsCreated.WithLabelValues("Transfer")); got != 1 {
		t.Fatalf("proposals created = %v", got)
	}
	if got := testutil.ToFloat64(m.votesCast.WithLabelValues("yes")); got != 2 {
		t.Fatalf("votes cast = %v", got)
	}
	if got := testutil.ToFloat64(m.voteWeight.WithLabelValues("yes")); got != 300 {
		t.Fatalf("vote weight = %v", got)
	}
	if got := testutil.ToFloat64(m.transitions.WithLabelValues("active", "passed")); got != 1 {
		t.Fatalf("transitions = %v", got)
	}
}

type failingPublisher struct{ err error }

func (f failingPublisher) Publish(context.Context, ports.GovernanceEvent) error { return f.err }

func TestFanoutJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	hub := NewHub()
	fan := NewFanout(hub, nil, failingPublisher{err: boom})
	if fan.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", fan.Len())
	}
	if err := fan.Publish(context.Background(), ports.GovernanceEvent{}); !errors.Is(err, boom) {
		t.Fatalf("Publish() error = %v", err)
	}
}

func TestNATSSubject(t *testing.T) {
	p := NewNATSPublisher(nil, ".gov.")
	got := p.Subject(ports.GovernanceEvent{Kind: ports.EventVoteCast, ScopeID: "ckb.tok en"})
	if got != "gov.ckb_tok_en.vote.cast" {
		t.Fatalf("Subject() = %q", got)
	}
}
