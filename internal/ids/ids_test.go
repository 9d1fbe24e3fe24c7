package ids

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

func TestNewVoteIDIsMonotonic(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	prev := NewVoteID(at)
	for i := 0; i < 100; i++ {
		next := NewVoteID(at)
		if next <= prev {
			t.Fatalf("NewVoteID() %s not after %s", next, prev)
		}
		prev = next
	}
	parsed, err := ulid.Parse(prev)
	if err != nil {
		t.Fatalf("ulid.Parse() error = %v", err)
	}
	if ulid.Time(parsed.Time()).UnixMilli() != at.UnixMilli() {
		t.Fatalf("ulid time = %v", ulid.Time(parsed.Time()))
	}
}

func TestNewProposalID(t *testing.T) {
	if _, err := uuid.Parse(NewProposalID()); err != nil {
		t.Fatalf("uuid.Parse() error = %v", err)
	}
	if NewProposalID() == NewProposalID() {
		t.Fatalf("NewProposalID() repeated")
	}
}
