package governance

import (
	"fmt"
	"strings"
)

type ProposalStatus string

const (
	ProposalActive   ProposalStatus = "active"
	ProposalPassed   ProposalStatus = "passed"
	ProposalRejected ProposalStatus = "rejected"
	ProposalExpired  ProposalStatus = "expired"
	ProposalExecuted ProposalStatus = "executed"
)

func ParseProposalStatus(s string) (ProposalStatus, error) {
	switch ProposalStatus(strings.ToLower(strings.TrimSpace(s))) {
	case ProposalActive:
		return ProposalActive, nil
	case ProposalPassed:
		return ProposalPassed, nil
	case ProposalRejected:
		return ProposalRejected, nil
	case ProposalExpired:
		return ProposalExpired, nil
	case ProposalExecuted:
		return ProposalExecuted, nil
	}
	return "", fmt.Errorf("unknown proposal status %q", s)
}

// Resolved reports whether voting has closed and the outcome awaits execution.
func (s ProposalStatus) Resolved() bool {
	return s == ProposalPassed || s == ProposalRejected || s == ProposalExpired
}

// CanTransition encodes the monotonic lifecycle:
// active -> passed|rejected|expired|executed, passed|rejected|expired -> executed.
func CanTransition(from, to ProposalStatus) bool {
	switch from {
	case ProposalActive:
		return to == ProposalPassed || to == ProposalRejected || to == ProposalExpired || to == ProposalExecuted
	case ProposalPassed, ProposalRejected, ProposalExpired:
		return to == ProposalExecuted
	default:
		return false
	}
}

// RequestStatus mirrors the external treasury request lifecycle.
type RequestStatus string

const (
	RequestCreated    RequestStatus = "Created"
	RequestApproved   RequestStatus = "Approved"
	RequestRejected   RequestStatus = "Rejected"
	RequestProcessing RequestStatus = "Processing"
	RequestScheduled  RequestStatus = "Scheduled"
	RequestCompleted  RequestStatus = "Completed"
	RequestFailed     RequestStatus = "Failed"
	RequestCancelled  RequestStatus = "Cancelled"
)

var requestStatuses = map[string]RequestStatus{
	"created":    RequestCreated,
	"approved":   RequestApproved,
	"rejected":   RequestRejected,
	"processing": RequestProcessing,
	"scheduled":  RequestScheduled,
	"completed":  RequestCompleted,
	"failed":     RequestFailed,
	"cancelled":  RequestCancelled,
	"canceled":   RequestCancelled,
}

func ParseRequestStatus(s string) (RequestStatus, error) {
	if st, ok := requestStatuses[strings.ToLower(strings.TrimSpace(s))]; ok {
		return st, nil
	}
	return "", fmt.Errorf("unknown request status %q", s)
}

// Votable requests are the only ones a proposal may be materialized for.
func (s RequestStatus) Votable() bool {
	return s == RequestCreated || s == RequestScheduled
}

func (s RequestStatus) Terminal() bool {
	return s == RequestCompleted || s == RequestFailed || s == RequestCancelled
}

type VoteChoice string

const (
	VoteYes VoteChoice = "yes"
	VoteNo  VoteChoice = "no"
)

func ParseVoteChoice(s string) (VoteChoice, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "approve":
		return VoteYes, nil
	case "no", "n", "reject":
		return VoteNo, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidChoice, s)
}

// SignalState tracks the outbound approve/reject call for a resolved proposal.
type SignalState string

const (
	SignalNone    SignalState = "none"
	SignalPending SignalState = "pending"
	SignalSending SignalState = "sending"
	SignalSent    SignalState = "sent"
	SignalFailed  SignalState = "failed"
)
