package ports

import (
	"context"

	"govsync/internal/domain/governance"
)

// RequestSource is the external treasury approval system.
// Adapters return governance.ErrRequestNotFound for unknown ids and wrap transport
// failures in governance.ErrRequestSourceUnavailable marked retryable.
type RequestSource interface {
	GetRequest(ctx context.Context, scopeID string, requestID string) (governance.ExternalRequest, error)
	ListOpenRequests(ctx context.Context, scopeID string) ([]governance.ExternalRequest, error)
	ApproveRequest(ctx context.Context, scopeID string, requestID string, reason string) error
	RejectRequest(ctx context.Context, scopeID string, requestID string, reason string) error
}

// VotingPowerOracle resolves voting weight within a scope. A zero weight is valid.
// Weights and totals above governance.MaxWeight (math.MaxInt64, the ledger's column
// range) are rejected with governance.ErrInvalidWeight rather than truncated.
type VotingPowerOracle interface {
	GetVotingPower(ctx context.Context, principal string, scopeID string) (uint64, error)
	TotalVotingPower(ctx context.Context, scopeID string) (uint64, error)
}
