package resilient

import (
	"context"

	"govsync/internal/domain/governance"
	"govsync/internal/ports"
)

// RequestSource retries transient request source failures.
type RequestSource struct {
	next   ports.RequestSource
	policy Policy
}

var _ ports.RequestSource = (*RequestSource)(nil)

func NewRequestSource(next ports.RequestSource, policy Policy) *RequestSource {
	return &RequestSource{next: next, policy: policy}
}

func (r *RequestSource) GetRequest(ctx context.Context, scopeID string, requestID string) (governance.ExternalRequest, error) {
	return do(ctx, r.policy, "request_source.get", func(ctx context.Context) (governance.ExternalRequest, error) {
		return r.next.GetRequest(ctx, scopeID, requestID)
	})
}

func (r *RequestSource) ListOpenRequests(ctx context.Context, scopeID string) ([]governance.ExternalRequest, error) {
	return do(ctx, r.policy, "request_source.list_open", func(ctx context.Context) ([]governance.ExternalRequest, error) {
		return r.next.ListOpenRequests(ctx, scopeID)
	})
}

func (r *RequestSource) ApproveRequest(ctx context.Context, scopeID string, requestID string, reason string) error {
	_, err := do(ctx, r.policy, "request_source.approve", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.next.ApproveRequest(ctx, scopeID, requestID, reason)
	})
	return err
}

func (r *RequestSource) RejectRequest(ctx context.Context, scopeID string, requestID string, reason string) error {
	_, err := do(ctx, r.policy, "request_source.reject", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.next.RejectRequest(ctx, scopeID, requestID, reason)
	})
	return err
}

// VotingPowerOracle retries transient oracle failures.
type VotingPowerOracle struct {
	next   ports.VotingPowerOracle
	policy Policy
}

var _ ports.VotingPowerOracle = (*VotingPowerOracle)(nil)

func NewVotingPowerOracle(next ports.VotingPowerOracle, policy Policy) *VotingPowerOracle {
	return &VotingPowerOracle{next: next, policy: policy}
}

func (o *VotingPowerOracle) GetVotingPower(ctx context.Context, principal string, scopeID string) (uint64, error) {
	return do(ctx, o.policy, "voting_power.get", func(ctx context.Context) (uint64, error) {
		return o.next.GetVotingPower(ctx, principal, scopeID)
	})
}

func (o *VotingPowerOracle) TotalVotingPower(ctx context.Context, scopeID string) (uint64, error) {
	return do(ctx, o.policy, "voting_power.total", func(ctx context.Context) (uint64, error) {
		return o.next.TotalVotingPower(ctx, scopeID)
	})
}
