package governance

import (
	"context"
	"errors"
	"strings"

	domaingov "govsync/internal/domain/governance"
	"govsync/internal/ports"
)

const maxListLimit = 500

func (s *Service) GetProposal(ctx context.Context, scopeID string, requestID string) (domaingov.Proposal, error) {
	if err := s.checkReady(ctx); err != nil {
		return domaingov.Proposal{}, err
	}
	scopeID, requestID, err := normalizeKey(scopeID, requestID)
	if err != nil {
		return domaingov.Proposal{}, err
	}
	return s.repo.GetProposalByKey(ctx, scopeID, requestID)
}

// GetVote returns principal's vote on the proposal for (scope, request).
// ports.ErrVoteNotFound means the principal has not voted.
func (s *Service) GetVote(ctx context.Context, scopeID string, requestID string, principal string) (domaingov.VoteRecord, error) {
	p, err := s.GetProposal(ctx, scopeID, requestID)
	if err != nil {
		return domaingov.VoteRecord{}, err
	}
	principal = strings.TrimSpace(principal)
	if principal == "" {
		return domaingov.VoteRecord{}, domaingov.ErrPrincipalRequired
	}
	return s.repo.GetVote(ctx, p.ID, principal)
}

func (s *Service) HasVoted(ctx context.Context, scopeID string, requestID string, principal string) (bool, error) {
	_, err := s.GetVote(ctx, scopeID, requestID, principal)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ports.ErrVoteNotFound) {
		return false, nil
	}
	return false, err
}

// ListProposals returns proposals oldest first.
func (s *Service) ListProposals(ctx context.Context, input ListProposalsInput) ([]domaingov.Proposal, error) {
	if err := s.checkReady(ctx); err != nil {
		return nil, err
	}
	limit := input.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	return s.repo.ListProposals(ctx, ports.ProposalFilter{
		ScopeID:  strings.TrimSpace(input.ScopeID),
		Statuses: input.Statuses,
		Limit:    limit,
	})
}
