package governance

import (
	"errors"
	"fmt"
)

var (
	ErrProposalNotFound  = errors.New("proposal not found")
	ErrProposalNotActive = errors.New("proposal is not active")
	ErrProposalExpired   = errors.New("proposal voting period has expired")
	ErrNoVotingPower     = errors.New("principal has no voting power")
	ErrAlreadyVoted      = errors.New("principal has already voted on this proposal")

	ErrInvalidRequestState = errors.New("request is not in a votable state")
	ErrRequestNotFound     = errors.New("request not found")

	ErrVotingPowerUnavailable   = errors.New("voting power oracle unavailable")
	ErrRequestSourceUnavailable = errors.New("request source unavailable")

	ErrZeroVotingPower         = errors.New("scope has no voting power")
	ErrInsufficientVotingPower = errors.New("insufficient voting power to propose")
	ErrInvalidChoice           = errors.New("invalid vote choice")
	ErrInvalidWeight           = errors.New("voting power out of range")
	ErrInvalidTransition       = errors.New("invalid proposal status transition")

	ErrScopeRequired     = errors.New("scope id is required")
	ErrRequestIDRequired = errors.New("request id is required")
	ErrPrincipalRequired = errors.New("principal is required")
)

// AlreadyVotedError carries the vote that won so callers can show it.
type AlreadyVotedError struct {
	Existing VoteRecord
}

func (e *AlreadyVotedError) Error() string {
	return fmt.Sprintf("%s (choice=%s)", ErrAlreadyVoted.Error(), e.Existing.Choice)
}

func (e *AlreadyVotedError) Unwrap() error { return ErrAlreadyVoted }
