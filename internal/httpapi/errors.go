package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"govsync/internal/bootstrap/logging"
	domaingov "govsync/internal/domain/governance"
	"govsync/internal/errs"
	"govsync/internal/ports"
)

type errorResponse struct {
	Error     string        `json:"error"`
	Code      string        `json:"code"`
	Retryable bool          `json:"retryable"`
	Existing  *voteResponse `json:"existing_vote,omitempty"`
}

type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{domaingov.ErrProposalNotFound, http.StatusNotFound, "proposal_not_found"},
	{domaingov.ErrRequestNotFound, http.StatusNotFound, "request_not_found"},
	{ports.ErrVoteNotFound, http.StatusNotFound, "vote_not_found"},
	{domaingov.ErrAlreadyVoted, http.StatusConflict, "already_voted"},
	{domaingov.ErrProposalNotActive, http.StatusConflict, "proposal_not_active"},
	{domaingov.ErrProposalExpired, http.StatusConflict, "proposal_expired"},
	{domaingov.ErrInvalidRequestState, http.StatusConflict, "invalid_request_state"},
	{domaingov.ErrNoVotingPower, http.StatusForbidden, "no_voting_power"},
	{domaingov.ErrInsufficientVotingPower, http.StatusForbidden, "insufficient_voting_power"},
	{domaingov.ErrZeroVotingPower, http.StatusUnprocessableEntity, "zero_voting_power"},
	{domaingov.ErrInvalidWeight, http.StatusUnprocessableEntity, "invalid_weight"},
	{domaingov.ErrInvalidChoice, http.StatusBadRequest, "invalid_choice"},
	{domaingov.ErrScopeRequired, http.StatusBadRequest, "scope_required"},
	{domaingov.ErrRequestIDRequired, http.StatusBadRequest, "request_id_required"},
	{domaingov.ErrPrincipalRequired, http.StatusBadRequest, "principal_required"},
	{domaingov.ErrVotingPowerUnavailable, http.StatusServiceUnavailable, "voting_power_unavailable"},
	{domaingov.ErrRequestSourceUnavailable, http.StatusServiceUnavailable, "request_source_unavailable"},
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	resp := errorResponse{
		Error:     err.Error(),
		Code:      "internal",
		Retryable: errs.IsRetryable(err),
	}
	status := http.StatusInternalServerError
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			status = m.status
			resp.Code = m.code
			break
		}
	}
	if status == http.StatusServiceUnavailable {
		resp.Retryable = true
		w.Header().Set("Retry-After", "1")
	}
	if status == http.StatusInternalServerError {
		logging.Error(r.Context(), "request failed", slog.String("path", r.URL.Path), slog.Any("err", errs.Loggable(err)))
		resp.Error = "internal error"
	}

	var already *domaingov.AlreadyVotedError
	if errors.As(err, &already) {
		existing := toVoteResponse(already.Existing)
		resp.Existing = &existing
	}
	writeJSON(w, status, resp)
}

func writeError(w http.ResponseWriter, status int, code string, msg string, retryable bool) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code, Retryable: retryable})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
