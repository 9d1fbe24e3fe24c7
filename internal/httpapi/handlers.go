package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"govsync/internal/auth"
	domaingov "govsync/internal/domain/governance"
	govuc "govsync/internal/usecase/governance"
)

const maxBodyBytes = 1 << 16

type proposalResponse struct {
	ID               string    `json:"id"`
	ScopeID          string    `json:"scope_id"`
	RequestID        string    `json:"request_id"`
	OperationType    string    `json:"operation_type"`
	Category         string    `json:"category"`
	RiskTier         string    `json:"risk_tier"`
	ThresholdPct     uint8     `json:"threshold_pct"`
	TotalVotingPower uint64    `json:"total_voting_power"`
	RequiredYes      uint64    `json:"required_yes"`
	YesVotes         uint64    `json:"yes_votes"`
	NoVotes          uint64    `json:"no_votes"`
	VoterCount       uint64    `json:"voter_count"`
	Status           string    `json:"status"`
	SignalState      string    `json:"signal_state"`
	CreatedAt        time.Time `json:"created_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type voteResponse struct {
	ID         string    `json:"id"`
	ProposalID string    `json:"proposal_id"`
	Principal  string    `json:"principal"`
	Choice     string    `json:"choice"`
	Weight     uint64    `json:"weight"`
	CastAt     time.Time `json:"cast_at"`
}

type ensureProposalRequest struct {
	Category string `json:"category"`
}

type castVoteRequest struct {
	Choice string `json:"choice"`
}

type healthResponse struct {
	Status          string     `json:"status"`
	LastReconcileAt *time.Time `json:"last_reconcile_at,omitempty"`
}

func toProposalResponse(p domaingov.Proposal) proposalResponse {
	return proposalResponse{
		ID:               p.ID,
		ScopeID:          p.ScopeID,
		RequestID:        p.RequestID,
		OperationType:    p.OperationType,
		Category:         string(p.Category),
		RiskTier:         string(p.RiskTier()),
		ThresholdPct:     p.ThresholdPct,
		TotalVotingPower: p.TotalVotingPower,
		RequiredYes:      domaingov.RequiredYes(p.TotalVotingPower, p.ThresholdPct),
		YesVotes:         p.YesVotes,
		NoVotes:          p.NoVotes,
		VoterCount:       p.VoterCount,
		Status:           string(p.Status),
		SignalState:      string(p.SignalState),
		CreatedAt:        p.CreatedAt,
		ExpiresAt:        p.ExpiresAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

func toVoteResponse(v domaingov.VoteRecord) voteResponse {
	return voteResponse{
		ID:         v.ID,
		ProposalID: v.ProposalID,
		Principal:  v.Principal,
		Choice:     string(v.Choice),
		Weight:     v.Weight,
		CastAt:     v.CastAt,
	}
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if at, ok, err := a.svc.LastReconciledAt(r.Context()); err == nil && ok {
		resp.LastReconcileAt = &at
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) listProposals(w http.ResponseWriter, r *http.Request) {
	input := govuc.ListProposalsInput{ScopeID: chi.URLParam(r, "scope")}

	query := r.URL.Query()
	for _, raw := range query["status"] {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			status, err := domaingov.ParseProposalStatus(part)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_status", err.Error(), false)
				return
			}
			input.Statuses = append(input.Statuses, status)
		}
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer", false)
			return
		}
		input.Limit = limit
	}

	items, err := a.svc.ListProposals(r.Context(), input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]proposalResponse, 0, len(items))
	for _, p := range items {
		out = append(out, toProposalResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"proposals": out})
}

func (a *API) getProposal(w http.ResponseWriter, r *http.Request) {
	p, err := a.svc.GetProposal(r.Context(), chi.URLParam(r, "scope"), chi.URLParam(r, "request"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProposalResponse(p))
}

func (a *API) ensureProposal(w http.ResponseWriter, r *http.Request) {
	var body ensureProposalRequest
	if !decodeBody(w, r, &body, true) {
		return
	}
	input := govuc.EnsureProposalInput{
		ScopeID:   chi.URLParam(r, "scope"),
		RequestID: chi.URLParam(r, "request"),
		Category:  body.Category,
	}
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		input.Proposer = claims.Principal()
	}

	p, err := a.svc.EnsureProposal(r.Context(), input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProposalResponse(p))
}

func (a *API) castVote(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "principal is required", false)
		return
	}
	var body castVoteRequest
	if !decodeBody(w, r, &body, false) {
		return
	}
	choice, err := domaingov.ParseVoteChoice(body.Choice)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	vote, err := a.svc.CastVote(r.Context(), govuc.CastVoteInput{
		ScopeID:   chi.URLParam(r, "scope"),
		RequestID: chi.URLParam(r, "request"),
		Principal: claims.Principal(),
		Choice:    choice,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toVoteResponse(vote))
}

func (a *API) getVote(w http.ResponseWriter, r *http.Request) {
	vote, err := a.svc.GetVote(r.Context(), chi.URLParam(r, "scope"), chi.URLParam(r, "request"), chi.URLParam(r, "principal"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toVoteResponse(vote))
}

// decodeBody reads a JSON body into dst. An empty body is accepted when optional.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	if r.Body == nil || r.ContentLength == 0 {
		if optional {
			return true
		}
		writeError(w, http.StatusBadRequest, "invalid_body", "request body is required", false)
		return false
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid JSON body: "+err.Error(), false)
		return false
	}
	return true
}
