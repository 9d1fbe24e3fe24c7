package requestsource

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"govsync/internal/domain/governance"
	"govsync/internal/errs"
	"govsync/internal/infrastructure/httpjson"
	"govsync/internal/ports"
)

type requestDTO struct {
	ID            string     `json:"id"`
	OperationType string     `json:"operation_type"`
	Status        string     `json:"status"`
	Title         string     `json:"title"`
	Requester     string     `json:"requester"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpirationDt  *time.Time `json:"expiration_dt,omitempty"`
}

type listResponse struct {
	Requests []requestDTO `json:"requests"`
}

type decisionBody struct {
	Reason string `json:"reason"`
}

// HTTPSource talks to the treasury request service over JSON/HTTP.
type HTTPSource struct {
	client *httpjson.Client
}

var _ ports.RequestSource = (*HTTPSource)(nil)

func NewHTTPSource(baseURL string, timeout time.Duration, httpClient *http.Client) (*HTTPSource, error) {
	client, err := httpjson.New(baseURL, timeout, httpClient)
	if err != nil {
		return nil, errs.Wrap(err, "create request source client")
	}
	return &HTTPSource{client: client}, nil
}

func requestPath(scopeID string, parts ...string) string {
	segments := []string{"scopes", url.PathEscape(scopeID), "requests"}
	for _, p := range parts {
		segments = append(segments, url.PathEscape(p))
	}
	return strings.Join(segments, "/")
}

func (s *HTTPSource) GetRequest(ctx context.Context, scopeID string, requestID string) (governance.ExternalRequest, error) {
	var dto requestDTO
	if err := s.client.Do(ctx, http.MethodGet, requestPath(scopeID, requestID), nil, nil, &dto); err != nil {
		return governance.ExternalRequest{}, classify(err, "get request")
	}
	return fromDTO(scopeID, dto)
}

func (s *HTTPSource) ListOpenRequests(ctx context.Context, scopeID string) ([]governance.ExternalRequest, error) {
	query := url.Values{}
	query.Set("status", strings.Join([]string{string(governance.RequestCreated), string(governance.RequestScheduled)}, ","))

	var resp listResponse
	if err := s.client.Do(ctx, http.MethodGet, requestPath(scopeID), query, nil, &resp); err != nil {
		return nil, classify(err, "list requests")
	}

	items := make([]governance.ExternalRequest, 0, len(resp.Requests))
	for _, dto := range resp.Requests {
		req, err := fromDTO(scopeID, dto)
		if err != nil {
			return nil, err
		}
		items = append(items, req)
	}
	return items, nil
}

func (s *HTTPSource) ApproveRequest(ctx context.Context, scopeID string, requestID string, reason string) error {
	if err := s.client.Do(ctx, http.MethodPost, requestPath(scopeID, requestID, "approve"), nil, decisionBody{Reason: reason}, nil); err != nil {
		return classify(err, "approve request")
	}
	return nil
}

func (s *HTTPSource) RejectRequest(ctx context.Context, scopeID string, requestID string, reason string) error {
	if err := s.client.Do(ctx, http.MethodPost, requestPath(scopeID, requestID, "reject"), nil, decisionBody{Reason: reason}, nil); err != nil {
		return classify(err, "reject request")
	}
	return nil
}

func classify(err error, op string) error {
	switch {
	case httpjson.IsNotFound(err):
		return errs.Wrap(governance.ErrRequestNotFound, op)
	case errs.IsRetryable(err):
		return errs.Retryable(errs.Wrapf(governance.ErrRequestSourceUnavailable, "%s: %v", op, err))
	default:
		return errs.Wrap(err, op)
	}
}

func fromDTO(scopeID string, dto requestDTO) (governance.ExternalRequest, error) {
	status, err := governance.ParseRequestStatus(dto.Status)
	if err != nil {
		return governance.ExternalRequest{}, errs.Wrapf(err, "request %s", dto.ID)
	}
	req := governance.ExternalRequest{
		ID:            dto.ID,
		ScopeID:       scopeID,
		OperationType: dto.OperationType,
		Category:      governance.ParseOperationCategory(dto.OperationType),
		Status:        status,
		Title:         dto.Title,
		Requester:     dto.Requester,
		CreatedAt:     dto.CreatedAt.UTC(),
	}
	if dto.ExpirationDt != nil {
		req.ExpirationDt = dto.ExpirationDt.UTC()
	}
	return req, nil
}
