package votingpower

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"govsync/internal/domain/governance"
	"govsync/internal/errs"
	"govsync/internal/infrastructure/httpjson"
	"govsync/internal/ports"
)

type weightResponse struct {
	Weight json.Number `json:"weight"`
}

type totalResponse struct {
	Total json.Number `json:"total"`
}

// HTTPOracle reads weights from the locked-liquidity registry service.
type HTTPOracle struct {
	client *httpjson.Client
}

var _ ports.VotingPowerOracle = (*HTTPOracle)(nil)

func NewHTTPOracle(baseURL string, timeout time.Duration, httpClient *http.Client) (*HTTPOracle, error) {
	client, err := httpjson.New(baseURL, timeout, httpClient)
	if err != nil {
		return nil, errs.Wrap(err, "create voting power client")
	}
	return &HTTPOracle{client: client}, nil
}

func (o *HTTPOracle) GetVotingPower(ctx context.Context, principal string, scopeID string) (uint64, error) {
	path := strings.Join([]string{"scopes", url.PathEscape(scopeID), "voting-power", url.PathEscape(principal)}, "/")

	var resp weightResponse
	if err := o.client.Do(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		if httpjson.IsNotFound(err) {
			// Unknown principals hold no locked liquidity.
			return 0, nil
		}
		return 0, classify(err, "get voting power")
	}
	return parseWeight(resp.Weight)
}

func (o *HTTPOracle) TotalVotingPower(ctx context.Context, scopeID string) (uint64, error) {
	path := strings.Join([]string{"scopes", url.PathEscape(scopeID), "voting-power"}, "/")

	var resp totalResponse
	if err := o.client.Do(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return 0, classify(err, "get total voting power")
	}
	return parseWeight(resp.Total)
}

func classify(err error, op string) error {
	if errs.IsRetryable(err) {
		return errs.Retryable(errs.Wrapf(governance.ErrVotingPowerUnavailable, "%s: %v", op, err))
	}
	return errs.Wrap(err, op)
}

// parseWeight accepts the registry's u128 values and rejects what does not fit the ledger.
func parseWeight(n json.Number) (uint64, error) {
	raw := strings.TrimSpace(n.String())
	if raw == "" {
		return 0, nil
	}
	w, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errs.Wrapf(governance.ErrInvalidWeight, "weight %q", raw)
	}
	if w > governance.MaxWeight {
		return 0, errs.Wrapf(governance.ErrInvalidWeight, "weight %q", raw)
	}
	return w, nil
}
