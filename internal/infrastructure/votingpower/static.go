package votingpower

import (
	"context"

	"govsync/internal/errs"
	"govsync/internal/ports"
)

// Fixed weights for local runs, independent of scope.
var staticWeights = map[string]uint64{
	"daopad": 1_000_000,
	"test":   500_000,
	"admin":  750_000,
}

const staticDefaultWeight uint64 = 100_000

// Static serves the fixed local-run table. Every principal not listed gets the
// default weight; the total counts the listed holders plus one default holder.
type Static struct{}

var _ ports.VotingPowerOracle = Static{}

func NewStatic() Static { return Static{} }

func (Static) GetVotingPower(ctx context.Context, principal string, _ string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, errs.Wrap(err, "check context")
	}
	if w, ok := staticWeights[principal]; ok {
		return w, nil
	}
	return staticDefaultWeight, nil
}

func (Static) TotalVotingPower(ctx context.Context, _ string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, errs.Wrap(err, "check context")
	}
	total := staticDefaultWeight
	for _, w := range staticWeights {
		total += w
	}
	return total, nil
}
