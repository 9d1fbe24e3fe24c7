package votingpower

import (
	"context"
	"os"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"govsync/internal/domain/governance"
	"govsync/internal/errs"
	"govsync/internal/ports"
)

type registryFile struct {
	Scopes map[string]map[string]uint64 `toml:"scopes"`
}

// Registry is a fixed per-scope weight table loaded from TOML:
//
//	[scopes.alpha]
//	alice = 600000
//	bob = 400000
type Registry struct {
	mu     sync.RWMutex
	scopes map[string]map[string]uint64
}

var _ ports.VotingPowerOracle = (*Registry)(nil)

func LoadRegistry(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrapf(err, "read voting power file %q", path)
	}
	var file registryFile
	if err := toml.Unmarshal(raw, &file); err != nil {
		return nil, errs.Wrapf(err, "parse voting power file %q", path)
	}
	return NewRegistry(file.Scopes)
}

func NewRegistry(scopes map[string]map[string]uint64) (*Registry, error) {
	copied := make(map[string]map[string]uint64, len(scopes))
	for scope, holders := range scopes {
		var total uint64
		copied[scope] = make(map[string]uint64, len(holders))
		for principal, w := range holders {
			if w > governance.MaxWeight || total > governance.MaxWeight-w {
				return nil, errs.Wrapf(governance.ErrInvalidWeight, "scope %s principal %s", scope, principal)
			}
			total += w
			copied[scope][principal] = w
		}
	}
	return &Registry{scopes: copied}, nil
}

func (r *Registry) GetVotingPower(ctx context.Context, principal string, scopeID string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, errs.Wrap(err, "check context")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.scopes[scopeID][principal], nil
}

func (r *Registry) TotalVotingPower(ctx context.Context, scopeID string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, errs.Wrap(err, "check context")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total uint64
	for _, w := range r.scopes[scopeID] {
		total += w
	}
	return total, nil
}

// Set changes a holder's weight, for tests and operator tooling.
func (r *Registry) Set(scopeID string, principal string, weight uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scopes[scopeID] == nil {
		r.scopes[scopeID] = map[string]uint64{}
	}
	r.scopes[scopeID][principal] = weight
}
