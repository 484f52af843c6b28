// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LexGate Contributors

package keypool

import (
	"sort"
	"sync"

	"github.com/lexgate-dev/lexgate/internal/provider"
	lexerr "github.com/lexgate-dev/lexgate/pkg/errors"
)

// Registry maps vendors to their credential pools. Pools are registered
// once at startup; lookups afterwards are read-only.
type Registry struct {
	mu    sync.RWMutex
	pools map[provider.Name]*Pool
}

func NewRegistry() *Registry {
	return &Registry{pools: make(map[provider.Name]*Pool)}
}

// Register adds a pool. Registering the same vendor twice is a wiring bug
// and is rejected.
func (r *Registry) Register(p *Pool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pools[p.Provider()]; exists {
		return lexerr.New(lexerr.CodeCLISetupFailure, "pool already registered",
			lexerr.FieldProvider(string(p.Provider())),
		)
	}
	r.pools[p.Provider()] = p
	return nil
}

// Pool returns the pool for the given vendor.
func (r *Registry) Pool(name provider.Name) (*Pool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.pools[name]
	if !ok {
		return nil, lexerr.New(lexerr.CodeKeypoolProviderNotFound, "no pool for provider",
			lexerr.FieldProvider(string(name)),
		)
	}
	return p, nil
}

// Names returns the registered vendors in sorted order.
func (r *Registry) Names() []provider.Name {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]provider.Name, 0, len(r.pools))
	for name := range r.pools {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// PoolStatus is the serializable state of one pool: occupancy counts plus a
// snapshot of every credential.
type PoolStatus struct {
	Stats
	Credentials []Snapshot `json:"credentials"`
}

// Status reports every registered pool, sorted by vendor.
func (r *Registry) Status() []PoolStatus {
	r.mu.RLock()
	pools := make([]*Pool, 0, len(r.pools))
	for _, p := range r.pools {
		pools = append(pools, p)
	}
	r.mu.RUnlock()

	sort.Slice(pools, func(i, j int) bool { return pools[i].Provider() < pools[j].Provider() })

	out := make([]PoolStatus, len(pools))
	for i, p := range pools {
		out[i] = PoolStatus{Stats: p.Stats(), Credentials: p.Snapshot()}
	}
	return out
}
