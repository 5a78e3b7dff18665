// Package registry tracks asset metadata: the creator roster and royalty
// shares consulted at settlement time.
package registry

import (
	"fmt"
	"sync"

	"nftmarket/native/market"
)

// Registry is an in-memory market.MetadataRegistry. Creator order is
// preserved as registered, which fixes the payout order during settlement.
type Registry struct {
	mu     sync.RWMutex
	assets map[[32]byte][]market.Creator
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{assets: make(map[[32]byte][]market.Creator)}
}

// Register records the creator roster for an asset, replacing any previous
// entry. Shares are validated individually; the roster total may be below
// 100 (the remainder goes to the seller) but a single share above 100 is
// rejected outright.
func (r *Registry) Register(asset [32]byte, creators []market.Creator) error {
	for i, creator := range creators {
		if creator.SharePercent > 100 {
			return fmt.Errorf("%w: creator %d share %d exceeds 100", market.ErrValidation, i, creator.SharePercent)
		}
	}
	copied := make([]market.Creator, len(creators))
	copy(copied, creators)
	r.mu.Lock()
	r.assets[asset] = copied
	r.mu.Unlock()
	return nil
}

// Creators implements market.MetadataRegistry. Unknown assets return an
// empty roster rather than an error: an asset with no registered creators
// simply pays no royalties.
func (r *Registry) Creators(asset [32]byte) ([]market.Creator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roster, ok := r.assets[asset]
	if !ok {
		return nil, nil
	}
	copied := make([]market.Creator, len(roster))
	copy(copied, roster)
	return copied, nil
}
