package oracle

import (
	"context"
	"fmt"
	"sync"

	"github.com/defistate/defistate-vault-go/engine"
	"github.com/holiman/uint256"
)

// PriceOracle returns the unit price of an asset. Implementations must be side
// effect free.
type PriceOracle interface {
	Price(ctx context.Context, asset engine.AssetID) (*uint256.Int, error)
}

// StaticOracle serves prices that are set explicitly. It is safe for concurrent use.
type StaticOracle struct {
	mu     sync.RWMutex
	prices map[engine.AssetID]*uint256.Int
}

// NewStaticOracle creates an oracle seeded with prices.
func NewStaticOracle(prices map[engine.AssetID]*uint256.Int) *StaticOracle {
	o := &StaticOracle{prices: make(map[engine.AssetID]*uint256.Int, len(prices))}
	for asset, price := range prices {
		if price != nil {
			o.prices[asset] = price.Clone()
		}
	}
	return o
}

// SetPrice sets or replaces the price of asset.
func (o *StaticOracle) SetPrice(asset engine.AssetID, price *uint256.Int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prices[asset] = price.Clone()
}

// Price implements PriceOracle.
func (o *StaticOracle) Price(ctx context.Context, asset engine.AssetID) (*uint256.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	price, ok := o.prices[asset]
	if !ok {
		return nil, fmt.Errorf("asset %d: %w", asset, engine.ErrPriceUnavailable)
	}
	return price.Clone(), nil
}
