// Package marketdata exposes the reference prices, pool reserves and asset
// universe the swap engine quotes against. The data is produced elsewhere;
// this package only reads it.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"
	"github.com/shopspring/decimal"
)

var (
	// ErrNoPrice means no reference price is published for the asset
	ErrNoPrice = errors.New("no price available")
	// ErrNoReserve means no pool reserve is published for the pair
	ErrNoReserve = errors.New("no reserve available")
)

// AssetRegistry answers whether an asset symbol can be swapped
type AssetRegistry interface {
	IsKnownAsset(asset string) bool
}

// PriceProvider returns the current reference price of an asset in a common quote unit
type PriceProvider interface {
	CurrentPrice(ctx context.Context, asset string) (decimal.Decimal, error)
}

// ReserveProvider returns the pool depth, in units of from, available for a from->to swap
type ReserveProvider interface {
	Reserve(ctx context.Context, from, to string) (decimal.Decimal, error)
}

// StaticRegistry is a fixed asset universe
type StaticRegistry struct {
	assets map[string]struct{}
}

// NewStaticRegistry builds a registry from symbols; matching is case-insensitive
func NewStaticRegistry(assets ...string) *StaticRegistry {
	r := &StaticRegistry{assets: make(map[string]struct{}, len(assets))}
	for _, a := range assets {
		r.assets[strings.ToUpper(a)] = struct{}{}
	}
	return r
}

func (r *StaticRegistry) IsKnownAsset(asset string) bool {
	_, ok := r.assets[strings.ToUpper(asset)]
	return ok
}

// Assets returns the registered symbols
func (r *StaticRegistry) Assets() []string {
	out := make([]string, 0, len(r.assets))
	for a := range r.assets {
		out = append(out, a)
	}
	return out
}

// Suggest returns the registered symbol closest to asset, or "" when nothing
// is within two edits
func (r *StaticRegistry) Suggest(asset string) string {
	asset = strings.ToUpper(asset)
	candidates := r.Assets()
	sort.Strings(candidates)

	best, bestDistance := "", 3
	for _, c := range candidates {
		if d := levenshtein.ComputeDistance(asset, c); d < bestDistance {
			best, bestDistance = c, d
		}
	}
	return best
}

// MemoryProvider keeps prices and reserves in process memory. It serves
// development setups and tests.
type MemoryProvider struct {
	mu       sync.RWMutex
	prices   map[string]decimal.Decimal
	reserves map[string]decimal.Decimal
}

// NewMemoryProvider creates an empty provider
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		prices:   make(map[string]decimal.Decimal),
		reserves: make(map[string]decimal.Decimal),
	}
}

// Seed loads prices keyed by asset and reserves keyed by "FROM/TO"
func (p *MemoryProvider) Seed(prices, reserves map[string]string) error {
	for asset, raw := range prices {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("price for %s: %w", asset, err)
		}
		p.SetPrice(asset, price)
	}
	for pair, raw := range reserves {
		from, to, ok := strings.Cut(pair, "/")
		if !ok || from == "" || to == "" {
			return fmt.Errorf("reserve pair %q must look like FROM/TO", pair)
		}
		reserve, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("reserve for %s: %w", pair, err)
		}
		p.SetReserve(from, to, reserve)
	}
	return nil
}

// SetPrice publishes a reference price
func (p *MemoryProvider) SetPrice(asset string, price decimal.Decimal) {
	p.mu.Lock()
	p.prices[strings.ToUpper(asset)] = price
	p.mu.Unlock()
}

// SetReserve publishes the from->to pool depth
func (p *MemoryProvider) SetReserve(from, to string, reserve decimal.Decimal) {
	p.mu.Lock()
	p.reserves[pairKey(from, to)] = reserve
	p.mu.Unlock()
}

func (p *MemoryProvider) CurrentPrice(ctx context.Context, asset string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	price, ok := p.prices[strings.ToUpper(asset)]
	if !ok {
		return decimal.Zero, ErrNoPrice
	}
	return price, nil
}

func (p *MemoryProvider) Reserve(ctx context.Context, from, to string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	reserve, ok := p.reserves[pairKey(from, to)]
	if !ok {
		return decimal.Zero, ErrNoReserve
	}
	return reserve, nil
}

func pairKey(from, to string) string {
	return strings.ToUpper(from) + ":" + strings.ToUpper(to)
}
