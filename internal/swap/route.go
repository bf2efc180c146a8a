package swap

import (
	"fmt"

	"github.com/Aidin1998/swaptrade/internal/marketdata"
)

// Leg is one hop of a route
type Leg struct {
	Index     int
	FromAsset string
	ToAsset   string
}

// RoutePlanner turns an asset route into ordered legs
type RoutePlanner struct {
	registry marketdata.AssetRegistry
}

// NewRoutePlanner creates a planner that rejects unknown assets
func NewRoutePlanner(registry marketdata.AssetRegistry) *RoutePlanner {
	return &RoutePlanner{registry: registry}
}

// Plan splits route into ordered two-asset legs
func (p *RoutePlanner) Plan(route []string) ([]Leg, error) {
	if len(route) < 2 {
		return nil, NewSwapError(CodeInvalidRequest, "route must contain at least two assets")
	}
	for _, asset := range route {
		if !p.registry.IsKnownAsset(asset) {
			return nil, unknownAsset(p.registry, asset)
		}
	}

	legs := make([]Leg, 0, len(route)-1)
	for i := 0; i < len(route)-1; i++ {
		if route[i] == route[i+1] {
			return nil, NewSwapError(CodeInvalidRequest,
				fmt.Sprintf("route hop %d swaps %s into itself", i+1, route[i]))
		}
		legs = append(legs, Leg{Index: i, FromAsset: route[i], ToAsset: route[i+1]})
	}
	return legs, nil
}
