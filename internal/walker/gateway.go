package walker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nholik/mesh-sentinel/internal/health"
	"github.com/nholik/mesh-sentinel/internal/inventory"
)

// GatewayWalker publishes health for every gateway and each of its routes.
// No aggregate is computed at this level.
type GatewayWalker struct {
	deps Deps
}

func NewGatewayWalker(deps Deps) *GatewayWalker {
	return &GatewayWalker{deps: deps}
}

// Walk visits all gateways concurrently. A failure in one gateway or route
// does not stop its siblings; all failures are joined into the returned error.
func (w *GatewayWalker) Walk(ctx context.Context) error {
	gateways, err := w.deps.Inventory.ListGateways(ctx)
	if err != nil {
		return w.deps.inventoryFailed(err, "list gateways", nil)
	}

	outcomes := fanOut(gateways, func(g inventory.Gateway) (struct{}, bool, error) {
		return struct{}{}, true, w.walkGateway(ctx, g)
	})
	return joinErrors(outcomes)
}

// walkGateway evaluates the gateway itself and its routes independently.
func (w *GatewayWalker) walkGateway(ctx context.Context, gateway inventory.Gateway) error {
	var (
		wg         sync.WaitGroup
		gatewayErr error
		routesErr  error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, gatewayErr = w.deps.leaf(ctx, gateway.LookupName, health.GatewayTags(gateway.Name))
	}()
	go func() {
		defer wg.Done()
		routesErr = w.walkRoutes(ctx, gateway)
	}()
	wg.Wait()
	return errors.Join(gatewayErr, routesErr)
}

func (w *GatewayWalker) walkRoutes(ctx context.Context, gateway inventory.Gateway) error {
	routes, err := w.deps.Inventory.ResolveRoutes(ctx, gateway.Name, gateway.Routes)
	if err != nil {
		return w.deps.inventoryFailed(err, fmt.Sprintf("resolve routes of gateway %q", gateway.Name), nil)
	}

	outcomes := fanOut(routes, func(r inventory.Route) (health.Value, bool, error) {
		value, err := w.deps.leaf(ctx, r.LookupName, health.RouteTags(gateway.Name, r.Name))
		return value, err == nil, err
	})
	return joinErrors(outcomes)
}
