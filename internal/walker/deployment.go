package walker

import (
	"context"
	"fmt"

	"github.com/nholik/mesh-sentinel/internal/health"
	"github.com/nholik/mesh-sentinel/internal/inventory"
)

// DeploymentWalker publishes health for services and folds it upward into
// clusters and deployments.
//
// A node whose children include a failed evaluation is not published, and
// neither is any of its ancestors. A node without any child value is not
// published either.
type DeploymentWalker struct {
	deps Deps
}

func NewDeploymentWalker(deps Deps) *DeploymentWalker {
	return &DeploymentWalker{deps: deps}
}

// Walk visits all deployments concurrently and returns the joined failures.
func (w *DeploymentWalker) Walk(ctx context.Context) error {
	deployments, err := w.deps.Inventory.ListDeployments(ctx)
	if err != nil {
		return w.deps.inventoryFailed(err, "list deployments", nil)
	}

	outcomes := fanOut(deployments, func(d inventory.Deployment) (health.Value, bool, error) {
		return w.walkDeployment(ctx, d)
	})
	return joinErrors(outcomes)
}

func (w *DeploymentWalker) walkDeployment(ctx context.Context, deployment inventory.Deployment) (health.Value, bool, error) {
	clusters, err := w.deps.Inventory.ResolveClusters(ctx, deployment.Name, deployment.Clusters)
	if err != nil {
		return 0, false, w.deps.inventoryFailed(err, fmt.Sprintf("resolve clusters of deployment %q", deployment.Name), nil)
	}

	outcomes := fanOut(clusters, func(c inventory.Cluster) (health.Value, bool, error) {
		return w.walkCluster(ctx, deployment, c)
	})
	value, ok, err := fold(outcomes)
	if err != nil {
		w.deps.Logger.Debug().
			Str("deployment", deployment.Name).
			Msg("deployment health withheld after failed cluster")
		return 0, false, fmt.Errorf("deployment %q: %w", deployment.Name, err)
	}
	if ok {
		w.deps.Publisher.Publish(ctx, health.DeploymentTags(deployment.Name), value)
	}
	return value, ok, nil
}

func (w *DeploymentWalker) walkCluster(ctx context.Context, deployment inventory.Deployment, cluster inventory.Cluster) (health.Value, bool, error) {
	routeIndexes, err := w.routeIndexes(ctx, cluster)
	if err != nil {
		return 0, false, fmt.Errorf("cluster %q: %w", cluster.Name, err)
	}

	outcomes := fanOut(cluster.Services, func(s inventory.Service) (health.Value, bool, error) {
		route, found := matchRoute(routeIndexes, s.Breed.Name)
		if !found {
			w.deps.Logger.Debug().
				Str("deployment", deployment.Name).
				Str("cluster", cluster.Name).
				Str("service", s.Breed.Name).
				Msg("no gateway route matches service")
			return 0, false, nil
		}
		tags := health.ServiceTags(deployment.Name, cluster.Name, s.Breed.Name)
		value, err := w.deps.leaf(ctx, route.LookupName, tags)
		return value, err == nil, err
	})
	value, ok, err := fold(outcomes)
	if err != nil {
		w.deps.Logger.Debug().
			Str("deployment", deployment.Name).
			Str("cluster", cluster.Name).
			Msg("cluster health withheld after failed service")
		return 0, false, fmt.Errorf("cluster %q: %w", cluster.Name, err)
	}
	if ok {
		w.deps.Publisher.Publish(ctx, health.ClusterTags(deployment.Name, cluster.Name), value)
	}
	return value, ok, nil
}

// routeIndexes resolves the cluster's gateways and their routes, returning one
// name-to-route index per gateway in the cluster's gateway order.
func (w *DeploymentWalker) routeIndexes(ctx context.Context, cluster inventory.Cluster) ([]map[string]inventory.Route, error) {
	gateways, err := w.deps.Inventory.ResolveGateways(ctx, cluster.Gateways)
	if err != nil {
		return nil, w.deps.inventoryFailed(err, "resolve gateways", map[string]string{"cluster": cluster.Name})
	}

	outcomes := fanOut(gateways, func(g inventory.Gateway) (map[string]inventory.Route, bool, error) {
		routes, err := w.deps.Inventory.ResolveRoutes(ctx, g.Name, g.Routes)
		if err != nil {
			return nil, false, w.deps.inventoryFailed(err, fmt.Sprintf("resolve routes of gateway %q", g.Name), map[string]string{"cluster": cluster.Name})
		}
		return indexRoutes(routes), true, nil
	})
	if err := joinErrors(outcomes); err != nil {
		return nil, err
	}

	indexes := make([]map[string]inventory.Route, 0, len(outcomes))
	for _, o := range outcomes {
		indexes = append(indexes, o.value)
	}
	return indexes, nil
}

// indexRoutes maps route names to routes. The first route with a name wins.
func indexRoutes(routes []inventory.Route) map[string]inventory.Route {
	index := make(map[string]inventory.Route, len(routes))
	for _, r := range routes {
		if _, exists := index[r.Name]; !exists {
			index[r.Name] = r
		}
	}
	return index
}

// matchRoute returns the route named name from the first gateway that has one.
func matchRoute(indexes []map[string]inventory.Route, name string) (inventory.Route, bool) {
	for _, index := range indexes {
		if r, ok := index[name]; ok {
			return r, true
		}
	}
	return inventory.Route{}, false
}
