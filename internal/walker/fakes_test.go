package walker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nholik/mesh-sentinel/internal/events"
	"github.com/nholik/mesh-sentinel/internal/inventory"
	"github.com/nholik/mesh-sentinel/internal/metricstore"
)

type fakeInventory struct {
	gateways    []inventory.Gateway
	deployments []inventory.Deployment
	clusters    map[string]inventory.Cluster
	routes      map[string][]inventory.Route

	listGatewaysErr    error
	listDeploymentsErr error
	clustersErr        map[string]error
	routesErr          map[string]error
}

func (f *fakeInventory) ListGateways(context.Context) ([]inventory.Gateway, error) {
	return f.gateways, f.listGatewaysErr
}

func (f *fakeInventory) ListDeployments(context.Context) ([]inventory.Deployment, error) {
	return f.deployments, f.listDeploymentsErr
}

func (f *fakeInventory) ResolveClusters(_ context.Context, deployment string, refs []inventory.Ref) ([]inventory.Cluster, error) {
	if err := f.clustersErr[deployment]; err != nil {
		return nil, err
	}
	out := make([]inventory.Cluster, 0, len(refs))
	for _, ref := range refs {
		c, ok := f.clusters[ref.Name]
		if !ok {
			return nil, fmt.Errorf("cluster %q: %w", ref.Name, inventory.ErrNotFound)
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeInventory) ResolveGateways(_ context.Context, refs []inventory.Ref) ([]inventory.Gateway, error) {
	out := make([]inventory.Gateway, 0, len(refs))
	for _, ref := range refs {
		found := false
		for _, g := range f.gateways {
			if g.Name == ref.Name {
				out = append(out, g)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("gateway %q: %w", ref.Name, inventory.ErrNotFound)
		}
	}
	return out, nil
}

func (f *fakeInventory) ResolveRoutes(_ context.Context, gateway string, _ []inventory.Ref) ([]inventory.Route, error) {
	if err := f.routesErr[gateway]; err != nil {
		return nil, err
	}
	return f.routes[gateway], nil
}

type fakeCounter struct {
	mu     sync.Mutex
	counts map[string]int
	errs   map[string]error
	delays map[string]time.Duration
	calls  map[string]int
}

func (f *fakeCounter) CountInWindow(ctx context.Context, term metricstore.Term, _ metricstore.Range, _ time.Duration) (int, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[term.Value]++
	delay := f.delays[term.Value]
	count, err := f.counts[term.Value], f.errs[term.Value]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return count, err
}

func (f *fakeCounter) callCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

type captureSink struct {
	mu       sync.Mutex
	logs     []string
	events   []events.Event
	eventErr error
	flushed  int
	flushErr error
}

func (s *captureSink) Log(_ context.Context, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, message)
	return nil
}

func (s *captureSink) Event(_ context.Context, event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.eventErr
}

func (s *captureSink) Flush(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushed++
	return s.flushErr
}

// values indexes published event values by their slash-joined tags.
func (s *captureSink) values() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64, len(s.events))
	for _, e := range s.events {
		out[strings.Join(e.Tags, "/")] = e.Value
	}
	return out
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func refs(names ...string) []inventory.Ref {
	out := make([]inventory.Ref, 0, len(names))
	for _, name := range names {
		out = append(out, inventory.Ref{Name: name})
	}
	return out
}

func services(names ...string) []inventory.Service {
	out := make([]inventory.Service, 0, len(names))
	for _, name := range names {
		out = append(out, inventory.Service{Breed: inventory.Breed{Name: name}})
	}
	return out
}
