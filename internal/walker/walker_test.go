package walker

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nholik/mesh-sentinel/internal/health"
	"github.com/nholik/mesh-sentinel/internal/inventory"
	"github.com/nholik/mesh-sentinel/internal/metrics"
	"github.com/rs/zerolog"
)

var errBoom = errors.New("boom")

func newDeps(inv inventory.Client, counter *fakeCounter, sink *captureSink, m *metrics.Metrics) Deps {
	logger := zerolog.Nop()
	return Deps{
		Logger:    logger,
		Inventory: inv,
		Evaluator: health.NewEvaluator(counter),
		Publisher: health.NewPublisher(logger, sink, health.WithMetrics(m, "t1")),
		Metrics:   m,
		Target:    "t1",
	}
}

// singleClusterInventory has deployment d1 with cluster c1 behind gateway g1.
func singleClusterInventory(svcs []inventory.Service, routes ...inventory.Route) *fakeInventory {
	return &fakeInventory{
		gateways:    []inventory.Gateway{{Name: "g1", LookupName: "lk-g1"}},
		deployments: []inventory.Deployment{{Name: "d1", Clusters: refs("c1")}},
		clusters: map[string]inventory.Cluster{
			"c1": {Name: "c1", Gateways: refs("g1"), Services: svcs},
		},
		routes: map[string][]inventory.Route{"g1": routes},
	}
}

func TestGatewayWalker_PublishesGatewayAndRoutes(t *testing.T) {
	inv := &fakeInventory{
		gateways: []inventory.Gateway{{Name: "g1", LookupName: "lk-g1", Routes: refs("r1", "r2")}},
		routes: map[string][]inventory.Route{
			"g1": {{Name: "r1", LookupName: "lk-r1"}, {Name: "r2", LookupName: "lk-r2"}},
		},
	}
	counter := &fakeCounter{counts: map[string]int{"lk-g1": 3, "lk-r2": 2}}
	sink := &captureSink{}

	if err := NewGatewayWalker(newDeps(inv, counter, sink, nil)).Walk(context.Background()); err != nil {
		t.Fatalf("Walk() error = %v", err)
	}

	want := map[string]float64{
		"gateways:g1/gateway/health":         1,
		"gateways:g1/route/routes:r1/health": 0,
		"gateways:g1/route/routes:r2/health": 1,
	}
	assertValues(t, sink, want)
}

func TestGatewayWalker_RouteFailureKeepsSiblings(t *testing.T) {
	inv := &fakeInventory{
		gateways: []inventory.Gateway{
			{Name: "g1", LookupName: "lk-g1"},
			{Name: "g2", LookupName: "lk-g2"},
		},
		routes: map[string][]inventory.Route{
			"g1": {{Name: "r1", LookupName: "lk-r1"}},
		},
		routesErr: map[string]error{"g2": errBoom},
	}
	counter := &fakeCounter{errs: map[string]error{"lk-r1": errBoom}}
	sink := &captureSink{}

	err := NewGatewayWalker(newDeps(inv, counter, sink, nil)).Walk(context.Background())
	if !errors.Is(err, errBoom) {
		t.Fatalf("Walk() error = %v, want %v", err, errBoom)
	}

	want := map[string]float64{
		"gateways:g1/gateway/health": 0,
		"gateways:g2/gateway/health": 0,
	}
	assertValues(t, sink, want)
}

func TestGatewayWalker_ListFailure(t *testing.T) {
	inv := &fakeInventory{listGatewaysErr: errBoom}
	sink := &captureSink{}

	err := NewGatewayWalker(newDeps(inv, &fakeCounter{}, sink, nil)).Walk(context.Background())
	if !errors.Is(err, errBoom) {
		t.Fatalf("Walk() error = %v, want %v", err, errBoom)
	}
	if sink.count() != 0 {
		t.Fatalf("expected no events, got %d", sink.count())
	}
}

func TestDeploymentWalker_PublishesEveryLevel(t *testing.T) {
	inv := singleClusterInventory(services("svcA"), inventory.Route{Name: "svcA", LookupName: "lk-a"})
	counter := &fakeCounter{}
	sink := &captureSink{}

	if err := NewDeploymentWalker(newDeps(inv, counter, sink, nil)).Walk(context.Background()); err != nil {
		t.Fatalf("Walk() error = %v", err)
	}

	want := map[string]float64{
		"deployments:d1/clusters:c1/service/services:svcA/health": 0,
		"deployments:d1/clusters:c1/cluster/health":               0,
		"deployments:d1/deployment/health":                        0,
	}
	assertValues(t, sink, want)
}

func TestDeploymentWalker_CombinesChildren(t *testing.T) {
	inv := &fakeInventory{
		gateways:    []inventory.Gateway{{Name: "g1"}},
		deployments: []inventory.Deployment{{Name: "d1", Clusters: refs("c1", "c2")}},
		clusters: map[string]inventory.Cluster{
			"c1": {Name: "c1", Gateways: refs("g1"), Services: services("svcA", "svcB")},
			"c2": {Name: "c2", Gateways: refs("g1"), Services: services("svcA")},
		},
		routes: map[string][]inventory.Route{
			"g1": {{Name: "svcA", LookupName: "lk-a"}, {Name: "svcB", LookupName: "lk-b"}},
		},
	}
	counter := &fakeCounter{counts: map[string]int{"lk-b": 7}}
	sink := &captureSink{}

	if err := NewDeploymentWalker(newDeps(inv, counter, sink, nil)).Walk(context.Background()); err != nil {
		t.Fatalf("Walk() error = %v", err)
	}

	want := map[string]float64{
		"deployments:d1/clusters:c1/service/services:svcA/health": 0,
		"deployments:d1/clusters:c1/service/services:svcB/health": 1,
		"deployments:d1/clusters:c1/cluster/health":               1,
		"deployments:d1/clusters:c2/service/services:svcA/health": 0,
		"deployments:d1/clusters:c2/cluster/health":               0,
		"deployments:d1/deployment/health":                        1,
	}
	assertValues(t, sink, want)
}

func TestDeploymentWalker_SkipsUnmatchedService(t *testing.T) {
	inv := singleClusterInventory(services("svcA", "svcB"), inventory.Route{Name: "svcA", LookupName: "lk-a"})
	counter := &fakeCounter{counts: map[string]int{"lk-a": 1}}
	sink := &captureSink{}

	if err := NewDeploymentWalker(newDeps(inv, counter, sink, nil)).Walk(context.Background()); err != nil {
		t.Fatalf("Walk() error = %v", err)
	}

	want := map[string]float64{
		"deployments:d1/clusters:c1/service/services:svcA/health": 1,
		"deployments:d1/clusters:c1/cluster/health":               1,
		"deployments:d1/deployment/health":                        1,
	}
	assertValues(t, sink, want)
}

func TestDeploymentWalker_NoMatchedServicesPublishesNothing(t *testing.T) {
	inv := singleClusterInventory(services("svcB"), inventory.Route{Name: "svcA", LookupName: "lk-a"})
	sink := &captureSink{}

	if err := NewDeploymentWalker(newDeps(inv, &fakeCounter{}, sink, nil)).Walk(context.Background()); err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	if sink.count() != 0 {
		t.Fatalf("expected no events, got %v", sink.values())
	}
}

func TestDeploymentWalker_FailedServiceWithholdsAncestors(t *testing.T) {
	inv := singleClusterInventory(services("svcA", "svcB"),
		inventory.Route{Name: "svcA", LookupName: "lk-a"},
		inventory.Route{Name: "svcB", LookupName: "lk-b"},
	)
	counter := &fakeCounter{errs: map[string]error{"lk-b": errBoom}}
	sink := &captureSink{}

	err := NewDeploymentWalker(newDeps(inv, counter, sink, nil)).Walk(context.Background())
	if !errors.Is(err, errBoom) {
		t.Fatalf("Walk() error = %v, want %v", err, errBoom)
	}

	want := map[string]float64{
		"deployments:d1/clusters:c1/service/services:svcA/health": 0,
	}
	assertValues(t, sink, want)
}

func TestDeploymentWalker_FirstGatewayMatchWins(t *testing.T) {
	inv := &fakeInventory{
		gateways:    []inventory.Gateway{{Name: "g1"}, {Name: "g2"}},
		deployments: []inventory.Deployment{{Name: "d1", Clusters: refs("c1")}},
		clusters: map[string]inventory.Cluster{
			"c1": {Name: "c1", Gateways: refs("g1", "g2"), Services: services("svcA")},
		},
		routes: map[string][]inventory.Route{
			"g1": {{Name: "svcA", LookupName: "lk-1"}, {Name: "svcA", LookupName: "lk-dup"}},
			"g2": {{Name: "svcA", LookupName: "lk-2"}},
		},
	}
	counter := &fakeCounter{counts: map[string]int{"lk-2": 5, "lk-dup": 5}}
	sink := &captureSink{}

	if err := NewDeploymentWalker(newDeps(inv, counter, sink, nil)).Walk(context.Background()); err != nil {
		t.Fatalf("Walk() error = %v", err)
	}

	if got := counter.callCount("lk-1"); got != 1 {
		t.Fatalf("lk-1 evaluated %d times, want 1", got)
	}
	if counter.callCount("lk-2") != 0 || counter.callCount("lk-dup") != 0 {
		t.Fatalf("unexpected evaluations: %v", counter.calls)
	}
	want := map[string]float64{
		"deployments:d1/clusters:c1/service/services:svcA/health": 0,
		"deployments:d1/clusters:c1/cluster/health":               0,
		"deployments:d1/deployment/health":                        0,
	}
	assertValues(t, sink, want)
	if sink.count() != 3 {
		t.Fatalf("expected 3 events, got %d", sink.count())
	}
}

func TestDeploymentWalker_InventoryFailureIsolatesBranch(t *testing.T) {
	inv := &fakeInventory{
		gateways:    []inventory.Gateway{{Name: "g1"}},
		deployments: []inventory.Deployment{{Name: "d1", Clusters: refs("c1")}, {Name: "d2", Clusters: refs("c1")}},
		clusters: map[string]inventory.Cluster{
			"c1": {Name: "c1", Gateways: refs("g1"), Services: services("svcA")},
		},
		routes:      map[string][]inventory.Route{"g1": {{Name: "svcA", LookupName: "lk-a"}}},
		clustersErr: map[string]error{"d2": errBoom},
	}
	sink := &captureSink{}
	m := metrics.New()

	err := NewDeploymentWalker(newDeps(inv, &fakeCounter{}, sink, m)).Walk(context.Background())
	if !errors.Is(err, errBoom) {
		t.Fatalf("Walk() error = %v, want %v", err, errBoom)
	}

	want := map[string]float64{
		"deployments:d1/clusters:c1/service/services:svcA/health": 0,
		"deployments:d1/clusters:c1/cluster/health":               0,
		"deployments:d1/deployment/health":                        0,
	}
	assertValues(t, sink, want)

	body := scrape(t, m)
	if !strings.Contains(body, `mesh_sentinel_query_errors_total{collaborator="inventory",target="t1"} 1`) {
		t.Fatalf("expected inventory query error metric, got:\n%s", body)
	}
}

func TestDeploymentWalker_RouteFailureWithholdsCluster(t *testing.T) {
	inv := singleClusterInventory(services("svcA"), inventory.Route{Name: "svcA", LookupName: "lk-a"})
	inv.routesErr = map[string]error{"g1": errBoom}
	sink := &captureSink{}

	err := NewDeploymentWalker(newDeps(inv, &fakeCounter{}, sink, nil)).Walk(context.Background())
	if !errors.Is(err, errBoom) {
		t.Fatalf("Walk() error = %v, want %v", err, errBoom)
	}
	if sink.count() != 0 {
		t.Fatalf("expected no events, got %v", sink.values())
	}
}

func TestFanOut_PreservesItemOrder(t *testing.T) {
	items := []int{0, 1, 2, 3, 4}
	outcomes := fanOut(items, func(i int) (int, bool, error) {
		time.Sleep(time.Duration(len(items)-i) * 5 * time.Millisecond)
		return i * 10, true, nil
	})

	for i, o := range outcomes {
		if o.value != i*10 || !o.ok {
			t.Fatalf("outcome %d = %+v, want value %d", i, o, i*10)
		}
	}
}

func TestFold(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []outcome[health.Value]
		want     health.Value
		wantOK   bool
		wantErr  bool
	}{
		{"empty", nil, 0, false, false},
		{"only skips", []outcome[health.Value]{{}, {}}, 0, false, false},
		{"single", []outcome[health.Value]{{value: health.Unhealthy, ok: true}}, health.Unhealthy, true, false},
		{"healthy pair", []outcome[health.Value]{{value: 0, ok: true}, {value: 0, ok: true}}, health.Healthy, true, false},
		{"mixed with skip", []outcome[health.Value]{{value: 0, ok: true}, {}, {value: 1, ok: true}}, health.Unhealthy, true, false},
		{"failure", []outcome[health.Value]{{value: 0, ok: true}, {err: errBoom}}, 0, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := fold(tt.outcomes)
			if (err != nil) != tt.wantErr {
				t.Fatalf("fold() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want || ok != tt.wantOK {
				t.Fatalf("fold() = (%d, %v), want (%d, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func assertValues(t *testing.T, sink *captureSink, want map[string]float64) {
	t.Helper()
	got := sink.values()
	if len(got) != len(want) {
		t.Fatalf("published %d values, want %d: %v", len(got), len(want), got)
	}
	for tags, value := range want {
		v, ok := got[tags]
		if !ok {
			t.Fatalf("missing event %s in %v", tags, got)
		}
		if v != value {
			t.Fatalf("event %s = %v, want %v", tags, v, value)
		}
	}
}

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	return string(body)
}
