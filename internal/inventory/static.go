package inventory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Document is the YAML layout of a static inventory:
//
//	gateways:          [{name, lookup_name, routes: [{name, lookup_name}]}]
//	internal_gateways: [...]   # resolvable from clusters, never listed
//	deployments:       [{name, clusters: [{name, gateways: [name], services: [{breed: {name}}]}]}]
type Document struct {
	Gateways         []DocumentGateway    `yaml:"gateways"`
	InternalGateways []DocumentGateway    `yaml:"internal_gateways"`
	Deployments      []DocumentDeployment `yaml:"deployments"`
}

// DocumentGateway is a gateway with its routes inlined.
type DocumentGateway struct {
	Name       string  `yaml:"name"`
	LookupName string  `yaml:"lookup_name"`
	Routes     []Route `yaml:"routes"`
}

// DocumentDeployment is a deployment with its clusters inlined.
type DocumentDeployment struct {
	Name     string            `yaml:"name"`
	Clusters []DocumentCluster `yaml:"clusters"`
}

// DocumentCluster lists cluster gateways by name.
type DocumentCluster struct {
	Name     string    `yaml:"name"`
	Gateways []string  `yaml:"gateways"`
	Services []Service `yaml:"services"`
}

// ParseDocument decodes and validates a static inventory document.
func ParseDocument(body []byte) (Document, error) {
	if len(body) == 0 {
		return Document{}, errors.New("inventory document is empty")
	}
	var doc Document
	if err := yaml.Unmarshal(body, &doc); err != nil {
		return Document{}, fmt.Errorf("parse inventory: %w", err)
	}
	if err := doc.validate(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (d Document) validate() error {
	seen := make(map[string]bool)
	for _, list := range [][]DocumentGateway{d.Gateways, d.InternalGateways} {
		for i, g := range list {
			if g.Name == "" {
				return fmt.Errorf("gateway %d: name is required", i)
			}
			if seen[g.Name] {
				return fmt.Errorf("gateway %q: duplicate name", g.Name)
			}
			seen[g.Name] = true
			for j, r := range g.Routes {
				if r.Name == "" {
					return fmt.Errorf("gateway %q route %d: name is required", g.Name, j)
				}
			}
		}
	}

	deployments := make(map[string]bool)
	for i, dep := range d.Deployments {
		if dep.Name == "" {
			return fmt.Errorf("deployment %d: name is required", i)
		}
		if deployments[dep.Name] {
			return fmt.Errorf("deployment %q: duplicate name", dep.Name)
		}
		deployments[dep.Name] = true
		for j, cluster := range dep.Clusters {
			if cluster.Name == "" {
				return fmt.Errorf("deployment %q cluster %d: name is required", dep.Name, j)
			}
		}
	}
	return nil
}

// catalog indexes a Document for listing and resolution. It is never
// modified after newCatalog returns.
type catalog struct {
	gateways    []Gateway
	deployments []Deployment
	gatewayByID map[string]Gateway
	routes      map[string]map[string]Route
	clusters    map[string]map[string]Cluster
}

func newCatalog(doc Document) *catalog {
	c := &catalog{
		gatewayByID: make(map[string]Gateway),
		routes:      make(map[string]map[string]Route),
		clusters:    make(map[string]map[string]Cluster),
	}

	addGateway := func(g DocumentGateway) Gateway {
		gateway := Gateway{Name: g.Name, LookupName: g.LookupName, Routes: make([]Ref, 0, len(g.Routes))}
		routes := make(map[string]Route, len(g.Routes))
		for _, r := range g.Routes {
			gateway.Routes = append(gateway.Routes, Ref{Name: r.Name})
			if _, ok := routes[r.Name]; !ok {
				routes[r.Name] = r
			}
		}
		c.gatewayByID[g.Name] = gateway
		c.routes[g.Name] = routes
		return gateway
	}

	for _, g := range doc.Gateways {
		c.gateways = append(c.gateways, addGateway(g))
	}
	for _, g := range doc.InternalGateways {
		addGateway(g)
	}

	for _, dep := range doc.Deployments {
		deployment := Deployment{Name: dep.Name, Clusters: make([]Ref, 0, len(dep.Clusters))}
		clusters := make(map[string]Cluster, len(dep.Clusters))
		for _, dc := range dep.Clusters {
			deployment.Clusters = append(deployment.Clusters, Ref{Name: dc.Name})
			cluster := Cluster{Name: dc.Name, Services: dc.Services, Gateways: make([]Ref, 0, len(dc.Gateways))}
			for _, name := range dc.Gateways {
				cluster.Gateways = append(cluster.Gateways, Ref{Name: name})
			}
			clusters[dc.Name] = cluster
		}
		c.deployments = append(c.deployments, deployment)
		c.clusters[dep.Name] = clusters
	}

	return c
}

// FileClient implements Client over a static inventory document. The document
// is refreshed at the start of every listing; unchanged documents are not reparsed.
type FileClient struct {
	logger      zerolog.Logger
	fetcher     Fetcher
	mu          sync.Mutex
	etag        string
	fingerprint string
	current     *catalog
}

// NewFileClient returns a FileClient reading source: a file path, an http(s)
// URL or an s3://bucket/key object.
func NewFileClient(ctx context.Context, logger zerolog.Logger, source string, timeout time.Duration) (*FileClient, error) {
	fetcher, err := NewFetcher(ctx, source, timeout)
	if err != nil {
		return nil, err
	}
	return NewFileClientWithFetcher(logger, fetcher), nil
}

// NewFileClientWithFetcher returns a FileClient reading documents from fetcher.
func NewFileClientWithFetcher(logger zerolog.Logger, fetcher Fetcher) *FileClient {
	return &FileClient{logger: logger, fetcher: fetcher}
}

// Snapshot implements Snapshotter. It refreshes the document once and
// returns a view of that version; later document changes do not affect it.
func (c *FileClient) Snapshot(ctx context.Context) (Client, error) {
	cat, err := c.refresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot inventory: %w", err)
	}
	return cat, nil
}

// ListGateways implements Client.
func (c *FileClient) ListGateways(ctx context.Context) ([]Gateway, error) {
	cat, err := c.refresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("list gateways: %w", err)
	}
	return cat.ListGateways(ctx)
}

// ListDeployments implements Client.
func (c *FileClient) ListDeployments(ctx context.Context) ([]Deployment, error) {
	cat, err := c.refresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	return cat.ListDeployments(ctx)
}

// ResolveClusters implements Client.
func (c *FileClient) ResolveClusters(ctx context.Context, deployment string, refs []Ref) ([]Cluster, error) {
	cat, err := c.loaded(ctx)
	if err != nil {
		return nil, err
	}
	return cat.ResolveClusters(ctx, deployment, refs)
}

// ResolveGateways implements Client.
func (c *FileClient) ResolveGateways(ctx context.Context, refs []Ref) ([]Gateway, error) {
	cat, err := c.loaded(ctx)
	if err != nil {
		return nil, err
	}
	return cat.ResolveGateways(ctx, refs)
}

// ResolveRoutes implements Client.
func (c *FileClient) ResolveRoutes(ctx context.Context, gateway string, refs []Ref) ([]Route, error) {
	cat, err := c.loaded(ctx)
	if err != nil {
		return nil, err
	}
	return cat.ResolveRoutes(ctx, gateway, refs)
}

func (c *catalog) ListGateways(context.Context) ([]Gateway, error) {
	return c.gateways, nil
}

func (c *catalog) ListDeployments(context.Context) ([]Deployment, error) {
	return c.deployments, nil
}

func (c *catalog) ResolveClusters(_ context.Context, deployment string, refs []Ref) ([]Cluster, error) {
	return resolveFromIndex(refs, c.clusters[deployment])
}

func (c *catalog) ResolveGateways(_ context.Context, refs []Ref) ([]Gateway, error) {
	return resolveFromIndex(refs, c.gatewayByID)
}

func (c *catalog) ResolveRoutes(_ context.Context, gateway string, refs []Ref) ([]Route, error) {
	routes, ok := c.routes[gateway]
	if !ok {
		return nil, fmt.Errorf("gateway %q: %w", gateway, ErrNotFound)
	}
	return resolveFromIndex(refs, routes)
}

func resolveFromIndex[T any](refs []Ref, index map[string]T) ([]T, error) {
	results := make([]T, 0, len(refs))
	for _, ref := range refs {
		item, ok := index[ref.Name]
		if !ok {
			return nil, fmt.Errorf("resolve %q: %w", ref.Name, ErrNotFound)
		}
		results = append(results, item)
	}
	return results, nil
}

// loaded returns the current catalog, loading the document on first use.
func (c *FileClient) loaded(ctx context.Context) (*catalog, error) {
	c.mu.Lock()
	current := c.current
	c.mu.Unlock()
	if current != nil {
		return current, nil
	}
	return c.refresh(ctx)
}

func (c *FileClient) refresh(ctx context.Context) (*catalog, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	previousETag := c.etag
	if c.current == nil {
		previousETag = ""
	}
	result, err := c.fetcher.Fetch(ctx, previousETag)
	if err != nil {
		return nil, err
	}
	if result.NotModified && c.current != nil {
		c.logger.Debug().Msg("inventory unchanged")
		return c.current, nil
	}

	sum := fingerprint(result.Body)
	if sum == c.fingerprint && c.current != nil {
		c.etag = result.ETag
		c.logger.Debug().Msg("inventory fingerprint unchanged")
		return c.current, nil
	}

	doc, err := ParseDocument(result.Body)
	if err != nil {
		return nil, err
	}
	c.current = newCatalog(doc)
	c.fingerprint = sum
	c.etag = result.ETag

	c.logger.Info().
		Int("bytes", len(result.Body)).
		Str("etag", result.ETag).
		Str("fingerprint", sum).
		Int("gateways", len(c.current.gateways)).
		Int("deployments", len(c.current.deployments)).
		Msg("inventory loaded")

	return c.current, nil
}

func fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
