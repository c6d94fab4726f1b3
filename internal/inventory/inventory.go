package inventory

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a referenced entity does not exist.
var ErrNotFound = errors.New("entity not found")

// Ref is a lightweight reference to an entity embedded in its parent.
type Ref struct {
	Name string `json:"name" yaml:"name"`
}

// Gateway routes traffic to a set of routes.
type Gateway struct {
	Name       string `json:"name" yaml:"name"`
	LookupName string `json:"lookup_name" yaml:"lookup_name"`
	Routes     []Ref  `json:"routes" yaml:"routes"`
}

// Route is a single gateway destination.
type Route struct {
	Name       string `json:"name" yaml:"name"`
	LookupName string `json:"lookup_name" yaml:"lookup_name"`
}

// Deployment groups clusters released together.
type Deployment struct {
	Name     string `json:"name" yaml:"name"`
	Clusters []Ref  `json:"clusters" yaml:"clusters"`
}

// Cluster holds services behind cluster-scoped gateways.
type Cluster struct {
	Name     string    `json:"name" yaml:"name"`
	Gateways []Ref     `json:"gateways" yaml:"gateways"`
	Services []Service `json:"services" yaml:"services"`
}

// Service is a running breed inside a cluster.
type Service struct {
	Breed Breed `json:"breed" yaml:"breed"`
}

// Breed identifies the workload template of a service.
type Breed struct {
	Name string `json:"name" yaml:"name"`
}

// Client reads the control-plane inventory. Resolve methods return entities
// in the order of the given references.
type Client interface {
	ListGateways(ctx context.Context) ([]Gateway, error)
	ListDeployments(ctx context.Context) ([]Deployment, error)
	ResolveClusters(ctx context.Context, deployment string, refs []Ref) ([]Cluster, error)
	ResolveGateways(ctx context.Context, refs []Ref) ([]Gateway, error)
	ResolveRoutes(ctx context.Context, gateway string, refs []Ref) ([]Route, error)
}

// Snapshotter is implemented by clients that can pin one version of the
// inventory for a whole run. The returned Client never refetches.
type Snapshotter interface {
	Snapshot(ctx context.Context) (Client, error)
}
