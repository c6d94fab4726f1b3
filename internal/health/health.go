package health

import "strconv"

// Value is a health score. Leaf evaluations produce Healthy or Unhealthy;
// folded values stay within the same range.
type Value int

const (
	Healthy   Value = 0
	Unhealthy Value = 1
)

// EventType labels every structured event emitted by the Publisher.
const EventType = "health"

// IsHealthy reports whether v carries no unhealthy contribution.
func (v Value) IsHealthy() bool {
	return v == Healthy
}

func (v Value) String() string {
	return strconv.Itoa(int(v))
}

// Kind names the level of the hierarchy a tag path describes.
type Kind string

const (
	KindGateway    Kind = "gateway"
	KindRoute      Kind = "route"
	KindService    Kind = "service"
	KindCluster    Kind = "cluster"
	KindDeployment Kind = "deployment"
)

// TagPath identifies what a published health event is about.
type TagPath []string

// Kind returns the category segment of the path, the element right before
// the trailing "health" marker and optional "<kind>s:<name>" breadcrumb.
func (p TagPath) Kind() Kind {
	for i := len(p) - 1; i >= 0; i-- {
		switch Kind(p[i]) {
		case KindGateway, KindRoute, KindService, KindCluster, KindDeployment:
			return Kind(p[i])
		}
	}
	return ""
}

func GatewayTags(gateway string) TagPath {
	return TagPath{"gateways:" + gateway, string(KindGateway), EventType}
}

func RouteTags(gateway, route string) TagPath {
	return TagPath{"gateways:" + gateway, string(KindRoute), "routes:" + route, EventType}
}

func ServiceTags(deployment, cluster, service string) TagPath {
	return TagPath{"deployments:" + deployment, "clusters:" + cluster, string(KindService), "services:" + service, EventType}
}

func ClusterTags(deployment, cluster string) TagPath {
	return TagPath{"deployments:" + deployment, "clusters:" + cluster, string(KindCluster), EventType}
}

func DeploymentTags(deployment string) TagPath {
	return TagPath{"deployments:" + deployment, string(KindDeployment), EventType}
}
