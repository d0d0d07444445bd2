// Package node knows the federation peers and how each of them deviates from the shared protocol.
package node

import (
	"context"
	"encoding/base64"

	"go.opentelemetry.io/otel"

	"github.com/socialdist/fednode/types"
	"github.com/socialdist/fednode/urlutil"
)

var tracer = otel.Tracer("node")

// Lister loads the enabled nodes in registration order.
type Lister interface {
	GetActiveNodes(ctx context.Context) ([]types.Node, error)
}

// Registry answers node lookups from storage on every call.
type Registry struct {
	nodes Lister
}

func NewRegistry(nodes Lister) *Registry {
	return &Registry{nodes: nodes}
}

// ListActive returns every enabled node, the local one included.
func (r *Registry) ListActive(ctx context.Context) ([]types.Node, error) {
	ctx, span := tracer.Start(ctx, "Node.Registry.ListActive")
	defer span.End()

	nodes, err := r.nodes.GetActiveNodes(ctx)
	if err != nil {
		span.RecordError(err)
	}
	return nodes, err
}

// Peers returns the enabled nodes other than this one.
func (r *Registry) Peers(ctx context.Context) ([]types.Node, error) {
	nodes, err := r.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	peers := make([]types.Node, 0, len(nodes))
	for _, n := range nodes {
		if n.Flavor != types.FlavorLocal {
			peers = append(peers, n)
		}
	}
	return peers, nil
}

// MatchByURL finds the node serving u and returns it together with u rewritten for that node.
// Each candidate sees u after its own transform. The longest base URL wins; ties go to the
// earlier registration.
func (r *Registry) MatchByURL(ctx context.Context, u string) (types.Node, string, bool, error) {
	ctx, span := tracer.Start(ctx, "Node.Registry.MatchByURL")
	defer span.End()

	nodes, err := r.ListActive(ctx)
	if err != nil {
		return types.Node{}, "", false, err
	}

	var (
		best       types.Node
		bestTarget string
		bestLen    = -1
	)
	u = urlutil.Standardize(u)
	for _, n := range nodes {
		target := TransformURL(u, n)
		base := urlutil.Standardize(n.URL)
		if base == "" || !urlutil.HasPrefix(target, base) {
			continue
		}
		if len(base) > bestLen {
			best, bestTarget, bestLen = n, target, len(base)
		}
	}
	return best, bestTarget, bestLen >= 0, nil
}

// FlavorOfPrincipal returns the flavor of the node whose federation display name is principal.
func (r *Registry) FlavorOfPrincipal(ctx context.Context, principal string) (types.Flavor, bool, error) {
	nodes, err := r.ListActive(ctx)
	if err != nil {
		return types.FlavorDefault, false, err
	}
	for _, n := range nodes {
		if n.DisplayName == principal && n.Flavor != types.FlavorLocal {
			return n.Flavor, true, nil
		}
	}
	return types.FlavorDefault, false, nil
}

// CredentialsFor returns the Basic-Auth principal and secret used when calling node.
func CredentialsFor(n types.Node) (string, string) {
	return n.DisplayName, n.Password
}

// AuthorizationHeader is the Basic-Auth header value for node.
func AuthorizationHeader(n types.Node) string {
	user, pass := CredentialsFor(n)
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}
