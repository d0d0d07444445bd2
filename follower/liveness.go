package follower

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/socialdist/fednode/node"
	"github.com/socialdist/fednode/types"
	"github.com/socialdist/fednode/urlutil"
)

// stillFollows rechecks an edge with the peer that owns it and deletes it when the peer says 404.
// Any other outcome keeps the edge.
func (s *Service) stillFollows(ctx context.Context, object, actor types.Author) bool {
	ctx, span := tracer.Start(ctx, "Follower.Service.stillFollows")
	defer span.End()

	n, target, ok := s.livenessTarget(ctx, object, actor)
	if !ok {
		return true
	}

	resp, err := s.client.FetchFrom(ctx, n, http.MethodGet, target, nil)
	if err != nil {
		log.Warn().Err(err).Str("url", target).Msg("liveness check failed, keeping follower")
		return true
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return true
	case http.StatusNotFound:
		log.Info().Str("object", object.ID).Str("actor", actor.ID).Msg("pruning stale follower")
		if err := s.store.DeleteFollower(ctx, object.ID, actor.ID); err != nil {
			span.RecordError(err)
			log.Warn().Err(err).Msg("stale follower not pruned")
		}
		return false
	}
	log.Debug().Int("status", resp.StatusCode).Str("url", target).Msg("liveness inconclusive, keeping follower")
	return true
}

// livenessTarget picks the node to ask about an edge and the URL to ask.
func (s *Service) livenessTarget(ctx context.Context, object, actor types.Author) (types.Node, string, bool) {
	var owner, target string
	switch {
	case object.IsRemote:
		owner = object.URL
		target = urlutil.Join(object.URL, "followers", urlutil.Escape(urlutil.Standardize(actor.URL)))
	case actor.IsRemote:
		owner = actor.URL
	default:
		return types.Node{}, "", false
	}

	n, _, ok, err := s.nodes.MatchByURL(ctx, owner)
	if err != nil || !ok || n.Flavor == types.FlavorLocal || !node.LivenessEnabled(n) {
		return types.Node{}, "", false
	}
	if target == "" {
		target = urlutil.Join(n.URL, "authors", object.ID, "followers", urlutil.Escape(urlutil.Standardize(actor.URL)))
	}
	return n, node.TransformURL(target, n), true
}
