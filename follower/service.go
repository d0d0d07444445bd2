// Package follower keeps local follower edges consistent with what peers report.
package follower

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/socialdist/fednode/fedclient"
	"github.com/socialdist/fednode/node"
	"github.com/socialdist/fednode/store"
	"github.com/socialdist/fednode/types"
	"github.com/socialdist/fednode/urlutil"
)

type Service struct {
	store  *store.Store
	client *fedclient.Client
	nodes  *node.Registry
}

func NewService(
	store *store.Store,
	client *fedclient.Client,
	nodes *node.Registry,
) *Service {
	return &Service{
		store,
		client,
		nodes,
	}
}

// Followers is either the local edges of an author or a peer's answer passed through unchanged.
type Followers struct {
	Edges  []types.Follower
	Remote *fedclient.Response
}

// AddFollower records that actor follows the local author objectID.
func (s *Service) AddFollower(ctx context.Context, objectID, actorRef string) (types.Follower, error) {
	ctx, span := tracer.Start(ctx, "Follower.Service.AddFollower")
	defer span.End()

	object, err := s.store.GetLocalAuthor(ctx, objectID)
	if err != nil {
		span.RecordError(err)
		return types.Follower{}, err
	}
	actor, err := s.store.GetAuthor(ctx, urlutil.ExtractID(actorRef))
	if err != nil {
		span.RecordError(err)
		return types.Follower{}, err
	}

	edge, err := s.store.CreateFollower(ctx, object.ID, actor.ID)
	if err != nil {
		span.RecordError(err)
		return types.Follower{}, err
	}
	edge.Object = object
	edge.Actor = actor
	return edge, nil
}

// RemoveFollower deletes the edge. When object lives on a peer that wants to hear about
// unfollows, the peer is told first; failing to tell it does not stop the delete.
// A missing edge is NotFound and nobody is told.
func (s *Service) RemoveFollower(ctx context.Context, objectID, actorRef string) error {
	ctx, span := tracer.Start(ctx, "Follower.Service.RemoveFollower")
	defer span.End()

	object, err := s.store.GetAuthor(ctx, urlutil.ExtractID(objectID))
	if err != nil {
		span.RecordError(err)
		return err
	}
	actor, err := s.store.GetAuthor(ctx, urlutil.ExtractID(actorRef))
	if err != nil {
		span.RecordError(err)
		return err
	}

	exists, err := s.store.HasFollower(ctx, object.ID, actor.ID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if !exists {
		return errors.Wrapf(types.ErrNotFound, "%s does not follow %s", actor.ID, object.ID)
	}

	if object.IsRemote {
		s.notifyUnfollow(ctx, actor, object)
	}

	if err := s.store.DeleteFollower(ctx, object.ID, actor.ID); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

func (s *Service) notifyUnfollow(ctx context.Context, actor, object types.Author) {
	n, _, ok, err := s.nodes.MatchByURL(ctx, object.URL)
	if err != nil || !ok {
		return
	}
	target, body, ok := node.UnfollowNotice(n, actor, object)
	if !ok {
		return
	}

	resp, err := s.client.Post(ctx, target, body)
	if err != nil {
		log.Warn().Err(err).Str("url", target).Msg("unfollow notice not delivered")
		return
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		log.Warn().Int("status", resp.StatusCode).Str("url", target).Msg("unfollow notice refused")
	}
}

// ListFollowers returns the followers of objectID.
// With verifyRemote the local edges are rechecked against their peers and stale ones pruned.
// Without it every node is asked in turn and the first answer wins.
func (s *Service) ListFollowers(ctx context.Context, objectID string, verifyRemote bool) (Followers, error) {
	ctx, span := tracer.Start(ctx, "Follower.Service.ListFollowers")
	defer span.End()

	if !verifyRemote {
		return s.searchFollowers(ctx, objectID)
	}

	object, err := s.store.GetLocalAuthor(ctx, objectID)
	if err != nil {
		span.RecordError(err)
		return Followers{}, err
	}
	edges, err := s.store.GetFollowers(ctx, object.ID)
	if err != nil {
		span.RecordError(err)
		return Followers{}, err
	}

	kept := make([]types.Follower, 0, len(edges))
	for _, edge := range edges {
		if s.stillFollows(ctx, edge.Object, edge.Actor) {
			kept = append(kept, edge)
		}
	}
	return Followers{Edges: kept}, nil
}

func (s *Service) searchFollowers(ctx context.Context, objectID string) (Followers, error) {
	nodes, err := s.nodes.ListActive(ctx)
	if err != nil {
		return Followers{}, err
	}

	path := "authors/" + objectID + "/followers"
	for _, n := range nodes {
		if n.Flavor == types.FlavorLocal {
			object, err := s.store.GetLocalAuthor(ctx, objectID)
			if err != nil {
				continue
			}
			edges, err := s.store.GetFollowers(ctx, object.ID)
			if err != nil {
				return Followers{}, err
			}
			return Followers{Edges: edges}, nil
		}

		resp, err := s.client.FetchFrom(ctx, n, http.MethodGet, node.SearchURL(n, path, node.ResourceFollowers), nil)
		if err != nil {
			continue
		}
		if resp.OK() {
			return Followers{Remote: resp}, nil
		}
		log.Debug().Str("node", n.Name).Int("status", resp.StatusCode).Msg("followers not on node")
	}
	return Followers{}, errors.Wrapf(types.ErrNotFound, "author %s not found on any node", objectID)
}

// GetFollower returns the edge if actor still follows object. A stale edge is pruned and reported missing.
func (s *Service) GetFollower(ctx context.Context, objectID, actorRef string) (types.Follower, error) {
	ctx, span := tracer.Start(ctx, "Follower.Service.GetFollower")
	defer span.End()

	object, err := s.store.GetAuthor(ctx, urlutil.ExtractID(objectID))
	if err != nil {
		span.RecordError(err)
		return types.Follower{}, err
	}
	actor, err := s.store.GetAuthor(ctx, urlutil.ExtractID(actorRef))
	if err != nil {
		span.RecordError(err)
		return types.Follower{}, err
	}

	edge, err := s.store.GetFollower(ctx, object.ID, actor.ID)
	if err != nil {
		span.RecordError(err)
		return types.Follower{}, err
	}
	if !s.stillFollows(ctx, object, actor) {
		return types.Follower{}, errors.Wrapf(types.ErrNotFound, "%s no longer follows %s", actor.DisplayName, object.DisplayName)
	}
	return edge, nil
}

// SearchFollower asks each peer whether actorRef follows objectID.
func (s *Service) SearchFollower(ctx context.Context, objectID, actorRef string) (*fedclient.Response, error) {
	ctx, span := tracer.Start(ctx, "Follower.Service.SearchFollower")
	defer span.End()

	path := urlutil.Join("authors", objectID, "followers", urlutil.Escape(actorRef))
	resp, err := s.client.SearchAll(ctx, node.ResourceFollowers, path)
	if err != nil {
		span.RecordError(err)
	}
	return resp, err
}

// IsMutualFollow reports whether the authors at a and b follow each other.
func (s *Service) IsMutualFollow(ctx context.Context, a, b string) bool {
	ctx, span := tracer.Start(ctx, "Follower.Service.IsMutualFollow")
	defer span.End()

	return s.follows(ctx, a, b) && s.follows(ctx, b, a)
}

// Follows reports whether the author at actorURL follows the author at objectURL.
// Edges that cannot be decided locally are asked of the followed author's node.
func (s *Service) Follows(ctx context.Context, actorURL, objectURL string) bool {
	return s.follows(ctx, actorURL, objectURL)
}

func (s *Service) follows(ctx context.Context, actorURL, objectURL string) bool {
	actor, actorErr := s.store.GetAuthorByURL(ctx, actorURL)
	object, objectErr := s.store.GetAuthorByURL(ctx, objectURL)

	if actorErr == nil && objectErr == nil {
		ok, err := s.store.HasFollower(ctx, object.ID, actor.ID)
		if err != nil {
			log.Warn().Err(err).Msg("follower lookup failed")
			return false
		}
		return ok
	}
	if objectErr == nil && object.Local() {
		// a local author's followers are all recorded here
		return false
	}

	target := urlutil.Join(objectURL, "followers", urlutil.Escape(urlutil.Standardize(actorURL)))
	resp, err := s.client.Get(ctx, target)
	if err != nil {
		return false
	}
	return resp.OK()
}
