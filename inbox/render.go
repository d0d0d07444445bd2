package inbox

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/socialdist/fednode/types"
	"github.com/socialdist/fednode/urlutil"
)

// render turns a stored entry into its wire form. Missing posts and comments become placeholders.
func (s *Service) render(ctx context.Context, entry types.InboxEntry) any {
	switch entry.Type {
	case types.InboxPost:
		if entry.PostURL == nil {
			break
		}
		if obj, ok := s.fetchObject(ctx, *entry.PostURL, s.localPost); ok {
			obj.Set("type", "post")
			return obj
		}
		return map[string]any{"type": "post", "post": map[string]string{"error": "Post not found"}}

	case types.InboxFollow:
		if entry.FollowRequest == nil {
			break
		}
		return map[string]any{
			"type":    "follow",
			"summary": entry.FollowRequest.Summary(),
			"actor":   entry.FollowRequest.Actor.ToObject(),
			"object":  entry.FollowRequest.Object.ToObject(),
		}

	case types.InboxLike:
		if entry.Like == nil {
			break
		}
		var liker *types.Author
		if a, err := s.store.GetAuthorByURL(ctx, entry.Like.Author); err == nil {
			liker = &a
		}
		return entry.Like.ToObject(liker)

	case types.InboxComment:
		if entry.Comment == nil {
			break
		}
		if obj, ok := s.fetchObject(ctx, entry.Comment.CommentURL, s.localComment); ok {
			obj.Set("type", "comment")
			return obj
		}
		return map[string]any{"type": "comment", "error": "Comment not found"}
	}
	return map[string]any{"type": entry.Type, "error": "entry payload missing"}
}

// fetchObject reads u from storage when this node serves it and from its peer otherwise.
func (s *Service) fetchObject(ctx context.Context, u string, local func(context.Context, string) (any, error)) (*types.RawObj, bool) {
	n, _, ok, err := s.nodes.MatchByURL(ctx, u)
	if err == nil && ok && n.Flavor == types.FlavorLocal {
		obj, err := local(ctx, urlutil.ExtractID(u))
		if err != nil {
			return nil, false
		}
		return toRaw(obj)
	}

	resp, err := s.client.Get(ctx, u)
	if err != nil {
		log.Warn().Err(err).Str("url", u).Msg("inbox object not fetched")
		return nil, false
	}
	if !resp.OK() {
		return nil, false
	}
	raw, err := resp.Raw()
	if err != nil {
		return nil, false
	}
	return raw, true
}

func (s *Service) localPost(ctx context.Context, id string) (any, error) {
	post, err := s.store.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}
	return post.ToObject(), nil
}

func (s *Service) localComment(ctx context.Context, id string) (any, error) {
	comment, err := s.store.GetComment(ctx, id)
	if err != nil {
		return nil, err
	}
	return comment.ToObject(), nil
}

func toRaw(v any) (*types.RawObj, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	raw, err := types.LoadAsRawObj(b)
	return raw, err == nil
}
