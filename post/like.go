package post

import (
	"context"

	"github.com/pkg/errors"

	"github.com/socialdist/fednode/fedclient"
	"github.com/socialdist/fednode/node"
	"github.com/socialdist/fednode/types"
)

// Likes is the list of likes on an object, or a peer's answer.
type Likes struct {
	Items  []types.LikeObject
	Remote *fedclient.Response
}

// ListLikes returns the likes on a post, or on one of its comments when commentID is set.
func (s *Service) ListLikes(ctx context.Context, authorID, postID, commentID, path string, all bool) (Likes, error) {
	ctx, span := tracer.Start(ctx, "Post.Service.ListLikes")
	defer span.End()

	objectURL, err := s.likedObject(ctx, authorID, postID, commentID)
	if err != nil {
		if !errors.Is(err, types.ErrNotFound) || !all {
			return Likes{}, err
		}
		resp, err := s.client.SearchAll(ctx, node.ResourceLikes, path)
		if err != nil {
			span.RecordError(err)
			return Likes{}, err
		}
		return Likes{Remote: resp}, nil
	}

	likes, err := s.store.ListLikesByObject(ctx, objectURL)
	if err != nil {
		span.RecordError(err)
		return Likes{}, err
	}
	return Likes{Items: s.renderLikes(ctx, likes)}, nil
}

func (s *Service) likedObject(ctx context.Context, authorID, postID, commentID string) (string, error) {
	author, err := s.store.GetLocalAuthor(ctx, authorID)
	if err != nil {
		return "", err
	}
	if commentID != "" {
		comment, err := s.store.GetComment(ctx, commentID)
		if err != nil {
			return "", err
		}
		if comment.PostID != postID || comment.Post.AuthorID != author.ID {
			return "", errors.Wrapf(types.ErrNotFound, "comment %s not found on post %s by %s", commentID, postID, authorID)
		}
		return types.LikeObjectURL(author, postID, commentID), nil
	}

	if _, err := s.ownedPost(ctx, author.ID, postID); err != nil {
		return "", err
	}
	return types.LikeObjectURL(author, postID, ""), nil
}

func (s *Service) renderLikes(ctx context.Context, likes []types.Like) []types.LikeObject {
	items := make([]types.LikeObject, 0, len(likes))
	for _, l := range likes {
		var liker *types.Author
		if a, err := s.store.GetAuthorByURL(ctx, l.Author); err == nil {
			liker = &a
		}
		items = append(items, l.ToObject(liker))
	}
	return items
}
