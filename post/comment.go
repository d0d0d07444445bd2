package post

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/socialdist/fednode/exts"
	"github.com/socialdist/fednode/fedclient"
	"github.com/socialdist/fednode/node"
	"github.com/socialdist/fednode/types"
	"github.com/socialdist/fednode/urlutil"
)

// CommentInput is what an author sends to comment on a post.
type CommentInput struct {
	Comment     string `json:"comment" validate:"required"`
	ContentType string `json:"contentType"`
}

// Comments is a page of comments under the list key the caller expects, or a peer's answer.
type Comments struct {
	Key    string
	Items  []types.CommentObject
	Remote *fedclient.Response
}

// commentsKey picks the list key for requester; node accounts of some flavors expect their own.
func (s *Service) commentsKey(ctx context.Context, requester *types.Author) string {
	if requester == nil || !requester.IsNode {
		return node.CommentsKey(types.FlavorDefault)
	}
	flavor, _, err := s.nodes.FlavorOfPrincipal(ctx, requester.DisplayName)
	if err != nil {
		log.Warn().Err(err).Str("principal", requester.DisplayName).Msg("caller flavor unknown")
	}
	return node.CommentsKey(flavor)
}

// ListComments returns the comments on a post. A post not held here is an empty list unless all asks peers.
func (s *Service) ListComments(ctx context.Context, requester *types.Author, authorID, postID string, page types.Page, path string, all bool) (Comments, error) {
	ctx, span := tracer.Start(ctx, "Post.Service.ListComments")
	defer span.End()

	out := Comments{Key: s.commentsKey(ctx, requester), Items: []types.CommentObject{}}

	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		if !errors.Is(err, types.ErrNotFound) {
			span.RecordError(err)
			return out, err
		}
		if !all {
			return out, nil
		}
		resp, err := s.client.SearchAll(ctx, node.ResourceComments, path)
		if err != nil {
			return out, nil
		}
		out.Remote = resp
		return out, nil
	}
	if post.AuthorID != authorID {
		return out, errors.Wrapf(types.ErrNotFound, "post %s not found under author %s", postID, authorID)
	}
	if err := s.evaluator.Authorize(ctx, requester, post); err != nil {
		span.RecordError(err)
		return out, err
	}

	comments, err := s.store.ListComments(ctx, post.ID, page)
	if err != nil {
		span.RecordError(err)
		return out, err
	}
	for _, c := range comments {
		out.Items = append(out.Items, c.ToObject())
	}
	return out, nil
}

// SingleComment is one comment, or a peer's answer.
type SingleComment struct {
	Comment *types.CommentObject
	Remote  *fedclient.Response
}

// GetComment returns one comment of a post of authorID, readable by whoever may read the post.
func (s *Service) GetComment(ctx context.Context, requester *types.Author, authorID, postID, commentID, path string, all bool) (SingleComment, error) {
	ctx, span := tracer.Start(ctx, "Post.Service.GetComment")
	defer span.End()

	comment, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		if !errors.Is(err, types.ErrNotFound) || !all {
			return SingleComment{}, err
		}
		resp, err := s.client.SearchAll(ctx, node.ResourceComments, path)
		if err != nil {
			span.RecordError(err)
			return SingleComment{}, err
		}
		return SingleComment{Remote: resp}, nil
	}

	if comment.PostID != postID || comment.Post.AuthorID != authorID {
		return SingleComment{}, errors.Wrapf(types.ErrNotFound, "comment %s not found under post %s", commentID, postID)
	}
	if err := s.evaluator.Authorize(ctx, requester, comment.Post); err != nil {
		span.RecordError(err)
		return SingleComment{}, err
	}
	obj := comment.ToObject()
	return SingleComment{Comment: &obj}, nil
}

// CreateComment comments on a local post or routes the comment to the node owning the post.
func (s *Service) CreateComment(ctx context.Context, requester *types.Author, authorID, postID string, in CommentInput) (SingleComment, error) {
	ctx, span := tracer.Start(ctx, "Post.Service.CreateComment")
	defer span.End()

	switch {
	case requester == nil:
		return SingleComment{}, errors.Wrap(types.ErrUnauthorized, "authentication required")
	case requester.IsNode:
		return SingleComment{}, errors.Wrap(types.ErrForbidden, "nodes cannot comment")
	}
	if err := exts.ValidateStruct(in); err != nil {
		return SingleComment{}, err
	}
	contentType, err := types.ParseContentType(in.ContentType)
	if err != nil {
		return SingleComment{}, err
	}

	post, err := s.store.GetPost(ctx, postID)
	if errors.Is(err, types.ErrNotFound) {
		resp, err := s.createRemoteComment(ctx, *requester, authorID, postID, in.Comment, contentType)
		if err != nil {
			span.RecordError(err)
			return SingleComment{}, err
		}
		return SingleComment{Remote: resp}, nil
	}
	if err != nil {
		span.RecordError(err)
		return SingleComment{}, err
	}
	if post.AuthorID != authorID {
		return SingleComment{}, errors.Wrapf(types.ErrNotFound, "post %s not found under author %s", postID, authorID)
	}
	if err := s.evaluator.CanComment(ctx, *requester, post); err != nil {
		return SingleComment{}, err
	}

	comment := types.Comment{
		ID:          uuid.NewString(),
		PostID:      post.ID,
		AuthorID:    requester.ID,
		Text:        in.Comment,
		ContentType: contentType,
		Published:   time.Now(),
	}
	commentURL := types.CommentURL(types.PostURL(post.Author, post.ID), comment.ID)
	if _, err := s.store.CreateCommentEntry(ctx, post.AuthorID, comment, urlutil.Standardize(requester.URL), commentURL); err != nil {
		span.RecordError(err)
		return SingleComment{}, err
	}

	stored, err := s.store.GetComment(ctx, comment.ID)
	if err != nil {
		return SingleComment{}, err
	}
	obj := stored.ToObject()
	return SingleComment{Comment: &obj}, nil
}

// createRemoteComment finds the post on a peer and delivers the comment to its author's inbox there.
func (s *Service) createRemoteComment(ctx context.Context, requester types.Author, authorID, postID, text string, contentType types.ContentType) (*fedclient.Response, error) {
	ctx, span := tracer.Start(ctx, "Post.Service.createRemoteComment")
	defer span.End()

	found, err := s.client.SearchAll(ctx, node.ResourcePosts, urlutil.Join("authors", authorID, "posts", postID))
	if err != nil {
		return nil, errors.Wrapf(types.ErrNotFound, "post %s not found on any node", postID)
	}
	remote, err := found.Raw()
	if err != nil {
		return nil, errors.Wrapf(types.ErrUpstreamUnavailable, "post %s: %v", postID, err)
	}
	postURL := remote.MustGetString("id")
	ownerURL := remote.MustGetString("author.id")
	if postURL == "" || ownerURL == "" {
		return nil, errors.Wrapf(types.ErrUpstreamUnavailable, "post %s came back without ids", postID)
	}

	item := map[string]any{
		"type":        "comment",
		"author":      requester.ToObject(),
		"comment":     text,
		"contentType": contentType,
		"published":   time.Now().Format(time.RFC3339),
	}
	node.CommentPostRef(found.Node, item, postURL)

	target := node.SearchURL(found.Node, urlutil.Join("authors", urlutil.ExtractID(ownerURL), "inbox"), node.ResourceInbox)
	resp, err := s.client.FetchFrom(ctx, found.Node, http.MethodPost, target, types.NewEnvelope(ownerURL, item))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, errors.Wrapf(types.ErrUpstreamUnavailable, "%s refused the comment with %d", found.Node.Name, resp.StatusCode)
	}
	return resp, nil
}
