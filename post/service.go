// Package post serves posts, their comments and likes, the public stream and the following feed.
package post

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/socialdist/fednode/exts"
	"github.com/socialdist/fednode/fedclient"
	"github.com/socialdist/fednode/inbox"
	"github.com/socialdist/fednode/node"
	"github.com/socialdist/fednode/store"
	"github.com/socialdist/fednode/types"
	"github.com/socialdist/fednode/visibility"
)

type Service struct {
	store     *store.Store
	client    *fedclient.Client
	nodes     *node.Registry
	evaluator *visibility.Evaluator
	relations visibility.Relations
	inbox     *inbox.Service
}

func NewService(
	store *store.Store,
	client *fedclient.Client,
	nodes *node.Registry,
	evaluator *visibility.Evaluator,
	relations visibility.Relations,
	inbox *inbox.Service,
) *Service {
	return &Service{
		store,
		client,
		nodes,
		evaluator,
		relations,
		inbox,
	}
}

// Input is the editable part of a post.
type Input struct {
	Title       string `json:"title" validate:"required,max=300"`
	Description string `json:"description" validate:"max=1000"`
	Content     string `json:"content"`
	ContentType string `json:"contentType"`
	Source      string `json:"source" validate:"omitempty,url"`
	Origin      string `json:"origin" validate:"omitempty,url"`
	Visibility  string `json:"visibility"`
}

func (in Input) apply(post *types.Post) error {
	if err := exts.ValidateStruct(in); err != nil {
		return err
	}
	contentType, err := types.ParseContentType(in.ContentType)
	if err != nil {
		return err
	}
	vis, err := types.ParseVisibility(in.Visibility)
	if err != nil {
		return err
	}
	if contentType.IsImage() || contentType == types.ContentBase64 {
		if _, err := base64.StdEncoding.DecodeString(in.Content); err != nil {
			return errors.Wrap(types.ErrValidation, "content is not valid base64")
		}
	}

	post.Title = in.Title
	post.Description = in.Description
	post.Content = in.Content
	post.ContentType = contentType
	post.Source = in.Source
	post.Origin = in.Origin
	post.Visibility = vis
	return nil
}

// Listing is a page of posts, or a peer's answer when the author lives elsewhere.
type Listing struct {
	Items  []types.PostObject
	Remote *fedclient.Response
}

// List returns authorID's posts that requester may see. path is the request path, used to ask peers with all.
func (s *Service) List(ctx context.Context, requester *types.Author, authorID string, page types.Page, path string, all bool) (Listing, error) {
	ctx, span := tracer.Start(ctx, "Post.Service.List")
	defer span.End()

	author, err := s.store.GetLocalAuthor(ctx, authorID)
	if err != nil {
		if !errors.Is(err, types.ErrNotFound) || !all {
			span.RecordError(err)
			return Listing{}, err
		}
		resp, err := s.client.SearchAll(ctx, node.ResourcePosts, path)
		if err != nil {
			span.RecordError(err)
			return Listing{}, err
		}
		return Listing{Remote: resp}, nil
	}

	posts, err := s.store.ListPosts(ctx, author.ID, s.evaluator.AllowedVisibilities(ctx, requester, author), page)
	if err != nil {
		span.RecordError(err)
		return Listing{}, err
	}
	items := make([]types.PostObject, 0, len(posts))
	for _, p := range posts {
		items = append(items, p.ToObject())
	}
	return Listing{Items: items}, nil
}

// Single is one post, or a peer's answer.
type Single struct {
	Post   *types.PostObject
	Remote *fedclient.Response
}

// Retrieve returns one post of authorID if requester may see it.
func (s *Service) Retrieve(ctx context.Context, requester *types.Author, authorID, postID, path string, all bool) (Single, error) {
	ctx, span := tracer.Start(ctx, "Post.Service.Retrieve")
	defer span.End()

	if _, err := s.store.GetLocalAuthor(ctx, authorID); err != nil {
		if !errors.Is(err, types.ErrNotFound) || !all {
			return Single{}, err
		}
		resp, err := s.client.SearchAll(ctx, node.ResourcePosts, path)
		if err != nil {
			span.RecordError(err)
			return Single{}, err
		}
		return Single{Remote: resp}, nil
	}

	post, err := s.ownedPost(ctx, authorID, postID)
	if err != nil {
		return Single{}, err
	}
	if err := s.evaluator.Authorize(ctx, requester, post); err != nil {
		return Single{}, err
	}
	obj := post.ToObject()
	return Single{Post: &obj}, nil
}

func (s *Service) ownedPost(ctx context.Context, authorID, postID string) (types.Post, error) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return post, err
	}
	if post.AuthorID != authorID {
		return post, errors.Wrapf(types.ErrNotFound, "post %s not found under author %s", postID, authorID)
	}
	return post, nil
}

// writer checks that requester may write authorID's posts.
func writer(requester *types.Author, authorID string) error {
	switch {
	case requester == nil:
		return errors.Wrap(types.ErrUnauthorized, "authentication required")
	case requester.IsNode:
		return errors.Wrap(types.ErrForbidden, "nodes cannot write posts")
	case requester.ID != authorID:
		return errors.Wrap(types.ErrUnauthorized, "posts can only be written by their author")
	}
	return nil
}

// Create stores a new post and announces it to the author's followers.
func (s *Service) Create(ctx context.Context, requester *types.Author, authorID string, in Input) (types.PostObject, error) {
	ctx, span := tracer.Start(ctx, "Post.Service.Create")
	defer span.End()

	if err := writer(requester, authorID); err != nil {
		return types.PostObject{}, err
	}
	author, err := s.store.GetLocalAuthor(ctx, authorID)
	if err != nil {
		return types.PostObject{}, err
	}

	post := types.Post{
		ID:        uuid.NewString(),
		AuthorID:  author.ID,
		Published: time.Now(),
	}
	if err := in.apply(&post); err != nil {
		return types.PostObject{}, err
	}

	post, err = s.store.CreatePost(ctx, post)
	if err != nil {
		span.RecordError(err)
		return types.PostObject{}, err
	}
	post.Author = author

	reached := s.inbox.FanOutPost(ctx, post)
	log.Info().Str("post", post.ID).Int("followers", reached).Msg("post created")
	return post.ToObject(), nil
}

// Update replaces the editable fields of a post.
func (s *Service) Update(ctx context.Context, requester *types.Author, authorID, postID string, in Input) (types.PostObject, error) {
	ctx, span := tracer.Start(ctx, "Post.Service.Update")
	defer span.End()

	if err := writer(requester, authorID); err != nil {
		return types.PostObject{}, err
	}
	post, err := s.ownedPost(ctx, authorID, postID)
	if err != nil {
		return types.PostObject{}, err
	}
	if err := in.apply(&post); err != nil {
		return types.PostObject{}, err
	}
	post, err = s.store.UpdatePost(ctx, post)
	if err != nil {
		span.RecordError(err)
		return types.PostObject{}, err
	}
	return post.ToObject(), nil
}

// Delete removes a post with its comments and likes.
func (s *Service) Delete(ctx context.Context, requester *types.Author, authorID, postID string) error {
	ctx, span := tracer.Start(ctx, "Post.Service.Delete")
	defer span.End()

	if err := writer(requester, authorID); err != nil {
		return err
	}
	post, err := s.ownedPost(ctx, authorID, postID)
	if err != nil {
		return err
	}
	if err := s.store.DeletePost(ctx, post); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// Public returns PUBLIC posts of every local author, newest first.
func (s *Service) Public(ctx context.Context, page types.Page) ([]types.PostObject, error) {
	ctx, span := tracer.Start(ctx, "Post.Service.Public")
	defer span.End()

	posts, err := s.store.ListPublicPosts(ctx, page)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	items := make([]types.PostObject, 0, len(posts))
	for _, p := range posts {
		items = append(items, p.ToObject())
	}
	return items, nil
}

// Image is the decoded content of an image post, or a peer's answer.
type Image struct {
	MimeType string
	Data     []byte
	Remote   *fedclient.Response
}

// Image decodes a PUBLIC image post.
func (s *Service) Image(ctx context.Context, authorID, postID, path string, all bool) (Image, error) {
	ctx, span := tracer.Start(ctx, "Post.Service.Image")
	defer span.End()

	if _, err := s.store.GetLocalAuthor(ctx, authorID); err != nil {
		if !errors.Is(err, types.ErrNotFound) || !all {
			return Image{}, err
		}
		resp, err := s.client.SearchAll(ctx, node.ResourcePosts, path)
		if err != nil {
			span.RecordError(err)
			return Image{}, err
		}
		return Image{Remote: resp}, nil
	}

	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return Image{}, err
	}
	if post.Visibility != types.VisibilityPublic {
		return Image{}, errors.Wrap(types.ErrValidation, "post is not public")
	}
	if !post.ContentType.IsImage() {
		return Image{}, errors.Wrap(types.ErrValidation, "post is not an image")
	}
	if post.AuthorID != authorID {
		return Image{}, errors.Wrapf(types.ErrNotFound, "author %s has no post %s", authorID, postID)
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(post.Content))
	if err != nil {
		return Image{}, errors.Wrap(types.ErrValidation, "image content is not valid base64")
	}
	return Image{MimeType: post.ContentType.MimeType(), Data: data}, nil
}
