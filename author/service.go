// Package author serves registration, login and author profiles.
package author

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/socialdist/fednode/auth"
	"github.com/socialdist/fednode/exts"
	"github.com/socialdist/fednode/fedclient"
	"github.com/socialdist/fednode/node"
	"github.com/socialdist/fednode/store"
	"github.com/socialdist/fednode/types"
	"github.com/socialdist/fednode/urlutil"
)

type Service struct {
	store  *store.Store
	client *fedclient.Client
	config types.NodeConfig
}

func NewService(store *store.Store, client *fedclient.Client, config types.NodeConfig) *Service {
	return &Service{
		store,
		client,
		config,
	}
}

// RegisterInput is the sign-up form.
type RegisterInput struct {
	DisplayName  string  `json:"displayName" validate:"required,max=150"`
	Password     string  `json:"password" validate:"required,min=4"`
	Github       string  `json:"github" validate:"required,url"`
	ProfileImage *string `json:"profileImage" validate:"omitempty,url"`
}

// Register creates an inactive local author; an administrator activates it.
func (s *Service) Register(ctx context.Context, in RegisterInput) (types.Author, error) {
	ctx, span := tracer.Start(ctx, "Author.Service.Register")
	defer span.End()

	if err := exts.ValidateStruct(in); err != nil {
		return types.Author{}, err
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return types.Author{}, err
	}

	github := urlutil.Standardize(in.Github)
	image := in.ProfileImage
	if image == nil {
		image = lo.ToPtr(github + ".png")
	}

	id := uuid.NewString()
	author, err := s.store.CreateAuthor(ctx, types.Author{
		ID:           id,
		DisplayName:  in.DisplayName,
		URL:          types.LocalAuthorURL(s.config.HostAPIURL, id),
		Host:         s.config.HostAPIURL,
		Github:       github,
		ProfileImage: image,
		PasswordHash: hash,
	})
	if err != nil {
		span.RecordError(err)
		return types.Author{}, err
	}
	log.Info().Str("author", author.ID).Str("displayName", author.DisplayName).Msg("author registered")
	return author, nil
}

// Login returns the authenticated author.
func (s *Service) Login(ctx context.Context, requester *types.Author) (types.Author, error) {
	if requester == nil {
		return types.Author{}, errors.Wrap(types.ErrUnauthorized, "authentication required")
	}
	return *requester, nil
}

// List returns active local authors, followed with all by the authors every peer lists.
func (s *Service) List(ctx context.Context, page types.Page, all bool) ([]any, error) {
	ctx, span := tracer.Start(ctx, "Author.Service.List")
	defer span.End()

	authors, err := s.store.ListLocalAuthors(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	items := lo.Map(authors, func(a types.Author, _ int) any {
		return a.ToObject()
	})

	if all {
		for _, resp := range s.client.SearchEach(ctx, node.ResourceAuthors, "authors") {
			raw, err := resp.Raw()
			if err != nil {
				log.Warn().Err(err).Str("node", resp.Node.Name).Msg("author list unreadable")
				continue
			}
			for _, item := range raw.GetList("items") {
				items = append(items, item)
			}
		}
	}
	return types.Paginate(items, page), nil
}

// Single is one author, or a peer's answer.
type Single struct {
	Author *types.AuthorObject
	Remote *fedclient.Response
}

// Retrieve returns a local author, or with all the first peer that knows id.
func (s *Service) Retrieve(ctx context.Context, id string, all bool) (Single, error) {
	ctx, span := tracer.Start(ctx, "Author.Service.Retrieve")
	defer span.End()

	author, err := s.store.GetLocalAuthor(ctx, id)
	if err == nil {
		obj := author.ToObject()
		return Single{Author: &obj}, nil
	}
	if !errors.Is(err, types.ErrNotFound) || !all {
		return Single{}, err
	}

	resp, err := s.client.SearchAll(ctx, node.ResourceAuthors, urlutil.Join("authors", id))
	if err != nil {
		span.RecordError(err)
		return Single{}, err
	}
	return Single{Remote: resp}, nil
}

// UpdateInput holds the editable profile fields; empty values are left unchanged.
type UpdateInput struct {
	DisplayName  string  `json:"displayName" validate:"omitempty,max=150"`
	Github       string  `json:"github" validate:"omitempty,url"`
	ProfileImage *string `json:"profileImage" validate:"omitempty,url"`
}

// Update edits requester's own profile. A github change also moves a profile image derived from it.
func (s *Service) Update(ctx context.Context, requester *types.Author, id string, in UpdateInput) (types.AuthorObject, error) {
	ctx, span := tracer.Start(ctx, "Author.Service.Update")
	defer span.End()

	switch {
	case requester == nil:
		return types.AuthorObject{}, errors.Wrap(types.ErrUnauthorized, "authentication required")
	case requester.IsNode:
		return types.AuthorObject{}, errors.Wrap(types.ErrForbidden, "nodes cannot update authors")
	case requester.ID != id:
		return types.AuthorObject{}, errors.Wrap(types.ErrForbidden, "authors can only update themselves")
	}
	if err := exts.ValidateStruct(in); err != nil {
		return types.AuthorObject{}, err
	}

	author, err := s.store.GetLocalAuthor(ctx, id)
	if err != nil {
		return types.AuthorObject{}, err
	}

	if in.DisplayName != "" {
		author.DisplayName = in.DisplayName
	}
	if in.ProfileImage != nil {
		author.ProfileImage = in.ProfileImage
	}
	if github := urlutil.Standardize(in.Github); github != "" && github != author.Github {
		if in.ProfileImage == nil && author.ProfileImage != nil && *author.ProfileImage == author.Github+".png" {
			author.ProfileImage = lo.ToPtr(github + ".png")
		}
		author.Github = github
	}

	author, err = s.store.UpdateAuthor(ctx, author)
	if err != nil {
		span.RecordError(err)
		return types.AuthorObject{}, err
	}
	return author.ToObject(), nil
}

// Liked is what an author liked, or a peer's answer.
type Liked struct {
	Items  []types.LikeObject
	Remote *fedclient.Response
}

// Liked lists the likes made by authorID. path is the request path, used to ask peers with all.
func (s *Service) Liked(ctx context.Context, authorID, path string, all bool) (Liked, error) {
	ctx, span := tracer.Start(ctx, "Author.Service.Liked")
	defer span.End()

	author, err := s.store.GetAuthor(ctx, authorID)
	if err != nil {
		if !errors.Is(err, types.ErrNotFound) || !all {
			return Liked{}, err
		}
		resp, err := s.client.SearchAll(ctx, node.ResourceLikes, path)
		if err != nil {
			span.RecordError(err)
			return Liked{}, err
		}
		return Liked{Remote: resp}, nil
	}

	likes, err := s.store.ListLikesByAuthor(ctx, urlutil.Standardize(author.URL))
	if err != nil {
		span.RecordError(err)
		return Liked{}, err
	}
	return Liked{Items: lo.Map(likes, func(l types.Like, _ int) types.LikeObject {
		return l.ToObject(&author)
	})}, nil
}
