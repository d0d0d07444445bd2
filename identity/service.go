// Package identity turns author objects received from peers into local rows.
package identity

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"github.com/socialdist/fednode/exts"
	"github.com/socialdist/fednode/store"
	"github.com/socialdist/fednode/types"
	"github.com/socialdist/fednode/urlutil"
)

var tracer = otel.Tracer("identity")

type Service struct {
	store *store.Store
}

func NewService(store *store.Store) *Service {
	return &Service{store: store}
}

// ResolveOrCopyRaw decodes a loose author object before resolving it.
func (s *Service) ResolveOrCopyRaw(ctx context.Context, raw *types.RawObj) (types.Author, error) {
	if raw == nil {
		return types.Author{}, errors.Wrap(types.ErrValidation, "author object missing")
	}
	var obj types.AuthorObject
	if err := raw.Decode(&obj); err != nil {
		return types.Author{}, errors.Wrapf(types.ErrValidation, "author object: %v", err)
	}
	return s.ResolveOrCopyAuthor(ctx, obj)
}

// ResolveOrCopyAuthor returns the row for obj, creating a remote copy when none exists.
// An existing row is returned as is, whatever obj says.
func (s *Service) ResolveOrCopyAuthor(ctx context.Context, obj types.AuthorObject) (types.Author, error) {
	ctx, span := tracer.Start(ctx, "Identity.Service.ResolveOrCopyAuthor")
	defer span.End()

	if obj.Type != "author" {
		return types.Author{}, errors.Wrapf(types.ErrValidation, "expected type author, got %q", obj.Type)
	}
	if obj.ID == "" {
		return types.Author{}, errors.Wrap(types.ErrValidation, "author id missing")
	}

	id := urlutil.ExtractID(obj.ID)
	existing, err := s.store.GetAuthor(ctx, id)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, types.ErrNotFound) {
		span.RecordError(err)
		return types.Author{}, err
	}

	if err := exts.ValidateStruct(obj); err != nil {
		return types.Author{}, errors.Wrapf(err, "author %s", obj.ID)
	}

	author := types.Author{
		ID:           id,
		DisplayName:  obj.DisplayName,
		URL:          urlutil.Standardize(obj.URL),
		Host:         obj.Host,
		Github:       obj.Github,
		ProfileImage: obj.ProfileImage,
		IsRemote:     true,
		IsActive:     true,
	}
	created, err := s.store.InsertAuthorIfAbsent(ctx, author)
	if err != nil {
		span.RecordError(err)
		return types.Author{}, err
	}
	if !created {
		return types.Author{}, errors.Wrapf(types.ErrValidation, "author %s was created concurrently", id)
	}
	return author, nil
}
