// Package visibility decides who may see which posts.
package visibility

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"github.com/socialdist/fednode/types"
)

var tracer = otel.Tracer("visibility")

// Relations answers follow questions between authors by URL.
type Relations interface {
	IsMutualFollow(ctx context.Context, a, b string) bool
}

type Evaluator struct {
	relations Relations
}

func NewEvaluator(relations Relations) *Evaluator {
	return &Evaluator{relations: relations}
}

// Authorize decides whether requester may retrieve post. A nil requester is anonymous.
func (e *Evaluator) Authorize(ctx context.Context, requester *types.Author, post types.Post) error {
	ctx, span := tracer.Start(ctx, "Visibility.Evaluator.Authorize")
	defer span.End()

	switch post.Visibility {
	case types.VisibilityPublic, types.VisibilityUnlisted:
		return nil
	}

	if requester == nil {
		return errors.Wrap(types.ErrUnauthorized, "friends-only post")
	}
	if requester.IsNode || requester.ID == post.AuthorID {
		return nil
	}
	if e.relations.IsMutualFollow(ctx, requester.URL, post.Author.URL) {
		return nil
	}
	return errors.Wrap(types.ErrUnauthorized, "friends-only post")
}

// AllowedVisibilities lists what requester may see when listing author's posts. nil means everything.
func (e *Evaluator) AllowedVisibilities(ctx context.Context, requester *types.Author, author types.Author) []types.Visibility {
	ctx, span := tracer.Start(ctx, "Visibility.Evaluator.AllowedVisibilities")
	defer span.End()

	switch {
	case requester == nil:
		return []types.Visibility{types.VisibilityPublic}
	case requester.IsNode, requester.ID == author.ID:
		return nil
	case e.relations.IsMutualFollow(ctx, requester.URL, author.URL):
		return []types.Visibility{types.VisibilityPublic, types.VisibilityFriends}
	}
	return []types.Visibility{types.VisibilityPublic}
}

// CanComment decides whether requester may comment on post.
// Unlisted posts take comments from their author only.
func (e *Evaluator) CanComment(ctx context.Context, requester types.Author, post types.Post) error {
	ctx, span := tracer.Start(ctx, "Visibility.Evaluator.CanComment")
	defer span.End()

	switch post.Visibility {
	case types.VisibilityPublic:
		return nil
	case types.VisibilityUnlisted:
		if requester.ID == post.AuthorID {
			return nil
		}
		return errors.Wrap(types.ErrUnauthorized, "only the author can comment on an unlisted post")
	}
	if requester.ID == post.AuthorID {
		return nil
	}
	if e.relations.IsMutualFollow(ctx, requester.URL, post.Author.URL) {
		return nil
	}
	return errors.Wrap(types.ErrUnauthorized, "only friends can comment on this post")
}
