package post

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"

	"github.com/socialdist/fednode/auth"
	"github.com/socialdist/fednode/exts"
	"github.com/socialdist/fednode/fedclient"
	"github.com/socialdist/fednode/types"
)

var tracer = otel.Tracer("post")

type Handler struct {
	service *Service
	apiRoot string
}

// NewHandler returns a Handler; apiRoot is the path prefix the api is mounted under.
func NewHandler(service *Service, apiRoot string) Handler {
	return Handler{
		service,
		apiRoot,
	}
}

func relay(c echo.Context, resp *fedclient.Response) error {
	return c.Blob(resp.StatusCode, echo.MIMEApplicationJSON, resp.Body)
}

func page(c echo.Context) types.Page {
	return exts.PageOf(c, types.DefaultPageSize, types.MaxPageSize)
}

// List handles GET /authors/:author_id/posts.
func (h Handler) List(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Post.Handler.List")
	defer span.End()

	listing, err := h.service.List(ctx, auth.RequesterPtr(ctx), exts.Param(c, "author_id"), page(c), exts.RequestPath(c, h.apiRoot), exts.WantsAll(c))
	if err != nil {
		span.RecordError(err)
		return exts.Error(c, err)
	}
	if listing.Remote != nil {
		return relay(c, listing.Remote)
	}
	return c.JSON(http.StatusOK, types.Collection[types.PostObject]{Type: "posts", Items: listing.Items})
}

// Create handles POST /authors/:author_id/posts.
func (h Handler) Create(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Post.Handler.Create")
	defer span.End()

	var in Input
	if err := exts.BindAndValidate(c, &in); err != nil {
		return exts.Error(c, err)
	}
	post, err := h.service.Create(ctx, auth.RequesterPtr(ctx), exts.Param(c, "author_id"), in)
	if err != nil {
		span.RecordError(err)
		return exts.Error(c, err)
	}
	return c.JSON(http.StatusCreated, post)
}

// Get handles GET /authors/:author_id/posts/:post_id.
func (h Handler) Get(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Post.Handler.Get")
	defer span.End()

	single, err := h.service.Retrieve(ctx, auth.RequesterPtr(ctx), exts.Param(c, "author_id"), exts.Param(c, "post_id"), exts.RequestPath(c, h.apiRoot), exts.WantsAll(c))
	if err != nil {
		span.RecordError(err)
		return exts.Error(c, err)
	}
	if single.Remote != nil {
		return relay(c, single.Remote)
	}
	return c.JSON(http.StatusOK, single.Post)
}

// Update handles PUT /authors/:author_id/posts/:post_id.
func (h Handler) Update(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Post.Handler.Update")
	defer span.End()

	var in Input
	if err := exts.BindAndValidate(c, &in); err != nil {
		return exts.Error(c, err)
	}
	post, err := h.service.Update(ctx, auth.RequesterPtr(ctx), exts.Param(c, "author_id"), exts.Param(c, "post_id"), in)
	if err != nil {
		span.RecordError(err)
		return exts.Error(c, err)
	}
	return c.JSON(http.StatusOK, post)
}

// Delete handles DELETE /authors/:author_id/posts/:post_id.
func (h Handler) Delete(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Post.Handler.Delete")
	defer span.End()

	if err := h.service.Delete(ctx, auth.RequesterPtr(ctx), exts.Param(c, "author_id"), exts.Param(c, "post_id")); err != nil {
		span.RecordError(err)
		return exts.Error(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Public handles GET /authors/:author_id/posts/public.
func (h Handler) Public(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Post.Handler.Public")
	defer span.End()

	items, err := h.service.Public(ctx, page(c))
	if err != nil {
		return exts.Error(c, err)
	}
	return c.JSON(http.StatusOK, types.Collection[types.PostObject]{Type: "posts", Items: items})
}

// Feed handles GET /authors/:author_id/posts/following.
func (h Handler) Feed(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Post.Handler.Feed")
	defer span.End()

	items, err := h.service.Feed(ctx, exts.Param(c, "author_id"), page(c))
	if err != nil {
		span.RecordError(err)
		return exts.Error(c, err)
	}
	if items == nil {
		items = []json.RawMessage{}
	}
	return c.JSON(http.StatusOK, types.Collection[json.RawMessage]{Type: "posts", Items: items})
}

// Image handles GET /authors/:author_id/posts/:post_id/image.
func (h Handler) Image(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Post.Handler.Image")
	defer span.End()

	img, err := h.service.Image(ctx, exts.Param(c, "author_id"), exts.Param(c, "post_id"), exts.RequestPath(c, h.apiRoot), exts.WantsAll(c))
	if err != nil {
		span.RecordError(err)
		return exts.Error(c, err)
	}
	if img.Remote != nil {
		return c.Blob(img.Remote.StatusCode, img.Remote.Header.Get(echo.HeaderContentType), img.Remote.Body)
	}
	return c.Blob(http.StatusOK, img.MimeType, img.Data)
}

// ListComments handles GET /authors/:author_id/posts/:post_id/comments.
func (h Handler) ListComments(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Post.Handler.ListComments")
	defer span.End()

	comments, err := h.service.ListComments(ctx, auth.RequesterPtr(ctx), exts.Param(c, "author_id"), exts.Param(c, "post_id"), page(c), exts.RequestPath(c, h.apiRoot), exts.WantsAll(c))
	if err != nil {
		span.RecordError(err)
		return exts.Error(c, err)
	}
	if comments.Remote != nil {
		return relay(c, comments.Remote)
	}
	body := types.NewRawObj(map[string]any{"type": "comments", "items": comments.Items})
	body.Rename("items", comments.Key)
	return c.JSON(http.StatusOK, body)
}

// GetComment handles GET /authors/:author_id/posts/:post_id/comments/:comment_id.
func (h Handler) GetComment(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Post.Handler.GetComment")
	defer span.End()

	single, err := h.service.GetComment(ctx, auth.RequesterPtr(ctx), exts.Param(c, "author_id"), exts.Param(c, "post_id"), exts.Param(c, "comment_id"), exts.RequestPath(c, h.apiRoot), exts.WantsAll(c))
	if err != nil {
		span.RecordError(err)
		return exts.Error(c, err)
	}
	if single.Remote != nil {
		return relay(c, single.Remote)
	}
	return c.JSON(http.StatusOK, single.Comment)
}

// CreateComment handles POST /authors/:author_id/posts/:post_id/comments.
func (h Handler) CreateComment(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Post.Handler.CreateComment")
	defer span.End()

	var in CommentInput
	if err := exts.BindAndValidate(c, &in); err != nil {
		return exts.Error(c, err)
	}
	single, err := h.service.CreateComment(ctx, auth.RequesterPtr(ctx), exts.Param(c, "author_id"), exts.Param(c, "post_id"), in)
	if err != nil {
		span.RecordError(err)
		return exts.Error(c, err)
	}
	if single.Remote != nil {
		return relay(c, single.Remote)
	}
	return c.JSON(http.StatusCreated, single.Comment)
}

// ListLikes handles GET /authors/:author_id/posts/:post_id/likes and the same under a comment.
func (h Handler) ListLikes(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Post.Handler.ListLikes")
	defer span.End()

	likes, err := h.service.ListLikes(ctx, exts.Param(c, "author_id"), exts.Param(c, "post_id"), exts.Param(c, "comment_id"), exts.RequestPath(c, h.apiRoot), exts.WantsAll(c))
	if err != nil {
		span.RecordError(err)
		return exts.Error(c, err)
	}
	if likes.Remote != nil {
		return relay(c, likes.Remote)
	}
	return c.JSON(http.StatusOK, types.Collection[types.LikeObject]{Type: "likes", Items: likes.Items})
}
