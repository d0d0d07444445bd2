package author

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"

	"github.com/socialdist/fednode/auth"
	"github.com/socialdist/fednode/exts"
	"github.com/socialdist/fednode/types"
)

var tracer = otel.Tracer("author")

type Handler struct {
	service *Service
	apiRoot string
}

func NewHandler(service *Service, apiRoot string) Handler {
	return Handler{
		service,
		apiRoot,
	}
}

// Register handles POST /auth.
func (h Handler) Register(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Author.Handler.Register")
	defer span.End()

	var in RegisterInput
	if err := exts.BindAndValidate(c, &in); err != nil {
		return exts.Error(c, err)
	}
	author, err := h.service.Register(ctx, in)
	if err != nil {
		span.RecordError(err)
		return exts.Error(c, err)
	}
	return c.JSON(http.StatusCreated, author)
}

// Login handles GET /auth.
func (h Handler) Login(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Author.Handler.Login")
	defer span.End()

	author, err := h.service.Login(ctx, auth.RequesterPtr(ctx))
	if err != nil {
		return exts.Error(c, err)
	}
	return c.JSON(http.StatusOK, author)
}

// List handles GET /authors and GET /authors/all.
func (h Handler) List(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Author.Handler.List")
	defer span.End()

	all := exts.WantsAll(c) || c.Path() == h.apiRoot+"/authors/all"
	items, err := h.service.List(ctx, exts.PageOf(c, types.DefaultAuthorPageSize, types.MaxAuthorPageSize), all)
	if err != nil {
		span.RecordError(err)
		return exts.Error(c, err)
	}
	return c.JSON(http.StatusOK, types.Collection[any]{Type: "authors", Items: items})
}

// Get handles GET /authors/:author_id.
func (h Handler) Get(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Author.Handler.Get")
	defer span.End()

	single, err := h.service.Retrieve(ctx, exts.Param(c, "author_id"), exts.WantsAll(c))
	if err != nil {
		span.RecordError(err)
		return exts.Error(c, err)
	}
	if single.Remote != nil {
		return c.Blob(single.Remote.StatusCode, echo.MIMEApplicationJSON, single.Remote.Body)
	}
	return c.JSON(http.StatusOK, single.Author)
}

// Update handles PUT /authors/:author_id.
func (h Handler) Update(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Author.Handler.Update")
	defer span.End()

	var in UpdateInput
	if err := exts.BindAndValidate(c, &in); err != nil {
		return exts.Error(c, err)
	}
	author, err := h.service.Update(ctx, auth.RequesterPtr(ctx), exts.Param(c, "author_id"), in)
	if err != nil {
		span.RecordError(err)
		return exts.Error(c, err)
	}
	return c.JSON(http.StatusOK, author)
}

// Liked handles GET /authors/:author_id/liked.
func (h Handler) Liked(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Author.Handler.Liked")
	defer span.End()

	liked, err := h.service.Liked(ctx, exts.Param(c, "author_id"), exts.RequestPath(c, h.apiRoot), exts.WantsAll(c))
	if err != nil {
		span.RecordError(err)
		return exts.Error(c, err)
	}
	if liked.Remote != nil {
		return c.Blob(liked.Remote.StatusCode, echo.MIMEApplicationJSON, liked.Remote.Body)
	}
	return c.JSON(http.StatusOK, types.Collection[types.LikeObject]{Type: "liked", Items: liked.Items})
}
