package follower

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"github.com/socialdist/fednode/auth"
	"github.com/socialdist/fednode/exts"
	"github.com/socialdist/fednode/types"
)

var tracer = otel.Tracer("follower")

type Handler struct {
	service *Service
}

func NewHandler(service *Service) Handler {
	return Handler{
		service,
	}
}

// List handles GET /authors/:author_id/followers. With ?all every node is searched instead.
func (h Handler) List(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Follower.Handler.List")
	defer span.End()

	followers, err := h.service.ListFollowers(ctx, exts.Param(c, "author_id"), !exts.WantsAll(c))
	if err != nil {
		span.RecordError(err)
		return exts.Error(c, err)
	}
	if followers.Remote != nil {
		return c.Blob(followers.Remote.StatusCode, echo.MIMEApplicationJSON, followers.Remote.Body)
	}

	items := make([]types.AuthorObject, 0, len(followers.Edges))
	for _, edge := range followers.Edges {
		items = append(items, edge.Actor.ToObject())
	}
	return c.JSON(http.StatusOK, types.Collection[types.AuthorObject]{Type: "followers", Items: items})
}

// Get handles GET /authors/:author_id/followers/:foreign_author_id.
func (h Handler) Get(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Follower.Handler.Get")
	defer span.End()

	objectID := exts.Param(c, "author_id")
	actorRef := exts.Param(c, "foreign_author_id")

	if exts.WantsAll(c) {
		resp, err := h.service.SearchFollower(ctx, objectID, actorRef)
		if err != nil {
			return exts.Error(c, err)
		}
		return c.Blob(resp.StatusCode, echo.MIMEApplicationJSON, resp.Body)
	}

	edge, err := h.service.GetFollower(ctx, objectID, actorRef)
	if err != nil {
		span.RecordError(err)
		return exts.Error(c, err)
	}
	return c.JSON(http.StatusOK, edge.ToObject())
}

// Put handles PUT /authors/:author_id/followers/:foreign_author_id. Only the followed author may accept.
func (h Handler) Put(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Follower.Handler.Put")
	defer span.End()

	objectID := exts.Param(c, "author_id")
	requester, _ := auth.Requester(ctx)
	if requester.ID != objectID {
		return exts.Error(c, errors.Wrap(types.ErrForbidden, "only the followed author can accept a follower"))
	}

	edge, err := h.service.AddFollower(ctx, objectID, exts.Param(c, "foreign_author_id"))
	if err != nil {
		span.RecordError(err)
		return exts.Error(c, err)
	}
	return c.JSON(http.StatusCreated, edge.ToObject())
}

// Delete handles DELETE /authors/:author_id/followers/:foreign_author_id.
func (h Handler) Delete(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Follower.Handler.Delete")
	defer span.End()

	err := h.service.RemoveFollower(ctx, exts.Param(c, "author_id"), exts.Param(c, "foreign_author_id"))
	if err != nil {
		span.RecordError(err)
		return exts.Error(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
