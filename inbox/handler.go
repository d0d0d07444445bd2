package inbox

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"github.com/socialdist/fednode/auth"
	"github.com/socialdist/fednode/exts"
	"github.com/socialdist/fednode/stream"
	"github.com/socialdist/fednode/types"
)

var tracer = otel.Tracer("inbox")

type Handler struct {
	service   *Service
	publisher *stream.Publisher
}

func NewHandler(service *Service, publisher *stream.Publisher) Handler {
	return Handler{
		service,
		publisher,
	}
}

// Post handles POST /authors/:author_id/inbox.
func (h Handler) Post(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Inbox.Handler.Post")
	defer span.End()

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return exts.Error(c, errors.Wrap(types.ErrValidation, "unreadable body"))
	}

	result, err := h.service.Dispatch(ctx, exts.Param(c, "author_id"), body, exts.WantsAll(c))
	if err != nil {
		span.RecordError(err)
		return exts.Error(c, err)
	}

	switch {
	case result.Forwarded != nil:
		return c.Blob(result.Forwarded.StatusCode, echo.MIMEApplicationJSON, result.Forwarded.Body)
	case result.Entry != nil:
		return c.JSON(http.StatusCreated, h.service.render(ctx, *result.Entry))
	}
	return c.NoContent(http.StatusNoContent)
}

// Get handles GET /authors/:author_id/inbox.
func (h Handler) Get(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Inbox.Handler.Get")
	defer span.End()

	requester, _ := auth.Requester(ctx)
	listing, err := h.service.List(ctx, requester, exts.Param(c, "author_id"), exts.PageOf(c, types.DefaultPageSize, types.MaxPageSize))
	if err != nil {
		span.RecordError(err)
		return exts.Error(c, err)
	}
	if listing.Forwarded != nil {
		return c.Blob(listing.Forwarded.StatusCode, echo.MIMEApplicationJSON, listing.Forwarded.Body)
	}
	return c.JSON(http.StatusOK, listing)
}

// Delete handles DELETE /authors/:author_id/inbox.
func (h Handler) Delete(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Inbox.Handler.Delete")
	defer span.End()

	requester, _ := auth.Requester(ctx)
	if _, err := h.service.Clear(ctx, requester, exts.Param(c, "author_id")); err != nil {
		span.RecordError(err)
		return exts.Error(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Stream handles GET /authors/:author_id/inbox/stream, pushing new entries as server-sent events.
func (h Handler) Stream(c echo.Context) error {
	ctx := c.Request().Context()

	authorID := exts.Param(c, "author_id")
	requester, _ := auth.Requester(ctx)
	if requester.ID != authorID {
		return exts.Error(c, errors.Wrap(types.ErrUnauthorized, "only the owner can watch an inbox"))
	}
	if !h.publisher.Enabled() {
		return exts.Error(c, errors.Wrap(types.ErrUpstreamUnavailable, "event stream not configured"))
	}

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	return h.publisher.Subscribe(ctx, authorID, func(event stream.Event) error {
		payload, err := json.Marshal(event)
		if err != nil {
			return nil
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload); err != nil {
			return err
		}
		w.Flush()
		return nil
	})
}
