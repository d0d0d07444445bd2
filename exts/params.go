package exts

import (
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/socialdist/fednode/types"
)

// Param returns a path parameter with percent-escapes decoded. Peers put whole URLs in path segments.
func Param(c echo.Context, name string) string {
	raw := c.Param(name)
	if decoded, err := url.PathUnescape(raw); err == nil {
		return decoded
	}
	return raw
}

// WantsAll reports whether the caller asked to search every node.
func WantsAll(c echo.Context) bool {
	return c.QueryParams().Has("all")
}

// PageOf reads the page and size query parameters.
func PageOf(c echo.Context, def, max int) types.Page {
	return types.NewPage(c.QueryParam("page"), c.QueryParam("size"), def, max)
}

// RequestPath is the request path below the api root, with its query, as peers serve it.
func RequestPath(c echo.Context, apiRoot string) string {
	path := strings.TrimPrefix(c.Request().URL.EscapedPath(), apiRoot)
	if q := c.Request().URL.RawQuery; q != "" {
		path += "?" + q
	}
	return path
}
