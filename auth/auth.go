// Package auth authenticates HTTP Basic credentials against author rows.
package auth

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"golang.org/x/crypto/bcrypt"

	"github.com/socialdist/fednode/store"
	"github.com/socialdist/fednode/types"
)

var tracer = otel.Tracer("auth")

type ctxKey string

const RequesterCtxKey ctxKey = "requester"

// Role is a guard applied with Restrict.
type Role int

const (
	// ISREGISTERED admits any authenticated author, node accounts included.
	ISREGISTERED Role = iota
	// ISHUMAN admits authenticated authors that are not node accounts.
	ISHUMAN
)

// WithRequester stores the authenticated author in ctx.
func WithRequester(ctx context.Context, author types.Author) context.Context {
	return context.WithValue(ctx, RequesterCtxKey, author)
}

// Requester returns the authenticated author, if any.
func Requester(ctx context.Context) (types.Author, bool) {
	author, ok := ctx.Value(RequesterCtxKey).(types.Author)
	return author, ok
}

// RequesterPtr is Requester as a nilable value; nil means anonymous.
func RequesterPtr(ctx context.Context) *types.Author {
	author, ok := Requester(ctx)
	if !ok {
		return nil
	}
	return &author
}

type Service struct {
	store *store.Store
}

func NewService(store *store.Store) *Service {
	return &Service{store: store}
}

// Authenticate checks a display name and password. Inactive accounts are refused.
func (s *Service) Authenticate(ctx context.Context, displayName, password string) (types.Author, error) {
	ctx, span := tracer.Start(ctx, "Auth.Service.Authenticate")
	defer span.End()

	account, err := s.store.GetAccount(ctx, displayName)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return types.Author{}, errors.Wrap(types.ErrUnauthorized, "invalid credentials")
		}
		span.RecordError(err)
		return types.Author{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return types.Author{}, errors.Wrap(types.ErrUnauthorized, "invalid credentials")
	}
	if !account.IsActive {
		return types.Author{}, errors.Wrapf(types.ErrUnauthorized, "account %s is not active", displayName)
	}
	return account, nil
}

// HashPassword is the form passwords are stored in.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "hash password")
	}
	return string(hash), nil
}

// Identify reads Basic credentials when present. Requests without them continue anonymously.
func (s *Service) Identify(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, span := tracer.Start(c.Request().Context(), "Auth.Service.Identify")
		defer span.End()

		user, pass, ok := c.Request().BasicAuth()
		if !ok {
			return next(c)
		}

		account, err := s.Authenticate(ctx, user, pass)
		if err != nil {
			log.Debug().Err(err).Str("user", user).Msg("authentication failed")
			c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Basic realm="fednode"`)
			return c.JSON(types.HTTPStatus(err), echo.Map{"error": err.Error()})
		}

		c.SetRequest(c.Request().WithContext(WithRequester(c.Request().Context(), account)))
		return next(c)
	}
}

// Restrict rejects requests whose requester does not hold role.
func Restrict(role Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requester, ok := Requester(c.Request().Context())
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
			}
			if role == ISHUMAN && requester.IsNode {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "node accounts cannot do this"})
			}
			return next(c)
		}
	}
}
