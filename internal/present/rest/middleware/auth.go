package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/studiofoundry/backstage/internal/domain"
	"github.com/studiofoundry/backstage/internal/service"
)

var tracer = otel.Tracer("auth")

type AuthMiddleware struct {
	sessions *service.SessionService
}

func NewAuthMiddleware(sessions *service.SessionService) *AuthMiddleware {
	return &AuthMiddleware{
		sessions: sessions,
	}
}

// RequireSession verifies the bearer token and stores the resolved
// session in the request context. Requests without a valid session are
// rejected: every API route is operator-only.
func (m *AuthMiddleware) RequireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, span := tracer.Start(c.Request().Context(), "Auth.Middleware.RequireSession")
		defer span.End()

		authHeader := c.Request().Header.Get("authorization")
		if authHeader == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "authorization required")
		}

		split := strings.Split(authHeader, " ")
		if len(split) != 2 || split[0] != "Bearer" {
			return echo.NewHTTPError(http.StatusUnauthorized, "only Bearer is acceptable")
		}

		session, err := m.sessions.Verify(ctx, split[1])
		if err != nil {
			span.RecordError(errors.Wrap(err, "session verification failed"))
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid session")
		}

		span.SetAttributes(attribute.String("AccountId", session.AccountID))

		ctx = domain.WithSession(ctx, session)
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}
