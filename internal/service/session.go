package service

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"github.com/studiofoundry/backstage/internal/domain"
	"github.com/studiofoundry/backstage/internal/usecase"
)

var tracer = otel.Tracer("service")

// SessionService resolves bearer tokens into sessions via the identity
// provider.
type SessionService struct {
	config   *domain.Config
	identity usecase.IdentityProvider
}

func NewSessionService(
	config *domain.Config,
	identity usecase.IdentityProvider,
) *SessionService {
	return &SessionService{
		config:   config,
		identity: identity,
	}
}

func (s *SessionService) Verify(ctx context.Context, token string) (domain.Session, error) {
	ctx, span := tracer.Start(ctx, "Session.Service.Verify")
	defer span.End()

	if token == "" {
		return domain.Session{}, domain.ForbiddenError{}
	}

	session, err := s.identity.VerifySession(ctx, token)
	if err != nil {
		span.RecordError(errors.Wrap(err, "session verification failed"))
		return domain.Session{}, err
	}

	return session, nil
}
