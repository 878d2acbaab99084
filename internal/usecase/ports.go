package usecase

import (
	"context"

	"github.com/studiofoundry/backstage"
	"github.com/studiofoundry/backstage/internal/domain"
)

// EntityRepository defines record-store operations for content entities.
// Delete treats a missing row as success so a failed staged operation
// can be re-issued safely.
type EntityRepository interface {
	Create(ctx context.Context, e domain.Entity) error
	Get(ctx context.Context, id string) (domain.Entity, error)
	Update(ctx context.Context, e domain.Entity) error
	UpdateStatus(ctx context.Context, id string, status string) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, kind string, limit int) ([]domain.Entity, error)
}

// ProfileRepository defines record-store operations for operator
// profiles. Delete treats a missing row as success.
type ProfileRepository interface {
	Create(ctx context.Context, p domain.Profile) error
	Get(ctx context.Context, id string) (domain.Profile, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]domain.Profile, error)
}

// AssetStore wraps put/delete on the external object storage. Delete of
// a missing key is success.
type AssetStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (backstage.AssetRef, error)
	Delete(ctx context.Context, key string) error
}

// IdentityProvider wraps the external identity/authorization store.
// Delete of a missing account is success.
type IdentityProvider interface {
	Invite(ctx context.Context, email string, role string) (domain.IdentityAccount, error)
	Get(ctx context.Context, id string) (domain.IdentityAccount, error)
	Delete(ctx context.Context, id string) error
	VerifySession(ctx context.Context, token string) (domain.Session, error)
}

// EntityLocker serializes staged operations per entity id. Acquire
// fails with domain.ConflictError while another operation holds the id.
type EntityLocker interface {
	Acquire(ctx context.Context, id string) (release func(), err error)
}

// ProgressPublisher fans step-level progress events out to subscribers.
type ProgressPublisher interface {
	Publish(ctx context.Context, event backstage.ProgressEvent) error
}
