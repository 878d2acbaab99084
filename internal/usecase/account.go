package usecase

import (
	"context"
	"errors"

	"github.com/studiofoundry/backstage"
	"github.com/studiofoundry/backstage/internal/domain"
)

// AccountUsecase provisions and deprovisions operator accounts across
// the identity provider and the record store, which share no
// transaction boundary.
type AccountUsecase struct {
	profiles ProfileRepository
	identity IdentityProvider
	locks    EntityLocker
	runner   *Runner
}

func NewAccountUsecase(
	profiles ProfileRepository,
	identity IdentityProvider,
	locks EntityLocker,
	runner *Runner,
) *AccountUsecase {
	return &AccountUsecase{
		profiles: profiles,
		identity: identity,
		locks:    locks,
		runner:   runner,
	}
}

// Invite creates the identity account first, then the mirror profile
// row. If the profile insert fails, the just-created account is deleted
// again so no account ever exists without a profile.
func (uc *AccountUsecase) Invite(ctx context.Context, session domain.Session, email, role string) (domain.Profile, error) {
	if err := requireRole(session, backstage.RoleAdmin); err != nil {
		return domain.Profile{}, err
	}

	if email == "" {
		return domain.Profile{}, domain.ValidationError{Missing: []string{"email"}}
	}
	if !domain.RoleAtLeast(role, backstage.RoleViewer) {
		return domain.Profile{}, domain.ValidationError{Missing: []string{"role"}}
	}

	var account domain.IdentityAccount
	var profile domain.Profile

	op := NewStagedOperation("invite-account", email,
		Step{
			Name: "create identity account",
			Forward: func(ctx context.Context) error {
				var err error
				account, err = uc.identity.Invite(ctx, email, role)
				return err
			},
			Compensate: func(ctx context.Context) error {
				return uc.identity.Delete(ctx, account.ID)
			},
		},
		Step{
			Name: "create profile row",
			Forward: func(ctx context.Context) error {
				profile = domain.Profile{
					ID:     account.ID,
					Email:  email,
					Role:   role,
					Status: domain.ProfileStatusInvited,
				}
				return uc.profiles.Create(ctx, profile)
			},
		},
	)

	if _, err := uc.runner.Run(ctx, op); err != nil {
		return domain.Profile{}, err
	}
	return profile, nil
}

// Deprovision removes the profile row first and the identity account
// second. If the account deletion fails, the profile is re-inserted
// from the re-fetched account data with the least-privileged role, so
// the end state is never an account that can authenticate but has no
// profile. A failed re-insert is a fatal inconsistency.
func (uc *AccountUsecase) Deprovision(ctx context.Context, session domain.Session, accountID string) (backstage.OperationResult, error) {
	if err := requireRole(session, backstage.RoleAdmin); err != nil {
		return backstage.OperationResult{}, err
	}

	release, err := uc.locks.Acquire(ctx, "account:"+accountID)
	if err != nil {
		return backstage.OperationResult{}, err
	}
	defer release()

	if _, err := uc.profiles.Get(ctx, accountID); err != nil {
		return backstage.OperationResult{}, err
	}

	op := NewStagedOperation("deprovision-account", accountID,
		Step{
			Name: "delete profile row",
			Forward: func(ctx context.Context) error {
				return uc.profiles.Delete(ctx, accountID)
			},
			Compensate: func(ctx context.Context) error {
				// Reconstruct from the still-resolvable account rather
				// than the captured row: a timed-out delete may have
				// landed, so the provider is the source of truth here.
				account, err := uc.identity.Get(ctx, accountID)
				if errors.Is(err, domain.ErrNotFound) {
					// The account deletion landed after all; both sides
					// are gone, nothing to restore.
					return nil
				}
				if err != nil {
					return err
				}
				return uc.profiles.Create(ctx, domain.Profile{
					ID:     account.ID,
					Email:  account.Email,
					Role:   backstage.LeastPrivilegedRole,
					Status: domain.ProfileStatusActive,
				})
			},
		},
		Step{
			Name: "delete identity account",
			Forward: func(ctx context.Context) error {
				return uc.identity.Delete(ctx, accountID)
			},
		},
	)

	return uc.runner.Run(ctx, op)
}

func (uc *AccountUsecase) Get(ctx context.Context, session domain.Session, id string) (domain.Profile, error) {
	if err := requireRole(session, backstage.RoleAdmin); err != nil {
		return domain.Profile{}, err
	}
	return uc.profiles.Get(ctx, id)
}

func (uc *AccountUsecase) List(ctx context.Context, session domain.Session) ([]domain.Profile, error) {
	if err := requireRole(session, backstage.RoleAdmin); err != nil {
		return nil, err
	}
	return uc.profiles.List(ctx)
}
