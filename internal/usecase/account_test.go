package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/studiofoundry/backstage"
	"github.com/studiofoundry/backstage/internal/domain"
)

func newAccountUsecase(profiles *fakeProfileRepo, identity *fakeIdentity) *AccountUsecase {
	return NewAccountUsecase(profiles, identity, newFakeLocker(), NewRunner(nil))
}

func TestInviteCreatesAccountAndProfile(t *testing.T) {
	profiles := newFakeProfileRepo()
	identity := newFakeIdentity()
	uc := newAccountUsecase(profiles, identity)

	profile, err := uc.Invite(context.Background(), adminSession(), "new@studio.test", backstage.RoleEditor)
	if err != nil {
		t.Fatalf("invite failed: %v", err)
	}
	if profile.Status != domain.ProfileStatusInvited {
		t.Fatalf("expected invited status, got %s", profile.Status)
	}
	if _, err := identity.Get(context.Background(), profile.ID); err != nil {
		t.Fatalf("identity account must exist: %v", err)
	}
	if _, err := profiles.Get(context.Background(), profile.ID); err != nil {
		t.Fatalf("profile row must exist: %v", err)
	}
}

// If the profile insert fails, the just-created identity account is
// rolled back: no account may exist without a profile row.
func TestInviteRollsBackAccountOnProfileFailure(t *testing.T) {
	profiles := newFakeProfileRepo()
	profiles.failHard("create profile")
	identity := newFakeIdentity()
	uc := newAccountUsecase(profiles, identity)

	_, err := uc.Invite(context.Background(), adminSession(), "new@studio.test", backstage.RoleEditor)
	if err == nil {
		t.Fatalf("expected invite to fail")
	}
	if len(identity.accounts) != 0 {
		t.Fatalf("identity account must be rolled back, got %v", identity.accounts)
	}
	if len(profiles.rows) != 0 {
		t.Fatalf("no profile row may remain")
	}
}

func TestInviteValidatesInput(t *testing.T) {
	uc := newAccountUsecase(newFakeProfileRepo(), newFakeIdentity())

	if _, err := uc.Invite(context.Background(), adminSession(), "", backstage.RoleEditor); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for missing email, got %v", err)
	}
	if _, err := uc.Invite(context.Background(), adminSession(), "x@studio.test", "superuser"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for unknown role, got %v", err)
	}
}

func TestDeprovisionRemovesBothSides(t *testing.T) {
	account := domain.IdentityAccount{ID: "acct-1", Email: "old@studio.test", Role: backstage.RoleEditor}
	profiles := newFakeProfileRepo(domain.Profile{ID: "acct-1", Email: account.Email, Role: account.Role, Status: domain.ProfileStatusActive})
	identity := newFakeIdentity(account)
	uc := newAccountUsecase(profiles, identity)

	result, err := uc.Deprovision(context.Background(), adminSession(), "acct-1")
	if err != nil {
		t.Fatalf("deprovision failed: %v", err)
	}
	if !result.OK {
		t.Fatalf("expected ok result, detail: %s", result.Detail)
	}
	if len(profiles.rows) != 0 || len(identity.accounts) != 0 {
		t.Fatalf("expected both sides removed, profiles %v accounts %v", profiles.rows, identity.accounts)
	}
}

// When the identity-account deletion fails after the profile row is
// already gone, the compensation re-inserts a profile from the
// still-resolvable account: the account that can authenticate always
// has a matching row, though with the least-privileged role.
func TestDeprovisionReinsertsProfileWhenAccountDeleteFails(t *testing.T) {
	account := domain.IdentityAccount{ID: "acct-1", Email: "old@studio.test", Role: backstage.RoleAdmin}
	profiles := newFakeProfileRepo(domain.Profile{ID: "acct-1", Email: account.Email, Role: account.Role, Status: domain.ProfileStatusActive})
	identity := newFakeIdentity(account)
	identity.failHard("delete account")
	uc := newAccountUsecase(profiles, identity)

	result, err := uc.Deprovision(context.Background(), adminSession(), "acct-1")
	if err == nil {
		t.Fatalf("expected deprovision to fail")
	}
	if result.OK {
		t.Fatalf("expected degraded result")
	}

	if _, ok := identity.accounts["acct-1"]; !ok {
		t.Fatalf("identity account must still exist")
	}
	restored, err := profiles.Get(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("profile row must have been re-inserted: %v", err)
	}
	if restored.Role != backstage.LeastPrivilegedRole {
		t.Fatalf("restored profile must carry the least-privileged role, got %s", restored.Role)
	}
}

// When the account turns out to be gone already (a timed-out delete
// that landed), there is nothing to restore: both sides end up removed
// and the failure is reported without a compensation error.
func TestDeprovisionTreatsVanishedAccountAsRemoved(t *testing.T) {
	profiles := newFakeProfileRepo(domain.Profile{ID: "acct-1", Email: "old@studio.test", Role: backstage.RoleEditor, Status: domain.ProfileStatusActive})
	identity := newFakeIdentity()
	identity.failHard("delete account")
	uc := newAccountUsecase(profiles, identity)

	_, err := uc.Deprovision(context.Background(), adminSession(), "acct-1")
	if err == nil {
		t.Fatalf("expected deprovision to fail")
	}
	if errors.Is(err, domain.ErrCompensation) {
		t.Fatalf("nothing to restore must not count as a compensation failure: %v", err)
	}
	if len(profiles.rows) != 0 {
		t.Fatalf("no profile row may be re-inserted for a vanished account, got %v", profiles.rows)
	}
	if len(identity.accounts) != 0 {
		t.Fatalf("expected no identity account")
	}
}

// If the compensating re-insert itself fails, the inconsistency must be
// surfaced loudly rather than swallowed.
func TestDeprovisionSurfacesCompensationFailure(t *testing.T) {
	account := domain.IdentityAccount{ID: "acct-1", Email: "old@studio.test", Role: backstage.RoleEditor}
	profiles := newFakeProfileRepo(domain.Profile{ID: "acct-1", Email: account.Email, Role: account.Role, Status: domain.ProfileStatusActive})
	profiles.failHard("create profile")
	identity := newFakeIdentity(account)
	identity.failHard("delete account")
	uc := newAccountUsecase(profiles, identity)

	_, err := uc.Deprovision(context.Background(), adminSession(), "acct-1")
	if !errors.Is(err, domain.ErrCompensation) {
		t.Fatalf("expected compensation error, got %v", err)
	}
}

func TestDeprovisionRetriesTransientAccountDelete(t *testing.T) {
	account := domain.IdentityAccount{ID: "acct-1", Email: "old@studio.test", Role: backstage.RoleEditor}
	profiles := newFakeProfileRepo(domain.Profile{ID: "acct-1", Email: account.Email, Role: account.Role, Status: domain.ProfileStatusActive})
	identity := newFakeIdentity(account)
	identity.failTransient("delete account", 1)
	uc := newAccountUsecase(profiles, identity)

	result, err := uc.Deprovision(context.Background(), adminSession(), "acct-1")
	if err != nil || !result.OK {
		t.Fatalf("expected retry to converge: %v", err)
	}
	if len(profiles.rows) != 0 || len(identity.accounts) != 0 {
		t.Fatalf("expected both sides removed after retry")
	}
}

func TestDeprovisionUnknownProfile(t *testing.T) {
	uc := newAccountUsecase(newFakeProfileRepo(), newFakeIdentity())
	_, err := uc.Deprovision(context.Background(), adminSession(), "acct-missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAccountOperationsRequireAdmin(t *testing.T) {
	uc := newAccountUsecase(newFakeProfileRepo(), newFakeIdentity())

	if _, err := uc.Invite(context.Background(), editorSession(), "x@studio.test", backstage.RoleViewer); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for invite, got %v", err)
	}
	if _, err := uc.Deprovision(context.Background(), editorSession(), "acct-1"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for deprovision, got %v", err)
	}
	if _, err := uc.List(context.Background(), editorSession()); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for list, got %v", err)
	}
}
