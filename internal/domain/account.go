package domain

import (
	"time"

	"github.com/studiofoundry/backstage"
)

// Profile is the operator-profile row mirrored in the record store.
// Its ID equals the identity account id.
type Profile struct {
	ID     string
	Email  string
	Role   string
	Status string
	CDate  time.Time
}

// IdentityAccount is the external identity provider's view of an
// operator.
type IdentityAccount struct {
	ID    string
	Email string
	Role  string
}

// Profile statuses.
const (
	ProfileStatusInvited string = "invited"
	ProfileStatusActive  string = "active"
)

var roleRank = map[string]int{
	backstage.RoleViewer: 0,
	backstage.RoleEditor: 1,
	backstage.RoleAdmin:  2,
}

// RoleAtLeast reports whether role grants at least the privileges of
// min. Unknown roles grant nothing.
func RoleAtLeast(role, min string) bool {
	r, ok := roleRank[role]
	if !ok {
		return false
	}
	m, ok := roleRank[min]
	if !ok {
		return false
	}
	return r >= m
}
