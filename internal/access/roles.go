// Package access implements the adapter privilege hierarchy.
//
// Management ⊃ EmergencyAuthorized ⊃ Keeper: a holder of a higher role passes
// every check for a lower one.
package access

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ErrUnauthorized is returned when a caller lacks the required role.
var ErrUnauthorized = errors.New("unauthorized")

// Role is a privilege level. Higher values include lower ones.
type Role int

const (
	RoleNone Role = iota
	RoleKeeper
	RoleEmergencyAuthorized
	RoleManagement
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleKeeper:
		return "keeper"
	case RoleEmergencyAuthorized:
		return "emergency_authorized"
	case RoleManagement:
		return "management"
	default:
		return "none"
	}
}

// Roles holds the static role assignment of one adapter.
type Roles struct {
	Management     common.Address
	EmergencyAdmin common.Address
	Keeper         common.Address
}

// RoleOf returns the highest role held by caller.
// The zero address never holds a role.
func (r Roles) RoleOf(caller common.Address) Role {
	if caller == (common.Address{}) {
		return RoleNone
	}
	switch caller {
	case r.Management:
		return RoleManagement
	case r.EmergencyAdmin:
		return RoleEmergencyAuthorized
	case r.Keeper:
		return RoleKeeper
	default:
		return RoleNone
	}
}

// Require returns ErrUnauthorized unless caller holds at least role.
func (r Roles) Require(caller common.Address, role Role) error {
	if r.RoleOf(caller) < role {
		return fmt.Errorf("%w: %s requires %s", ErrUnauthorized, caller.Hex(), role)
	}
	return nil
}

// RequireManagement is Require(caller, RoleManagement).
func (r Roles) RequireManagement(caller common.Address) error {
	return r.Require(caller, RoleManagement)
}

// RequireEmergencyAuthorized is Require(caller, RoleEmergencyAuthorized).
func (r Roles) RequireEmergencyAuthorized(caller common.Address) error {
	return r.Require(caller, RoleEmergencyAuthorized)
}

// RequireKeeper is Require(caller, RoleKeeper).
func (r Roles) RequireKeeper(caller common.Address) error {
	return r.Require(caller, RoleKeeper)
}
