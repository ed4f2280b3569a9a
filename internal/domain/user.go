// Package domain contains the core types shared by all user-service packages.
package domain

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// ErrUnknownRole is returned when a string does not name a known role.
var ErrUnknownRole = errors.New("unknown role")

// Role is the access level of a user.
type Role string

// Known roles.
const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// String returns the wire form of r.
func (r Role) String() string {
	return string(r)
}

// ParseRole converts s to a Role. Matching is case-insensitive so that
// values like "ADMIN" coming from older clients are accepted.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}

// RoleSet is an immutable set of roles allowed to perform an operation.
type RoleSet struct {
	roles []Role
}

// NewRoleSet builds a set from roles, dropping duplicates.
// Roles are kept in sorted order so String output is stable.
func NewRoleSet(roles ...Role) RoleSet {
	out := make([]Role, 0, len(roles))
	for _, r := range roles {
		if !slices.Contains(out, r) {
			out = append(out, r)
		}
	}
	slices.Sort(out)
	return RoleSet{roles: out}
}

// Contains reports whether r is in the set.
func (s RoleSet) Contains(r Role) bool {
	return slices.Contains(s.roles, r)
}

// Roles returns a copy of the roles in the set.
func (s RoleSet) Roles() []Role {
	return slices.Clone(s.roles)
}

// String renders the set as "[admin user]".
func (s RoleSet) String() string {
	names := make([]string, len(s.roles))
	for i, r := range s.roles {
		names[i] = string(r)
	}
	return "[" + strings.Join(names, " ") + "]"
}

// User is an account known to the service.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Role         Role
	CreatedAt    time.Time
}
