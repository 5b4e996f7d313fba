// internal/models/role.go
package models

import (
	"fmt"
	"strings"
)

// Role is the side a player is playing on.
type Role string

const (
	RoleHider  Role = "hider"
	RoleSeeker Role = "seeker"
)

// ParseRole converts a client supplied role preference. Matching is case-insensitive.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleHider:
		return RoleHider, nil
	case RoleSeeker:
		return RoleSeeker, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

func (r Role) Valid() bool {
	return r == RoleHider || r == RoleSeeker
}

func (r Role) String() string { return string(r) }
