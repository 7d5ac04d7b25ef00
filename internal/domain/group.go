package domain

import (
	"fmt"
	"strings"
	"time"
)

// Group is a directory group, keyed by its directory id.
type Group struct {
	AFID       int64     `json:"af_id"`
	AXID       string    `json:"ax_id,omitempty"`
	Name       string    `json:"name"`
	Category   string    `json:"category,omitempty"`
	LastUpdate time.Time `json:"last_update"`
}

// Label returns a short human readable identification of the group.
func (g Group) Label() string {
	return fmt.Sprintf("%s (AF ID %d)", g.Name, g.AFID)
}

// MembershipRole is the closed set of roles a member can hold in a group.
type MembershipRole string

const (
	RoleBanned       MembershipRole = "banned"
	RoleInvited      MembershipRole = "invited"
	RoleMember       MembershipRole = "member"
	RoleModerator    MembershipRole = "moderator"
	RoleOnList       MembershipRole = "onlist"
	RoleResponsible  MembershipRole = "responsible"
	RoleUnsubscribed MembershipRole = "unsubscribed"
)

// sourceRoles maps the export vocabulary onto membership roles. Canonical
// role names are accepted as-is.
var sourceRoles = map[string]MembershipRole{
	"banni":        RoleBanned,
	"bannie":       RoleBanned,
	"invité":       RoleInvited,
	"invitée":      RoleInvited,
	"membre":       RoleMember,
	"modérateur":   RoleModerator,
	"modératrice":  RoleModerator,
	"sur liste":    RoleOnList,
	"responsable":  RoleResponsible,
	"désinscrit":   RoleUnsubscribed,
	"désinscrite":  RoleUnsubscribed,
	"banned":       RoleBanned,
	"invited":      RoleInvited,
	"member":       RoleMember,
	"moderator":    RoleModerator,
	"onlist":       RoleOnList,
	"responsible":  RoleResponsible,
	"unsubscribed": RoleUnsubscribed,
}

// ParseMembershipRole translates a role from the export vocabulary.
func ParseMembershipRole(value string) (MembershipRole, error) {
	role, ok := sourceRoles[strings.ToLower(strings.TrimSpace(value))]
	if !ok {
		return "", fmt.Errorf("unknown membership role %q", value)
	}
	return role, nil
}

// InGroup reports whether the role means the account belongs to the group.
func (r MembershipRole) InGroup() bool {
	switch r {
	case RoleMember, RoleModerator, RoleOnList, RoleResponsible:
		return true
	default:
		return false
	}
}
