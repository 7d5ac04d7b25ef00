package domain

import "fmt"

// Kind identifies one export file family of the membership directory.
type Kind string

const (
	KindUsers        Kind = "users"
	KindGroups       Kind = "groups"
	KindGroupMembers Kind = "groupmembers"
	KindUserDegrees  Kind = "userdegrees"
	KindUserJobs     Kind = "userjobs"
)

// knownKinds is ordered by import dependency: users need to exist before
// groups, and both before anything that references them.
var knownKinds = []Kind{
	KindUsers,
	KindGroups,
	KindGroupMembers,
	KindUserDegrees,
	KindUserJobs,
}

// KnownKinds returns every kind in dependency order.
func KnownKinds() []Kind {
	out := make([]Kind, len(knownKinds))
	copy(out, knownKinds)
	return out
}

// ParseKind validates a kind name.
func ParseKind(value string) (Kind, error) {
	for _, k := range knownKinds {
		if string(k) == value {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown kind %q", value)
}

// Order returns the position of the kind in dependency order, or -1.
func (k Kind) Order() int {
	for i, known := range knownKinds {
		if known == k {
			return i
		}
	}
	return -1
}

// OwnerKind returns the kind whose entity owns the records of k. Entity ids
// of k refer to entities of the returned kind.
func (k Kind) OwnerKind() Kind {
	if k == KindGroups {
		return KindGroups
	}
	return KindUsers
}

// HasDependents reports whether records of k replace the full set stored for
// their owner on each import.
func (k Kind) HasDependents() bool {
	return k == KindUserDegrees || k == KindUserJobs
}

func (k Kind) String() string {
	return string(k)
}

// Table names of the record store, one per kind.
const (
	TableAccounts            = "accounts"
	TableGroups              = "groups"
	TableGroupMemberships    = "group_memberships"
	TableAcademicRecords     = "academic_records"
	TableProfessionalRecords = "professional_records"
)

// Table returns the store table receiving records of the kind.
func (k Kind) Table() string {
	switch k {
	case KindUsers:
		return TableAccounts
	case KindGroups:
		return TableGroups
	case KindGroupMembers:
		return TableGroupMemberships
	case KindUserDegrees:
		return TableAcademicRecords
	case KindUserJobs:
		return TableProfessionalRecords
	default:
		return ""
	}
}
