package domain

import (
	"fmt"
	"time"
)

// Account is an entry of the membership directory, keyed by its directory id.
// Only the fields needed to identify an account are mapped; the full record
// is persisted from the imported Record.
type Account struct {
	AFID         int64      `json:"af_id"`
	AXID         string     `json:"ax_id,omitempty"`
	XorgID       string     `json:"xorg_id,omitempty"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Email        string     `json:"email_1,omitempty"`
	LastUpdate   time.Time  `json:"last_update"`
	DeletedSince *time.Time `json:"deleted_since,omitempty"`
}

// Label returns a short human readable identification of the account.
func (a Account) Label() string {
	var result string
	switch {
	case a.XorgID != "":
		result = a.XorgID
	case a.FirstName != "" && a.LastName != "":
		result = fmt.Sprintf("%s %s", a.FirstName, a.LastName)
	case a.Email != "":
		result = a.Email
	default:
		result = "?"
	}

	if a.AXID != "" {
		return fmt.Sprintf("%s (AX ID %s)", result, a.AXID)
	}
	return fmt.Sprintf("%s (AF ID %d)", result, a.AFID)
}

// UnknownLabel is used when an entity id cannot be found in the store.
func UnknownLabel(id int64) string {
	return fmt.Sprintf("unknown (AF ID %d)", id)
}
