package model

import "time"

// User is the persisted record for an identity first seen via the SP agent.
// Records are created once per username and only their profile fields mutate
// afterwards. PasswordUnusable marks accounts that must never succeed a
// local credential login; every record this service creates carries it.
type User struct {
	ID               string    `db:"id"                json:"id"`
	Username         string    `db:"username"          json:"username"`
	Email            string    `db:"email"             json:"email"`
	FirstName        string    `db:"first_name"        json:"first_name"`
	LastName         string    `db:"last_name"         json:"last_name"`
	Status           string    `db:"status"            json:"status"`
	Affiliation      string    `db:"affiliation"       json:"affiliation"`
	PasswordUnusable bool      `db:"password_unusable" json:"-"`
	Active           bool      `db:"active"            json:"active"`
	CreatedAt        time.Time `db:"created_at"        json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"        json:"updated_at"`
}

// CanAuthenticate reports whether the account is eligible to log in.
func (u *User) CanAuthenticate() bool { return u != nil && u.Active }

// ProfileFields is the closed set of user fields that may be synchronized
// from identity attributes. A nil field means the deployment's attribute map
// does not supply that field; it is left untouched during reconciliation.
type ProfileFields struct {
	Email       *string
	FirstName   *string
	LastName    *string
	Status      *string
	Affiliation *string
}

// Canonical field names recognized by ProfileFieldsFromAttributes. Attribute
// maps may define additional canonical names; those flow into the session
// but are not persisted on the user record.
const (
	FieldEmail       = "email"
	FieldFirstName   = "first_name"
	FieldLastName    = "last_name"
	FieldStatus      = "status"
	FieldAffiliation = "affiliation"
)

// ProfileFieldsFromAttributes selects the persistable subset of a parsed
// attribute set. Only keys present in the map produce non-nil fields, so an
// unmapped field is never blanked on an existing user, while a mapped but
// empty attribute overwrites.
func ProfileFieldsFromAttributes(attrs map[string]string) ProfileFields {
	var f ProfileFields
	if v, ok := attrs[FieldEmail]; ok {
		f.Email = &v
	}
	if v, ok := attrs[FieldFirstName]; ok {
		f.FirstName = &v
	}
	if v, ok := attrs[FieldLastName]; ok {
		f.LastName = &v
	}
	if v, ok := attrs[FieldStatus]; ok {
		f.Status = &v
	}
	if v, ok := attrs[FieldAffiliation]; ok {
		f.Affiliation = &v
	}
	return f
}

// IsZero reports whether no field is supplied.
func (f ProfileFields) IsZero() bool {
	return f.Email == nil && f.FirstName == nil && f.LastName == nil &&
		f.Status == nil && f.Affiliation == nil
}

// Differs reports whether applying f to u would change at least one field.
func (f ProfileFields) Differs(u *User) bool {
	return (f.Email != nil && *f.Email != u.Email) ||
		(f.FirstName != nil && *f.FirstName != u.FirstName) ||
		(f.LastName != nil && *f.LastName != u.LastName) ||
		(f.Status != nil && *f.Status != u.Status) ||
		(f.Affiliation != nil && *f.Affiliation != u.Affiliation)
}

// Apply copies every supplied field onto u.
func (f ProfileFields) Apply(u *User) {
	if f.Email != nil {
		u.Email = *f.Email
	}
	if f.FirstName != nil {
		u.FirstName = *f.FirstName
	}
	if f.LastName != nil {
		u.LastName = *f.LastName
	}
	if f.Status != nil {
		u.Status = *f.Status
	}
	if f.Affiliation != nil {
		u.Affiliation = *f.Affiliation
	}
}
