package auth

import "reflect"

// IdentityRecord is a plain Identity value. Lookups that do not own a richer
// model can return it directly.
type IdentityRecord struct {
	UserID    string `json:"id"`
	UserName  string `json:"username,omitempty"`
	UserEmail string `json:"email,omitempty"`
	RoleName  string `json:"role,omitempty"`
	Active    bool   `json:"is_active"`
	Superuser bool   `json:"is_superuser"`
	Hash      string `json:"-"`
}

var _ Identity = IdentityRecord{}

func (r IdentityRecord) ID() string           { return r.UserID }
func (r IdentityRecord) Username() string     { return r.UserName }
func (r IdentityRecord) Email() string        { return r.UserEmail }
func (r IdentityRecord) Role() string         { return r.RoleName }
func (r IdentityRecord) IsActive() bool       { return r.Active }
func (r IdentityRecord) IsSuperuser() bool    { return r.Superuser }
func (r IdentityRecord) PasswordHash() string { return r.Hash }

// SnapshotIdentity copies any Identity into an IdentityRecord.
func SnapshotIdentity(identity Identity) IdentityRecord {
	if identity == nil {
		return IdentityRecord{}
	}
	return IdentityRecord{
		UserID:    identity.ID(),
		UserName:  identity.Username(),
		UserEmail: identity.Email(),
		RoleName:  identity.Role(),
		Active:    identity.IsActive(),
		Superuser: identity.IsSuperuser(),
		Hash:      identity.PasswordHash(),
	}
}

// isNilIdentity also catches typed nil pointers stored in the interface and
// identities without an id.
func isNilIdentity(identity Identity) bool {
	if identity == nil {
		return true
	}
	if v := reflect.ValueOf(identity); v.Kind() == reflect.Pointer && v.IsNil() {
		return true
	}
	return identity.ID() == ""
}
