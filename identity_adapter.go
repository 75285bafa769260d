package auth

// accountIdentity is a copy of the user columns tokens and handlers need.
// It is taken once per lookup so later edits to the row do not leak into
// an in-flight request.
type accountIdentity struct {
	id       string
	username string
	email    string
	role     UserRole
	enabled  bool
}

// NewIdentityFromUser snapshots user as an Identity, nil for a nil user
func NewIdentityFromUser(user *User) Identity {
	if user == nil {
		return nil
	}
	return newAccountIdentity(user)
}

func newAccountIdentity(user *User) accountIdentity {
	return accountIdentity{
		id:       user.ID.String(),
		username: user.Username,
		email:    user.Email,
		role:     user.Role,
		enabled:  user.Active && user.DeletedAt == nil,
	}
}

func (a accountIdentity) ID() string       { return a.id }
func (a accountIdentity) Username() string { return a.username }
func (a accountIdentity) Email() string    { return a.email }
func (a accountIdentity) Role() string     { return string(a.role) }

// canSignIn is false for deactivated or soft deleted accounts and for
// roles this service does not know about.
func (a accountIdentity) canSignIn() bool {
	return a.enabled && a.role.IsValid()
}
