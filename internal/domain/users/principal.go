package users

// Principal is the authenticated caller, passed explicitly into every operation
// that acts on behalf of a user.
type Principal struct {
	UserID uint
	Email  string
	Role   string
}

func (p Principal) IsZero() bool {
	return p.UserID == 0
}
