package models

// Role names understood by the dashboard routing.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User is the authenticated identity returned by the auth endpoints.
// It is replaced wholesale on every change, never mutated in place.
type User struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	RoleID string `json:"roleId,omitempty"`
}

// IsAdmin returns true if the user carries the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// Clone returns a copy so callers cannot alter state they do not own.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
