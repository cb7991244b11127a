package models

import "time"

// Account is a user together with its credentials, held by the mock API only.
type Account struct {
	User         User
	PasswordHash []byte
	CreatedAt    time.Time
}
