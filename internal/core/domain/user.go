package domain

import "time"

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Admin        bool      `json:"admin"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Role struct {
	Admin bool `json:"admin"`
}

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID string
	Email  string
	Admin  bool
}
