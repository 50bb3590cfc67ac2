package port

import "time"

type TokenIssuer interface {
	// Issue signs a session token for the user and returns its expiry
	Issue(userID string) (string, time.Time, error)

	// Verify returns the user id carried by a valid token
	Verify(token string) (string, error)
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) bool
}
