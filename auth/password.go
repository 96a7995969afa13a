package auth

import (
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword generates a bcrypt hash of the plain-text password.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(bytes), err
}

// CheckPassword compares a bcrypt password hash with a plain-text password.
func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// burnCompare spends one bcrypt comparison so unknown usernames cost as
// much as wrong passwords.
func burnCompare(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = HashPassword("not-a-real-password", bcrypt.DefaultCost)
	})
	CheckPassword(password, dummyHash)
}
