package auth

import (
	"fmt"

	"github.com/alexedwards/argon2id"
)

// MinPasswordLength applies when creating operator passwords. Existing
// hashes verify regardless of length.
const MinPasswordLength = 8

// passwordParams follows the current OWASP argon2id guidance.
var passwordParams = &argon2id.Params{
	Memory:      19 * 1024,
	Iterations:  2,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	return argon2id.CreateHash(password, passwordParams)
}

func ComparePassword(password, hash string) (bool, error) {
	return argon2id.ComparePasswordAndHash(password, hash)
}
