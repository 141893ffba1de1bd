package auth

import (
	"errors"
	"strings"
)

const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"

	MethodPassword = "password"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type Principal struct {
	UserID int64
	Email  string
	Role   string
	Method string
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
