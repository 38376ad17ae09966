package auth

import (
	"crypto/subtle"

	"github.com/techscire/scirecount-core/internal/infrastructure/config"
)

// CheckDashboard verifies a login against the configured operator account.
//
// A configured PasswordHash is checked with Argon2id; otherwise Password is
// compared in constant time. An account with neither never matches.
func CheckDashboard(cfg config.DashboardConfig, username, password string) error {
	userOK := cfg.Username != "" &&
		subtle.ConstantTimeCompare([]byte(username), []byte(cfg.Username)) == 1

	var passOK bool
	switch {
	case cfg.PasswordHash != "":
		ok, err := VerifyPassword(password, cfg.PasswordHash)
		if err != nil {
			return err
		}
		passOK = ok
	case cfg.Password != "":
		passOK = subtle.ConstantTimeCompare([]byte(password), []byte(cfg.Password)) == 1
	}

	if !userOK || !passOK {
		return ErrInvalidCredentials
	}
	return nil
}
