package session

import (
	"context"
	"errors"
	"os"

	"igengage/pkg/instagram"
)

// PasswordEnv holds a password for non-interactive runs
const PasswordEnv = "IGENGAGE_PASSWORD"

// ErrNoPassword means neither the environment nor a fallback supplied one
var ErrNoPassword = errors.New("no password: set " + PasswordEnv + " or run interactively")

// EnvCredentials reads the password from the environment and defers to
// Fallback when it is not set
type EnvCredentials struct {
	Fallback CredentialProvider
}

// Credentials implements CredentialProvider
func (e EnvCredentials) Credentials(ctx context.Context, account string) (instagram.Credentials, error) {
	if password := os.Getenv(PasswordEnv); password != "" {
		return instagram.Credentials{Username: account, Password: password}, nil
	}
	if e.Fallback == nil {
		return instagram.Credentials{}, ErrNoPassword
	}
	return e.Fallback.Credentials(ctx, account)
}
