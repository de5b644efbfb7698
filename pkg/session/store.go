// Package session persists platform sessions per account and keeps a valid
// one attached to the client, logging in again when the platform rejects it.
package session

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"igengage/pkg/config"
	"igengage/pkg/instagram"
	"igengage/pkg/logger"
)

// Errors
var (
	ErrNotFound       = errors.New("session not found")
	ErrInvalidAccount = errors.New("invalid account name")
)

// Store persists at most one session per account
type Store interface {
	Load(account string) (*instagram.Session, error)
	// Save replaces any session already stored for s.Account
	Save(s *instagram.Session) error
	Delete(account string) error
	Name() string
}

// Backends accepted by session.backend
const (
	BackendAuto    = "auto"
	BackendFile    = "file"
	BackendKeyring = "keyring"
)

// NewStore builds the store selected by cfg.Backend.
// auto prefers the system keyring and falls back to an encrypted file.
func NewStore(cfg config.SessionConfig, fs afero.Fs, log logger.Logger) (Store, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	fileStore := func() (Store, error) {
		passphrase, err := ResolvePassphrase(fs, cfg.Directory)
		if err != nil {
			return nil, err
		}
		return NewFileStore(fs, cfg.Directory, passphrase), nil
	}

	switch cfg.Backend {
	case BackendFile:
		return fileStore()
	case BackendKeyring:
		return NewKeyringStore()
	case BackendAuto, "":
		ks, err := NewKeyringStore()
		if err == nil {
			return ks, nil
		}
		log.WithError(err).Debug("Keyring unavailable, using encrypted session file")
		return fileStore()
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}

// accountKey normalizes an account name and rejects anything that is not a
// plain username, so it is safe to use in file names and keyring keys.
func accountKey(account string) (string, error) {
	name := instagram.SanitizeUsername(account)
	if !instagram.IsValidUsername(name) || name != filepath.Base(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAccount, account)
	}
	return name, nil
}
