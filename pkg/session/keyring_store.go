package session

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"igengage/pkg/instagram"
)

const (
	keyringService = "igengage"
	keyringPrefix  = "session_"
)

// KeyringStore keeps sessions in the system keychain
type KeyringStore struct{}

// NewKeyringStore fails when no keychain is reachable
func NewKeyringStore() (*KeyringStore, error) {
	probe := keyringPrefix + "probe"
	if err := keyring.Set(keyringService, probe, "ok"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, probe)

	return &KeyringStore{}, nil
}

// Name implements Store
func (k *KeyringStore) Name() string { return "keyring" }

// Load implements Store
func (k *KeyringStore) Load(account string) (*instagram.Session, error) {
	key, err := accountKey(account)
	if err != nil {
		return nil, err
	}

	data, err := keyring.Get(keyringService, keyringPrefix+key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read session from keyring: %w", err)
	}
	return instagram.UnmarshalSession([]byte(data))
}

// Save implements Store
func (k *KeyringStore) Save(s *instagram.Session) error {
	if s == nil {
		return fmt.Errorf("%w: nil session", ErrInvalidAccount)
	}
	key, err := accountKey(s.Account)
	if err != nil {
		return err
	}

	data, err := s.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := keyring.Set(keyringService, keyringPrefix+key, string(data)); err != nil {
		return fmt.Errorf("failed to store session in keyring: %w", err)
	}
	return nil
}

// Delete implements Store
func (k *KeyringStore) Delete(account string) error {
	key, err := accountKey(account)
	if err != nil {
		return err
	}

	if err := keyring.Delete(keyringService, keyringPrefix+key); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete session from keyring: %w", err)
	}
	return nil
}
