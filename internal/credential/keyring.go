// Package credential remembers which user is signed in on this machine.
package credential

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/99designs/keyring"
)

const (
	serviceName = "mooncove"
	userKey     = "active-user"
)

var ErrNoActiveUser = errors.New("credential: no signed in user")

// Store wraps a keyring. Tests use keyring.NewArrayKeyring.
type Store struct {
	ring keyring.Keyring
}

func New(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

// Open returns the OS keyring, falling back to an encrypted file under dir.
func Open(dir string) (*Store, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  filepath.Join(dir, "credentials"),
		FilePasswordFunc:         keyring.FixedStringPrompt("mooncove-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return New(ring), nil
}

func (s *Store) ActiveUser() (string, error) {
	item, err := s.ring.Get(userKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNoActiveUser
	}
	if err != nil {
		return "", fmt.Errorf("getting active user: %w", err)
	}
	if len(item.Data) == 0 {
		return "", ErrNoActiveUser
	}
	return string(item.Data), nil
}

func (s *Store) SetActiveUser(userID string) error {
	err := s.ring.Set(keyring.Item{
		Key:   userKey,
		Data:  []byte(userID),
		Label: "Mooncove signed in user",
	})
	if err != nil {
		return fmt.Errorf("setting active user: %w", err)
	}
	return nil
}

// SignOut forgets the active user. Signing out twice is not an error.
func (s *Store) SignOut() error {
	err := s.ring.Remove(userKey)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("removing active user: %w", err)
	}
	return nil
}
