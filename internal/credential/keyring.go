// Package credential keeps the Graph application secret in the OS keyring so
// it does not have to be passed on the command line.
package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const serviceName = "meetingsnap"

// ErrNotFound is returned when no secret is stored for the application.
var ErrNotFound = errors.New("credential not found")

// Store reads and writes client secrets.
type Store struct {
	ring keyring.Keyring
}

// Open returns a store on the first available OS backend.
func Open() (*Store, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/meetingsnap/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("meetingsnap-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return New(ring), nil
}

// New wraps an already opened keyring.
func New(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

// SecretKey is the keyring key of an application's client secret.
func SecretKey(tenantID, clientID string) string {
	return fmt.Sprintf("client-secret:%s:%s", tenantID, clientID)
}

// ClientSecret returns the stored secret for the application.
func (s *Store) ClientSecret(tenantID, clientID string) (string, error) {
	key := SecretKey(tenantID, clientID)
	item, err := s.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// SetClientSecret stores secret for the application.
func (s *Store) SetClientSecret(tenantID, clientID, secret string) error {
	key := SecretKey(tenantID, clientID)
	err := s.ring.Set(keyring.Item{
		Key:         key,
		Data:        []byte(secret),
		Label:       "meetingsnap client secret",
		Description: "Microsoft Graph application secret",
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// DeleteClientSecret removes the stored secret.
func (s *Store) DeleteClientSecret(tenantID, clientID string) error {
	key := SecretKey(tenantID, clientID)
	if err := s.ring.Remove(key); err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}
