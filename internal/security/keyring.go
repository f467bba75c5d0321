// Package security stores helper-machine credentials in the OS keyring.
package security

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zalando/go-keyring"

	"github.com/acolita/qemu-e2e/internal/ports"
)

// Service is the keyring service name used for all entries.
const Service = "qemu-e2e"

// ErrNotFound is returned when no password is stored for an account.
var ErrNotFound = errors.New("no stored password")

// Store reads and writes helper passwords in the system keyring
// (macOS Keychain, Linux Secret Service, Windows Credential Manager).
// Lookups are cached in memory for a short TTL.
type Store struct {
	service string
	cache   *secretCache
}

// Option configures a Store.
type Option func(*storeOptions)

type storeOptions struct {
	service string
	ttl     time.Duration
	clock   ports.Clock
}

// WithService overrides the keyring service name.
func WithService(name string) Option {
	return func(o *storeOptions) { o.service = name }
}

// WithCacheTTL sets how long lookups are cached. Zero disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(o *storeOptions) { o.ttl = ttl }
}

// WithClock sets the clock used for cache expiry.
func WithClock(clock ports.Clock) Option {
	return func(o *storeOptions) { o.clock = clock }
}

// NewStore creates a keyring-backed store.
func NewStore(opts ...Option) *Store {
	o := storeOptions{service: Service, ttl: DefaultCacheTTL}
	for _, opt := range opts {
		opt(&o)
	}
	return &Store{
		service: o.service,
		cache:   newSecretCache(o.ttl, o.clock),
	}
}

func account(user string) string {
	return "helper:" + user
}

// Get returns the password stored for user (usually "user@host").
func (s *Store) Get(user string) (string, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		return "", fmt.Errorf("keyring lookup: empty user")
	}
	if cached, ok := s.cache.get(user); ok {
		defer WipeBytes(cached)
		return string(cached), nil
	}

	password, err := keyring.Get(s.service, account(user))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("%s: %w", user, ErrNotFound)
		}
		return "", fmt.Errorf("keyring lookup for %s: %w", user, err)
	}

	s.cache.put(user, []byte(password))
	slog.Debug("loaded helper password from keyring", slog.String("user", user))
	return password, nil
}

// Set stores password for user, replacing any previous entry.
func (s *Store) Set(user, password string) error {
	user = strings.TrimSpace(user)
	if user == "" {
		return fmt.Errorf("keyring store: empty user")
	}
	if password == "" {
		return fmt.Errorf("keyring store for %s: empty password", user)
	}

	if err := keyring.Set(s.service, account(user), password); err != nil {
		return fmt.Errorf("keyring store for %s: %w", user, err)
	}
	s.cache.drop(user)

	slog.Debug("stored helper password in keyring", slog.String("user", user))
	return nil
}

// Delete removes the entry for user. Deleting a missing entry is not an error.
func (s *Store) Delete(user string) error {
	user = strings.TrimSpace(user)
	s.cache.drop(user)

	if err := keyring.Delete(s.service, account(user)); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("keyring delete for %s: %w", user, err)
	}
	return nil
}
