package auth

import (
	"fmt"
	"sort"
	"sync"
)

// UserStore holds the API accounts from configuration and checks logins.
type UserStore struct {
	users map[string]User

	// dummyHash is verified against when the username is unknown, so a
	// failed lookup costs the same as a wrong password.
	dummyOnce sync.Once
	dummyHash string
}

// NewUserStore validates users and indexes them by username.
func NewUserStore(users []User) (*UserStore, error) {
	s := &UserStore{users: make(map[string]User, len(users))}
	for _, u := range users {
		if !IsValidUsername(u.Username) {
			return nil, fmt.Errorf("%w: username %q", ErrInvalidUser, u.Username)
		}
		if !IsValidRole(u.Role) {
			return nil, fmt.Errorf("%w: %s has unknown role %q", ErrInvalidUser, u.Username, u.Role)
		}
		if _, err := parsePHC(u.PasswordHash); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidUser, u.Username, err)
		}
		if _, exists := s.users[u.Username]; exists {
			return nil, fmt.Errorf("%w: %s", ErrUsernameExists, u.Username)
		}
		s.users[u.Username] = u
	}
	return s, nil
}

// Authenticate returns the user when password matches, and
// ErrInvalidCredentials otherwise.
func (s *UserStore) Authenticate(username, password string) (*User, error) {
	u, ok := s.users[username]
	hash := u.PasswordHash
	if !ok {
		hash = s.dummy()
	}

	match, err := VerifyPassword(password, hash)
	if err != nil || !match || !ok {
		return nil, ErrInvalidCredentials
	}
	return &u, nil
}

// Usernames returns all usernames, sorted.
func (s *UserStore) Usernames() []string {
	names := make([]string, 0, len(s.users))
	for name := range s.users {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of users.
func (s *UserStore) Len() int {
	return len(s.users)
}

func (s *UserStore) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = HashPassword("graylogic-dummy-password") //nolint:errcheck // only fails if crypto/rand does
	})
	return s.dummyHash
}
