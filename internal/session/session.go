// Package session is the explicit login/logout lifecycle shared by the REST
// client, the chat view and the notification aggregator. It replaces ad hoc
// reads of browser-style key-value storage with one injected object.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoSession    = errors.New("session: no stored session")
	ErrInvalidToken = errors.New("session: access token cannot be decoded")
	// ErrSessionExpired is returned when even the refresh token has lapsed.
	ErrSessionExpired = errors.New("session: refresh token expired")
)

const (
	RoleAdmin         = "admin"
	RoleGrievanceCell = "grievance_cell"
	RoleStudent       = "student"
)

type Tokens struct {
	Access  string `json:"access" toml:"access"`
	Refresh string `json:"refresh" toml:"refresh"`
}

type User struct {
	ID           int    `json:"id" toml:"id"`
	Username     string `json:"username" toml:"username"`
	Name         string `json:"name" toml:"name"`
	Role         string `json:"role" toml:"role"`
	ProfileImage string `json:"profile_image,omitempty" toml:"profile_image,omitempty"`
}

// Record is what a Store persists for the lifetime of a login.
type Record struct {
	Tokens    Tokens    `json:"tokens" toml:"tokens"`
	User      User      `json:"user" toml:"user"`
	ExpiresAt time.Time `json:"expires_at" toml:"expires_at"`
}

type Store interface {
	Load(ctx context.Context) (Record, error)
	Save(ctx context.Context, rec Record) error
	Clear(ctx context.Context) error
}

type Event int

const (
	LoggedIn Event = iota
	LoggedOut
	UserUpdated
)

type Session struct {
	store Store

	mu        sync.RWMutex
	rec       Record
	active    bool
	listeners []func(Event)
}

func New(store Store) *Session {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Session{store: store}
}

// Subscribe registers fn for lifecycle transitions. fn runs on the caller's goroutine.
func (s *Session) Subscribe(fn func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Login adopts freshly issued tokens. The identity comes from the access
// token's claims; signature checks belong to the backend.
func (s *Session) Login(ctx context.Context, tokens Tokens) (User, error) {
	user, expires, err := DecodeAccess(tokens.Access)
	if err != nil {
		return User{}, err
	}
	rec := Record{Tokens: tokens, User: user, ExpiresAt: expires}
	if err := s.store.Save(ctx, rec); err != nil {
		return User{}, fmt.Errorf("session: save: %w", err)
	}

	s.mu.Lock()
	s.rec, s.active = rec, true
	s.mu.Unlock()

	s.emit(LoggedIn)
	return user, nil
}

// Restore picks up a stored session, as the application shell does on mount.
// It reports false when nothing usable is stored.
func (s *Session) Restore(ctx context.Context) (bool, error) {
	rec, err := s.store.Load(ctx)
	if errors.Is(err, ErrNoSession) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("session: load: %w", err)
	}
	if rec.Tokens.Access == "" {
		return false, nil
	}

	s.mu.Lock()
	s.rec, s.active = rec, true
	s.mu.Unlock()

	s.emit(LoggedIn)
	return true, nil
}

// Logout clears memory and storage entirely.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	was := s.active
	s.rec, s.active = Record{}, false
	s.mu.Unlock()

	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("session: clear: %w", err)
	}
	if was {
		s.emit(LoggedOut)
	}
	return nil
}

// UpdateUser caches a refreshed user object, e.g. after a profile update.
// The id and role stay those of the token.
func (s *Session) UpdateUser(ctx context.Context, u User) error {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return ErrNoSession
	}
	u.ID, u.Role = s.rec.User.ID, s.rec.User.Role
	rec := s.rec
	rec.User = u
	s.mu.Unlock()

	if err := s.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("session: save: %w", err)
	}
	s.mu.Lock()
	s.rec = rec
	s.mu.Unlock()

	s.emit(UserUpdated)
	return nil
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.Tokens.Access
}

func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.Tokens.Refresh
}

func (s *Session) User() User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.User
}

func (s *Session) UserID() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.User.ID
}

func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Privileged reports grievance-cell staff and administrators.
func (s *Session) Privileged() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active && IsPrivileged(s.rec.User.Role)
}

// Expired reports whether the access token's exp claim has passed. Tokens
// without exp never expire here.
func (s *Session) Expired(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.rec.ExpiresAt.IsZero() && now.After(s.rec.ExpiresAt)
}

func (s *Session) emit(ev Event) {
	s.mu.RLock()
	listeners := slices.Clone(s.listeners)
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

func IsPrivileged(role string) bool {
	return role == RoleAdmin || role == RoleGrievanceCell
}

// claims mirrors the portal's access token payload.
type claims struct {
	UserID   flexID `json:"user_id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// DecodeAccess reads identity fields from an access token without verifying it.
func DecodeAccess(token string) (User, time.Time, error) {
	var c claims
	if _, _, err := jwt.NewParser().ParseUnverified(strings.TrimSpace(token), &c); err != nil {
		return User{}, time.Time{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if c.UserID == 0 {
		return User{}, time.Time{}, fmt.Errorf("%w: missing user_id", ErrInvalidToken)
	}
	var expires time.Time
	if c.ExpiresAt != nil {
		expires = c.ExpiresAt.Time
	}
	return User{ID: int(c.UserID), Username: c.Username, Name: c.Name, Role: c.Role}, expires, nil
}

// tokenExpiry is the exp claim of any JWT, or the zero time when the token
// is opaque or carries no exp.
func tokenExpiry(token string) time.Time {
	var c jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(strings.TrimSpace(token), &c); err != nil || c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// flexID accepts user_id encoded as a number or a numeric string.
type flexID int

func (f *flexID) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		v, err := strconv.Atoi(n.String())
		if err != nil {
			return err
		}
		*f = flexID(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*f = flexID(v)
	return nil
}
