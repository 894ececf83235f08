package devserver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	issuer      = "grievance-portal-dev"
	accessType  = "access"
	refreshType = "refresh"

	MinPasswordLength = 8
)

var (
	ErrInvalidCredentials = errors.New("devserver: invalid credentials")
	ErrInvalidToken       = errors.New("devserver: token is invalid or expired")
	ErrWeakPassword       = errors.New("devserver: password too short")
)

type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// Claims carries the identity the portal client reads from the access token.
type Claims struct {
	UserID    int    `json:"user_id"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

type Auth struct {
	repo       Repository
	secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	now        func() time.Time
}

func NewAuth(repo Repository, secret string) *Auth {
	return &Auth{
		repo:       repo,
		secret:     []byte(secret),
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
		now:        time.Now,
	}
}

func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Register stores a new user with a hashed password.
func (a *Auth) Register(ctx context.Context, u User, password string) (User, error) {
	hashed, err := HashPassword(password)
	if err != nil {
		return User{}, err
	}
	u.Password = hashed
	return a.repo.CreateUser(ctx, u)
}

// ChangePassword checks the current password before storing the new one.
// Seeded demo passwords predate the length rule; new ones must meet it.
func (a *Auth) ChangePassword(ctx context.Context, userID int, oldPassword, newPassword string) error {
	u, err := a.repo.UserByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(oldPassword)); err != nil {
		return ErrInvalidCredentials
	}
	if len(newPassword) < MinPasswordLength {
		return ErrWeakPassword
	}
	hashed, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	return a.repo.SetPassword(ctx, userID, hashed)
}

func (a *Auth) Login(ctx context.Context, username, password string) (TokenPair, error) {
	u, err := a.repo.UserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrInvalidCredentials
		}
		return TokenPair{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)); err != nil {
		return TokenPair{}, ErrInvalidCredentials
	}

	access, err := a.sign(u, accessType, a.AccessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := a.sign(u, refreshType, a.RefreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{Access: access, Refresh: refresh}, nil
}

// Refresh issues a new access token. The refresh token is not rotated.
func (a *Auth) Refresh(ctx context.Context, refresh string) (TokenPair, error) {
	claims, err := a.parse(refresh, refreshType)
	if err != nil {
		return TokenPair{}, err
	}
	u, err := a.repo.UserByID(ctx, claims.UserID)
	if err != nil {
		return TokenPair{}, ErrInvalidToken
	}
	access, err := a.sign(u, accessType, a.AccessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{Access: access}, nil
}

// ValidateToken accepts access tokens only.
func (a *Auth) ValidateToken(tokenString string) (Claims, error) {
	return a.parse(tokenString, accessType)
}

func (a *Auth) sign(u User, tokenType string, ttl time.Duration) (string, error) {
	now := a.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:    u.ID,
		Username:  u.Username,
		Name:      u.Name,
		Role:      u.Role,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	ss, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", tokenType, err)
	}
	return ss, nil
}

func (a *Auth) parse(tokenString, tokenType string) (Claims, error) {
	claims := Claims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil || !token.Valid {
		return Claims{}, ErrInvalidToken
	}
	if claims.TokenType != tokenType || claims.UserID == 0 {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}
