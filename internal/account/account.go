// Package account manages user registration, login tokens, profiles and
// preferences.
package account

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"golang.org/x/crypto/bcrypt"

	"github.com/dshills/gocommerce/internal/storage"
	"github.com/dshills/gocommerce/pkg/types"
)

const (
	saltBytes = 8
	// MinPasswordLength is the shortest accepted password
	MinPasswordLength = 8
	// MaxPasswordLength keeps password+salt within bcrypt's 72-byte input limit
	MaxPasswordLength = 72 - 2*saltBytes
)

var (
	// ErrInvalidCredentials is returned by Login for an unknown user or wrong password
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrInvalidToken is returned by ParseToken for malformed, expired or foreign tokens
	ErrInvalidToken = errors.New("invalid token")
	// ErrUserHasOrders is returned when deleting a user who still owns orders
	ErrUserHasOrders = fmt.Errorf("user has orders: %w", types.ErrConflict)
)

// Config contains configuration for the account service
type Config struct {
	JWTSecret  string
	TokenTTL   time.Duration // default: 24h
	Issuer     string
	Audience   string
	BcryptCost int // default: bcrypt.DefaultCost
}

// Claims are the JWT claims issued at login
type Claims struct {
	UserID   int64  `json:"uid"`
	Username string `json:"username"`
	Email    string `json:"email"`
	jwt.StandardClaims
}

// RegisterRequest carries the fields of a new account
type RegisterRequest struct {
	Username  string `json:"username" binding:"required"`
	Email     string `json:"email" binding:"required"`
	Password  string `json:"password" binding:"required"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// UpdateRequest carries profile changes; nil fields are left unchanged
type UpdateRequest struct {
	Email     *string `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

// AuthResult is returned by Register and Login
type AuthResult struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiration"`
	User      *types.User `json:"user"`
}

// Service implements account operations
type Service struct {
	storage storage.Storage
	config  Config
	now     func() time.Time
}

// New creates an account service
func New(store storage.Storage, config Config) (*Service, error) {
	if config.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if config.TokenTTL <= 0 {
		config.TokenTTL = 24 * time.Hour
	}
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{storage: store, config: config, now: time.Now}, nil
}

// Register creates an account and signs the user in
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	if err := validateRegistration(req); err != nil {
		return nil, err
	}

	if _, err := s.storage.GetUserByUsername(ctx, req.Username); err == nil {
		return nil, types.ErrUsernameTaken
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if err := s.checkEmailFree(ctx, req.Email, 0); err != nil {
		return nil, err
	}

	hash, salt, err := s.hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &types.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Salt:         salt,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Preferences:  types.Attributes{},
	}
	if err := s.storage.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			// Lost a race with a concurrent registration
			if emailErr := s.checkEmailFree(ctx, req.Email, 0); emailErr != nil {
				return nil, emailErr
			}
			return nil, types.ErrUsernameTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return s.issue(user)
}

// Login verifies credentials and issues a token
func (s *Service) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	user, err := s.storage.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if !verifyPassword(user.PasswordHash, password, user.Salt) {
		return nil, ErrInvalidCredentials
	}
	return s.issue(user)
}

// ParseToken validates a signed token, with or without a "Bearer " prefix
func (s *Service) ParseToken(tokenStr string) (*Claims, error) {
	tokenStr = strings.TrimSpace(strings.TrimPrefix(tokenStr, "Bearer "))
	if tokenStr == "" {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(s.config.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if s.config.Issuer != "" && !claims.VerifyIssuer(s.config.Issuer, true) {
		return nil, fmt.Errorf("%w: issuer mismatch", ErrInvalidToken)
	}
	if s.config.Audience != "" && !claims.VerifyAudience(s.config.Audience, true) {
		return nil, fmt.Errorf("%w: audience mismatch", ErrInvalidToken)
	}
	if claims.UserID <= 0 {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}
	return claims, nil
}

// GetUser returns a user with preferences
func (s *Service) GetUser(ctx context.Context, userID int64) (*types.User, error) {
	user, err := s.storage.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, types.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// UpdateUser applies profile changes. A new email must not belong to another user.
func (s *Service) UpdateUser(ctx context.Context, userID int64, req UpdateRequest) (*types.User, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.Email != nil && *req.Email != user.Email {
		if err := validateEmail(*req.Email); err != nil {
			return nil, err
		}
		if err := s.checkEmailFree(ctx, *req.Email, userID); err != nil {
			return nil, err
		}
		user.Email = *req.Email
	}
	if req.FirstName != nil {
		user.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}

	if err := s.storage.UpdateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, types.ErrEmailTaken
		}
		if errors.Is(err, storage.ErrNotFound) {
			return nil, types.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}

// DeleteUser removes a user, their cart and preferences. Users with orders
// cannot be deleted.
func (s *Service) DeleteUser(ctx context.Context, userID int64) error {
	orders, err := s.storage.ListOrdersByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to check orders: %w", err)
	}
	if len(orders) > 0 {
		return ErrUserHasOrders
	}

	if err := s.storage.DeleteUser(ctx, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return types.ErrUserNotFound
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

// GetPreferences returns the user's preference mapping
func (s *Service) GetPreferences(ctx context.Context, userID int64) (types.Attributes, error) {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	prefs, err := s.storage.GetUserPreferences(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get preferences: %w", err)
	}
	return prefs, nil
}

// PutPreferences replaces the user's preference mapping
func (s *Service) PutPreferences(ctx context.Context, userID int64, prefs types.Attributes) (types.Attributes, error) {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	if prefs == nil {
		prefs = types.Attributes{}
	}
	if err := s.storage.PutUserPreferences(ctx, userID, prefs); err != nil {
		return nil, fmt.Errorf("failed to store preferences: %w", err)
	}
	return prefs, nil
}

func (s *Service) checkEmailFree(ctx context.Context, email string, self int64) error {
	existing, err := s.storage.GetUserByEmail(ctx, email)
	if err == nil && existing.ID != self {
		return types.ErrEmailTaken
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to check email: %w", err)
	}
	return nil
}

// issue signs an HS256 token for the user
func (s *Service) issue(user *types.User) (*AuthResult, error) {
	now := s.now()
	expires := now.Add(s.config.TokenTTL)

	claims := Claims{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
		StandardClaims: jwt.StandardClaims{
			Subject:   fmt.Sprintf("%d", user.ID),
			Issuer:    s.config.Issuer,
			Audience:  s.config.Audience,
			IssuedAt:  now.Unix(),
			ExpiresAt: expires.Unix(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &AuthResult{Token: signed, ExpiresAt: expires, User: user}, nil
}

func (s *Service) hashPassword(password string) (hash, salt string, err error) {
	raw := make([]byte, saltBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("failed to generate salt: %w", err)
	}
	salt = hex.EncodeToString(raw)

	hashed, err := bcrypt.GenerateFromPassword([]byte(password+salt), s.config.BcryptCost)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), salt, nil
}

func verifyPassword(hash, password, salt string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password+salt)) == nil
}

func validateRegistration(req RegisterRequest) error {
	if strings.TrimSpace(req.Username) == "" {
		return types.Validationf("username is required")
	}
	if err := validateEmail(req.Email); err != nil {
		return err
	}
	if len(req.Password) < MinPasswordLength || len(req.Password) > MaxPasswordLength {
		return types.Validationf("password must be between %d and %d bytes", MinPasswordLength, MaxPasswordLength)
	}
	return nil
}

func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return types.Validationf("invalid email address %q", email)
	}
	return nil
}
