// Package service provides business-logic services for authentication and
// item management, delegating persistence to repository interfaces.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/akorchagin/stash/internal/models"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Validation and credential errors surfaced to handlers.
var (
	// ErrEmailTaken is returned by Signup when the address already has an account.
	ErrEmailTaken = errors.New("an account with this email already exists")
	// ErrInvalidCredentials is returned by Login for a bad email/password pair.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrMalformedInput is returned for an unusable email or password.
	ErrMalformedInput = errors.New("email and password are required (password at least 8 characters)")
	// ErrInvalidToken is returned when a session token is unknown or expired.
	ErrInvalidToken = errors.New("invalid or expired token")
)

// AuthRepository defines the persistence operations required by the
// authentication service.
type AuthRepository interface {
	// UserExists returns true if a user with the given email exists.
	UserExists(ctx context.Context, email string) (bool, error)
	// CreateUser creates a new user record.
	CreateUser(ctx context.Context, u models.User) error
	// UserByEmail fetches a user by email, sql.ErrNoRows if absent.
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	// UserByID fetches a user by ID, sql.ErrNoRows if absent.
	UserByID(ctx context.Context, id string) (*models.User, error)
	// InsertSession records a newly issued token.
	InsertSession(ctx context.Context, s models.Session) error
	// SessionUserID resolves a live token to its user ID, sql.ErrNoRows otherwise.
	SessionUserID(ctx context.Context, token string, now time.Time) (string, error)
	// DeleteSession revokes a token.
	DeleteSession(ctx context.Context, token string) error
}

// AuthService implements signup, login and token validation by delegating
// to an AuthRepository. Tokens are opaque strings whose expiry is known
// only server-side.
type AuthService struct {
	repo AuthRepository
	ttl  time.Duration
	now  func() time.Time
}

// NewAuthService constructs an AuthService using the provided repository.
// ttl is the lifetime of issued session tokens.
func NewAuthService(repo AuthRepository, ttl time.Duration) *AuthService {
	return &AuthService{repo: repo, ttl: ttl, now: time.Now}
}

// Signup registers a new account and issues a session for it.
// Returns ErrMalformedInput or ErrEmailTaken on user error.
func (s *AuthService) Signup(ctx context.Context, email, password string) (*models.User, *models.Session, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if !validEmail(email) || len(password) < 8 {
		return nil, nil, ErrMalformedInput
	}

	exists, err := s.repo.UserExists(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("check user: %w", err)
	}
	if exists {
		return nil, nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, nil, fmt.Errorf("create user: %w", err)
	}

	sess, err := s.issueSession(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return &user, sess, nil
}

// Login verifies the password for an existing account and issues a session.
// Returns ErrInvalidCredentials when the email is unknown or the password
// does not match; the two cases are indistinguishable on purpose.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, *models.Session, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, nil, ErrMalformedInput
	}

	user, err := s.repo.UserByEmail(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, nil, fmt.Errorf("lookup user: %w", err)
	}

	if bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)) != nil {
		return nil, nil, ErrInvalidCredentials
	}

	sess, err := s.issueSession(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return user, sess, nil
}

// ValidateToken resolves a bearer token to its user, ErrInvalidToken if the
// token is unknown or expired.
func (s *AuthService) ValidateToken(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	userID, err := s.repo.SessionUserID(ctx, token, s.now().UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	user, err := s.repo.UserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return user, nil
}

// Logout revokes the token server-side. Unknown tokens are not an error.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	return s.repo.DeleteSession(ctx, token)
}

func (s *AuthService) issueSession(ctx context.Context, userID string) (*models.Session, error) {
	sess := models.Session{
		Token:     uuid.NewString(),
		UserID:    userID,
		ExpiresAt: s.now().UTC().Add(s.ttl),
	}
	if err := s.repo.InsertSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return &sess, nil
}

func validEmail(email string) bool {
	at := strings.Index(email, "@")
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t")
}
