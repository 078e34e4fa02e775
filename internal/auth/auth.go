// Package auth registers accounts and checks credentials.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/microlearn/internal/model"
	"github.com/pavelanni/microlearn/internal/store"
)

var (
	// ErrUsernameTaken is returned by Register when the username already exists.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrInvalidInput is returned when registration input fails the rules.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidCredentials is returned by Account when the username is
	// unknown or the password does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// AccountStore is the persistence the service needs.
type AccountStore interface {
	CreateAccount(ctx context.Context, username, passwordHash string) (int64, error)
	GetAccountByUsername(ctx context.Context, username string) (*model.Account, error)
}

type credentials struct {
	Username string `validate:"required,min=3,max=64,username"`
	Password string `validate:"required,max=72"` // bcrypt ignores bytes past 72
}

// Service is the credential store.
type Service struct {
	accounts  AccountStore
	cost      int
	validate  *validator.Validate
	dummyHash []byte
}

// NewService returns a Service using bcrypt.DefaultCost.
func NewService(accounts AccountStore) (*Service, error) {
	return NewServiceWithCost(accounts, bcrypt.DefaultCost)
}

// NewServiceWithCost is NewService with an explicit bcrypt cost. Tests use
// bcrypt.MinCost.
func NewServiceWithCost(accounts AccountStore, cost int) (*Service, error) {
	v := validator.New()
	if err := v.RegisterValidation("username", validUsername); err != nil {
		return nil, err
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("microlearn-dummy-password"), cost)
	if err != nil {
		return nil, fmt.Errorf("dummy hash: %w", err)
	}
	return &Service{accounts: accounts, cost: cost, validate: v, dummyHash: dummy}, nil
}

func validUsername(fl validator.FieldLevel) bool {
	for _, r := range fl.Field().String() {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

// Register creates an account with a bcrypt-hashed password. The unique
// constraint on username decides concurrent registrations of the same name.
func (s *Service) Register(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if err := s.validate.Struct(credentials{Username: username, Password: password}); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidInput, describe(err))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if _, err := s.accounts.CreateAccount(ctx, username, string(hash)); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return fmt.Errorf("%w: %s", ErrUsernameTaken, username)
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// Verify reports whether password matches the stored hash for username.
// Unknown usernames are compared against a dummy hash.
func (s *Service) Verify(ctx context.Context, username, password string) (bool, error) {
	_, err := s.Account(ctx, username, password)
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

// Account returns the account when the credentials match, and
// ErrInvalidCredentials when they do not.
func (s *Service) Account(ctx context.Context, username, password string) (*model.Account, error) {
	acc, err := s.accounts.GetAccountByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	hash := s.dummyHash
	if acc != nil {
		hash = []byte(acc.PasswordHash)
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		if acc != nil {
			slog.Info("password mismatch", "username", acc.Username)
		}
		return nil, ErrInvalidCredentials
	}
	if acc == nil {
		return nil, ErrInvalidCredentials
	}
	return acc, nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, strings.ToLower(fe.Field())+" fails "+fe.Tag())
	}
	return strings.Join(parts, ", ")
}
