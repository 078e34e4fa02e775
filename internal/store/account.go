package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/microlearn/internal/model"
)

// CreateAccount inserts a new account. It returns ErrDuplicate when the
// username is already registered; the existing row is left untouched.
func (s *Store) CreateAccount(ctx context.Context, username, passwordHash string) (int64, error) {
	var id int64
	err := s.queryRow(ctx,
		`INSERT INTO accounts (username, password_hash, created_at) VALUES (?, ?, ?) RETURNING id`,
		username, passwordHash, time.Now().UTC(),
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("account %q: %w", username, ErrDuplicate)
		}
		slog.Error("failed to create account", "username", username, "error", err)
		return 0, err
	}
	slog.Info("created account", "id", id, "username", username)
	return id, nil
}

// GetAccountByUsername returns an account by username, or nil if not found.
func (s *Store) GetAccountByUsername(ctx context.Context, username string) (*model.Account, error) {
	return s.scanAccount(s.queryRow(ctx,
		`SELECT id, username, password_hash, created_at FROM accounts WHERE username = ?`, username,
	))
}

// GetAccountByID returns an account by ID, or nil if not found.
func (s *Store) GetAccountByID(ctx context.Context, id int64) (*model.Account, error) {
	return s.scanAccount(s.queryRow(ctx,
		`SELECT id, username, password_hash, created_at FROM accounts WHERE id = ?`, id,
	))
}

func (s *Store) scanAccount(row *sql.Row) (*model.Account, error) {
	var a model.Account
	err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// AccountCount returns the total number of accounts.
func (s *Store) AccountCount(ctx context.Context) (int, error) {
	var count int
	err := s.queryRow(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&count)
	return count, err
}
