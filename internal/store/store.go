package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/pavelanni/microlearn/internal/quiz"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config describes the backing database. SQLite needs only Path; Postgres
// needs Host, Name and User.
type Config struct {
	Driver   string `validate:"required,oneof=sqlite postgres"`
	Path     string `validate:"required_if=Driver sqlite"`
	Host     string `validate:"required_if=Driver postgres"`
	Port     int    `validate:"omitempty,min=1,max=65535"`
	Name     string `validate:"required_if=Driver postgres"`
	User     string `validate:"required_if=Driver postgres"`
	Password string
	SSLMode  string `validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
}

// DSN returns the driver-specific data source name.
func (c Config) DSN() string {
	if c.Driver == DriverPostgres {
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(c.User, c.Password),
			Host:   c.Host,
			Path:   "/" + c.Name,
		}
		if c.Port != 0 {
			u.Host = c.Host + ":" + strconv.Itoa(c.Port)
		}
		q := url.Values{}
		if c.SSLMode != "" {
			q.Set("sslmode", c.SSLMode)
		}
		u.RawQuery = q.Encode()
		return u.String()
	}
	return c.Path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}

// Store persists accounts, auth sessions, study results and imported quiz items.
type Store struct {
	db     *sql.DB
	driver string
}

// New opens a SQLite database at dbPath.
func New(dbPath string) (*Store, error) {
	return Open(Config{Driver: DriverSQLite, Path: dbPath})
}

// Open connects to the configured database and creates missing tables.
func Open(cfg Config) (*Store, error) {
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("database config: %w", err)
	}

	sqlDriver := "sqlite"
	if cfg.Driver == DriverPostgres {
		sqlDriver = "pgx"
	}
	db, err := sql.Open(sqlDriver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.Driver == DriverSQLite {
		// One writer at a time; also keeps ":memory:" on a single connection.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db, driver: cfg.Driver}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	slog.Debug("database ready", "driver", cfg.Driver)
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates all tables if they do not exist. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	serial, ts := "INTEGER PRIMARY KEY AUTOINCREMENT", "DATETIME"
	if s.driver == DriverPostgres {
		serial, ts = "BIGSERIAL PRIMARY KEY", "TIMESTAMPTZ"
	}
	statements := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id ` + serial + `,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS auth_sessions (
			id TEXT PRIMARY KEY,
			account_id BIGINT NOT NULL REFERENCES accounts(id),
			created_at ` + ts + ` NOT NULL,
			expires_at ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS results (
			id ` + serial + `,
			name TEXT NOT NULL,
			username TEXT NOT NULL,
			topic TEXT NOT NULL DEFAULT '',
			pre_score INTEGER NOT NULL CHECK (pre_score >= 0),
			post_score INTEGER NOT NULL CHECK (post_score >= 0),
			max_score INTEGER NOT NULL DEFAULT 0,
			created_at ` + ts + ` NOT NULL,
			CHECK (pre_score <= max_score AND post_score <= max_score)
		)`,
		`CREATE INDEX IF NOT EXISTS results_username_idx ON results (username, created_at)`,
		`CREATE TABLE IF NOT EXISTS quiz_items (
			id ` + serial + `,
			topic TEXT NOT NULL,
			question TEXT NOT NULL,
			option_a TEXT NOT NULL,
			option_b TEXT NOT NULL,
			option_c TEXT NOT NULL,
			option_d TEXT NOT NULL,
			answer TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites "?" placeholders to "$n" for Postgres.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// dbtx is satisfied by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.execOn(ctx, s.db, query, args...)
}

func (s *Store) execOn(ctx context.Context, q dbtx, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, s.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.queryRowOn(ctx, s.db, query, args...)
}

func (s *Store) queryRowOn(ctx context.Context, q dbtx, query string, args ...any) *sql.Row {
	return q.QueryRowContext(ctx, s.rebind(query), args...)
}

// inTx runs fn in a transaction, committing only if fn returns nil.
// fn must use tx, never s.db: an in-memory SQLite store has a single
// connection.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// InsertQuizItem stores an imported quiz item for a topic.
func (s *Store) InsertQuizItem(ctx context.Context, topic string, it quiz.Item) (int64, error) {
	return s.insertQuizItem(ctx, s.db, topic, it)
}

func (s *Store) insertQuizItem(ctx context.Context, q dbtx, topic string, it quiz.Item) (int64, error) {
	if err := it.Validate(); err != nil {
		return 0, fmt.Errorf("invalid quiz item: %w", err)
	}
	var id int64
	err := s.queryRowOn(ctx, q,
		`INSERT INTO quiz_items (topic, question, option_a, option_b, option_c, option_d, answer)
		 VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		topic, it.Question, it.Options[0], it.Options[1], it.Options[2], it.Options[3], it.Answer,
	).Scan(&id)
	return id, err
}

// ListQuizItems returns the imported items for a topic in import order.
func (s *Store) ListQuizItems(ctx context.Context, topic string) ([]quiz.Item, error) {
	rows, err := s.query(ctx,
		`SELECT question, option_a, option_b, option_c, option_d, answer
		 FROM quiz_items WHERE topic = ? ORDER BY id`, topic,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []quiz.Item
	for rows.Next() {
		var it quiz.Item
		opts := make([]string, quiz.OptionsPerItem)
		if err := rows.Scan(&it.Question, &opts[0], &opts[1], &opts[2], &opts[3], &it.Answer); err != nil {
			return nil, err
		}
		it.Options = opts
		items = append(items, it)
	}
	return items, rows.Err()
}

// ListDistinctTopics returns the topics that have imported items, sorted.
func (s *Store) ListDistinctTopics(ctx context.Context) ([]string, error) {
	rows, err := s.query(ctx, `SELECT DISTINCT topic FROM quiz_items ORDER BY topic`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var topics []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

// QuizItemCount returns the number of imported quiz items.
func (s *Store) QuizItemCount(ctx context.Context) (int, error) {
	var count int
	err := s.queryRow(ctx, `SELECT COUNT(*) FROM quiz_items`).Scan(&count)
	return count, err
}
