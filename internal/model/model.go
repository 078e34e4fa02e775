package model

import (
	"context"
	"time"
)

// DefaultTopic is the topic offered when no topic list is configured.
const DefaultTopic = "Recursion"

// Account is a registered login identity.
type Account struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	AccountID int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type accountCtxKey struct{}

// ContextWithAccount stores the logged-in account in the request context.
func ContextWithAccount(ctx context.Context, a *Account) context.Context {
	return context.WithValue(ctx, accountCtxKey{}, a)
}

// AccountFromContext retrieves the authenticated account from context, or nil.
func AccountFromContext(ctx context.Context) *Account {
	a, _ := ctx.Value(accountCtxKey{}).(*Account)
	return a
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

// ResultRecord is the persisted outcome of one completed study attempt.
type ResultRecord struct {
	ID          int64     `json:"id"`
	LearnerName string    `json:"learner_name"`
	Username    string    `json:"username"`
	Topic       string    `json:"topic"`
	PreScore    int       `json:"pre_score"`
	PostScore   int       `json:"post_score"`
	MaxScore    int       `json:"max_score"`
	CreatedAt   time.Time `json:"created_at"`
}

// QuizSource selects where quiz items come from.
type QuizSource string

const (
	QuizSourceFixed     QuizSource = "fixed"
	QuizSourceStored    QuizSource = "stored"
	QuizSourceGenerated QuizSource = "generated"
)

// StudyConfig holds runtime study parameters set via CLI flags.
type StudyConfig struct {
	Topics        []string   `validate:"required,min=1,dive,required"`
	QuizSource    QuizSource `validate:"required,oneof=fixed stored generated"`
	QuizCount     int        `validate:"min=1,max=10"` // items per generated quiz
	BasePath      string     // URL prefix for sub-path deployments (e.g. "/study")
	SecureCookies bool       // Set Secure flag on cookies (disable for local dev)
	AllowUpload   bool       // Let signed-in users upload quiz item files
}

// QuizItemImport is used for loading quiz items from JSON.
type QuizItemImport struct {
	Topic    string   `json:"topic"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Answer   string   `json:"answer"`
}
