package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/microlearn/internal/auth"
	"github.com/pavelanni/microlearn/internal/handler"
	appI18n "github.com/pavelanni/microlearn/internal/i18n"
	"github.com/pavelanni/microlearn/internal/lesson"
	"github.com/pavelanni/microlearn/internal/llm"
	"github.com/pavelanni/microlearn/internal/model"
	"github.com/pavelanni/microlearn/internal/quiz"
	"github.com/pavelanni/microlearn/internal/store"
	"github.com/pavelanni/microlearn/internal/workflow"
)

const offlineLesson = `Recursion is like a set of nesting dolls: each doll opens to reveal a smaller one until you reach the smallest, which does not open.

Example: factorial(n) returns 1 when n is 0, otherwise n * factorial(n-1).

Common mistake: forgetting the base case, so the calls never stop and the stack overflows.

Tip: write the base case first.`

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP study server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	addDBFlags(f)
	f.String("llm-provider", "openai", "LLM provider (openai, anthropic, gemini, mock)")
	f.String("llm-url", "", "LLM API base URL (empty for the provider default)")
	f.String("llm-key", "", "API key for the LLM provider (or set MICROLEARN_LLM_KEY)")
	f.String("llm-model", "gpt-4", "LLM model name")
	f.Duration("llm-timeout", lesson.DefaultTimeout, "Timeout for one LLM request")
	f.Int("llm-max-tokens", 0, "Max tokens per LLM response (0 = provider default)")
	f.Bool("llm-check", true, "Check the LLM endpoint at startup when the provider supports it")
	f.StringSliceP("topics", "t", []string{model.DefaultTopic}, "Topics offered to learners; the first is the default")
	f.String("quiz-source", string(model.QuizSourceFixed), "Quiz items source (fixed, stored, generated)")
	f.Int("quiz-count", 3, "Items per generated quiz")
	f.StringP("lang", "l", "en", "UI language (en, ru)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /study)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.Bool("allow-upload", false, "Let signed-in users upload quiz item files")
	addLogFlags(f)
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	studyCfg := model.StudyConfig{
		Topics:        normalizeTopics(v.GetStringSlice("topics")),
		QuizSource:    model.QuizSource(strings.ToLower(v.GetString("quiz-source"))),
		QuizCount:     v.GetInt("quiz-count"),
		BasePath:      basePath,
		SecureCookies: v.GetBool("secure-cookies"),
		AllowUpload:   v.GetBool("allow-upload"),
	}
	if err := validator.New().Struct(studyCfg); err != nil {
		return fmt.Errorf("study config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := newProvider(ctx, v)
	if err != nil {
		return err
	}

	bank, err := newBank(studyCfg, db, provider, v.GetDuration("llm-timeout"))
	if err != nil {
		return err
	}
	lessons := lesson.NewGenerator(provider, lesson.Config{
		Timeout:   v.GetDuration("llm-timeout"),
		MaxTokens: v.GetInt("llm-max-tokens"),
	})
	wf := workflow.New(bank, lessons, db, studyCfg.Topics)

	authSvc, err := auth.NewService(db)
	if err != nil {
		return fmt.Errorf("create auth service: %w", err)
	}

	h, err := handler.New(db, authSvc, workflow.NewManager(wf), studyCfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	go cleanupSessions(ctx, db)

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("starting server",
		"addr", addr,
		"llm_provider", v.GetString("llm-provider"),
		"model", provider.ModelID(),
		"lang", lang,
		"topics", studyCfg.Topics,
		"quiz_source", studyCfg.QuizSource,
		"base_path", basePath,
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newProvider(ctx context.Context, v *viper.Viper) (llm.Provider, error) {
	cfg := llm.NewConfig(
		strings.ToLower(v.GetString("llm-provider")),
		v.GetString("llm-key"),
		v.GetString("llm-model"),
		v.GetString("llm-url"),
	)
	p, err := llm.NewProvider(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create LLM provider: %w", err)
	}
	if mock, ok := p.(*llm.MockProvider); ok {
		slog.Warn("using the offline mock LLM provider")
		quizJSON, err := offlineQuiz(ctx)
		if err != nil {
			return nil, err
		}
		mock.Fallback = &llm.MockResponse{Content: offlineLesson}
		mock.SchemaFallback = &llm.MockResponse{Content: quizJSON}
		return p, nil
	}
	if pinger, ok := p.(llm.Pinger); ok && v.GetBool("llm-check") {
		pingCtx, cancel := context.WithTimeout(ctx, v.GetDuration("llm-timeout"))
		defer cancel()
		if err := pinger.Ping(pingCtx); err != nil {
			return nil, fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "provider", cfg.Provider, "model", p.ModelID())
	}
	return p, nil
}

// offlineQuiz renders the built-in quiz as a generated-quiz document so the
// mock provider can serve --quiz-source generated.
func offlineQuiz(ctx context.Context) (string, error) {
	items, err := quiz.NewFixedBank().ItemsFor(ctx, model.DefaultTopic)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(map[string][]quiz.Item{"questions": items})
	if err != nil {
		return "", fmt.Errorf("encode offline quiz: %w", err)
	}
	return string(data), nil
}

func newBank(cfg model.StudyConfig, db *store.Store, p llm.Provider, timeout time.Duration) (quiz.Bank, error) {
	switch cfg.QuizSource {
	case model.QuizSourceFixed:
		return quiz.NewFixedBank(), nil
	case model.QuizSourceStored:
		return quiz.NewStoredBank(db, quiz.NewFixedBank()), nil
	case model.QuizSourceGenerated:
		return quiz.NewGeneratedBank(p, cfg.QuizCount, timeout), nil
	}
	return nil, fmt.Errorf("unknown quiz source %q", cfg.QuizSource)
}

// normalizeTopics trims topics and drops blanks and duplicates.
func normalizeTopics(in []string) []string {
	var out []string
	for _, t := range in {
		t = strings.TrimSpace(t)
		if t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

func cleanupSessions(ctx context.Context, db *store.Store) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := db.CleanupExpiredSessions(ctx); err != nil {
				slog.Warn("failed to clean up expired sessions", "error", err)
			}
		}
	}
}
