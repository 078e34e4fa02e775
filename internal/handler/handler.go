package handler

import (
	"log/slog"
	"net/http"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/microlearn/internal/auth"
	"github.com/pavelanni/microlearn/internal/model"
	"github.com/pavelanni/microlearn/internal/store"
	"github.com/pavelanni/microlearn/internal/workflow"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store  *store.Store
	auth   *auth.Service
	study  *workflow.Manager
	config model.StudyConfig
}

// New creates a new Handler.
func New(s *store.Store, a *auth.Service, m *workflow.Manager, cfg model.StudyConfig) (*Handler, error) {
	return &Handler{store: s, auth: a, study: m, config: cfg}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.csrfMiddleware)

		r.Get("/login", h.handleLoginPage)
		r.Post("/login", h.handleLogin)
		r.Get("/register", h.handleRegisterPage)
		r.Post("/register", h.handleRegister)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)

			r.Post("/logout", h.handleLogout)
			r.Get("/", h.handleStudyPage)
			r.Route("/study", func(r chi.Router) {
				r.Post("/name", h.handleSubmitName)
				r.Post("/quiz", h.handleSubmitQuiz)
				r.Post("/lesson", h.handleRequestLesson)
				r.Post("/continue", h.handleContinue)
				r.Post("/save", h.handleSave)
				r.Post("/restart", h.handleRestart)
			})
			r.Get("/dashboard", h.handleDashboard)
			if h.config.AllowUpload {
				r.Get("/quizzes", h.handleUploadPage)
				r.Post("/quizzes", h.handleUploadQuizzes)
			}
		})
	})
}

// BasePathMiddleware stores the configured base path in the request context
// for views to build links.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

func render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("render error", "path", r.URL.Path, "error", err)
	}
}
