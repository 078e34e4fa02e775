package handler

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"

	"github.com/pavelanni/microlearn/internal/auth"
	"github.com/pavelanni/microlearn/internal/handler/views"
	appI18n "github.com/pavelanni/microlearn/internal/i18n"
	"github.com/pavelanni/microlearn/internal/model"
)

const (
	sessionCookieName = "session"
	csrfCookieName    = "csrf_token"
)

func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// csrfMiddleware implements double-submit cookies: safe methods get a
// fresh token, unsafe methods must echo the cookie in the csrf_token field.
func (h *Handler) csrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			cookie, err := r.Cookie(csrfCookieName)
			if err != nil || cookie.Value == "" {
				slog.Warn("CSRF cookie missing", "path", r.URL.Path)
				http.Error(w, "csrf token missing", http.StatusForbidden)
				return
			}
			formToken := r.FormValue("csrf_token")
			if formToken == "" {
				slog.Warn("CSRF form token missing", "path", r.URL.Path)
				http.Error(w, "csrf token missing", http.StatusForbidden)
				return
			}
			if subtle.ConstantTimeCompare([]byte(formToken), []byte(cookie.Value)) != 1 {
				slog.Warn("CSRF token mismatch", "path", r.URL.Path)
				http.Error(w, "invalid csrf token", http.StatusForbidden)
				return
			}
		}

		token, err := generateCSRFToken()
		if err != nil {
			slog.Error("failed to generate CSRF token", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     csrfCookieName,
			Value:    token,
			Path:     h.cookiePath(),
			HttpOnly: false,
			Secure:   h.config.SecureCookies,
			SameSite: http.SameSiteLaxMode,
		})
		ctx := model.ContextWithCSRFToken(r.Context(), token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAuth is middleware that checks for a valid session cookie.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil || cookie.Value == "" {
			h.redirectToLogin(w, r)
			return
		}

		authSess, err := h.store.GetAuthSession(r.Context(), cookie.Value)
		if err != nil {
			slog.Error("failed to get auth session", "error", err)
			h.redirectToLogin(w, r)
			return
		}
		if authSess == nil {
			h.redirectToLogin(w, r)
			return
		}

		acc, err := h.store.GetAccountByID(r.Context(), authSess.AccountID)
		if err != nil || acc == nil {
			h.redirectToLogin(w, r)
			return
		}

		ctx := model.ContextWithAccount(r.Context(), acc)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.path("/login"), http.StatusSeeOther)
}

func (h *Handler) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, views.LoginPage(""))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	acc, err := h.auth.Account(r.Context(), r.FormValue("username"), r.FormValue("password"))
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		render(w, r, http.StatusUnauthorized, views.LoginPage(appI18n.T(r.Context(), "LoginError")))
		return
	case err != nil:
		slog.Error("failed to verify credentials", "error", err)
		render(w, r, http.StatusInternalServerError, views.LoginPage(appI18n.T(r.Context(), "ErrInternal")))
		return
	}
	h.startAuthSession(w, r, acc)
}

func (h *Handler) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, views.RegisterPage("", ""))
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	username := r.FormValue("username")
	password := r.FormValue("password")

	err := h.auth.Register(r.Context(), username, password)
	switch {
	case errors.Is(err, auth.ErrUsernameTaken):
		render(w, r, http.StatusConflict, views.RegisterPage(appI18n.T(r.Context(), "UsernameTaken"), username))
		return
	case errors.Is(err, auth.ErrInvalidInput):
		render(w, r, http.StatusBadRequest, views.RegisterPage(appI18n.T(r.Context(), "RegisterInvalid"), username))
		return
	case err != nil:
		slog.Error("failed to register account", "error", err)
		render(w, r, http.StatusInternalServerError, views.RegisterPage(appI18n.T(r.Context(), "ErrInternal"), username))
		return
	}

	acc, err := h.auth.Account(r.Context(), username, password)
	if err != nil {
		slog.Error("failed to load new account", "error", err)
		h.redirectToLogin(w, r)
		return
	}
	h.startAuthSession(w, r, acc)
}

func (h *Handler) startAuthSession(w http.ResponseWriter, r *http.Request, acc *model.Account) {
	token, err := h.store.CreateAuthSession(r.Context(), acc.ID)
	if err != nil {
		slog.Error("failed to create auth session", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     h.cookiePath(),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.config.SecureCookies,
	})
	slog.Info("signed in", "username", acc.Username)
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		_ = h.store.DeleteAuthSession(r.Context(), cookie.Value)
	}
	if acc := model.AccountFromContext(r.Context()); acc != nil {
		h.study.Reset(acc.Username)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     h.cookiePath(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
	})
	http.Redirect(w, r, h.path("/login"), http.StatusSeeOther)
}
