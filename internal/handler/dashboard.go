package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/pavelanni/microlearn/internal/handler/views"
	appI18n "github.com/pavelanni/microlearn/internal/i18n"
	"github.com/pavelanni/microlearn/internal/model"
	"github.com/pavelanni/microlearn/internal/store"
)

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	acc := model.AccountFromContext(r.Context())
	records, err := h.store.ListResultsFor(r.Context(), acc.Username)
	if err != nil {
		slog.Error("failed to list results", "user", acc.Username, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	notice := ""
	if r.URL.Query().Get("saved") == "1" {
		notice = appI18n.T(r.Context(), "ResultsSaved")
	}
	render(w, r, http.StatusOK, views.DashboardPage(records, notice))
}

func (h *Handler) handleUploadPage(w http.ResponseWriter, r *http.Request) {
	h.renderUpload(w, r, http.StatusOK, "", false)
}

func (h *Handler) handleUploadQuizzes(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		http.Error(w, "file too large", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("quiz_file")
	if err != nil {
		http.Error(w, "no file uploaded", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "failed to read file", http.StatusInternalServerError)
		return
	}

	n, err := h.store.ImportQuizItems(r.Context(), header.Filename, data)
	switch {
	case errors.Is(err, store.ErrAlreadyImported):
		h.renderUpload(w, r, http.StatusOK, appI18n.T(r.Context(), "UploadDuplicate"), false)
	case errors.Is(err, store.ErrImportChanged):
		h.renderUpload(w, r, http.StatusConflict, appI18n.T(r.Context(), "UploadChanged"), true)
	case err != nil:
		slog.Warn("quiz upload rejected", "filename", header.Filename, "error", err)
		h.renderUpload(w, r, http.StatusBadRequest, appI18n.T(r.Context(), "UploadInvalid"), true)
	default:
		acc := model.AccountFromContext(r.Context())
		slog.Info("uploaded quiz items", "filename", header.Filename, "count", n, "user", acc.Username)
		h.renderUpload(w, r, http.StatusOK, appI18n.Td(r.Context(), "UploadDone", map[string]any{"Count": n}), false)
	}
}

func (h *Handler) renderUpload(w http.ResponseWriter, r *http.Request, status int, msg string, isError bool) {
	topics, err := h.store.ListDistinctTopics(r.Context())
	if err != nil {
		slog.Error("failed to list topics", "error", err)
	}
	render(w, r, status, views.UploadPage(topics, msg, isError))
}
