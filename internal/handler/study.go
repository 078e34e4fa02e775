package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/pavelanni/microlearn/internal/handler/views"
	appI18n "github.com/pavelanni/microlearn/internal/i18n"
	"github.com/pavelanni/microlearn/internal/lesson"
	"github.com/pavelanni/microlearn/internal/model"
	"github.com/pavelanni/microlearn/internal/workflow"
)

// maxQuizFields bounds the answer fields read from a quiz form.
const maxQuizFields = 50

func (h *Handler) handleStudyPage(w http.ResponseWriter, r *http.Request) {
	acc := model.AccountFromContext(r.Context())
	s := h.study.Current(acc.Username)
	render(w, r, http.StatusOK, views.StudyPage(h.study.Workflow().View(s), ""))
}

func (h *Handler) handleSubmitName(w http.ResponseWriter, r *http.Request) {
	h.advance(w, r, workflow.SubmitName(r.FormValue("name"), r.FormValue("topic")))
}

func (h *Handler) handleSubmitQuiz(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.FormValue("count"))
	if err != nil || n < 0 || n > maxQuizFields {
		n = 0
	}
	answers := make([]string, n)
	for i := range answers {
		answers[i] = r.FormValue("q" + strconv.Itoa(i))
	}
	h.advance(w, r, workflow.SubmitQuiz(answers))
}

func (h *Handler) handleRequestLesson(w http.ResponseWriter, r *http.Request) {
	h.advance(w, r, workflow.RequestLesson())
}

func (h *Handler) handleContinue(w http.ResponseWriter, r *http.Request) {
	h.advance(w, r, workflow.Continue())
}

func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	h.advance(w, r, workflow.Save())
}

func (h *Handler) handleRestart(w http.ResponseWriter, r *http.Request) {
	acc := model.AccountFromContext(r.Context())
	h.study.Start(acc.Username)
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}

// advance feeds one event into the user's session. Success redirects so a
// reload does not resubmit; failure re-renders the unchanged step with a
// message.
func (h *Handler) advance(w http.ResponseWriter, r *http.Request, ev workflow.Event) {
	acc := model.AccountFromContext(r.Context())
	s, err := h.study.Advance(r.Context(), acc.Username, ev)
	if err != nil {
		status, msg := studyError(r.Context(), err)
		if status >= http.StatusInternalServerError {
			slog.Error("study step failed", "user", acc.Username, "event", ev.Kind, "error", err)
		}
		render(w, r, status, views.StudyPage(h.study.Workflow().View(s), msg))
		return
	}
	if s.State == workflow.StateFinished {
		http.Redirect(w, r, h.path("/dashboard?saved=1"), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}

// studyError maps a workflow error to a status code and a localized message.
func studyError(ctx context.Context, err error) (int, string) {
	var ve *workflow.ValidationError
	switch {
	case errors.As(err, &ve):
		msg := map[string]string{
			"name":    "ErrName",
			"topic":   "ErrTopic",
			"answers": "ErrAnswers",
			"lesson":  "ErrNoLesson",
		}[ve.Field]
		if msg == "" {
			msg = "ErrQuiz"
		}
		return http.StatusBadRequest, appI18n.T(ctx, msg)
	case errors.Is(err, lesson.ErrGenerationFailed):
		return http.StatusBadGateway, appI18n.T(ctx, "ErrLesson")
	case errors.Is(err, workflow.ErrStorageFailure):
		return http.StatusInternalServerError, appI18n.T(ctx, "ErrStorage")
	case errors.Is(err, workflow.ErrInvalidTransition):
		return http.StatusConflict, appI18n.T(ctx, "ErrTransition")
	case errors.Is(err, workflow.ErrBusy):
		return http.StatusTooManyRequests, appI18n.T(ctx, "ErrBusy")
	}
	return http.StatusInternalServerError, appI18n.T(ctx, "ErrInternal")
}
