// Package workflow drives one learner through the study sequence:
// name, pre-quiz, lesson, post-quiz, results and save.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/pavelanni/microlearn/internal/lesson"
	"github.com/pavelanni/microlearn/internal/model"
	"github.com/pavelanni/microlearn/internal/quiz"
)

// State is a step of the study sequence.
type State string

const (
	StateNameInput State = "name_input"
	StatePreQuiz   State = "pre_quiz"
	StateLesson    State = "lesson"
	StatePostQuiz  State = "post_quiz"
	StateResults   State = "results"
	StateFinished  State = "finished"
)

// MaxNameLength caps the learner name in runes.
const MaxNameLength = 100

// Session is one learner attempt. It is a value: Advance returns a new
// Session and never modifies the one it was given.
type Session struct {
	ID          uuid.UUID
	Username    string
	State       State
	LearnerName string
	Topic       string
	PreScore    int
	PostScore   int
	Lesson      string
	PreItems    []quiz.Item
	PostItems   []quiz.Item
	ResultID    int64
	CreatedAt   time.Time
}

// NewSession starts a fresh attempt for username in StateNameInput.
func NewSession(username string) Session {
	return Session{
		ID:        uuid.New(),
		Username:  username,
		State:     StateNameInput,
		CreatedAt: time.Now(),
	}
}

// MaxScore is the highest score either quiz of the session can reach.
func (s Session) MaxScore() int {
	return max(len(s.PreItems), len(s.PostItems))
}

// LessonProvider produces lesson text for a topic.
type LessonProvider interface {
	Generate(ctx context.Context, topic string) (string, error)
}

// ResultsSaver appends a finished attempt.
type ResultsSaver interface {
	SaveResult(ctx context.Context, r model.ResultRecord) (int64, error)
}

// Workflow holds the collaborators of the state machine. It keeps no
// per-session state and is safe for concurrent use.
type Workflow struct {
	bank    quiz.Bank
	lessons LessonProvider
	results ResultsSaver
	topics  []string
}

// New returns a Workflow. An empty topics list means only model.DefaultTopic.
func New(bank quiz.Bank, lessons LessonProvider, results ResultsSaver, topics []string) *Workflow {
	if len(topics) == 0 {
		topics = []string{model.DefaultTopic}
	}
	return &Workflow{bank: bank, lessons: lessons, results: results, topics: slices.Clone(topics)}
}

// Topics returns the selectable topics; the first one is the default.
func (w *Workflow) Topics() []string {
	return slices.Clone(w.topics)
}

// Advance applies ev to s. On success it returns the next session; on error
// it returns s unchanged together with the error.
func (w *Workflow) Advance(ctx context.Context, s Session, ev Event) (Session, error) {
	next, err := w.apply(ctx, s, ev)
	if err != nil {
		slog.Warn("study transition rejected",
			"session", s.ID, "state", s.State, "event", ev.Kind, "error", err)
		return s, err
	}
	if next.State != s.State {
		slog.Info("study transition",
			"session", s.ID, "user", s.Username, "from", s.State, "to", next.State)
	}
	return next, nil
}

func (w *Workflow) apply(ctx context.Context, s Session, ev Event) (Session, error) {
	switch {
	case s.State == StateNameInput && ev.Kind == EventSubmitName:
		return w.submitName(ctx, s, ev)
	case s.State == StatePreQuiz && ev.Kind == EventSubmitQuiz:
		score, err := scoreAnswers(s.PreItems, ev.Answers)
		if err != nil {
			return s, err
		}
		s.PreScore = score
		s.State = StateLesson
		return s, nil
	case s.State == StateLesson && ev.Kind == EventRequestLesson:
		text, err := w.generateLesson(ctx, s.Topic)
		if err != nil {
			return s, err
		}
		s.Lesson = text
		return s, nil
	case s.State == StateLesson && ev.Kind == EventContinue:
		if s.Lesson == "" {
			return s, &ValidationError{Field: "lesson", Err: errors.New("no lesson has been generated yet")}
		}
		items, err := w.issueItems(ctx, s.Topic)
		if err != nil {
			return s, err
		}
		s.PostItems = items
		s.State = StatePostQuiz
		return s, nil
	case s.State == StatePostQuiz && ev.Kind == EventSubmitQuiz:
		score, err := scoreAnswers(s.PostItems, ev.Answers)
		if err != nil {
			return s, err
		}
		s.PostScore = score
		s.State = StateResults
		return s, nil
	case s.State == StateResults && ev.Kind == EventSave:
		id, err := w.results.SaveResult(ctx, model.ResultRecord{
			LearnerName: s.LearnerName,
			Username:    s.Username,
			Topic:       s.Topic,
			PreScore:    s.PreScore,
			PostScore:   s.PostScore,
			MaxScore:    s.MaxScore(),
			CreatedAt:   time.Now(),
		})
		if err != nil {
			return s, &StorageError{Err: err}
		}
		s.ResultID = id
		s.State = StateFinished
		return s, nil
	}
	return s, &TransitionError{State: s.State, Event: ev.Kind}
}

func (w *Workflow) submitName(ctx context.Context, s Session, ev Event) (Session, error) {
	name := strings.TrimSpace(ev.Name)
	if name == "" {
		return s, &ValidationError{Field: "name", Err: errors.New("must not be empty")}
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return s, &ValidationError{Field: "name", Err: fmt.Errorf("longer than %d characters", MaxNameLength)}
	}
	topic := strings.TrimSpace(ev.Topic)
	if topic == "" {
		topic = w.topics[0]
	}
	if !slices.Contains(w.topics, topic) {
		return s, &ValidationError{Field: "topic", Err: fmt.Errorf("%q is not offered", topic)}
	}
	items, err := w.issueItems(ctx, topic)
	if err != nil {
		return s, err
	}
	s.LearnerName = name
	s.Topic = topic
	s.PreItems = items
	s.State = StatePreQuiz
	return s, nil
}

// issueItems asks the bank for a quiz and treats anything but a valid,
// non-empty item set as a validation error.
func (w *Workflow) issueItems(ctx context.Context, topic string) ([]quiz.Item, error) {
	items, err := w.bank.ItemsFor(ctx, topic)
	if err == nil {
		err = quiz.ValidateItems(items)
	}
	if err != nil {
		if !errors.Is(err, quiz.ErrMalformedItems) {
			err = fmt.Errorf("%w: %v", quiz.ErrMalformedItems, err)
		}
		return nil, &ValidationError{Field: "quiz", Err: err}
	}
	return quiz.Clone(items), nil
}

func (w *Workflow) generateLesson(ctx context.Context, topic string) (string, error) {
	text, err := w.lessons.Generate(ctx, topic)
	if err != nil {
		if errors.Is(err, lesson.ErrGenerationFailed) {
			return "", err
		}
		return "", &lesson.GenerationError{Topic: topic, Err: err}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &lesson.GenerationError{Topic: topic, Err: errors.New("empty lesson")}
	}
	return text, nil
}

func scoreAnswers(items []quiz.Item, answers []string) (int, error) {
	attempt, err := quiz.NewAttempt(items, answers)
	if err != nil {
		return 0, &ValidationError{Field: "answers", Err: err}
	}
	return quiz.Score(attempt), nil
}
