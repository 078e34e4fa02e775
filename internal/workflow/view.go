package workflow

import "slices"

// ItemView is a quiz item as shown to the learner, without its answer.
type ItemView struct {
	Question string
	Options  []string
}

// View is what the UI renders for a session.
type View struct {
	SessionID   string
	State       State
	LearnerName string
	Topic       string
	Topics      []string
	Items       []ItemView
	PreScore    int
	PostScore   int
	MaxScore    int
	Lesson      string
	CanContinue bool
}

// View projects s for rendering.
func (w *Workflow) View(s Session) View {
	v := View{
		SessionID:   s.ID.String(),
		State:       s.State,
		LearnerName: s.LearnerName,
		Topic:       s.Topic,
		Topics:      w.Topics(),
		PreScore:    s.PreScore,
		PostScore:   s.PostScore,
		MaxScore:    s.MaxScore(),
		Lesson:      s.Lesson,
		CanContinue: s.State == StateLesson && s.Lesson != "",
	}
	switch s.State {
	case StatePreQuiz, StatePostQuiz:
		v.Items = itemViews(s)
	}
	return v
}

func itemViews(s Session) []ItemView {
	items := s.PreItems
	if s.State == StatePostQuiz {
		items = s.PostItems
	}
	out := make([]ItemView, len(items))
	for i, it := range items {
		out[i] = ItemView{Question: it.Question, Options: slices.Clone(it.Options)}
	}
	return out
}
