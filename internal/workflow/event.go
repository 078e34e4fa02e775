package workflow

import "slices"

// EventKind names a user action.
type EventKind string

const (
	EventSubmitName    EventKind = "submit_name"
	EventSubmitQuiz    EventKind = "submit_quiz"
	EventRequestLesson EventKind = "request_lesson"
	EventContinue      EventKind = "continue"
	EventSave          EventKind = "save"
)

// Event is one user action fed into Advance. Build it with the
// constructors below.
type Event struct {
	Kind    EventKind
	Name    string
	Topic   string
	Answers []string
}

// SubmitName carries the learner's name and an optional topic. An empty
// topic selects the first configured one.
func SubmitName(name, topic string) Event {
	return Event{Kind: EventSubmitName, Name: name, Topic: topic}
}

// SubmitQuiz carries the chosen option for every issued item, in order.
func SubmitQuiz(answers []string) Event {
	return Event{Kind: EventSubmitQuiz, Answers: slices.Clone(answers)}
}

func RequestLesson() Event { return Event{Kind: EventRequestLesson} }

func Continue() Event { return Event{Kind: EventContinue} }

func Save() Event { return Event{Kind: EventSave} }
