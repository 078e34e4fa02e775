package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"
)

//go:embed templates/*.txt
var templateFS embed.FS

const (
	// LessonMaxWords bounds the generated lesson length.
	LessonMaxWords = 300

	maxTopicRunes = 100
)

var controlRegex = regexp.MustCompile(`[\x00-\x1f\x7f]+`)

var (
	loadOnce       sync.Once
	loadErr        error
	lessonTemplate *template.Template
	quizTemplate   *template.Template
)

// LessonData holds template data for the lesson prompt.
type LessonData struct {
	Topic    string
	MaxWords int
}

// QuizData holds template data for the quiz generation prompt.
type QuizData struct {
	Topic string
	Count int
}

// Load parses prompt templates from fsys. A nil fsys uses the embedded
// templates. Templates are loaded only once per process.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		if fsys == nil {
			fsys = templateFS
		}
		lessonTemplate, loadErr = parse(fsys, "templates/lesson.txt")
		if loadErr != nil {
			return
		}
		quizTemplate, loadErr = parse(fsys, "templates/quiz.txt")
	})
	return loadErr
}

func parse(fsys fs.FS, name string) (*template.Template, error) {
	content, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("read prompt file %s: %w", name, err)
	}
	tmpl, err := template.New(name).Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("parse prompt template %s: %w", name, err)
	}
	return tmpl, nil
}

// BuildLessonPrompt renders the lesson prompt for a topic.
func BuildLessonPrompt(topic string) (string, error) {
	if err := Load(nil); err != nil {
		return "", err
	}
	return execute(lessonTemplate, LessonData{Topic: SanitizeTopic(topic), MaxWords: LessonMaxWords})
}

// BuildQuizPrompt renders the quiz generation prompt for a topic.
func BuildQuizPrompt(topic string, count int) (string, error) {
	if err := Load(nil); err != nil {
		return "", err
	}
	if count < 1 {
		return "", errors.New("quiz prompt needs at least one question")
	}
	return execute(quizTemplate, QuizData{Topic: SanitizeTopic(topic), Count: count})
}

func execute(tmpl *template.Template, data any) (string, error) {
	if tmpl == nil {
		return "", errors.New("templates not initialized: call Load first")
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// SanitizeTopic strips control characters and quotes from a topic and caps
// its length so it cannot restructure the prompt around it.
func SanitizeTopic(topic string) string {
	topic = controlRegex.ReplaceAllString(topic, " ")
	topic = strings.NewReplacer(`"`, "", "`", "").Replace(topic)
	topic = strings.Join(strings.Fields(topic), " ")

	if utf8.RuneCountInString(topic) > maxTopicRunes {
		topic = string([]rune(topic)[:maxTopicRunes])
	}
	return topic
}
