package workflow

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/microlearn/internal/quiz"
)

// blockingLessons holds Generate until release is closed.
type blockingLessons struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingLessons) Generate(ctx context.Context, topic string) (string, error) {
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
		return "lesson on " + topic, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestManagerCurrentIsStable(t *testing.T) {
	m := NewManager(newTestWorkflow(&fakeLessons{}, &fakeResults{}))

	a := m.Current("sam")
	b := m.Current("sam")
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, StateNameInput, a.State)

	other := m.Current("lee")
	assert.NotEqual(t, a.ID, other.ID)
}

func TestManagerAdvanceStoresSession(t *testing.T) {
	m := NewManager(newTestWorkflow(&fakeLessons{}, &fakeResults{}))
	ctx := context.Background()

	s, err := m.Advance(ctx, "sam", SubmitName("Sam", ""))
	require.NoError(t, err)
	assert.Equal(t, StatePreQuiz, s.State)
	assert.Equal(t, StatePreQuiz, m.Current("sam").State)

	// Rejected events leave the stored session alone.
	_, err = m.Advance(ctx, "sam", Save())
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatePreQuiz, m.Current("sam").State)
}

func TestManagerArchivesFinished(t *testing.T) {
	results := &fakeResults{}
	m := NewManager(newTestWorkflow(&fakeLessons{}, results))
	ctx := context.Background()

	first := m.Current("sam")
	s, err := m.Advance(ctx, "sam", SubmitName("Sam", ""))
	require.NoError(t, err)
	steps := []func(Session) Event{
		func(s Session) Event { return SubmitQuiz(allCorrect(s.PreItems)) },
		func(Session) Event { return RequestLesson() },
		func(Session) Event { return Continue() },
		func(s Session) Event { return SubmitQuiz(allCorrect(s.PostItems)) },
		func(Session) Event { return Save() },
	}
	for _, step := range steps {
		s, err = m.Advance(ctx, "sam", step(s))
		require.NoError(t, err)
	}
	assert.Equal(t, StateFinished, s.State)
	assert.Len(t, results.records, 1)

	fresh := m.Current("sam")
	assert.NotEqual(t, first.ID, fresh.ID)
	assert.Equal(t, StateNameInput, fresh.State)
}

func TestManagerBusyGuard(t *testing.T) {
	lessons := &blockingLessons{started: make(chan struct{}), release: make(chan struct{})}
	wf := New(quiz.NewFixedBank(), lessons, &fakeResults{}, nil)
	m := NewManager(wf)
	ctx := context.Background()

	s, err := m.Advance(ctx, "sam", SubmitName("Sam", ""))
	require.NoError(t, err)
	_, err = m.Advance(ctx, "sam", SubmitQuiz(allCorrect(s.PreItems)))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := m.Advance(ctx, "sam", RequestLesson())
		done <- err
	}()
	<-lessons.started

	assert.True(t, m.Busy("sam"))
	_, err = m.Advance(ctx, "sam", Continue())
	require.ErrorIs(t, err, ErrBusy)

	// Other users are not blocked.
	_, err = m.Advance(ctx, "lee", SubmitName("Lee", ""))
	require.NoError(t, err)

	close(lessons.release)
	require.NoError(t, <-done)
	assert.False(t, m.Busy("sam"))
	assert.Equal(t, "lesson on Recursion", m.Current("sam").Lesson)
}

func TestManagerStartDiscardsInflightResult(t *testing.T) {
	lessons := &blockingLessons{started: make(chan struct{}), release: make(chan struct{})}
	m := NewManager(New(quiz.NewFixedBank(), lessons, &fakeResults{}, nil))
	ctx := context.Background()

	s, err := m.Advance(ctx, "sam", SubmitName("Sam", ""))
	require.NoError(t, err)
	_, err = m.Advance(ctx, "sam", SubmitQuiz(allCorrect(s.PreItems)))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = m.Advance(ctx, "sam", RequestLesson())
	}()
	<-lessons.started

	restarted := m.Start("sam")
	close(lessons.release)
	<-done

	cur := m.Current("sam")
	assert.Equal(t, restarted.ID, cur.ID)
	assert.Equal(t, StateNameInput, cur.State)
	assert.Empty(t, cur.Lesson)
}

func TestManagerReset(t *testing.T) {
	m := NewManager(newTestWorkflow(&fakeLessons{}, &fakeResults{}))
	_, err := m.Advance(context.Background(), "sam", SubmitName("Sam", ""))
	require.NoError(t, err)

	m.Reset("sam")
	assert.Equal(t, StateNameInput, m.Current("sam").State)
	assert.False(t, m.Busy("nobody"))
}
