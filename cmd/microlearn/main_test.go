package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/microlearn/internal/llm"
	"github.com/pavelanni/microlearn/internal/model"
	"github.com/pavelanni/microlearn/internal/quiz"
	"github.com/pavelanni/microlearn/internal/store"
)

func TestNormalizeTopics(t *testing.T) {
	got := normalizeTopics([]string{" Recursion ", "", "Sorting", "Recursion", "  "})
	assert.Equal(t, []string{"Recursion", "Sorting"}, got)
	assert.Empty(t, normalizeTopics(nil))
}

func TestNewBank(t *testing.T) {
	db, err := store.New(":memory:")
	require.NoError(t, err)
	defer db.Close()
	p := llm.NewMockProvider()

	tests := []struct {
		source model.QuizSource
		want   any
	}{
		{model.QuizSourceFixed, &quiz.FixedBank{}},
		{model.QuizSourceStored, &quiz.StoredBank{}},
		{model.QuizSourceGenerated, &quiz.GeneratedBank{}},
	}
	for _, tc := range tests {
		bank, err := newBank(model.StudyConfig{QuizSource: tc.source, QuizCount: 3}, db, p, time.Second)
		require.NoError(t, err)
		assert.IsType(t, tc.want, bank)
	}

	_, err = newBank(model.StudyConfig{QuizSource: "random"}, db, p, time.Second)
	assert.Error(t, err)
}

func TestMockProviderServesGeneratedQuiz(t *testing.T) {
	v := viper.New()
	v.Set("llm-provider", "mock")
	ctx := context.Background()

	p, err := newProvider(ctx, v)
	require.NoError(t, err)

	items, err := quiz.NewGeneratedBank(p, 3, time.Second).ItemsFor(ctx, "Recursion")
	require.NoError(t, err)
	assert.Len(t, items, 3)

	resp, err := p.Generate(ctx, llm.UserPrompt("Explain recursion", 0.7))
	require.NoError(t, err)
	assert.Equal(t, offlineLesson, resp.Content)
}

func TestImportQuizFiles(t *testing.T) {
	db, err := store.New(":memory:")
	require.NoError(t, err)
	defer db.Close()

	path := filepath.Join(t.TempDir(), "recursion.json")
	content := `[{"topic": "Recursion", "question": "What stops recursion?", "options": ["A. A loop", "B. The base case", "C. A variable", "D. Nothing"], "answer": "B. The base case"}]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	ctx := context.Background()
	require.NoError(t, importQuizFiles(ctx, db, []string{path}))
	// A second run skips the unchanged file.
	require.NoError(t, importQuizFiles(ctx, db, []string{path}))

	count, err := db.QuizItemCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	assert.Error(t, importQuizFiles(ctx, db, []string{filepath.Join(t.TempDir(), "missing.json")}))
}

func TestRootCommands(t *testing.T) {
	root := rootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "init-db", "register", "import-quiz", "results"} {
		assert.True(t, names[want], "missing command %s", want)
	}
	assert.NotNil(t, root.Flags().Lookup("quiz-source"))
}
