package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pavelanni/microlearn/internal/model"
	"github.com/pavelanni/microlearn/internal/quiz"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testItem(question string) quiz.Item {
	return quiz.Item{
		Question: question,
		Options:  []string{"a", "b", "c", "d"},
		Answer:   "b",
	}
}

func TestMigrateIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.CreateAccount(ctx, "sam", "hash"); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	count, err := s.AccountCount(ctx)
	if err != nil {
		t.Fatalf("AccountCount: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 account after re-migrate, got %d", count)
	}
}

func TestAccounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.GetAccountByUsername(ctx, "sam")
	if err != nil {
		t.Fatalf("GetAccountByUsername: %v", err)
	}
	if a != nil {
		t.Fatalf("expected nil for missing account, got %+v", a)
	}

	id, err := s.CreateAccount(ctx, "sam", "hash-1")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	a, err = s.GetAccountByUsername(ctx, "sam")
	if err != nil {
		t.Fatalf("GetAccountByUsername: %v", err)
	}
	if a == nil || a.ID != id || a.PasswordHash != "hash-1" {
		t.Fatalf("unexpected account %+v", a)
	}
	if a.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}

	byID, err := s.GetAccountByID(ctx, id)
	if err != nil {
		t.Fatalf("GetAccountByID: %v", err)
	}
	if byID == nil || byID.Username != "sam" {
		t.Errorf("expected sam, got %+v", byID)
	}

	// Duplicate username leaves the original row untouched.
	_, err = s.CreateAccount(ctx, "sam", "hash-2")
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	a, _ = s.GetAccountByUsername(ctx, "sam")
	if a.PasswordHash != "hash-1" {
		t.Errorf("expected original hash, got %q", a.PasswordHash)
	}
	count, _ := s.AccountCount(ctx)
	if count != 1 {
		t.Errorf("expected 1 account, got %d", count)
	}
}

func TestAuthSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateAccount(ctx, "lee", "hash")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	token, err := s.CreateAuthSession(ctx, id)
	if err != nil {
		t.Fatalf("CreateAuthSession: %v", err)
	}
	if len(token) != 64 {
		t.Errorf("expected 64-char token, got %d", len(token))
	}

	sess, err := s.GetAuthSession(ctx, token)
	if err != nil {
		t.Fatalf("GetAuthSession: %v", err)
	}
	if sess == nil || sess.AccountID != id {
		t.Fatalf("unexpected session %+v", sess)
	}
	if !sess.ExpiresAt.After(sess.CreatedAt) {
		t.Errorf("expected expiry after creation")
	}

	if err := s.DeleteAuthSession(ctx, token); err != nil {
		t.Fatalf("DeleteAuthSession: %v", err)
	}
	sess, err = s.GetAuthSession(ctx, token)
	if err != nil {
		t.Fatalf("GetAuthSession after delete: %v", err)
	}
	if sess != nil {
		t.Error("expected nil session after delete")
	}

	// Unknown token.
	sess, err = s.GetAuthSession(ctx, "nope")
	if err != nil || sess != nil {
		t.Errorf("expected nil, nil for unknown token, got %+v, %v", sess, err)
	}

	if err := s.CleanupExpiredSessions(ctx); err != nil {
		t.Errorf("CleanupExpiredSessions: %v", err)
	}
}

func TestResults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	list, err := s.ListResultsFor(ctx, "sam")
	if err != nil {
		t.Fatalf("ListResultsFor: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected no results, got %d", len(list))
	}

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	records := []model.ResultRecord{
		{LearnerName: "Sam", Username: "sam", Topic: "Recursion", PreScore: 1, PostScore: 3, MaxScore: 3, CreatedAt: base},
		{LearnerName: "Lee", Username: "lee", Topic: "Recursion", PreScore: 0, PostScore: 2, MaxScore: 3, CreatedAt: base.Add(time.Minute)},
		{LearnerName: "Sam", Username: "sam", Topic: "Sorting", PreScore: 2, PostScore: 2, MaxScore: 3, CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, r := range records {
		if _, err := s.SaveResult(ctx, r); err != nil {
			t.Fatalf("SaveResult: %v", err)
		}
	}

	list, err = s.ListResultsFor(ctx, "sam")
	if err != nil {
		t.Fatalf("ListResultsFor: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 results for sam, got %d", len(list))
	}
	if list[0].Topic != "Sorting" || list[1].Topic != "Recursion" {
		t.Errorf("expected newest first, got %q then %q", list[0].Topic, list[1].Topic)
	}
	if list[1].PreScore != 1 || list[1].PostScore != 3 || list[1].MaxScore != 3 {
		t.Errorf("unexpected scores %+v", list[1])
	}
	if !list[1].CreatedAt.Equal(base) {
		t.Errorf("expected created_at %v, got %v", base, list[1].CreatedAt)
	}

	lee, _ := s.ListResultsFor(ctx, "lee")
	if len(lee) != 1 || lee[0].LearnerName != "Lee" {
		t.Errorf("expected one result for lee, got %+v", lee)
	}

	// Scores above the maximum are rejected by the table constraint.
	_, err = s.SaveResult(ctx, model.ResultRecord{LearnerName: "X", Username: "x", PreScore: 4, PostScore: 0, MaxScore: 3})
	if err == nil {
		t.Error("expected error for pre_score above max_score")
	}
}

func TestExportResultsFor(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	exp, err := s.ExportResultsFor(ctx, "nobody")
	if err != nil {
		t.Fatalf("ExportResultsFor: %v", err)
	}
	if exp.Count != 0 || exp.Results == nil {
		t.Errorf("expected empty non-nil results, got %+v", exp)
	}

	if _, err := s.SaveResult(ctx, model.ResultRecord{LearnerName: "Sam", Username: "sam", PreScore: 1, PostScore: 2, MaxScore: 3}); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	exp, err = s.ExportResultsFor(ctx, "sam")
	if err != nil {
		t.Fatalf("ExportResultsFor: %v", err)
	}
	if exp.Username != "sam" || exp.Count != 1 || len(exp.Results) != 1 {
		t.Errorf("unexpected export %+v", exp)
	}
}

func TestImportedFileHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Missing file returns empty string.
	hash, err := s.GetImportedFileHash(ctx, "/some/path.json")
	if err != nil {
		t.Fatalf("GetImportedFileHash: %v", err)
	}
	if hash != "" {
		t.Errorf("expected empty hash, got %q", hash)
	}

	if err := s.SetImportedFileHash(ctx, "/some/path.json", "abc123"); err != nil {
		t.Fatalf("SetImportedFileHash: %v", err)
	}
	hash, _ = s.GetImportedFileHash(ctx, "/some/path.json")
	if hash != "abc123" {
		t.Errorf("expected 'abc123', got %q", hash)
	}

	// Update existing.
	if err := s.SetImportedFileHash(ctx, "/some/path.json", "def456"); err != nil {
		t.Fatalf("SetImportedFileHash update: %v", err)
	}
	hash, _ = s.GetImportedFileHash(ctx, "/some/path.json")
	if hash != "def456" {
		t.Errorf("expected 'def456', got %q", hash)
	}
}

func TestQuizItems(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	topics, err := s.ListDistinctTopics(ctx)
	if err != nil {
		t.Fatalf("ListDistinctTopics: %v", err)
	}
	if len(topics) != 0 {
		t.Errorf("expected 0 topics, got %d", len(topics))
	}

	for _, tc := range []struct{ topic, q string }{
		{"sorting", "Q1"},
		{"recursion", "Q2"},
		{"recursion", "Q3"},
	} {
		if _, err := s.InsertQuizItem(ctx, tc.topic, testItem(tc.q)); err != nil {
			t.Fatalf("InsertQuizItem: %v", err)
		}
	}

	items, err := s.ListQuizItems(ctx, "recursion")
	if err != nil {
		t.Fatalf("ListQuizItems: %v", err)
	}
	if len(items) != 2 || items[0].Question != "Q2" || items[1].Question != "Q3" {
		t.Fatalf("expected [Q2 Q3] in import order, got %+v", items)
	}
	if items[0].Answer != "b" || len(items[0].Options) != quiz.OptionsPerItem {
		t.Errorf("unexpected item %+v", items[0])
	}

	topics, _ = s.ListDistinctTopics(ctx)
	if len(topics) != 2 || topics[0] != "recursion" || topics[1] != "sorting" {
		t.Errorf("expected [recursion sorting], got %v", topics)
	}
	count, _ := s.QuizItemCount(ctx)
	if count != 3 {
		t.Errorf("expected 3 items, got %d", count)
	}

	bad := testItem("Q4")
	bad.Answer = "z"
	if _, err := s.InsertQuizItem(ctx, "recursion", bad); err == nil {
		t.Error("expected error for answer outside options")
	}
}

func TestRebind(t *testing.T) {
	pg := &Store{driver: DriverPostgres}
	got := pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?")
	if got != "SELECT a FROM t WHERE x = $1 AND y = $2" {
		t.Errorf("unexpected postgres query %q", got)
	}
	lite := &Store{driver: DriverSQLite}
	if q := lite.rebind("x = ?"); q != "x = ?" {
		t.Errorf("sqlite query should be unchanged, got %q", q)
	}
}

func TestConfig(t *testing.T) {
	pg := Config{Driver: DriverPostgres, Host: "db", Port: 5432, Name: "microlearn", User: "app", Password: "s3cret", SSLMode: "disable"}
	dsn := pg.DSN()
	if !strings.HasPrefix(dsn, "postgres://app:s3cret@db:5432/microlearn") || !strings.Contains(dsn, "sslmode=disable") {
		t.Errorf("unexpected dsn %q", dsn)
	}

	lite := Config{Driver: DriverSQLite, Path: "x.db"}
	if !strings.HasPrefix(lite.DSN(), "x.db?") {
		t.Errorf("unexpected sqlite dsn %q", lite.DSN())
	}

	tests := []struct {
		name string
		cfg  Config
	}{
		{"unknown driver", Config{Driver: "mysql", Path: "x"}},
		{"sqlite without path", Config{Driver: DriverSQLite}},
		{"postgres without host", Config{Driver: DriverPostgres, Name: "n", User: "u"}},
		{"bad sslmode", Config{Driver: DriverPostgres, Host: "h", Name: "n", User: "u", SSLMode: "maybe"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Open(tc.cfg); err == nil {
				t.Error("expected config error")
			}
		})
	}
}

func TestImportQuizItems(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	data := []byte(`[
		{"topic": "Sorting", "question": "Which sort is stable?", "options": ["A. Merge sort", "B. Heap sort", "C. Quick sort", "D. Selection sort"], "answer": "A. Merge sort"},
		{"topic": "Sorting", "question": "Best case of insertion sort?", "options": ["A. O(n)", "B. O(n log n)", "C. O(n^2)", "D. O(1)"], "answer": "A. O(n)"}
	]`)

	n, err := s.ImportQuizItems(ctx, "sorting.json", data)
	if err != nil {
		t.Fatalf("ImportQuizItems: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 imported, got %d", n)
	}

	// Same content is skipped.
	if _, err := s.ImportQuizItems(ctx, "sorting.json", data); !errors.Is(err, ErrAlreadyImported) {
		t.Errorf("expected ErrAlreadyImported, got %v", err)
	}
	// Changed content under the same name is refused.
	if _, err := s.ImportQuizItems(ctx, "sorting.json", append([]byte(" "), data...)); !errors.Is(err, ErrImportChanged) {
		t.Errorf("expected ErrImportChanged, got %v", err)
	}
	count, _ := s.QuizItemCount(ctx)
	if count != 2 {
		t.Errorf("expected 2 items, got %d", count)
	}

	tests := []struct {
		name string
		data string
	}{
		{"not json", `{`},
		{"empty list", `[]`},
		{"missing topic", `[{"question": "Q", "options": ["a","b","c","d"], "answer": "a"}]`},
		{"answer not an option", `[{"topic": "T", "question": "Q", "options": ["a","b","c","d"], "answer": "e"}]`},
		{"three options", `[{"topic": "T", "question": "Q", "options": ["a","b","c"], "answer": "a"}]`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := s.ImportQuizItems(ctx, tc.name+".json", []byte(tc.data)); err == nil {
				t.Error("expected error")
			}
			hash, _ := s.GetImportedFileHash(ctx, tc.name+".json")
			if hash != "" {
				t.Errorf("failed import must not be recorded, got hash %q", hash)
			}
		})
	}
	count, _ = s.QuizItemCount(ctx)
	if count != 2 {
		t.Errorf("failed imports must not insert items, got %d", count)
	}
}

func TestImportQuizItemsRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Reject the second row so the import fails after the first insert.
	if _, err := s.db.ExecContext(ctx, `CREATE TRIGGER reject_item BEFORE INSERT ON quiz_items
		WHEN NEW.question = 'Second?' BEGIN SELECT RAISE(ABORT, 'rejected'); END`); err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	data := []byte(`[
		{"topic": "Sorting", "question": "First?", "options": ["A", "B", "C", "D"], "answer": "A"},
		{"topic": "Sorting", "question": "Second?", "options": ["A", "B", "C", "D"], "answer": "B"}
	]`)
	if _, err := s.ImportQuizItems(ctx, "sorting.json", data); err == nil {
		t.Fatal("expected error from rejected insert")
	}
	count, err := s.QuizItemCount(ctx)
	if err != nil {
		t.Fatalf("QuizItemCount: %v", err)
	}
	if count != 0 {
		t.Errorf("expected no items after failed import, got %d", count)
	}
	if hash, _ := s.GetImportedFileHash(ctx, "sorting.json"); hash != "" {
		t.Errorf("failed import must not be recorded, got hash %q", hash)
	}

	// A retry after the cause is gone imports each item exactly once.
	if _, err := s.db.ExecContext(ctx, `DROP TRIGGER reject_item`); err != nil {
		t.Fatalf("drop trigger: %v", err)
	}
	n, err := s.ImportQuizItems(ctx, "sorting.json", data)
	if err != nil {
		t.Fatalf("retry ImportQuizItems: %v", err)
	}
	count, _ = s.QuizItemCount(ctx)
	if n != 2 || count != 2 {
		t.Errorf("expected 2 imported and stored, got %d and %d", n, count)
	}
}
