package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/microlearn/internal/auth"
	appI18n "github.com/pavelanni/microlearn/internal/i18n"
	"github.com/pavelanni/microlearn/internal/lesson"
	"github.com/pavelanni/microlearn/internal/llm"
	"github.com/pavelanni/microlearn/internal/model"
	"github.com/pavelanni/microlearn/internal/quiz"
	"github.com/pavelanni/microlearn/internal/store"
	"github.com/pavelanni/microlearn/internal/workflow"
)

func TestMain(m *testing.M) {
	if err := appI18n.Init("en"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type testApp struct {
	srv      *httptest.Server
	client   *http.Client
	store    *store.Store
	provider *llm.MockProvider
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	s, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	svc, err := auth.NewServiceWithCost(s, bcrypt.MinCost)
	require.NoError(t, err)

	provider := llm.NewMockProvider()
	provider.Fallback = &llm.MockResponse{Content: "Recursion explained..."}
	gen := lesson.NewGenerator(provider, lesson.Config{})
	wf := workflow.New(quiz.NewStoredBank(s, quiz.NewFixedBank()), gen, s, []string{"Recursion", "Sorting"})

	h, err := New(s, svc, workflow.NewManager(wf), model.StudyConfig{
		Topics:      []string{"Recursion", "Sorting"},
		QuizSource:  model.QuizSourceStored,
		QuizCount:   3,
		AllowUpload: true,
	})
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(appI18n.Middleware("en"))
	r.Use(h.BasePathMiddleware)
	h.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &testApp{srv: srv, client: client, store: s, provider: provider}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func (a *testApp) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := a.client.Get(a.srv.URL + path)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

// csrf returns the current CSRF cookie, fetching the login page first if
// there is none yet.
func (a *testApp) csrf(t *testing.T) string {
	t.Helper()
	u, _ := url.Parse(a.srv.URL)
	for _, c := range a.client.Jar.Cookies(u) {
		if c.Name == csrfCookieName {
			return c.Value
		}
	}
	a.get(t, "/login")
	for _, c := range a.client.Jar.Cookies(u) {
		if c.Name == csrfCookieName {
			return c.Value
		}
	}
	t.Fatal("no csrf cookie")
	return ""
}

func (a *testApp) post(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	if form == nil {
		form = url.Values{}
	}
	form.Set("csrf_token", a.csrf(t))
	resp, err := a.client.PostForm(a.srv.URL+path, form)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func (a *testApp) register(t *testing.T, username, password string) {
	t.Helper()
	resp, _ := a.post(t, "/register", url.Values{"username": {username}, "password": {password}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("Location"))
}

func quizForm(t *testing.T, correct ...bool) url.Values {
	t.Helper()
	items, err := quiz.NewFixedBank().ItemsFor(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, correct, len(items))
	form := url.Values{"count": {strconv.Itoa(len(items))}}
	for i, it := range items {
		answer := it.Answer
		if !correct[i] {
			answer = it.Options[0]
			if answer == it.Answer {
				answer = it.Options[1]
			}
		}
		form.Set("q"+strconv.Itoa(i), answer)
	}
	return form
}

func TestRequiresLogin(t *testing.T) {
	app := newTestApp(t)
	for _, path := range []string{"/", "/dashboard", "/quizzes"} {
		resp, _ := app.get(t, path)
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode, path)
		assert.Equal(t, "/login", resp.Header.Get("Location"), path)
	}
}

func TestStudyFlow(t *testing.T) {
	app := newTestApp(t)
	app.register(t, "sam", "hunter22")

	resp, body := app.get(t, "/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Your name")
	assert.Contains(t, body, `<option value="Sorting">`)

	steps := []struct {
		path string
		form url.Values
		want string
	}{
		{"/study/name", url.Values{"name": {"Sam"}, "topic": {"Recursion"}}, "Pre-quiz"},
		{"/study/quiz", quizForm(t, true, false, true), "Pre-quiz score: 2 / 3"},
		{"/study/lesson", nil, "Recursion explained..."},
		{"/study/continue", nil, "Post-quiz"},
		{"/study/quiz", quizForm(t, true, true, true), "Well done, Sam!"},
	}
	for _, step := range steps {
		resp, _ := app.post(t, step.path, step.form)
		require.Equal(t, http.StatusSeeOther, resp.StatusCode, step.path)
		_, body := app.get(t, "/")
		assert.Contains(t, body, step.want, step.path)
	}

	// One lesson request reached the provider.
	assert.Equal(t, 1, app.provider.CallCount())

	resp, _ = app.post(t, "/study/save", nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/dashboard?saved=1", resp.Header.Get("Location"))

	resp, body = app.get(t, "/dashboard?saved=1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Your results were saved.")
	assert.Contains(t, body, "<td>Sam</td>")
	assert.Contains(t, body, "<td>2 / 3</td><td>3 / 3</td>")

	records, err := app.store.ListResultsFor(context.Background(), "sam")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 2, records[0].PreScore)
	assert.Equal(t, 3, records[0].PostScore)

	// The finished session is archived: the next visit starts over.
	_, body = app.get(t, "/")
	assert.Contains(t, body, "Your name")
}

func TestStudyErrors(t *testing.T) {
	app := newTestApp(t)
	app.register(t, "lee", "password")

	resp, body := app.post(t, "/study/save", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, body, "That action is not available at this step.")

	resp, body = app.post(t, "/study/name", url.Values{"name": {"   "}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "Please enter your name.")

	resp, body = app.post(t, "/study/name", url.Values{"name": {"Lee"}, "topic": {"Astrology"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "Please choose one of the offered topics.")

	resp, _ = app.post(t, "/study/name", url.Values{"name": {"Lee"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp, body = app.post(t, "/study/quiz", url.Values{"count": {"2"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "Please answer every question.")

	resp, _ = app.post(t, "/study/quiz", quizForm(t, true, true, true))
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp, body = app.post(t, "/study/continue", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "Generate a lesson before continuing.")

	app.provider.AddResponse(llm.MockResponse{Err: errors.New("upstream down")})
	resp, body = app.post(t, "/study/lesson", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, body, "The lesson could not be generated.")

	// Retrying succeeds.
	resp, _ = app.post(t, "/study/lesson", nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp, _ = app.post(t, "/study/restart", nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	_, body = app.get(t, "/")
	assert.Contains(t, body, "Your name")
}

func TestCSRFRequired(t *testing.T) {
	app := newTestApp(t)
	app.register(t, "sam", "hunter22")

	resp, err := app.client.PostForm(app.srv.URL+"/study/name", url.Values{"name": {"Sam"}})
	require.NoError(t, err)
	readBody(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, err = app.client.PostForm(app.srv.URL+"/study/name", url.Values{"name": {"Sam"}, "csrf_token": {"forged"}})
	require.NoError(t, err)
	readBody(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestLoginAndRegister(t *testing.T) {
	app := newTestApp(t)
	app.register(t, "sam", "hunter22")

	resp, body := app.post(t, "/register", url.Values{"username": {"sam"}, "password": {"another1"}})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, body, "That username is already taken.")

	resp, body = app.post(t, "/register", url.Values{"username": {"x"}, "password": {"1"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "does not meet the rules")

	resp, _ = app.post(t, "/logout", nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	resp, _ = app.get(t, "/")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp, body = app.post(t, "/login", url.Values{"username": {"sam"}, "password": {"wrong-password"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, body, "Invalid username or password.")

	resp, body = app.post(t, "/login", url.Values{"username": {"ghost"}, "password": {"whatever"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, body, "Invalid username or password.")

	resp, _ = app.post(t, "/login", url.Values{"username": {"sam"}, "password": {"hunter22"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	resp, body = app.get(t, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `<span class="user">sam</span>`)
}

func TestDashboardIsPerUser(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	for _, r := range []model.ResultRecord{
		{LearnerName: "Sam", Username: "sam", Topic: "Recursion", PreScore: 1, PostScore: 2, MaxScore: 3},
		{LearnerName: "Lee", Username: "lee", Topic: "Recursion", PreScore: 0, PostScore: 3, MaxScore: 3},
	} {
		_, err := app.store.SaveResult(ctx, r)
		require.NoError(t, err)
	}

	app.register(t, "sam", "hunter22")
	resp, body := app.get(t, "/dashboard")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "<td>Sam</td>")
	assert.NotContains(t, body, "<td>Lee</td>")
	assert.Contains(t, body, "1 saved result.")
}

func TestQuizUpload(t *testing.T) {
	app := newTestApp(t)
	app.register(t, "sam", "hunter22")

	upload := func(name, content string) (*http.Response, string) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("csrf_token", app.csrf(t)))
		fw, err := mw.CreateFormFile("quiz_file", name)
		require.NoError(t, err)
		_, err = io.WriteString(fw, content)
		require.NoError(t, err)
		require.NoError(t, mw.Close())
		resp, err := app.client.Post(app.srv.URL+"/quizzes", mw.FormDataContentType(), &buf)
		require.NoError(t, err)
		return resp, readBody(t, resp)
	}

	items := `[{"topic": "Sorting", "question": "Which sort is stable?", "options": ["A. Merge sort", "B. Heap sort", "C. Quick sort", "D. Selection sort"], "answer": "A. Merge sort"}]`
	resp, body := upload("sorting.json", items)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Imported 1 quiz items.")
	assert.Contains(t, body, "<li>Sorting</li>")

	resp, body = upload("sorting.json", items)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "already imported")

	resp, _ = upload("broken.json", `[{"topic": "Sorting"}]`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// The stored bank now issues the imported item for Sorting.
	resp, _ = app.post(t, "/study/name", url.Values{"name": {"Sam"}, "topic": {"Sorting"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	_, body = app.get(t, "/")
	assert.Contains(t, body, "Which sort is stable?")
	assert.True(t, strings.Contains(body, `name="count" value="1"`))
}
