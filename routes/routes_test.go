package routes

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mbolis/quick-survey/app"
	"github.com/mbolis/quick-survey/catalog"
	"github.com/mbolis/quick-survey/config"
	"github.com/mbolis/quick-survey/database"
	"github.com/mbolis/quick-survey/httpx"
	"github.com/mbolis/quick-survey/log"
	"github.com/mbolis/quick-survey/routes/middlewares"
)

const (
	adminUser     = "admin"
	adminPassword = "s3cret"
)

func init() {
	log.SetOutput(io.Discard)
}

type testServer struct {
	db      *sql.DB
	handler http.Handler
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	sets, err := catalog.EmbeddedSeeds()
	if err != nil {
		t.Fatalf("load seeds: %v", err)
	}
	if err := catalog.Seed(ctx, db, sets...); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := httpx.SetPassword(ctx, db, adminUser, adminPassword); err != nil {
		t.Fatalf("set password: %v", err)
	}

	cfg := config.Config{TokenSecret: "test-secret", TokenTTL: time.Minute}
	return testServer{db: db, handler: Wire(app.New(db, cfg))}
}

func (s testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s testServer) post(form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("content-type", "application/x-www-form-urlencoded")
	return s.do(req)
}

func (s testServer) login(t *testing.T) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/login", nil)
	req.SetBasicAuth(adminUser, adminPassword)
	rec := s.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: status %d, body %q", rec.Code, rec.Body.String())
	}
	return rec
}

func (s testServer) accessToken(t *testing.T) string {
	t.Helper()
	var tokens struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(s.login(t).Body.Bytes(), &tokens); err != nil {
		t.Fatalf("decode tokens: %v", err)
	}
	return tokens.AccessToken
}

func (s testServer) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	if err := s.db.QueryRow(`SELECT count(*) FROM ` + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestSurveyFormRendersActiveQuestions(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	if ct := rec.Header().Get("content-type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type: got %q", ct)
	}

	body := rec.Body.String()
	for _, want := range []string{
		`name="respondent_name"`,
		`name="respondent_email"`,
		`name="respondent_role" value="all" checked`,
		`name="question_1" value="student"`,
		`name="question_4"`,
		`name="question_8"`,
		`placeholder="Share as much detail as you can..."`,
		"Builders only",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("form is missing %q", want)
		}
	}
}

func TestSurveyFormWithoutQuestions(t *testing.T) {
	s := newTestServer(t)
	if _, err := s.db.Exec(`UPDATE question SET is_active = 0`); err != nil {
		t.Fatal(err)
	}

	rec := s.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "There are no questions to answer right now.") {
		t.Errorf("missing empty catalog notice")
	}
	if strings.Contains(body, "<form") {
		t.Errorf("form rendered for an empty catalog")
	}
}

func TestSubmitGeneralRespondent(t *testing.T) {
	s := newTestServer(t)

	rec := s.post(url.Values{
		"respondent_name": {"Alex"},
		"respondent_role": {"all"},
		"question_1":      {"student"},
	})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status: got %d, body %q", rec.Code, rec.Body.String())
	}
	if loc := rec.Header().Get("location"); loc != "/thanks/" {
		t.Errorf("location: got %q", loc)
	}

	var name, role string
	err := s.db.QueryRow(`SELECT respondent_name, respondent_role FROM survey_response`).Scan(&name, &role)
	if err != nil {
		t.Fatalf("stored response: %v", err)
	}
	if name != "Alex" || role != "all" {
		t.Errorf("stored response: got (%q, %q)", name, role)
	}

	var answer string
	err = s.db.QueryRow(`SELECT answer_text FROM survey_answer WHERE question_id = 1`).Scan(&answer)
	if err != nil {
		t.Fatalf("stored answer: %v", err)
	}
	if answer != "Student" {
		t.Errorf("answer: got %q, want the option label", answer)
	}
	if n := s.count(t, "survey_answer"); n != 1 {
		t.Errorf("answers: got %d, want 1", n)
	}
}

func TestSubmitBuilderMissingBuilderAnswers(t *testing.T) {
	s := newTestServer(t)

	rec := s.post(url.Values{
		"respondent_name": {"Sam"},
		"respondent_role": {"all"},
		"question_1":      {"developer"},
		"question_4":      {"Fewer passwords"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}

	body := rec.Body.String()
	if !strings.Contains(body, bannerInvalid) {
		t.Errorf("missing validation banner")
	}
	for _, field := range []string{"field_question_5", "field_question_7"} {
		i := strings.Index(body, `id="`+field+`"`)
		if i < 0 {
			t.Fatalf("missing %s", field)
		}
		rest := body[i:]
		if end := strings.Index(rest[1:], `<div class="field"`); end > 0 {
			rest = rest[:end]
		}
		if !strings.Contains(rest, "This question is required for builders.") {
			t.Errorf("%s: missing builder error", field)
		}
	}
	if !strings.Contains(body, `value="Sam"`) {
		t.Errorf("entered name not preserved")
	}
	if !strings.Contains(body, "Fewer passwords") {
		t.Errorf("entered answer not preserved")
	}

	if n := s.count(t, "survey_response"); n != 0 {
		t.Errorf("responses: got %d, want 0", n)
	}
	if n := s.count(t, "survey_answer"); n != 0 {
		t.Errorf("answers: got %d, want 0", n)
	}
}

func TestSubmitInvalidEmail(t *testing.T) {
	s := newTestServer(t)

	rec := s.post(url.Values{
		"respondent_email": {"not-an-email"},
		"respondent_role":  {"all"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Enter a valid email address.") {
		t.Errorf("missing email error")
	}
	if n := s.count(t, "survey_response"); n != 0 {
		t.Errorf("responses: got %d, want 0", n)
	}
}

func TestSubmitTwiceCreatesTwoResponses(t *testing.T) {
	s := newTestServer(t)
	form := url.Values{
		"respondent_role": {"all"},
		"question_1":      {"student"},
		"question_8":      {"More passkeys please"},
	}

	for i := 0; i < 2; i++ {
		if rec := s.post(form); rec.Code != http.StatusSeeOther {
			t.Fatalf("post %d: status %d", i, rec.Code)
		}
	}

	if n := s.count(t, "survey_response"); n != 2 {
		t.Errorf("responses: got %d, want 2", n)
	}
	if n := s.count(t, "survey_answer"); n != 4 {
		t.Errorf("answers: got %d, want 4", n)
	}
}

func TestSubmitSaveFailure(t *testing.T) {
	s := newTestServer(t)
	_, err := s.db.Exec(`
		CREATE TRIGGER reject_responses BEFORE INSERT ON survey_response
		BEGIN SELECT RAISE(ABORT, 'rejected'); END`)
	if err != nil {
		t.Fatal(err)
	}

	rec := s.post(url.Values{
		"respondent_name": {"Alex"},
		"respondent_role": {"all"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, bannerSaveError) {
		t.Errorf("missing save error banner")
	}
	if !strings.Contains(body, `value="Alex"`) {
		t.Errorf("entered name not preserved")
	}
}

func TestThankYou(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/thanks/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Thanks for sharing! Your responses were saved successfully.") {
		t.Errorf("missing confirmation")
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var got map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(map[string]string{"status": "ok"}, got); diff != "" {
		t.Errorf("health (-want +got):\n%s", diff)
	}
}

func TestAdminRequiresToken(t *testing.T) {
	s := newTestServer(t)

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/api/admin/questions", nil),
		httptest.NewRequest(http.MethodDelete, "/api/admin/responses/1", nil),
		httptest.NewRequest(http.MethodGet, "/api/admin/export/responses", nil),
	} {
		if rec := s.do(req); rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: got %d, want 401", req.Method, req.URL.Path, rec.Code)
		}
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/login", nil)
	req.SetBasicAuth(adminUser, "wrong")
	rec := s.do(req)
	if rec.Code == http.StatusOK {
		t.Fatalf("login succeeded with a wrong password")
	}
	if cookies := rec.Result().Cookies(); len(cookies) != 0 {
		t.Errorf("cookies set on failed login: %v", cookies)
	}
}

func TestAdminListQuestions(t *testing.T) {
	s := newTestServer(t)
	token := s.accessToken(t)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/questions?audience=builders", nil)
	req.Header.Set("authorization", "Bearer "+token)
	rec := s.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %q", rec.Code, rec.Body.String())
	}

	var got struct {
		Questions []struct {
			ID int `json:"id"`
		} `json:"questions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	var ids []int
	for _, q := range got.Questions {
		ids = append(ids, q.ID)
	}
	if diff := cmp.Diff([]int{5, 7}, ids); diff != "" {
		t.Errorf("builder questions (-want +got):\n%s", diff)
	}
}

func TestAdminUpdateQuestion(t *testing.T) {
	s := newTestServer(t)
	token := s.accessToken(t)

	put := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPut, "/api/admin/questions/3", strings.NewReader(body))
		req.Header.Set("authorization", "Bearer "+token)
		req.Header.Set("content-type", "application/json")
		return s.do(req)
	}

	rec := put(`{"prompt": "", "target_audience": "nobody", "is_active": true}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid body: got %d", rec.Code)
	}
	var verrs struct {
		Errors map[string]string `json:"errors"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &verrs); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(map[string]string{"prompt": "required", "target_audience": "audience"}, verrs.Errors); diff != "" {
		t.Errorf("validation errors (-want +got):\n%s", diff)
	}

	rec = put(`{
		"category": "About You",
		"prompt": "How do you feel about data breaches?",
		"target_audience": "all",
		"is_active": true,
		"options": [
			{"value": "anxious", "label": "Anxious"},
			{"value": "calm", "label": "Calm"}
		]
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: got %d, body %q", rec.Code, rec.Body.String())
	}

	q, err := catalog.GetQuestion(context.Background(), s.db, 3)
	if err != nil {
		t.Fatal(err)
	}
	if q.Prompt != "How do you feel about data breaches?" {
		t.Errorf("prompt: got %q", q.Prompt)
	}
	var values []string
	for _, o := range q.Options {
		values = append(values, o.Value+"="+o.Label)
	}
	if diff := cmp.Diff([]string{"anxious=Anxious", "calm=Calm"}, values); diff != "" {
		t.Errorf("options (-want +got):\n%s", diff)
	}
}

func TestAdminDeleteAnsweredQuestion(t *testing.T) {
	s := newTestServer(t)
	if rec := s.post(url.Values{"respondent_role": {"all"}, "question_1": {"student"}}); rec.Code != http.StatusSeeOther {
		t.Fatalf("submit: status %d", rec.Code)
	}
	token := s.accessToken(t)

	del := func(path string) int {
		req := httptest.NewRequest(http.MethodDelete, path, nil)
		req.Header.Set("authorization", "Bearer "+token)
		return s.do(req).Code
	}

	if got := del("/api/admin/questions/1"); got != http.StatusConflict {
		t.Errorf("answered question: got %d, want 409", got)
	}
	if got := del("/api/admin/questions/4"); got != http.StatusNoContent {
		t.Errorf("unanswered question: got %d, want 204", got)
	}
	if got := del("/api/admin/questions/4"); got != http.StatusNotFound {
		t.Errorf("deleted question: got %d, want 404", got)
	}
}

func TestExportWideWithCookies(t *testing.T) {
	s := newTestServer(t)
	if rec := s.post(url.Values{
		"respondent_name": {"Alex"},
		"respondent_role": {"all"},
		"question_1":      {"student"},
	}); rec.Code != http.StatusSeeOther {
		t.Fatalf("submit: status %d", rec.Code)
	}

	login := s.login(t)
	req := httptest.NewRequest(http.MethodGet, "/api/admin/export/responses-wide?format=csv", nil)
	var sawAccess bool
	for _, c := range login.Result().Cookies() {
		if c.Name == middlewares.AccessTokenCookie {
			sawAccess = true
		}
		req.AddCookie(c)
	}
	if !sawAccess {
		t.Fatalf("login did not set the %s cookie", middlewares.AccessTokenCookie)
	}

	rec := s.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %q", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("content-type"); ct != "text/csv; charset=utf-8" {
		t.Errorf("content type: got %q", ct)
	}
	if cd := rec.Header().Get("content-disposition"); !strings.HasPrefix(cd, `attachment; filename="responses-wide-`) || !strings.HasSuffix(cd, `.csv"`) {
		t.Errorf("content disposition: got %q", cd)
	}

	records, err := csv.NewReader(rec.Body).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("rows: got %d, want header + 1", len(records))
	}
	header, row := records[0], records[1]
	if diff := cmp.Diff([]string{"ID", "Respondent Name", "Respondent Email", "Respondent Role", "Response Date"}, header[:5]); diff != "" {
		t.Errorf("fixed headers (-want +got):\n%s", diff)
	}
	if len(header) != 5+8 {
		t.Errorf("columns: got %d, want one per active question", len(header))
	}
	if row[1] != "Alex" || row[3] != "General respondent" || row[5] != "Student" {
		t.Errorf("row: got %v", row)
	}
}

func TestExportRejectsUnknownInput(t *testing.T) {
	s := newTestServer(t)
	token := s.accessToken(t)

	for path, want := range map[string]int{
		"/api/admin/export/responses?format=pdf":  http.StatusBadRequest,
		"/api/admin/export/nothing":               http.StatusNotFound,
		"/api/admin/export/questions?format=json": http.StatusOK,
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("authorization", "Bearer "+token)
		if got := s.do(req).Code; got != want {
			t.Errorf("%s: got %d, want %d", path, got, want)
		}
	}
}

func TestAdminUpdateQuestionTrimsOptions(t *testing.T) {
	s := newTestServer(t)
	token := s.accessToken(t)

	put := func(options string) map[string]string {
		t.Helper()
		body := `{"prompt": " Which tool? ", "target_audience": "builders", "is_active": true, "options": ` + options + `}`
		req := httptest.NewRequest(http.MethodPut, "/api/admin/questions/7", strings.NewReader(body))
		req.Header.Set("authorization", "Bearer "+token)
		req.Header.Set("content-type", "application/json")
		rec := s.do(req)
		if rec.Code == http.StatusOK {
			return nil
		}
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status: got %d, body %q", rec.Code, rec.Body.String())
		}
		var verrs struct {
			Errors map[string]string `json:"errors"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &verrs); err != nil {
			t.Fatal(err)
		}
		return verrs.Errors
	}

	got := put(`[{"value": " dev", "label": "Dev"}, {"value": "dev", "label": "Developer"}]`)
	if diff := cmp.Diff(map[string]string{"options": "unique"}, got); diff != "" {
		t.Errorf("duplicate after trim (-want +got):\n%s", diff)
	}

	got = put(`[{"value": "dev", "label": "   "}]`)
	if diff := cmp.Diff(map[string]string{"options[0].label": "required"}, got); diff != "" {
		t.Errorf("blank label (-want +got):\n%s", diff)
	}

	if got := put(`[{"value": " dev ", "label": " Developer "}]`); got != nil {
		t.Fatalf("valid options rejected: %v", got)
	}
	q, err := catalog.GetQuestion(context.Background(), s.db, 7)
	if err != nil {
		t.Fatal(err)
	}
	if q.Prompt != "Which tool?" {
		t.Errorf("prompt: got %q", q.Prompt)
	}
	if len(q.Options) != 1 || q.Options[0].Value != "dev" || q.Options[0].Label != "Developer" {
		t.Errorf("options: got %+v", q.Options)
	}
}
