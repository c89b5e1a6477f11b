package frontend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/gradewatch/internal/cache"
	"github.com/ZanzyTHEbar/gradewatch/internal/database"
	"github.com/ZanzyTHEbar/gradewatch/internal/model"
	"github.com/ZanzyTHEbar/gradewatch/internal/monitoring"
	"github.com/ZanzyTHEbar/gradewatch/internal/ratelimit"
	"github.com/ZanzyTHEbar/gradewatch/internal/records"
	"github.com/ZanzyTHEbar/gradewatch/internal/security"
	"github.com/ZanzyTHEbar/gradewatch/internal/session"
	"github.com/ZanzyTHEbar/gradewatch/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testDataset = `Student,Class,score
S1,9,1
S1,10,2
`

type testEnv struct {
	router  *gin.Engine
	metrics *monitoring.Metrics
	charts  *cache.Cache
}

func newTestEnv(t *testing.T, loginLimit int) *testEnv {
	t.Helper()
	require.NoError(t, types.RegisterValidators())

	db, err := database.NewDB(filepath.Join(t.TempDir(), "site.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	users := database.NewUserService(database.NewRepository(db), "test-secret", time.Hour)
	ctx := context.Background()

	anna, err := users.CreateUser(ctx, "anna", "pw", database.RoleStudent)
	require.NoError(t, err)
	require.NoError(t, users.LinkStudent(ctx, database.StudentLink{
		UserID: anna.ID, StudentID: "S1", FullName: "Anna Petrova", ClassNum: 9, ClassLetter: "B",
	}))
	ghost, err := users.CreateUser(ctx, "ghost", "pw", database.RoleStudent)
	require.NoError(t, err)
	require.NoError(t, users.LinkStudent(ctx, database.StudentLink{UserID: ghost.ID, StudentID: "S404", ClassNum: 9}))
	_, err = users.CreateUser(ctx, "teacher", "pw", database.RoleTeacher)
	require.NoError(t, err)

	store, err := records.Parse(strings.NewReader(testDataset))
	require.NoError(t, err)

	predictor := model.Func(func(row records.FeatureRow) (model.Prediction, error) {
		score, _ := row.Value("score")
		grades := []float64{5, 4, 3, 2, 5, 4, 3, 5, 4}
		if score == 2 {
			grades = []float64{5, 5, 5, 5, 5, 5, 5, 5, 5}
		}
		raw := make([]*float64, len(grades))
		for i := range grades {
			raw[i] = &grades[i]
		}
		return model.Prediction{Grades: raw, Model: "stub"}, nil
	})

	orch, err := session.New(session.Config{DefaultClassNum: 9}, users, store, predictor)
	require.NoError(t, err)

	metrics := monitoring.NewMetrics()
	limitCfg := ratelimit.DefaultConfig()
	limitCfg.LoginLimit = loginLimit
	limiter := ratelimit.NewRateLimiter(&ratelimit.RedisClient{}, limitCfg, metrics)
	t.Cleanup(limiter.Close)
	charts := cache.NewCache(time.Minute)
	t.Cleanup(charts.Close)

	h, err := NewHandler(orch, users, Options{
		SessionTTL:      time.Hour,
		ChartAssetsHost: "https://cdn.example.com/assets/",
		DefaultClassNum: 9,
	}, Deps{Metrics: metrics, Limiter: limiter, Cache: charts})
	require.NoError(t, err)

	r := gin.New()
	r.Use(security.SecurityHeadersMiddleware(false), security.CSPMiddleware(""))
	require.NoError(t, h.Register(r))

	return &testEnv{router: r, metrics: metrics, charts: charts}
}

func (e *testEnv) do(t *testing.T, method, path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.RemoteAddr = "192.0.2.10:5000"
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == SessionCookie && c.Value != "" {
			return c
		}
	}
	t.Fatalf("no session cookie in response")
	return nil
}

func TestStaticViews(t *testing.T) {
	env := newTestEnv(t, 10)

	tests := []struct {
		path     string
		contains string
	}{
		{"/", "Student performance dashboard"},
		{"/entry", `action="/login"`},
		{"/recovery", "Password recovery"},
		{"/static/style.css", ".grades-table"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := env.do(t, http.MethodGet, tt.path, nil)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Contains(t, w.Body.String(), tt.contains)
		})
	}
}

func TestPagesCarryCSPNonce(t *testing.T) {
	env := newTestEnv(t, 10)

	w := env.do(t, http.MethodGet, "/", nil)
	policy := w.Header().Get("Content-Security-Policy")
	start := strings.Index(policy, "'nonce-")
	require.GreaterOrEqual(t, start, 0)
	nonce := policy[start+len("'nonce-"):]
	nonce = nonce[:strings.Index(nonce, "'")]

	assert.Contains(t, w.Body.String(), `nonce="`+nonce+`"`)
	assert.Contains(t, w.Body.String(), ".sev-high{background:#ff5252}")
}

func TestStudentLoginShowsAnalysis(t *testing.T) {
	env := newTestEnv(t, 10)

	w := env.do(t, http.MethodPost, "/login", url.Values{"login": {"anna"}, "password": {"pw"}})
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, "Anna Petrova")
	assert.Contains(t, body, "Class 9B")
	assert.Contains(t, body, "3.89")
	assert.Contains(t, body, "Improve your knowledge in the following subjects: Social Studies, Russian Language, Physical Education")
	assert.Contains(t, body, `src="/student/risk-chart?class=9"`)
	assert.Contains(t, body, "High risk (4)")

	cookie := sessionCookie(t, w)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, int64(1), env.metrics.LoginSuccesses.Load())
}

func TestInvalidLoginStaysOnEntry(t *testing.T) {
	env := newTestEnv(t, 10)

	w := env.do(t, http.MethodPost, "/login", url.Values{"login": {"anna"}, "password": {"wrong"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid login or password")
	assert.Contains(t, w.Body.String(), `action="/login"`)
	assert.Contains(t, w.Body.String(), `value="anna"`)
	assert.Empty(t, w.Result().Cookies())
}

func TestLoginWithMissingRecordShowsAnalysisError(t *testing.T) {
	env := newTestEnv(t, 10)

	w := env.do(t, http.MethodPost, "/login", url.Values{"login": {"ghost"}, "password": {"pw"}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "analysis failed")
	assert.Contains(t, w.Body.String(), "not found")
}

func TestLoginValidation(t *testing.T) {
	env := newTestEnv(t, 10)

	w := env.do(t, http.MethodPost, "/login", url.Values{"login": {"anna"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "password")
}

func TestStaffLoginShowsTeacherView(t *testing.T) {
	env := newTestEnv(t, 10)

	w := env.do(t, http.MethodPost, "/login", url.Values{"login": {"teacher"}, "password": {"pw"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Class overview")
	assert.Contains(t, w.Body.String(), `src="data:image/png;base64,`)

	cookie := sessionCookie(t, w)
	w = env.do(t, http.MethodGet, "/teacher", nil, cookie)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/student", nil, cookie)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/teacher", w.Header().Get("Location"))
}

func TestStudentRoutesRequireSession(t *testing.T) {
	env := newTestEnv(t, 10)

	for _, path := range []string{"/student", "/student/risk-chart", "/student/risk-chart.png", "/teacher"} {
		w := env.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusSeeOther, w.Code, path)
		assert.Equal(t, "/entry", w.Header().Get("Location"), path)
	}

	w := env.do(t, http.MethodGet, "/student", nil, &http.Cookie{Name: SessionCookie, Value: "garbage"})
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/entry?expired=1", w.Header().Get("Location"))
}

func TestStudentAnalyzeOtherClass(t *testing.T) {
	env := newTestEnv(t, 10)
	cookie := sessionCookie(t, env.do(t, http.MethodPost, "/login", url.Values{"login": {"anna"}, "password": {"pw"}}))

	w := env.do(t, http.MethodPost, "/student/analyze", url.Values{"student_id": {"S1"}, "class_num": {"10"}}, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "No subjects below satisfactory (grades 2 or 3).")
	assert.Contains(t, w.Body.String(), "5.00")

	w = env.do(t, http.MethodPost, "/student/analyze", url.Values{"student_id": {"S1"}, "class_num": {"11"}}, cookie)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "not found")
	assert.Contains(t, w.Body.String(), "Anna Petrova")
}

func TestStudentCannotAnalyzeOthers(t *testing.T) {
	env := newTestEnv(t, 10)
	cookie := sessionCookie(t, env.do(t, http.MethodPost, "/login", url.Values{"login": {"anna"}, "password": {"pw"}}))

	w := env.do(t, http.MethodPost, "/student/analyze", url.Values{"student_id": {"S2"}}, cookie)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRiskChartEndpoints(t *testing.T) {
	env := newTestEnv(t, 10)
	cookie := sessionCookie(t, env.do(t, http.MethodPost, "/login", url.Values{"login": {"anna"}, "password": {"pw"}}))

	w := env.do(t, http.MethodGet, "/student/risk-chart?class=9", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "risk_chart")
	assert.Equal(t, "SAMEORIGIN", w.Header().Get("X-Frame-Options"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "https://cdn.example.com")
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))

	w = env.do(t, http.MethodGet, "/student/risk-chart?class=9", nil, cookie)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))

	w = env.do(t, http.MethodGet, "/student/risk-chart.png?class=9", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "\x89PNG"))

	w = env.do(t, http.MethodGet, "/student/risk-chart?class=11", nil, cookie)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	assert.Equal(t, 2, env.charts.Size())
}

func TestNavigation(t *testing.T) {
	env := newTestEnv(t, 10)

	tests := []struct {
		from, event string
		location    string
	}{
		{"home", "start", "/entry"},
		{"entry", "recover", "/recovery"},
		{"recovery", "back", "/entry"},
		{"student", "back", "/"},
		{"teacher", "back", "/entry"},
		{"home", "back", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.from+"/"+tt.event, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/nav", url.Values{"from": {tt.from}, "event": {tt.event}})
			assert.Equal(t, http.StatusSeeOther, w.Code)
			assert.Equal(t, tt.location, w.Header().Get("Location"))
		})
	}

	w := env.do(t, http.MethodPost, "/nav", url.Values{"from": {"nowhere"}, "event": {"start"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecoveryReturnsToEntry(t *testing.T) {
	env := newTestEnv(t, 10)

	w := env.do(t, http.MethodPost, "/recovery", url.Values{"contact": {"anna@example.com"}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), msgRecoverySent)
	assert.Contains(t, w.Body.String(), `action="/login"`)

	w = env.do(t, http.MethodPost, "/recovery", url.Values{"contact": {" "}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogoutClearsSession(t *testing.T) {
	env := newTestEnv(t, 10)

	w := env.do(t, http.MethodPost, "/logout", nil)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookie, cookies[0].Name)
	assert.Less(t, cookies[0].MaxAge, 0)
}

func TestLoginRateLimit(t *testing.T) {
	env := newTestEnv(t, 2)

	for i := 0; i < 2; i++ {
		w := env.do(t, http.MethodPost, "/login", url.Values{"login": {"anna"}, "password": {"bad"}})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}

	w := env.do(t, http.MethodPost, "/login", url.Values{"login": {"anna"}, "password": {"pw"}})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), msgTooManyLogins)
}

func TestMaskContact(t *testing.T) {
	assert.Equal(t, "a***@example.com", maskContact("anna@example.com"))
	assert.Equal(t, "***4567", maskContact("+7 900 123 4567"))
	assert.Equal(t, "***", maskContact("12"))
}
