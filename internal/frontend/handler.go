package frontend

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/gradewatch/internal/analysis"
	"github.com/ZanzyTHEbar/gradewatch/internal/cache"
	"github.com/ZanzyTHEbar/gradewatch/internal/database"
	apperrors "github.com/ZanzyTHEbar/gradewatch/internal/errors"
	"github.com/ZanzyTHEbar/gradewatch/internal/monitoring"
	"github.com/ZanzyTHEbar/gradewatch/internal/ratelimit"
	"github.com/ZanzyTHEbar/gradewatch/internal/render"
	"github.com/ZanzyTHEbar/gradewatch/internal/security"
	"github.com/ZanzyTHEbar/gradewatch/internal/session"
	"github.com/ZanzyTHEbar/gradewatch/internal/types"
	"github.com/gin-gonic/gin"
)

// SessionCookie holds the signed session token.
const SessionCookie = "gw_session"

const claimsKey = "session-claims"

const (
	msgRecoverySent   = "If the account exists, recovery instructions have been sent."
	msgTooManyLogins  = "Too many sign-in attempts. Please wait a minute and try again."
	msgSessionExpired = "Your session has expired. Please sign in again."
)

// Analyzer runs the login and analysis flows.
type Analyzer interface {
	Login(ctx context.Context, login, password string) (*session.Outcome, error)
	Analyze(ctx context.Context, studentID string, classNum int) (*session.Report, error)
	Predict(ctx context.Context, studentID string, classNum int) (analysis.GradeVector, error)
}

// Sessions issues and checks session tokens and resolves student profiles.
type Sessions interface {
	GenerateSessionToken(user *database.User, link *database.StudentLink) (string, error)
	ValidateSessionToken(token string) (*database.SessionClaims, error)
	StudentLink(ctx context.Context, userID int64) (*database.StudentLink, error)
}

// Options configures the handler.
type Options struct {
	SessionTTL      time.Duration
	SecureCookie    bool
	ChartAssetsHost string
	DefaultClassNum int
}

// Handler serves the five dashboard views.
type Handler struct {
	views    *Views
	analyzer Analyzer
	sessions Sessions
	opts     Options

	logger  *monitoring.Logger
	metrics *monitoring.Metrics
	limiter *ratelimit.RateLimiter
	charts  *cache.Cache

	security   *security.SecurityMiddleware
	classChart template.URL
}

// Deps are the optional collaborators. Nil members are skipped.
type Deps struct {
	Logger   *monitoring.Logger
	Metrics  *monitoring.Metrics
	Limiter  *ratelimit.RateLimiter
	Cache    *cache.Cache
	Security *security.SecurityMiddleware
}

// NewHandler parses the views and renders the static class chart.
func NewHandler(analyzer Analyzer, sessions Sessions, opts Options, deps Deps) (*Handler, error) {
	if analyzer == nil || sessions == nil {
		return nil, errors.New("analyzer and sessions are required")
	}
	if opts.SessionTTL <= 0 {
		return nil, fmt.Errorf("session ttl must be positive, got %s", opts.SessionTTL)
	}
	if opts.DefaultClassNum <= 0 {
		return nil, fmt.Errorf("default class number must be positive, got %d", opts.DefaultClassNum)
	}

	views, err := LoadViews()
	if err != nil {
		return nil, err
	}

	uri, err := render.ClassChartDataURI(render.PlaceholderClassDistribution)
	if err != nil {
		return nil, fmt.Errorf("failed to render class chart: %w", err)
	}

	if deps.Logger == nil {
		deps.Logger = &monitoring.Logger{Logger: slog.Default()}
	}
	if deps.Metrics == nil {
		deps.Metrics = monitoring.NewMetrics()
	}
	if deps.Security == nil {
		deps.Security = security.NewSecurityMiddleware(security.DefaultSecurityConfig())
	}

	return &Handler{
		views:      views,
		analyzer:   analyzer,
		sessions:   sessions,
		opts:       opts,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		limiter:    deps.Limiter,
		charts:     deps.Cache,
		security:   deps.Security,
		classChart: template.URL(uri),
	}, nil
}

// Register mounts the view routes on r.
func (h *Handler) Register(r gin.IRouter) error {
	assets, err := StaticFS()
	if err != nil {
		return fmt.Errorf("failed to open static assets: %w", err)
	}
	r.GET("/static/*filepath", StaticHandler(assets))

	r.GET("/", h.home)
	r.GET("/entry", h.entry)
	r.GET("/recovery", h.recoveryForm)
	r.POST("/recovery", h.recovery)
	r.POST("/nav", h.nav)
	r.POST("/logout", h.logout)

	login := []gin.HandlerFunc{}
	if h.limiter != nil {
		login = append(login, h.limiter.LoginRateLimitMiddleware(h.loginLimited))
	}
	r.POST("/login", append(login, h.login)...)

	student := r.Group("/student", h.requireSession(func(role database.Role) bool { return role == database.RoleStudent }))
	student.GET("", h.student)
	student.POST("/analyze", h.analyze)

	chartHTML := []gin.HandlerFunc{security.ChartFramePolicy(h.opts.ChartAssetsHost)}
	chartPNG := []gin.HandlerFunc{}
	if h.charts != nil {
		chartHTML = append(chartHTML, h.charts.Middleware(h.metrics, h.chartKey("html")))
		chartPNG = append(chartPNG, h.charts.Middleware(h.metrics, h.chartKey("png")))
	}
	student.GET("/risk-chart", append(chartHTML, h.riskChart)...)
	student.GET("/risk-chart.png", append(chartPNG, h.riskChartPNG)...)

	r.GET("/teacher", h.requireSession(func(role database.Role) bool { return role.IsStaff() }), h.teacher)
	return nil
}

func (h *Handler) render(c *gin.Context, status int, p *page) {
	if p.Nonce == "" {
		p.Nonce = security.GetNonce(c)
	}
	if err := h.views.Render(c, status, p); err != nil {
		slog.Error("Failed to render view", "view", p.View, "error", err)
		c.AbortWithStatus(http.StatusInternalServerError)
	}
}

func (h *Handler) home(c *gin.Context) {
	h.render(c, http.StatusOK, newPage(session.ViewHome, ""))
}

func (h *Handler) entry(c *gin.Context) {
	p := newPage(session.ViewEntry, "")
	if c.Query("expired") == "1" {
		p.Error = msgSessionExpired
	}
	h.render(c, http.StatusOK, p)
}

func (h *Handler) recoveryForm(c *gin.Context) {
	h.render(c, http.StatusOK, newPage(session.ViewRecovery, ""))
}

// recovery records the request and returns to the entry view. No message is sent
// from here; the request is picked up from the logs.
func (h *Handler) recovery(c *gin.Context) {
	var req types.RecoveryRequest
	if err := c.ShouldBind(&req); err != nil {
		p := newPage(session.ViewRecovery, "")
		p.Error = types.ValidationMessage(err)
		h.render(c, http.StatusBadRequest, p)
		return
	}

	h.logger.Info("Recovery Requested",
		"contact", maskContact(req.Contact),
		"ip", c.ClientIP())

	next, _ := session.Transition(session.ViewRecovery, session.EventSendRecovery)
	p := newPage(next, "")
	p.Notice = msgRecoverySent
	h.render(c, http.StatusOK, p)
}

var viewPaths = map[session.View]string{
	session.ViewHome:     "/",
	session.ViewEntry:    "/entry",
	session.ViewRecovery: "/recovery",
	session.ViewStudent:  "/student",
	session.ViewTeacher:  "/teacher",
}

func (h *Handler) nav(c *gin.Context) {
	var req types.NavRequest
	if err := c.ShouldBind(&req); err != nil {
		p := newPage(session.ViewHome, "")
		p.Error = types.ValidationMessage(err)
		h.render(c, http.StatusBadRequest, p)
		return
	}

	from, err := session.ParseView(req.From)
	if err != nil {
		p := newPage(session.ViewHome, "")
		p.Error = "unknown page"
		h.render(c, http.StatusBadRequest, p)
		return
	}

	next, err := session.Transition(from, session.Event(req.Event))
	if err != nil {
		slog.Debug("Rejected navigation", "from", from, "event", req.Event)
		c.Redirect(http.StatusSeeOther, viewPaths[from])
		return
	}

	c.Redirect(http.StatusSeeOther, viewPaths[next])
}

func (h *Handler) logout(c *gin.Context) {
	h.clearSession(c)
	c.Redirect(http.StatusSeeOther, "/")
}

func (h *Handler) login(c *gin.Context) {
	var req types.LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		p := newPage(session.ViewEntry, "")
		p.Error = types.ValidationMessage(err)
		h.render(c, http.StatusBadRequest, p)
		return
	}
	if err := h.security.ValidateInput(req.Login); err != nil {
		p := newPage(session.ViewEntry, "")
		p.Error = apperrors.MsgInvalidCredentials
		h.render(c, http.StatusBadRequest, p)
		return
	}

	start := time.Now()
	outcome, err := h.analyzer.Login(c.Request.Context(), req.Login, req.Password)
	if err != nil {
		appErr := apperrors.ToAppError(err)
		auth := appErr.Category == apperrors.CategoryAuth
		h.logger.LoginLogger(req.Login, c.ClientIP(), "", !auth)
		h.metrics.RecordLogin(!auth)
		if !auth {
			h.metrics.RecordAnalysis(false)
		}
		apperrors.LogError(c, appErr)

		next, _ := session.Transition(session.ViewEntry, session.EventLoginFailed)
		p := newPage(next, "")
		p.Login = req.Login
		p.Error = apperrors.UserMessage(appErr)
		h.render(c, appErr.HTTPStatus, p)
		return
	}

	h.logger.LoginLogger(req.Login, c.ClientIP(), string(outcome.User.Role), true)
	h.metrics.RecordLogin(true)
	if h.limiter != nil {
		if err := h.limiter.ResetLogin(c.Request.Context(), c.ClientIP()); err != nil {
			slog.Warn("Failed to reset login limit", "error", err)
		}
	}

	token, err := h.sessions.GenerateSessionToken(outcome.User, outcome.Link)
	if err != nil {
		apperrors.LogError(c, apperrors.NewInternalError("session token", err))
		p := newPage(session.ViewEntry, "")
		p.Error = apperrors.UserMessage(err)
		h.render(c, http.StatusInternalServerError, p)
		return
	}
	h.setSession(c, token)

	switch outcome.View {
	case session.ViewTeacher:
		h.render(c, http.StatusOK, h.teacherPage(outcome.User.Login))
	default:
		h.metrics.RecordAnalysis(true)
		h.logAnalysis(outcome.Report, start)
		h.render(c, http.StatusOK, h.studentPage(outcome.User.Login, *outcome.Link, outcome.Report.ClassNum, outcome.Report, ""))
	}
}

func (h *Handler) loginLimited(c *gin.Context, _ *ratelimit.Result) {
	p := newPage(session.ViewEntry, "")
	p.Error = msgTooManyLogins
	h.render(c, http.StatusTooManyRequests, p)
}

func (h *Handler) student(c *gin.Context) {
	claims := sessionClaims(c)
	classNum := claims.ClassNum
	if q := c.Query("class"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			classNum = n
		}
	}
	h.showStudent(c, claims, classNum)
}

func (h *Handler) analyze(c *gin.Context) {
	claims := sessionClaims(c)

	var req types.AnalyzeRequest
	if err := c.ShouldBind(&req); err != nil {
		h.showStudentError(c, claims, claims.ClassNum, http.StatusBadRequest, types.ValidationMessage(err))
		return
	}
	if req.StudentID != claims.StudentID {
		appErr := apperrors.NewForbiddenError("students may only analyze their own record")
		apperrors.LogError(c, appErr)
		h.showStudentError(c, claims, claims.ClassNum, appErr.HTTPStatus, apperrors.UserMessage(appErr))
		return
	}

	classNum := req.ClassNum
	if classNum == 0 {
		classNum = claims.ClassNum
	}
	h.showStudent(c, claims, classNum)
}

func (h *Handler) showStudent(c *gin.Context, claims *database.SessionClaims, classNum int) {
	if classNum <= 0 {
		classNum = h.opts.DefaultClassNum
	}

	start := time.Now()
	report, err := h.analyzer.Analyze(c.Request.Context(), claims.StudentID, classNum)
	if err != nil {
		h.metrics.RecordAnalysis(false)
		appErr := apperrors.ToAppError(err)
		apperrors.LogError(c, appErr)
		h.showStudentError(c, claims, classNum, appErr.HTTPStatus, apperrors.UserMessage(appErr))
		return
	}

	h.metrics.RecordAnalysis(true)
	h.logAnalysis(report, start)
	h.render(c, http.StatusOK, h.studentPage(claims.Login, h.profile(c, claims), classNum, report, ""))
}

// showStudentError keeps the student on their view with the message inline.
func (h *Handler) showStudentError(c *gin.Context, claims *database.SessionClaims, classNum, status int, msg string) {
	if classNum <= 0 {
		classNum = h.opts.DefaultClassNum
	}
	h.render(c, status, h.studentPage(claims.Login, h.profile(c, claims), classNum, nil, msg))
}

func (h *Handler) profile(c *gin.Context, claims *database.SessionClaims) database.StudentLink {
	link, err := h.sessions.StudentLink(c.Request.Context(), claims.UserID)
	if err != nil || link == nil {
		return database.StudentLink{UserID: claims.UserID, StudentID: claims.StudentID, ClassNum: claims.ClassNum}
	}
	return *link
}

func (h *Handler) studentPage(login string, link database.StudentLink, classNum int, report *session.Report, errMsg string) *page {
	p := newPage(session.ViewStudent, "")
	p.LoggedIn = true
	p.Error = errMsg
	p.Student = &studentPage{
		Login:       login,
		StudentID:   link.StudentID,
		ClassNum:    classNum,
		Profile:     link,
		Report:      report,
		ChartURL:    fmt.Sprintf("/student/risk-chart?class=%d", classNum),
		ChartPNGURL: fmt.Sprintf("/student/risk-chart.png?class=%d", classNum),
	}
	return p
}

func (h *Handler) teacher(c *gin.Context) {
	h.render(c, http.StatusOK, h.teacherPage(sessionClaims(c).Login))
}

// Placeholder content for the staff view until class-level data is available.
var (
	placeholderAtRisk         = []string{"Student 1", "Student 2", "Student 3"}
	placeholderRecommendation = "Schedule additional consultations in the subjects with the most unsatisfactory grades."
)

func (h *Handler) teacherPage(login string) *page {
	p := newPage(session.ViewTeacher, "")
	p.LoggedIn = true
	p.Teacher = &teacherPage{
		Login:          login,
		ClassChart:     h.classChart,
		AtRisk:         placeholderAtRisk,
		Recommendation: placeholderRecommendation,
	}
	return p
}

func (h *Handler) chartClass(c *gin.Context) int {
	if n, err := strconv.Atoi(c.Query("class")); err == nil && n > 0 {
		return n
	}
	if claims := sessionClaims(c); claims != nil && claims.ClassNum > 0 {
		return claims.ClassNum
	}
	return h.opts.DefaultClassNum
}

func (h *Handler) chartKey(format string) cache.KeyFunc {
	return func(c *gin.Context) (string, bool) {
		claims := sessionClaims(c)
		if claims == nil || claims.StudentID == "" {
			return "", false
		}
		return cache.Key("chart", format, claims.StudentID, strconv.Itoa(h.chartClass(c))), true
	}
}

func (h *Handler) riskChart(c *gin.Context) {
	claims := sessionClaims(c)
	report, err := h.analyzer.Analyze(c.Request.Context(), claims.StudentID, h.chartClass(c))
	if err != nil {
		appErr := apperrors.ToAppError(err)
		apperrors.LogError(c, appErr)
		c.Data(appErr.HTTPStatus, "text/plain; charset=utf-8", []byte(apperrors.UserMessage(appErr)))
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(report.ChartHTML))
}

func (h *Handler) riskChartPNG(c *gin.Context) {
	claims := sessionClaims(c)
	classNum := h.chartClass(c)
	grades, err := h.analyzer.Predict(c.Request.Context(), claims.StudentID, classNum)
	if err != nil {
		appErr := apperrors.ToAppError(err)
		apperrors.LogError(c, appErr)
		c.Data(appErr.HTTPStatus, "text/plain; charset=utf-8", []byte(apperrors.UserMessage(appErr)))
		return
	}

	png, err := render.RiskChartPNG(analysis.Classify(grades))
	if err != nil {
		appErr := apperrors.NewInternalError("risk chart raster", err)
		apperrors.LogError(c, appErr)
		c.Data(appErr.HTTPStatus, "text/plain; charset=utf-8", []byte(apperrors.UserMessage(appErr)))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="risk-%s-%d.png"`, safeFilename(claims.StudentID), classNum))
	c.Data(http.StatusOK, "image/png", png)
}

func (h *Handler) logAnalysis(report *session.Report, start time.Time) {
	if report == nil {
		return
	}
	h.logger.AnalysisLogger(report.StudentID, report.ClassNum, report.Model, report.Average,
		len(analysis.WeakSubjects(report.Grades)), time.Since(start), false)
}

// requireSession admits requests carrying a valid session cookie whose role passes allow.
func (h *Handler) requireSession(allow func(database.Role) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(SessionCookie)
		if err != nil || token == "" {
			c.Redirect(http.StatusSeeOther, "/entry")
			c.Abort()
			return
		}

		claims, err := h.sessions.ValidateSessionToken(token)
		if err != nil {
			slog.Debug("Rejected session token", "error", err)
			h.clearSession(c)
			c.Redirect(http.StatusSeeOther, "/entry?expired=1")
			c.Abort()
			return
		}

		if !allow(claims.Role) {
			target := "/student"
			if claims.Role.IsStaff() {
				target = "/teacher"
			}
			c.Redirect(http.StatusSeeOther, target)
			c.Abort()
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

func sessionClaims(c *gin.Context) *database.SessionClaims {
	if v, ok := c.Get(claimsKey); ok {
		if claims, ok := v.(*database.SessionClaims); ok {
			return claims
		}
	}
	return nil
}

func (h *Handler) setSession(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, token, int(h.opts.SessionTTL.Seconds()), "/", "", h.opts.SecureCookie, true)
}

func (h *Handler) clearSession(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, "", -1, "/", "", h.opts.SecureCookie, true)
}

// maskContact keeps enough of an email or phone number to correlate requests.
func maskContact(contact string) string {
	contact = strings.TrimSpace(contact)
	if at := strings.IndexByte(contact, '@'); at > 0 {
		return contact[:1] + "***" + contact[at:]
	}
	if len(contact) > 4 {
		return "***" + contact[len(contact)-4:]
	}
	return "***"
}

func safeFilename(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, s)
}
