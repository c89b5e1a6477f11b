package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/gradewatch/internal/analysis"
	"github.com/ZanzyTHEbar/gradewatch/internal/database"
	"github.com/ZanzyTHEbar/gradewatch/internal/errors"
	"github.com/ZanzyTHEbar/gradewatch/internal/resilience"
	"github.com/ZanzyTHEbar/gradewatch/internal/types"
	"github.com/gin-gonic/gin"
)

const bearerClaimsKey = "bearer-claims"

// respondError logs err and writes the public part of it as an ErrorResponse
func respondError(c *gin.Context, err error) {
	appErr := errors.ToAppError(err)
	appErr.RequestID = c.GetHeader("X-Request-ID")
	errors.LogError(c, appErr)
	c.AbortWithStatusJSON(appErr.HTTPStatus, types.ErrorResponse{
		Category: string(appErr.Category),
		Message:  errors.UserMessage(appErr),
	})
}

// apiLogin godoc
// @Summary Sign in
// @Description Checks credentials and, for students, analyses their own record for their class.
// @Tags session
// @Accept json
// @Produce json
// @Param request body types.LoginRequest true "Credentials"
// @Success 200 {object} types.LoginResponse
// @Failure 400 {object} types.ErrorResponse
// @Failure 401 {object} types.ErrorResponse
// @Failure 422 {object} types.ErrorResponse
// @Failure 429 {object} types.ErrorResponse
// @Router /api/login [post]
func (a *app) apiLogin(c *gin.Context) {
	var req types.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.NewValidationError(types.ValidationMessage(err)))
		return
	}
	if err := a.security.ValidateInput(req.Login); err != nil {
		respondError(c, errors.NewValidationError("invalid login", err.Error()))
		return
	}

	start := time.Now()
	outcome, err := a.analyzer.Login(c.Request.Context(), req.Login, req.Password)
	if err != nil {
		auth := errors.HasCategory(err, errors.CategoryAuth)
		a.metrics.RecordLogin(!auth)
		if !auth {
			a.metrics.RecordAnalysis(false)
		}
		a.logger.LoginLogger(req.Login, c.ClientIP(), "", !auth)
		respondError(c, err)
		return
	}

	a.metrics.RecordLogin(true)
	a.logger.LoginLogger(req.Login, c.ClientIP(), string(outcome.User.Role), true)
	if err := a.limiter.ResetLogin(c.Request.Context(), c.ClientIP()); err != nil {
		a.logger.Warn("Failed to reset login limit", "error", err)
	}

	token, err := a.users.GenerateSessionToken(outcome.User, outcome.Link)
	if err != nil {
		respondError(c, errors.NewInternalError("session token", err))
		return
	}

	resp := types.LoginResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(a.cfg.SessionTTL).Unix(),
		Role:      string(outcome.User.Role),
		View:      string(outcome.View),
	}
	if report := outcome.Report; report != nil {
		a.metrics.RecordAnalysis(true)
		a.logger.AnalysisLogger(report.StudentID, report.ClassNum, report.Model, report.Average,
			len(analysis.WeakSubjects(report.Grades)), time.Since(start), false)
		resp.Analysis = types.NewAnalysisResponse(report.StudentID, report.ClassNum, report.Grades, report.Model)
	}

	c.JSON(http.StatusOK, resp)
}

// apiAnalyze godoc
// @Summary Analyse a student
// @Description Predicts the nine subject grades for a student and class and derives risks and a recommendation. Students may only analyse themselves.
// @Tags analysis
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body types.AnalyzeRequest true "Student and class"
// @Success 200 {object} types.AnalysisResponse
// @Failure 400 {object} types.ErrorResponse
// @Failure 401 {object} types.ErrorResponse
// @Failure 403 {object} types.ErrorResponse
// @Failure 422 {object} types.ErrorResponse
// @Router /api/analyze [post]
func (a *app) apiAnalyze(c *gin.Context) {
	claims := c.MustGet(bearerClaimsKey).(*database.SessionClaims)

	var req types.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.NewValidationError(types.ValidationMessage(err)))
		return
	}

	classNum := req.ClassNum
	switch {
	case claims.Role.IsStaff():
	case req.StudentID != claims.StudentID:
		respondError(c, errors.NewForbiddenError("students may only analyze their own record"))
		return
	case classNum == 0:
		classNum = claims.ClassNum
	}
	if classNum <= 0 {
		classNum = a.cfg.DefaultClassNum
	}

	start := time.Now()
	report, err := a.analyzer.Analyze(c.Request.Context(), req.StudentID, classNum)
	if err != nil {
		a.metrics.RecordAnalysis(false)
		respondError(c, err)
		return
	}

	a.metrics.RecordAnalysis(true)
	a.logger.AnalysisLogger(report.StudentID, report.ClassNum, report.Model, report.Average,
		len(analysis.WeakSubjects(report.Grades)), time.Since(start), false)

	c.JSON(http.StatusOK, types.NewAnalysisResponse(report.StudentID, report.ClassNum, report.Grades, report.Model))
}

// apiSubjects godoc
// @Summary List subjects in grade vector order
// @Tags analysis
// @Produce json
// @Success 200 {array} string
// @Router /api/subjects [get]
func (a *app) apiSubjects(c *gin.Context) {
	c.JSON(http.StatusOK, analysis.Subjects())
}

// requireBearer admits API requests carrying a valid session token
func (a *app) requireBearer() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			respondError(c, errors.NewAuthError(nil))
			return
		}

		claims, err := a.users.ValidateSessionToken(strings.TrimSpace(token))
		if err != nil {
			a.logger.SecurityLogger("invalid_bearer_token", c.ClientIP(), c.GetHeader("User-Agent"),
				map[string]interface{}{"error": err.Error()})
			respondError(c, errors.NewAuthError(err))
			return
		}

		c.Set(bearerClaimsKey, claims)
		c.Next()
	}
}

// healthHandler godoc
// @Summary Component health
// @Tags ops
// @Produce json
// @Success 200 {object} resilience.Report
// @Failure 503 {object} resilience.Report
// @Router /health [get]
func (a *app) healthHandler(c *gin.Context) {
	report := a.health.Check(c.Request.Context())
	status := http.StatusOK
	if report.Status == resilience.LevelDown {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

// metricsHandler godoc
// @Summary Request, login, analysis and rate limit counters
// @Tags ops
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /metrics [get]
func (a *app) metricsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"requests":    a.metrics.GetStats(),
		"rate_limit":  a.limiter.GetStats(),
		"compression": a.compression.GetStats(),
		"cache":       a.charts.Stats(),
		"database":    a.db.GetPoolStats(),
		"records":     a.store.Len(),
	})
}
