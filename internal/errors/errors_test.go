package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	cause := fmt.Errorf("boom")

	tests := []struct {
		name     string
		err      *AppError
		category ErrorCategory
		status   int
		prefix   string
	}{
		{"validation", NewValidationError("bad class", "class_num"), CategoryValidation, http.StatusBadRequest, "[VALIDATION_ERROR]"},
		{"auth", NewAuthError(cause), CategoryAuth, http.StatusUnauthorized, "[AUTH_ERROR]"},
		{"forbidden", NewForbiddenError("nope"), CategoryForbidden, http.StatusForbidden, "[FORBIDDEN]"},
		{"not found", NewNotFoundError("record", cause), CategoryNotFound, http.StatusNotFound, "[NOT_FOUND]"},
		{"analysis", NewAnalysisError(cause), CategoryAnalysis, http.StatusUnprocessableEntity, "[ANALYSIS_ERROR]"},
		{"timeout", NewTimeoutError("slow", nil), CategoryTimeout, http.StatusGatewayTimeout, "[TIMEOUT_ERROR]"},
		{"rate limit", NewRateLimitError("60s"), CategoryRateLimit, http.StatusTooManyRequests, "[RATE_LIMIT_EXCEEDED]"},
		{"internal", NewInternalError("db", cause), CategoryInternal, http.StatusInternalServerError, "[INTERNAL_ERROR]"},
		{"configuration", NewConfigurationError("missing", nil), CategoryConfiguration, http.StatusInternalServerError, "[CONFIGURATION_ERROR]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.category, tt.err.Category)
			assert.Equal(t, tt.status, tt.err.HTTPStatus)
			assert.Contains(t, tt.err.Error(), tt.prefix)
			assert.False(t, tt.err.Timestamp.IsZero())
		})
	}
}

func TestAuthErrorMessage(t *testing.T) {
	err := NewAuthError(errors.New("no such login"))
	assert.Equal(t, MsgInvalidCredentials, UserMessage(err))
}

func TestAnalysisErrorCarriesCause(t *testing.T) {
	notFound := NewNotFoundError("student record", nil)
	err := NewAnalysisError(notFound)

	assert.Contains(t, err.ErrBuilder.Msg, "student record not found")
	assert.True(t, HasCategory(err, CategoryAnalysis))
	assert.True(t, HasCategory(err, CategoryNotFound))
	assert.False(t, HasCategory(err, CategoryAuth))
}

func TestToAppError(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		assert.Nil(t, ToAppError(nil))
	})

	t.Run("already app error", func(t *testing.T) {
		orig := NewAuthError(nil)
		assert.Same(t, orig, ToAppError(orig))
	})

	t.Run("wrapped app error", func(t *testing.T) {
		orig := NewForbiddenError("x")
		assert.Same(t, orig, ToAppError(fmt.Errorf("ctx: %w", orig)))
	})

	t.Run("deadline", func(t *testing.T) {
		appErr := ToAppError(context.DeadlineExceeded)
		assert.Equal(t, CategoryTimeout, appErr.Category)
	})

	t.Run("plain error", func(t *testing.T) {
		appErr := ToAppError(errors.New("disk on fire"))
		assert.Equal(t, CategoryInternal, appErr.Category)
		assert.Equal(t, "something went wrong, please try again", UserMessage(appErr))
	})
}

func TestErrorHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(ErrorHandler())
	router.GET("/fail", func(c *gin.Context) {
		_ = c.Error(NewNotFoundError("student record", nil))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/fail", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, string(CategoryNotFound), body["category"])
}

func TestRecoveryHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(RecoveryHandler())
	router.GET("/panic", func(c *gin.Context) {
		panic("unexpected")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), string(CategoryInternal))
}
