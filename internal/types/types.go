// Package types holds the request and response shapes shared by the HTML and JSON surfaces.
package types

import (
	"errors"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/ZanzyTHEbar/gradewatch/internal/analysis"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// LoginRequest is the body of POST /login and POST /api/login
type LoginRequest struct {
	Login    string `json:"login" form:"login" binding:"required,notblank,max=128"`
	Password string `json:"password" form:"password" binding:"required,max=128"`
}

// AnalyzeRequest is the body of POST /api/analyze and POST /student/analyze
type AnalyzeRequest struct {
	StudentID string `json:"student_id" form:"student_id" binding:"required,studentid"`
	ClassNum  int    `json:"class_num" form:"class_num" binding:"omitempty,min=1,max=12"`
}

// NavRequest is the body of POST /nav
type NavRequest struct {
	From  string `form:"from" binding:"required"`
	Event string `form:"event" binding:"required"`
}

// RecoveryRequest is the body of POST /recovery
type RecoveryRequest struct {
	Contact string `form:"contact" binding:"required,notblank,max=128"`
}

// AnalysisResponse is the JSON form of a completed analysis
type AnalysisResponse struct {
	StudentID      string                   `json:"student_id"`
	ClassNum       int                      `json:"class_num"`
	Subjects       []analysis.SubjectResult `json:"subjects"`
	Grades         []int                    `json:"grades"`
	Risks          []int                    `json:"risks"`
	Recommendation string                   `json:"recommendation"`
	Average        float64                  `json:"average"`
	Model          string                   `json:"model,omitempty"`
}

// LoginResponse is returned by POST /api/login
type LoginResponse struct {
	Token     string            `json:"token"`
	ExpiresAt int64             `json:"expires_at"`
	Role      string            `json:"role"`
	View      string            `json:"view"`
	Analysis  *AnalysisResponse `json:"analysis,omitempty"`
}

// ErrorResponse documents the error body for the API docs
type ErrorResponse struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

const (
	notBlankTag  = "notblank"
	studentIDTag = "studentid"
)

var (
	registerOnce sync.Once
	registerErr  error
	translator   ut.Translator
)

// RegisterValidators installs the custom tags and English messages on gin's validator
func RegisterValidators() error {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			registerErr = errors.New("gin validator engine is not go-playground/validator")
			return
		}

		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
				if name == "-" {
					return ""
				}
				if name != "" {
					return name
				}
			}
			return fld.Name
		})

		if registerErr = v.RegisterValidation(notBlankTag, notBlank); registerErr != nil {
			return
		}
		if registerErr = v.RegisterValidation(studentIDTag, studentID); registerErr != nil {
			return
		}

		english := en.New()
		translator, _ = ut.New(english, english).GetTranslator("en")
		if registerErr = en_translations.RegisterDefaultTranslations(v, translator); registerErr != nil {
			return
		}
		noop := func(ut.Translator) error { return nil }
		for _, tag := range []string{notBlankTag, studentIDTag} {
			if registerErr = v.RegisterTranslation(tag, translator, noop, translateCustom); registerErr != nil {
				return
			}
		}
	})
	return registerErr
}

// ValidationMessage turns a binding error into one readable sentence
func ValidationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || translator == nil {
		return "invalid request"
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fe.Translate(translator))
	}
	return strings.Join(msgs, "; ")
}

func translateCustom(_ ut.Translator, fe validator.FieldError) string {
	switch fe.Tag() {
	case notBlankTag:
		return fe.Field() + " cannot be blank"
	case studentIDTag:
		return fe.Field() + " must be a student identifier without spaces"
	default:
		return fe.Error()
	}
}

func notBlank(fl validator.FieldLevel) bool {
	if str, ok := fl.Field().Interface().(string); ok {
		return strings.TrimSpace(str) != ""
	}
	return false
}

func studentID(fl validator.FieldLevel) bool {
	str, ok := fl.Field().Interface().(string)
	if !ok || str == "" || len(str) > 64 {
		return false
	}
	for _, r := range str {
		if unicode.IsSpace(r) || !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

// NewAnalysisResponse builds the JSON body for a grade vector
func NewAnalysisResponse(studentID string, classNum int, grades analysis.GradeVector, model string) *AnalysisResponse {
	return &AnalysisResponse{
		StudentID:      studentID,
		ClassNum:       classNum,
		Subjects:       analysis.Breakdown(grades),
		Grades:         grades.Slice(),
		Risks:          analysis.Classify(grades).Slice(),
		Recommendation: analysis.Recommend(grades),
		Average:        analysis.Average(grades),
		Model:          model,
	}
}
