// Package session runs the login and analysis flows behind the dashboard views.
package session

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"time"

	"github.com/ZanzyTHEbar/gradewatch/internal/analysis"
	"github.com/ZanzyTHEbar/gradewatch/internal/database"
	apperrors "github.com/ZanzyTHEbar/gradewatch/internal/errors"
	"github.com/ZanzyTHEbar/gradewatch/internal/model"
	"github.com/ZanzyTHEbar/gradewatch/internal/records"
	"github.com/ZanzyTHEbar/gradewatch/internal/render"
)

// Directory authenticates users and resolves their student identity.
type Directory interface {
	Authenticate(ctx context.Context, login, password string) (*database.User, error)
	StudentLink(ctx context.Context, userID int64) (*database.StudentLink, error)
}

// RecordSource looks up dataset rows.
type RecordSource interface {
	FetchRecord(studentID string, classNum int) (records.FeatureRow, error)
}

// Config holds the orchestrator settings.
type Config struct {
	// DefaultClassNum is analysed at login when the student row has no class.
	DefaultClassNum int
	Chart           render.ChartOptions
}

// Orchestrator wires credential lookup, the dataset, the model and rendering.
type Orchestrator struct {
	cfg       Config
	directory Directory
	records   RecordSource
	model     model.Predictor
}

// New validates the configuration and returns an orchestrator.
func New(cfg Config, directory Directory, source RecordSource, predictor model.Predictor) (*Orchestrator, error) {
	if cfg.DefaultClassNum <= 0 {
		return nil, fmt.Errorf("default class number must be positive, got %d", cfg.DefaultClassNum)
	}
	if directory == nil || source == nil || predictor == nil {
		return nil, errors.New("directory, record source and predictor are required")
	}
	return &Orchestrator{
		cfg:       cfg,
		directory: directory,
		records:   source,
		model:     predictor,
	}, nil
}

// Report carries everything the student view shows for one analysis.
type Report struct {
	StudentID      string                                   `json:"student_id"`
	ClassNum       int                                      `json:"class_num"`
	Grades         analysis.GradeVector                     `json:"grades"`
	Risks          analysis.RiskVector                      `json:"risks"`
	Severities     [analysis.SubjectCount]analysis.Severity `json:"severities"`
	Recommendation string                                   `json:"recommendation"`
	Average        float64                                  `json:"average"`
	AverageText    string                                   `json:"average_text"`
	ChartHTML      string                                   `json:"-"`
	TableHTML      template.HTML                            `json:"-"`
	Model          string                                   `json:"model"`
}

// Outcome is the result of a successful login.
type Outcome struct {
	View   View                  `json:"view"`
	User   *database.User        `json:"user"`
	Link   *database.StudentLink `json:"link,omitempty"`
	Report *Report               `json:"report,omitempty"`
}

// Login authenticates and, for students, runs the analysis for their own record.
// A failed credential check returns an auth error and leaves the caller on the
// entry view.
func (o *Orchestrator) Login(ctx context.Context, login, password string) (*Outcome, error) {
	user, err := o.directory.Authenticate(ctx, login, password)
	if err != nil {
		if errors.Is(err, database.ErrInvalidCredentials) {
			return nil, apperrors.NewAuthError(err)
		}
		return nil, apperrors.NewInternalError("credential lookup failed", err)
	}

	if user.Role.IsStaff() {
		view, _ := Transition(ViewEntry, EventLoginStaff)
		return &Outcome{View: view, User: user}, nil
	}

	link, err := o.directory.StudentLink(ctx, user.ID)
	if err != nil {
		if errors.Is(err, database.ErrStudentLinkNotFound) {
			return nil, apperrors.NewAnalysisError(apperrors.NewNotFoundError("student profile", err))
		}
		return nil, apperrors.NewInternalError("student lookup failed", err)
	}

	classNum := link.ClassNum
	if classNum <= 0 {
		classNum = o.cfg.DefaultClassNum
	}

	report, err := o.Analyze(ctx, link.StudentID, classNum)
	if err != nil {
		return nil, err
	}

	view, _ := Transition(ViewEntry, EventLoginStudent)
	return &Outcome{View: view, User: user, Link: link, Report: report}, nil
}

// Analyze runs lookup, prediction, normalization and rendering for one student
// and class. Every failure is returned as an analysis error.
func (o *Orchestrator) Analyze(ctx context.Context, studentID string, classNum int) (*Report, error) {
	start := time.Now()

	prediction, err := o.predict(ctx, studentID, classNum)
	if err != nil {
		return nil, err
	}

	report, err := o.buildReport(studentID, classNum, prediction)
	if err != nil {
		return nil, apperrors.NewAnalysisError(err)
	}

	slog.Debug("Analysis complete",
		"student_id", studentID,
		"class_num", classNum,
		"average", report.Average,
		"duration_ms", time.Since(start).Milliseconds())

	return report, nil
}

// Predict runs only the lookup and model stages and normalizes the result. It
// backs the raster chart endpoint, which does not need the HTML outputs.
func (o *Orchestrator) Predict(ctx context.Context, studentID string, classNum int) (analysis.GradeVector, error) {
	prediction, err := o.predict(ctx, studentID, classNum)
	if err != nil {
		return analysis.GradeVector{}, err
	}
	return analysis.Normalize(prediction.Grades), nil
}

func (o *Orchestrator) predict(ctx context.Context, studentID string, classNum int) (model.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return model.Prediction{}, apperrors.NewAnalysisError(err)
	}

	row, err := o.records.FetchRecord(studentID, classNum)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			return model.Prediction{}, apperrors.NewAnalysisError(apperrors.NewNotFoundError("student record", err))
		}
		return model.Prediction{}, apperrors.NewAnalysisError(err)
	}

	prediction, err := o.model.Predict(row)
	if err != nil {
		return model.Prediction{}, apperrors.NewAnalysisError(fmt.Errorf("prediction failed: %w", err))
	}
	return prediction, nil
}

func (o *Orchestrator) buildReport(studentID string, classNum int, p model.Prediction) (*Report, error) {
	grades := analysis.Normalize(p.Grades)
	risks := analysis.Classify(grades)
	avg := analysis.Average(grades)

	chartOpts := o.cfg.Chart
	if chartOpts.Subtitle == "" {
		chartOpts.Subtitle = fmt.Sprintf("student %s, class %d", studentID, classNum)
	}
	chart, err := render.RiskChartHTML(risks, chartOpts)
	if err != nil {
		return nil, err
	}
	table, err := render.GradesTable(grades)
	if err != nil {
		return nil, err
	}

	return &Report{
		StudentID:      studentID,
		ClassNum:       classNum,
		Grades:         grades,
		Risks:          risks,
		Severities:     risks.Severities(),
		Recommendation: analysis.Recommend(grades),
		Average:        avg,
		AverageText:    render.FormatAverage(avg),
		ChartHTML:      chart,
		TableHTML:      table,
		Model:          p.Model,
	}, nil
}
