// Package frontend serves the server-rendered dashboard views.
package frontend

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"

	"github.com/ZanzyTHEbar/gradewatch/internal/analysis"
	"github.com/ZanzyTHEbar/gradewatch/internal/database"
	"github.com/ZanzyTHEbar/gradewatch/internal/session"
	"github.com/gin-gonic/gin"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// StaticFS returns the stylesheet and other static assets.
func StaticFS() (fs.FS, error) {
	return fs.Sub(staticFS, "static")
}

var viewTitles = map[session.View]string{
	session.ViewHome:     "Home",
	session.ViewEntry:    "Sign in",
	session.ViewRecovery: "Password recovery",
	session.ViewStudent:  "My grades",
	session.ViewTeacher:  "Class overview",
}

// Views holds one parsed template set per view.
type Views struct {
	pages map[session.View]*template.Template
}

// LoadViews parses the embedded templates.
func LoadViews() (*Views, error) {
	v := &Views{pages: make(map[session.View]*template.Template, len(viewTitles))}
	for view := range viewTitles {
		tmpl, err := template.New(string(view)).ParseFS(templateFS, "templates/layout.html", "templates/"+string(view)+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", view, err)
		}
		v.pages[view] = tmpl
	}
	return v, nil
}

type legendEntry struct {
	Severity analysis.Severity
	Label    string
}

var legend = []legendEntry{
	{analysis.SeverityLow, "Low risk (1-2)"},
	{analysis.SeverityMedium, "Medium risk (3)"},
	{analysis.SeverityHigh, "High risk (4)"},
}

// legendCSS colours the legend swatches from the same palette as the charts.
var legendCSS = func() template.CSS {
	var sb strings.Builder
	for _, e := range legend {
		fmt.Fprintf(&sb, ".sev-%s{background:%s}", e.Severity, e.Severity.Color())
	}
	return template.CSS(sb.String())
}()

type page struct {
	View      session.View
	Title     string
	Nonce     string
	Error     string
	Notice    string
	Login     string
	LoggedIn  bool
	Legend    []legendEntry
	LegendCSS template.CSS
	Student   *studentPage
	Teacher   *teacherPage
}

type studentPage struct {
	Login       string
	StudentID   string
	ClassNum    int
	Profile     database.StudentLink
	Report      *session.Report
	ChartURL    string
	ChartPNGURL string
}

type teacherPage struct {
	Login          string
	ClassChart     template.URL
	AtRisk         []string
	Recommendation string
}

func newPage(view session.View, nonce string) *page {
	return &page{
		View:      view,
		Title:     viewTitles[view],
		Nonce:     nonce,
		Legend:    legend,
		LegendCSS: legendCSS,
	}
}

// Render executes the view into a buffer so a template failure never leaves a half-written page.
func (v *Views) Render(c *gin.Context, status int, p *page) error {
	tmpl, ok := v.pages[p.View]
	if !ok {
		return fmt.Errorf("unknown view %q", p.View)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", p); err != nil {
		return fmt.Errorf("failed to execute %s template: %w", p.View, err)
	}

	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
	return nil
}

// StaticHandler serves the embedded assets with a short cache lifetime.
func StaticHandler(assets fs.FS) gin.HandlerFunc {
	fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(assets)))
	return func(c *gin.Context) {
		c.Header("Cache-Control", "public, max-age=3600")
		fileServer.ServeHTTP(c.Writer, c.Request)
	}
}
