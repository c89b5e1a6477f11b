package analysis

// SubjectCount is the fixed length of every grade and risk vector.
const SubjectCount = 9

// Grade bounds. Anything the model cannot supply is treated as DefaultGrade.
const (
	MinGrade     = 2
	MaxGrade     = 5
	DefaultGrade = 3
)

// subjects is the fixed display and vector order.
var subjects = [SubjectCount]string{
	"Probability and Statistics",
	"Geometry",
	"Social Studies",
	"Russian Language",
	"Modern Literature",
	"Technology",
	"Physical Education",
	"Physics",
	"Chemistry",
}

// Subjects returns the subject names in vector order.
func Subjects() []string {
	out := make([]string, SubjectCount)
	copy(out, subjects[:])
	return out
}

// GradeVector holds one grade per subject. Only Normalize produces one.
type GradeVector [SubjectCount]int

// RiskVector holds one risk level per subject, derived from a GradeVector.
type RiskVector [SubjectCount]int

// Slice returns the grades as a slice, convenient for JSON and templates.
func (g GradeVector) Slice() []int {
	out := make([]int, SubjectCount)
	copy(out, g[:])
	return out
}

// Slice returns the risks as a slice.
func (r RiskVector) Slice() []int {
	out := make([]int, SubjectCount)
	copy(out, r[:])
	return out
}

// Severity is the coloured bucket a risk level falls into.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Color returns the chart colour for the bucket.
func (s Severity) Color() string {
	switch s {
	case SeverityHigh:
		return "#ff5252"
	case SeverityMedium:
		return "#ffb74d"
	default:
		return "#66bb6a"
	}
}

// SubjectResult is a per-subject line of an analysis, used by the JSON API.
type SubjectResult struct {
	Subject  string   `json:"subject"`
	Grade    int      `json:"grade"`
	Risk     int      `json:"risk"`
	Severity Severity `json:"severity"`
}
