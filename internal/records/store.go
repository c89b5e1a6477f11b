// Package records holds the read-only per-student feature dataset the model is
// applied to. The dataset is loaded once and never mutated afterwards.
package records

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Column names identifying a record. Every other column is a numeric feature.
const (
	StudentColumn = "Student"
	ClassColumn   = "Class"
)

// ErrNotFound is matched by every NotFoundError.
var ErrNotFound = errors.New("record not found")

// NotFoundError reports a (student, class) pair absent from the dataset.
type NotFoundError struct {
	StudentID string
	ClassNum  int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no record for student %s in class %d", e.StudentID, e.ClassNum)
}

// Is lets errors.Is(err, ErrNotFound) match.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// FeatureRow is one dataset row. Empty cells are absent from Features.
type FeatureRow struct {
	StudentID string             `json:"student_id"`
	ClassNum  int                `json:"class_num"`
	Features  map[string]float64 `json:"features"`
}

// Value returns a feature value and whether the row has it.
func (r FeatureRow) Value(name string) (float64, bool) {
	v, ok := r.Features[name]
	return v, ok
}

type key struct {
	student string
	class   int
}

// Store is an immutable in-memory index of the dataset. It is safe for
// concurrent readers.
type Store struct {
	rows     map[key]FeatureRow
	features []string
}

// Load reads the CSV dataset at path.
func Load(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	store, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset %s: %w", path, err)
	}

	slog.Info("Dataset loaded",
		"path", path,
		"records", store.Len(),
		"features", len(store.features))

	return store, nil
}

// Parse builds a Store from CSV content with a header row.
func Parse(r io.Reader) (*Store, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	studentIdx, classIdx := -1, -1
	var featureIdx []int
	var features []string
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		switch name {
		case StudentColumn:
			studentIdx = i
		case ClassColumn:
			classIdx = i
		case "":
			// pandas writes an unnamed index column
		default:
			featureIdx = append(featureIdx, i)
			features = append(features, name)
		}
	}
	if studentIdx < 0 || classIdx < 0 {
		return nil, fmt.Errorf("header must contain %q and %q columns", StudentColumn, ClassColumn)
	}

	store := &Store{
		rows:     make(map[key]FeatureRow),
		features: features,
	}

	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		studentID := strings.TrimSpace(record[studentIdx])
		if studentID == "" {
			return nil, fmt.Errorf("line %d: empty %s", line, StudentColumn)
		}
		classNum, err := parseClass(record[classIdx])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		row := FeatureRow{
			StudentID: studentID,
			ClassNum:  classNum,
			Features:  make(map[string]float64, len(featureIdx)),
		}
		for j, idx := range featureIdx {
			cell := strings.TrimSpace(record[idx])
			if cell == "" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: feature %s: %w", line, features[j], err)
			}
			row.Features[features[j]] = v
		}

		k := key{student: studentID, class: classNum}
		if _, dup := store.rows[k]; dup {
			return nil, fmt.Errorf("line %d: duplicate record for student %s in class %d", line, studentID, classNum)
		}
		store.rows[k] = row
	}

	return store, nil
}

// parseClass accepts "9" as well as the "9.0" pandas emits for float columns.
func parseClass(cell string) (int, error) {
	cell = strings.TrimSpace(cell)
	if n, err := strconv.Atoi(cell); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(cell, 64)
	if err != nil || f != float64(int(f)) {
		return 0, fmt.Errorf("invalid %s value %q", ClassColumn, cell)
	}
	return int(f), nil
}

// FetchRecord returns the row for the given student and class.
func (s *Store) FetchRecord(studentID string, classNum int) (FeatureRow, error) {
	row, ok := s.rows[key{student: studentID, class: classNum}]
	if !ok {
		return FeatureRow{}, &NotFoundError{StudentID: studentID, ClassNum: classNum}
	}
	return row, nil
}

// Len is the number of records.
func (s *Store) Len() int {
	return len(s.rows)
}

// Features lists the feature columns in file order.
func (s *Store) Features() []string {
	out := make([]string, len(s.features))
	copy(out, s.features)
	return out
}

// Classes lists the class numbers recorded for a student, ascending.
func (s *Store) Classes(studentID string) []int {
	var classes []int
	for k := range s.rows {
		if k.student == studentID {
			classes = append(classes, k.class)
		}
	}
	sort.Ints(classes)
	return classes
}
