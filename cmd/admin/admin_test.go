package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/gradewatch/internal/analysis"
	"github.com/ZanzyTHEbar/gradewatch/internal/database"
	apperrors "github.com/ZanzyTHEbar/gradewatch/internal/errors"
	"github.com/ZanzyTHEbar/gradewatch/internal/model"
	"github.com/ZanzyTHEbar/gradewatch/internal/types"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate keeps the host environment out of config.Load.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("ENV_FILE", filepath.Join(dir, "absent.env"))
	t.Setenv("DATA_DIR", dir)
	t.Setenv("DB_PATH", "")
	t.Setenv("DATASET_PATH", "")
	t.Setenv("MODEL_PATH", "")
	t.Setenv("DEFAULT_CLASS_NUMBER", "9")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("GIN_MODE", "debug")
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMigrateCommands(t *testing.T) {
	dir := isolate(t)
	dbPath := filepath.Join(dir, "site.db")

	out, err := execute(t, "--db", dbPath, "migrate", "version")
	require.NoError(t, err)
	assert.Equal(t, "version 0\n", out)

	out, err = execute(t, "--db", dbPath, "migrate", "up")
	require.NoError(t, err)
	assert.Equal(t, "version 1\n", out)

	out, err = execute(t, "--db", dbPath, "migrate", "up")
	require.NoError(t, err, "re-applying is a no-op")
	assert.Equal(t, "version 1\n", out)

	out, err = execute(t, "--db", dbPath, "migrate", "down")
	require.NoError(t, err)
	assert.Equal(t, "version 0\n", out)
}

func TestUserAddAndList(t *testing.T) {
	dir := isolate(t)
	dbPath := filepath.Join(dir, "site.db")

	out, err := execute(t, "--db", dbPath, "user", "add", "anna",
		"--password", "secret", "--role", "student",
		"--student-id", "S1", "--full-name", "Anna Petrova", "--class", "9", "--letter", "B")
	require.NoError(t, err)
	assert.Contains(t, out, "anna (student)")

	_, err = execute(t, "--db", dbPath, "user", "add", "director", "--password", "pw", "--role", "director")
	require.NoError(t, err)

	out, err = execute(t, "--db", dbPath, "user", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "anna\tstudent\tS1\n")
	assert.Contains(t, out, "director\tdirector\n")

	db, err := database.NewDB(dbPath)
	require.NoError(t, err)
	defer db.Close()
	users := database.NewUserService(database.NewRepository(db), "test-secret", time.Hour)

	user, err := users.Authenticate(context.Background(), "anna", "secret")
	require.NoError(t, err)
	link, err := users.StudentLink(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, database.StudentLink{
		UserID: user.ID, StudentID: "S1", FullName: "Anna Petrova", ClassNum: 9, ClassLetter: "B",
	}, *link)
}

func TestUserAddRejectsBadInput(t *testing.T) {
	dir := isolate(t)
	dbPath := filepath.Join(dir, "site.db")

	tests := []struct {
		name string
		args []string
	}{
		{"unknown role", []string{"user", "add", "x", "--password", "pw", "--role", "janitor"}},
		{"link on staff", []string{"user", "add", "x", "--password", "pw", "--role", "teacher", "--student-id", "S1"}},
		{"missing password", []string{"user", "add", "x"}},
		{"negative class", []string{"user", "add", "x", "--password", "pw", "--class", "-1"}},
		{"no login", []string{"user", "add", "--password", "pw"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, append([]string{"--db", dbPath}, tt.args...)...)
			assert.Error(t, err)
		})
	}
}

func writeFixtures(t *testing.T, dir string) {
	t.Helper()

	dataset := "Student,Class,score\nS1,9,1\nS1,10,2\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.csv"), []byte(dataset), 0o644))

	artifact := model.Artifact{Name: "fixture", Version: "1", Kind: model.KindLinear, Features: []string{"score"}}
	for _, b := range []float64{5, 4, 3, 2, 5, 4, 3, 5, 4} {
		artifact.Outputs = append(artifact.Outputs, model.LinearOutput{Intercept: b, Weights: []float64{0}})
	}
	data, err := json.Marshal(artifact)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.json"), data, 0o644))
}

func TestPredict(t *testing.T) {
	dir := isolate(t)
	writeFixtures(t, dir)
	pngPath := filepath.Join(dir, "risk.png")

	out, err := execute(t, "predict", "S1", "--png", pngPath)
	require.NoError(t, err)

	var got types.AnalysisResponse
	require.NoError(t, json.Unmarshal([]byte(out), &got))

	grades := analysis.GradeVector{5, 4, 3, 2, 5, 4, 3, 5, 4}
	want := types.NewAnalysisResponse("S1", 9, grades, "fixture@1")
	if diff := cmp.Diff(*want, got); diff != "" {
		t.Errorf("predict output mismatch (-want +got):\n%s", diff)
	}
	assert.InDelta(t, 3.89, got.Average, 1e-9)

	img, err := os.ReadFile(pngPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(img, []byte("\x89PNG")))
}

func TestPredictExplicitClassAndPaths(t *testing.T) {
	isolate(t)
	fixtures := t.TempDir()
	writeFixtures(t, fixtures)

	out, err := execute(t,
		"--dataset", filepath.Join(fixtures, "data.csv"),
		"--model", filepath.Join(fixtures, "model.json"),
		"predict", "S1", "--class", "10")
	require.NoError(t, err)

	var got types.AnalysisResponse
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 10, got.ClassNum)
}

func TestPredictErrors(t *testing.T) {
	dir := isolate(t)
	writeFixtures(t, dir)

	_, err := execute(t, "predict", "S1", "--class", "11")
	require.Error(t, err)
	assert.True(t, apperrors.HasCategory(err, apperrors.CategoryAnalysis), "missing rows surface as analysis errors")
	assert.True(t, apperrors.HasCategory(err, apperrors.CategoryNotFound))
	assert.Contains(t, err.Error(), "recorded classes: [9 10]")

	_, err = execute(t, "predict", "S9")
	require.Error(t, err)
	assert.True(t, apperrors.HasCategory(err, apperrors.CategoryAnalysis))

	_, err = execute(t, "predict", "S1", "--model", filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	_, err = execute(t, "predict")
	assert.Error(t, err)
}
