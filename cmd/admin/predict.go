package main

import (
	"encoding/json"
	"fmt"
	"os"

	apperrors "github.com/ZanzyTHEbar/gradewatch/internal/errors"
	"github.com/ZanzyTHEbar/gradewatch/internal/model"
	"github.com/ZanzyTHEbar/gradewatch/internal/records"
	"github.com/ZanzyTHEbar/gradewatch/internal/render"
	"github.com/ZanzyTHEbar/gradewatch/internal/session"
	"github.com/ZanzyTHEbar/gradewatch/internal/types"
	"github.com/spf13/cobra"
)

func newPredictCmd() *cobra.Command {
	var (
		classNum int
		pngPath  string
	)

	cmd := &cobra.Command{
		Use:   "predict STUDENT_ID",
		Short: "Predict grades and risk for one student and print them as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := settings(cmd)
			if err != nil {
				return err
			}
			if classNum <= 0 {
				classNum = cfg.DefaultClassNum
			}
			studentID := args[0]

			store, err := records.Load(cfg.DatasetPath)
			if err != nil {
				return err
			}
			predictor, err := model.LoadArtifact(cfg.ModelPath)
			if err != nil {
				return err
			}
			db, users, err := openMigrated(cfg)
			if err != nil {
				return err
			}
			defer apperrors.SafeClose(db, "database")

			orch, err := session.New(session.Config{
				DefaultClassNum: cfg.DefaultClassNum,
				Chart:           render.ChartOptions{AssetsHost: cfg.ChartAssetsHost},
			}, users, store, predictor)
			if err != nil {
				return err
			}

			report, err := orch.Analyze(cmd.Context(), studentID, classNum)
			if apperrors.HasCategory(err, apperrors.CategoryNotFound) {
				return fmt.Errorf("%w (recorded classes: %v)", err, store.Classes(studentID))
			}
			if err != nil {
				return err
			}

			if pngPath != "" {
				img, err := render.RiskChartPNG(report.Risks)
				if err != nil {
					return err
				}
				if err := os.WriteFile(pngPath, img, 0644); err != nil {
					return fmt.Errorf("write chart: %w", err)
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(types.NewAnalysisResponse(report.StudentID, report.ClassNum, report.Grades, report.Model))
		},
	}

	cmd.Flags().IntVar(&classNum, "class", 0, "Class number to analyse (defaults to DEFAULT_CLASS_NUMBER)")
	cmd.Flags().StringVar(&pngPath, "png", "", "Also write the risk chart to this PNG file")

	return cmd
}
