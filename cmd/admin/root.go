package main

import (
	"fmt"

	"github.com/ZanzyTHEbar/gradewatch/internal/config"
	"github.com/ZanzyTHEbar/gradewatch/internal/database"
	"github.com/ZanzyTHEbar/gradewatch/internal/monitoring"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "gradewatch-admin",
		Short:        "Administer the gradewatch dashboard",
		Long:         "gradewatch-admin applies database migrations, manages site users and runs one-off grade predictions.",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("db", "", "Path to the SQLite user database (overrides DB_PATH)")
	root.PersistentFlags().String("dataset", "", "Path to the student dataset CSV (overrides DATASET_PATH)")
	root.PersistentFlags().String("model", "", "Path to the model artifact (overrides MODEL_PATH)")

	root.AddCommand(newMigrateCmd())
	root.AddCommand(newUserCmd())
	root.AddCommand(newPredictCmd())
	return root
}

// settings resolves the configuration, letting flags win over the environment.
func settings(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	overrides := map[string]*string{
		"db":      &cfg.DBPath,
		"dataset": &cfg.DatasetPath,
		"model":   &cfg.ModelPath,
	}
	for flag, target := range overrides {
		if v, _ := cmd.Flags().GetString(flag); v != "" {
			*target = v
		}
	}
	return cfg, nil
}

func cliLogger(cmd *cobra.Command, cfg *config.Config) *monitoring.Logger {
	return monitoring.NewLoggerTo(cmd.ErrOrStderr(), cfg.LogLevel)
}

// openMigrated opens the user database and brings the schema up to date.
func openMigrated(cfg *config.Config) (*database.DB, *database.UserService, error) {
	db, err := database.NewDB(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", cfg.DBPath, err)
	}
	users := database.NewUserService(database.NewRepository(db), cfg.JWTSecret, cfg.SessionTTL)
	return db, users, nil
}
