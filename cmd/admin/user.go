package main

import (
	"fmt"
	"sort"

	"github.com/ZanzyTHEbar/gradewatch/internal/database"
	apperrors "github.com/ZanzyTHEbar/gradewatch/internal/errors"
	"github.com/spf13/cobra"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage site users",
	}
	cmd.AddCommand(newUserAddCmd())
	cmd.AddCommand(newUserListCmd())
	return cmd
}

func newUserAddCmd() *cobra.Command {
	var (
		password    string
		role        string
		studentID   string
		fullName    string
		classNum    int
		classLetter string
	)

	cmd := &cobra.Command{
		Use:   "add LOGIN",
		Short: "Create or update a user, optionally linking a dataset student",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := database.Role(role)
			if !r.Valid() {
				return fmt.Errorf("%w: %q", database.ErrInvalidRole, role)
			}
			if studentID != "" && r != database.RoleStudent {
				return fmt.Errorf("--student-id only applies to the %s role", database.RoleStudent)
			}
			if classNum < 0 {
				return fmt.Errorf("--class must not be negative, got %d", classNum)
			}

			cfg, err := settings(cmd)
			if err != nil {
				return err
			}
			db, users, err := openMigrated(cfg)
			if err != nil {
				return err
			}
			defer apperrors.SafeClose(db, "database")

			ctx := cmd.Context()
			user, err := users.CreateUser(ctx, args[0], password, r)
			if err != nil {
				return err
			}

			if studentID != "" {
				link := database.StudentLink{
					UserID:      user.ID,
					StudentID:   studentID,
					FullName:    fullName,
					ClassNum:    classNum,
					ClassLetter: classLetter,
				}
				if err := users.LinkStudent(ctx, link); err != nil {
					return err
				}
			} else if r == database.RoleStudent {
				cliLogger(cmd, cfg).Warn("student user has no dataset link", "login", user.Login)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "user %d %s (%s)\n", user.ID, user.Login, user.Role)
			return nil
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "Password, stored as a bcrypt hash")
	cmd.Flags().StringVar(&role, "role", string(database.RoleStudent), "One of student, teacher, class_teacher, director")
	cmd.Flags().StringVar(&studentID, "student-id", "", "Dataset student id to link")
	cmd.Flags().StringVar(&fullName, "full-name", "", "Student full name shown on the profile")
	cmd.Flags().IntVar(&classNum, "class", 0, "Class number used for the login analysis")
	cmd.Flags().StringVar(&classLetter, "letter", "", "Class letter")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func newUserListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List site users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := settings(cmd)
			if err != nil {
				return err
			}
			db, users, err := openMigrated(cfg)
			if err != nil {
				return err
			}
			defer apperrors.SafeClose(db, "database")

			all, err := users.Users(cmd.Context())
			if err != nil {
				return err
			}

			ids := make([]int64, 0, len(all))
			for id := range all {
				ids = append(ids, id)
			}
			sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

			out := cmd.OutOrStdout()
			for _, id := range ids {
				u := all[id]
				line := fmt.Sprintf("%d\t%s\t%s", u.ID, u.Login, u.Role)
				if u.Role == database.RoleStudent {
					if link, err := users.StudentLink(cmd.Context(), u.ID); err == nil {
						line += "\t" + link.StudentID
					}
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}
