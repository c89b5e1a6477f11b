package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Repository handles database operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// FetchAllUsers returns every site user keyed by id.
func (r *Repository) FetchAllUsers(ctx context.Context) (map[int64]User, error) {
	stmt, err := r.db.stmt(stmtFetchAllUsers)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := make(map[int64]User)
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Login, &u.Password, &u.Role); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users[u.ID] = u
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}

	return users, nil
}

// FindUserByLogin looks a user up by login name.
func (r *Repository) FindUserByLogin(ctx context.Context, login string) (*User, error) {
	stmt, err := r.db.stmt(stmtFindUserByLogin)
	if err != nil {
		return nil, err
	}

	var u User
	err = stmt.QueryRowContext(ctx, login).Scan(&u.ID, &u.Login, &u.Password, &u.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, login)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	return &u, nil
}

// FetchStudentLink returns the student row of a user.
func (r *Repository) FetchStudentLink(ctx context.Context, userID int64) (*StudentLink, error) {
	stmt, err := r.db.stmt(stmtFetchStudentLink)
	if err != nil {
		return nil, err
	}

	var link StudentLink
	var classNum sql.NullInt64
	err = stmt.QueryRowContext(ctx, userID).Scan(
		&link.UserID, &link.StudentID, &link.FullName, &classNum, &link.ClassLetter,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %d", ErrStudentLinkNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query student link: %w", err)
	}
	if classNum.Valid {
		link.ClassNum = int(classNum.Int64)
	}

	return &link, nil
}

// UpsertUser inserts a user, or updates password and role when the login exists.
// The stored id is written back to u.
func (r *Repository) UpsertUser(ctx context.Context, u *User) error {
	if !u.Role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, u.Role)
	}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO site_user (login, password, type) VALUES (?, ?, ?)
		ON CONFLICT(login) DO UPDATE SET
			password = excluded.password,
			type = excluded.type
		RETURNING user_id
	`, u.Login, u.Password, string(u.Role)).Scan(&u.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}

	return nil
}

// UpsertStudentLink creates or replaces the student row of a user.
func (r *Repository) UpsertStudentLink(ctx context.Context, link StudentLink) error {
	var classNum sql.NullInt64
	if link.ClassNum > 0 {
		classNum = sql.NullInt64{Int64: int64(link.ClassNum), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO student (user_id, student_id, full_name, class_num, class_letter)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			student_id = excluded.student_id,
			full_name = excluded.full_name,
			class_num = excluded.class_num,
			class_letter = excluded.class_letter
	`, link.UserID, link.StudentID, link.FullName, classNum, link.ClassLetter)
	if err != nil {
		return fmt.Errorf("failed to upsert student link: %w", err)
	}

	return nil
}
