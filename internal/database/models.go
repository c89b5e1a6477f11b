package database

import "errors"

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrStudentLinkNotFound = errors.New("student link not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidRole         = errors.New("invalid role")
)

// Role is the site_user.type column.
type Role string

const (
	RoleStudent      Role = "student"
	RoleTeacher      Role = "teacher"
	RoleClassTeacher Role = "class_teacher"
	RoleDirector     Role = "director"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleClassTeacher, RoleDirector:
		return true
	}
	return false
}

// IsStaff is true for every role that lands on the teacher view.
func (r Role) IsStaff() bool {
	return r == RoleTeacher || r == RoleClassTeacher || r == RoleDirector
}

// User is a site_user row.
type User struct {
	ID       int64  `json:"id" db:"user_id"`
	Login    string `json:"login" db:"login"`
	Password string `json:"-" db:"password"`
	Role     Role   `json:"role" db:"type"`
}

// StudentLink is a student row: it maps a login to a dataset student id.
// ClassNum is zero when the class is not recorded.
type StudentLink struct {
	UserID      int64  `json:"user_id" db:"user_id"`
	StudentID   string `json:"student_id" db:"student_id"`
	FullName    string `json:"full_name" db:"full_name"`
	ClassNum    int    `json:"class_num,omitempty" db:"class_num"`
	ClassLetter string `json:"class_letter,omitempty" db:"class_letter"`
}
