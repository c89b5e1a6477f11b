package database

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// UserService provides credential checks and session tokens on top of the repository
type UserService struct {
	repo       *Repository
	jwtSecret  []byte
	sessionTTL time.Duration
}

// NewUserService creates a new user service
func NewUserService(repo *Repository, jwtSecret string, sessionTTL time.Duration) *UserService {
	if sessionTTL <= 0 {
		sessionTTL = 12 * time.Hour
	}
	return &UserService{
		repo:       repo,
		jwtSecret:  []byte(jwtSecret),
		sessionTTL: sessionTTL,
	}
}

// HashPassword returns a bcrypt hash suitable for the password column.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// checkPassword accepts bcrypt hashes and the plaintext rows of older databases.
func checkPassword(stored, password string) bool {
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1
}

// Authenticate returns the user owning the credentials. Unknown login and wrong
// password both yield ErrInvalidCredentials.
func (s *UserService) Authenticate(ctx context.Context, login, password string) (*User, error) {
	user, err := s.repo.FindUserByLogin(ctx, login)
	if errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if err != nil {
		return nil, err
	}

	if !checkPassword(user.Password, password) {
		return nil, fmt.Errorf("%w: password mismatch for %s", ErrInvalidCredentials, login)
	}

	return user, nil
}

// StudentLink resolves the dataset identity of a student user.
func (s *UserService) StudentLink(ctx context.Context, userID int64) (*StudentLink, error) {
	return s.repo.FetchStudentLink(ctx, userID)
}

// Users returns every site user keyed by id.
func (s *UserService) Users(ctx context.Context) (map[int64]User, error) {
	return s.repo.FetchAllUsers(ctx)
}

// CreateUser stores a user with a bcrypt-hashed password.
func (s *UserService) CreateUser(ctx context.Context, login, password string, role Role) (*User, error) {
	if login == "" || password == "" {
		return nil, errors.New("login and password are required")
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &User{Login: login, Password: hash, Role: role}
	if err := s.repo.UpsertUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// LinkStudent attaches a dataset student id to a user.
func (s *UserService) LinkStudent(ctx context.Context, link StudentLink) error {
	if link.StudentID == "" {
		return errors.New("student id is required")
	}
	return s.repo.UpsertStudentLink(ctx, link)
}

// SessionClaims is what a session token proves about its bearer.
type SessionClaims struct {
	UserID    int64     `json:"user_id"`
	Login     string    `json:"login"`
	Role      Role      `json:"role"`
	StudentID string    `json:"student_id,omitempty"`
	ClassNum  int       `json:"class_num,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// GenerateSessionToken issues a signed token for the user. link is nil for staff.
func (s *UserService) GenerateSessionToken(user *User, link *StudentLink) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"jti":     uuid.New().String(),
		"user_id": user.ID,
		"login":   user.Login,
		"role":    string(user.Role),
		"exp":     now.Add(s.sessionTTL).Unix(),
		"iat":     now.Unix(),
	}
	if link != nil {
		claims["student_id"] = link.StudentID
		claims["class_num"] = link.ClassNum
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	return tokenString, nil
}

// ValidateSessionToken verifies a token and returns its claims
func (s *UserService) ValidateSessionToken(tokenString string) (*SessionClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	userID, ok := claims["user_id"].(float64)
	if !ok {
		return nil, fmt.Errorf("user_id not found in token")
	}
	role, _ := claims["role"].(string)
	if !Role(role).Valid() {
		return nil, fmt.Errorf("%w in token: %q", ErrInvalidRole, role)
	}

	sc := &SessionClaims{
		UserID: int64(userID),
		Role:   Role(role),
	}
	sc.Login, _ = claims["login"].(string)
	sc.StudentID, _ = claims["student_id"].(string)
	if classNum, ok := claims["class_num"].(float64); ok {
		sc.ClassNum = int(classNum)
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		sc.ExpiresAt = exp.Time
	}

	return sc, nil
}
