package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"chat-broker/internal/models"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

// UserRepository abstracts account persistence.
type UserRepository interface {
	CreateUser(ctx context.Context, username, email, passwordHash string) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	GetUserByID(ctx context.Context, userID int) (models.User, error)
	SearchUsers(ctx context.Context, query string, excludeUserID int) ([]models.User, error)
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// CreateUser inserts a new account. Duplicate username or email yields
// ErrUserExists.
func (r *UserRepo) CreateUser(ctx context.Context, username, email, passwordHash string) (models.User, error) {
	var user models.User
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO users (username, email, password_hash) VALUES ($1, $2, $3)
         RETURNING id, username, email, password_hash, created_at`,
		username, email, passwordHash).StructScan(&user)
	if isUniqueViolation(err) {
		return models.User{}, ErrUserExists
	}
	return user, err
}

// GetUserByUsername fetches an account by username.
func (r *UserRepo) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user,
		`SELECT id, username, email, password_hash, created_at FROM users WHERE username=$1`, username)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// GetUserByID fetches an account by id.
func (r *UserRepo) GetUserByID(ctx context.Context, userID int) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user,
		`SELECT id, username, email, password_hash, created_at FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// SearchUsers returns users whose username contains the query, excluding
// the searching user and anyone already sharing a direct room with them.
// Sequential scan over the user table; fine for the target scale of
// hundreds of accounts.
func (r *UserRepo) SearchUsers(ctx context.Context, query string, excludeUserID int) ([]models.User, error) {
	var users []models.User
	err := r.db.SelectContext(ctx, &users,
		`SELECT u.id, u.username, u.email, u.password_hash, u.created_at FROM users u
         WHERE u.username ILIKE '%' || $1 || '%'
           AND u.id <> $2
           AND NOT EXISTS (
               SELECT 1 FROM room_members rm1
               INNER JOIN room_members rm2 ON rm2.room_id = rm1.room_id
               INNER JOIN rooms r ON r.id = rm1.room_id AND r.kind = 'direct'
               WHERE rm1.user_id = u.id AND rm2.user_id = $2
           )
         ORDER BY u.username ASC`,
		query, excludeUserID)
	return users, err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
