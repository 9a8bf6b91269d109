package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"chat-broker/internal/models"
)

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrRoomExists    = errors.New("room already exists")
	ErrAlreadyMember = errors.New("user already a member")
	ErrNotAMember    = errors.New("user not a member")
)

// RoomRepository abstracts room and membership persistence.
type RoomRepository interface {
	CreateRoom(ctx context.Context, name, kind string) (models.Room, error)
	GetRoomByName(ctx context.Context, name string) (models.Room, error)
	GetRoom(ctx context.Context, roomID int) (models.Room, error)
	AddMember(ctx context.Context, roomID, userID int) error
	RemoveMember(ctx context.Context, roomID, userID int) error
	IsMember(ctx context.Context, roomID, userID int) (bool, error)
	ListRoomsForUser(ctx context.Context, userID int) ([]models.Room, error)
	SearchRooms(ctx context.Context, query string, excludeUserID int) ([]models.Room, error)
}

// RoomRepo is a sqlx implementation of RoomRepository.
type RoomRepo struct {
	db *sqlx.DB
}

// NewRoomRepo constructs a RoomRepo.
func NewRoomRepo(db *sqlx.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

// CreateRoom inserts a new room. The unique constraint on name makes the
// check-then-insert atomic: among N concurrent creators exactly one insert
// succeeds, the rest get ErrRoomExists.
func (r *RoomRepo) CreateRoom(ctx context.Context, name, kind string) (models.Room, error) {
	var room models.Room
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO rooms (name, kind) VALUES ($1, $2)
         RETURNING id, name, kind, created_at`,
		name, kind).StructScan(&room)
	if isUniqueViolation(err) {
		return models.Room{}, ErrRoomExists
	}
	return room, err
}

// GetRoomByName fetches a room by its unique name.
func (r *RoomRepo) GetRoomByName(ctx context.Context, name string) (models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room,
		`SELECT id, name, kind, created_at FROM rooms WHERE name=$1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrRoomNotFound
	}
	return room, err
}

// GetRoom fetches a room by id.
func (r *RoomRepo) GetRoom(ctx context.Context, roomID int) (models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room,
		`SELECT id, name, kind, created_at FROM rooms WHERE id=$1`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrRoomNotFound
	}
	return room, err
}

// AddMember records the (user, room) relation. A duplicate add is rejected
// with ErrAlreadyMember, never silently ignored.
func (r *RoomRepo) AddMember(ctx context.Context, roomID, userID int) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO room_members (room_id, user_id) VALUES ($1, $2)`, roomID, userID)
	if isUniqueViolation(err) {
		return ErrAlreadyMember
	}
	return err
}

// RemoveMember deletes the (user, room) relation. Removing an absent
// relation yields ErrNotAMember.
func (r *RoomRepo) RemoveMember(ctx context.Context, roomID, userID int) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM room_members WHERE room_id=$1 AND user_id=$2`, roomID, userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotAMember
	}
	return nil
}

// IsMember checks the persisted membership relation.
func (r *RoomRepo) IsMember(ctx context.Context, roomID, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM room_members WHERE room_id=$1 AND user_id=$2)`, roomID, userID)
	return exists, err
}

// ListRoomsForUser returns rooms the user belongs to, newest first.
func (r *RoomRepo) ListRoomsForUser(ctx context.Context, userID int) ([]models.Room, error) {
	var rooms []models.Room
	err := r.db.SelectContext(ctx, &rooms,
		`SELECT r.id, r.name, r.kind, r.created_at FROM rooms r
         INNER JOIN room_members rm ON rm.room_id = r.id
         WHERE rm.user_id=$1
         ORDER BY r.created_at DESC`, userID)
	return rooms, err
}

// SearchRooms returns rooms whose name contains the query and the user is
// not a member of. Sequential scan, acceptable at the target scale.
func (r *RoomRepo) SearchRooms(ctx context.Context, query string, excludeUserID int) ([]models.Room, error) {
	var rooms []models.Room
	err := r.db.SelectContext(ctx, &rooms,
		`SELECT r.id, r.name, r.kind, r.created_at FROM rooms r
         WHERE r.name ILIKE '%' || $1 || '%'
           AND NOT EXISTS (SELECT 1 FROM room_members rm WHERE rm.room_id = r.id AND rm.user_id = $2)
         ORDER BY r.name ASC`,
		query, excludeUserID)
	return rooms, err
}
