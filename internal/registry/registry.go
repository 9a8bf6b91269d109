// Package registry owns the set of rooms and their persisted membership.
// It sits between the HTTP surface and the store, and keeps live occupancy
// consistent with membership: revoking membership evicts the user's live
// sessions from the room.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log"

	"chat-broker/internal/models"
	"chat-broker/internal/repositories"
)

var ErrInvalidRoomKind = errors.New("invalid room kind")

// Occupancy is the hub-side view the registry needs: force-leaving live
// sessions when membership is revoked.
type Occupancy interface {
	KickUser(roomID, userID int) int
}

// FindResult is the discovery search outcome: users and rooms matching the
// query that the searching user has no relation to yet.
type FindResult struct {
	Users []string `json:"users"`
	Rooms []string `json:"rooms"`
}

// Service implements the room registry.
type Service struct {
	rooms repositories.RoomRepository
	users repositories.UserRepository
	live  Occupancy
}

// NewService constructs a Service.
func NewService(rooms repositories.RoomRepository, users repositories.UserRepository, live Occupancy) *Service {
	return &Service{rooms: rooms, users: users, live: live}
}

// CreateRoom creates a room and adds the creator as its first member. Room
// names are globally unique; among concurrent creators of the same name
// exactly one succeeds, the rest get repositories.ErrRoomExists.
func (s *Service) CreateRoom(ctx context.Context, name, kind string, creatorID int) (models.Room, error) {
	if kind == "" {
		kind = models.RoomKindGroup
	}
	if !models.ValidRoomKind(kind) {
		return models.Room{}, fmt.Errorf("%w: %q", ErrInvalidRoomKind, kind)
	}

	room, err := s.rooms.CreateRoom(ctx, name, kind)
	if err != nil {
		return models.Room{}, err
	}
	if err := s.rooms.AddMember(ctx, room.ID, creatorID); err != nil {
		return models.Room{}, fmt.Errorf("add creator to room %q: %w", name, err)
	}
	return room, nil
}

// GetRoom resolves a room by name.
func (s *Service) GetRoom(ctx context.Context, name string) (models.Room, error) {
	return s.rooms.GetRoomByName(ctx, name)
}

// ListRooms returns the rooms the user is a member of.
func (s *Service) ListRooms(ctx context.Context, userID int) ([]models.Room, error) {
	return s.rooms.ListRoomsForUser(ctx, userID)
}

// IsMember checks the persisted membership relation.
func (s *Service) IsMember(ctx context.Context, roomID, userID int) (bool, error) {
	return s.rooms.IsMember(ctx, roomID, userID)
}

// AddMember records the membership of the named user in the named room. A
// duplicate add fails with repositories.ErrAlreadyMember; idempotency is
// the caller's concern.
func (s *Service) AddMember(ctx context.Context, roomName, username string) error {
	room, err := s.rooms.GetRoomByName(ctx, roomName)
	if err != nil {
		return err
	}
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return err
	}
	return s.rooms.AddMember(ctx, room.ID, user.ID)
}

// RemoveMember revokes membership and evicts the user's live sessions from
// the room. The eviction runs strictly after the durable delete commits, so
// a failed removal leaves both the store and the live view untouched.
func (s *Service) RemoveMember(ctx context.Context, roomName, username string) error {
	room, err := s.rooms.GetRoomByName(ctx, roomName)
	if err != nil {
		return err
	}
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return err
	}
	if err := s.rooms.RemoveMember(ctx, room.ID, user.ID); err != nil {
		return err
	}
	if kicked := s.live.KickUser(room.ID, user.ID); kicked > 0 {
		log.Printf("membership revoked, evicted %d live session(s) room=%s user=%s", kicked, roomName, username)
	}
	return nil
}

// Find is the discovery primitive: case-insensitive substring match over
// users and rooms, excluding anything the searching user already relates
// to. Backed by sequential scans; documented as a scaling limit for
// registry sizes beyond a few hundred entries.
func (s *Service) Find(ctx context.Context, query string, userID int) (FindResult, error) {
	users, err := s.users.SearchUsers(ctx, query, userID)
	if err != nil {
		return FindResult{}, err
	}
	rooms, err := s.rooms.SearchRooms(ctx, query, userID)
	if err != nil {
		return FindResult{}, err
	}

	result := FindResult{Users: make([]string, 0, len(users)), Rooms: make([]string, 0, len(rooms))}
	for _, u := range users {
		result.Users = append(result.Users, u.Username)
	}
	for _, r := range rooms {
		result.Rooms = append(result.Rooms, r.Name)
	}
	return result, nil
}
