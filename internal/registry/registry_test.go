package registry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-broker/internal/mocks"
	"chat-broker/internal/models"
	"chat-broker/internal/repositories"
)

// uniqueRoomStore is an in-memory RoomRepository enforcing the same unique
// name constraint the database does, safe for concurrent creators.
type uniqueRoomStore struct {
	mu    sync.Mutex
	names map[string]int
	next  int
}

func newUniqueRoomStore() *uniqueRoomStore {
	return &uniqueRoomStore{names: make(map[string]int)}
}

func (s *uniqueRoomStore) CreateRoom(ctx context.Context, name, kind string) (models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.names[name]; ok {
		return models.Room{}, repositories.ErrRoomExists
	}
	s.next++
	s.names[name] = s.next
	return models.Room{ID: s.next, Name: name, Kind: kind}, nil
}

func (s *uniqueRoomStore) GetRoomByName(ctx context.Context, name string) (models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.names[name]
	if !ok {
		return models.Room{}, repositories.ErrRoomNotFound
	}
	return models.Room{ID: id, Name: name}, nil
}

func (s *uniqueRoomStore) GetRoom(ctx context.Context, roomID int) (models.Room, error) {
	return models.Room{}, repositories.ErrRoomNotFound
}

func (s *uniqueRoomStore) AddMember(ctx context.Context, roomID, userID int) error { return nil }

func (s *uniqueRoomStore) RemoveMember(ctx context.Context, roomID, userID int) error {
	return repositories.ErrNotAMember
}

func (s *uniqueRoomStore) IsMember(ctx context.Context, roomID, userID int) (bool, error) {
	return false, nil
}

func (s *uniqueRoomStore) ListRoomsForUser(ctx context.Context, userID int) ([]models.Room, error) {
	return nil, nil
}

func (s *uniqueRoomStore) SearchRooms(ctx context.Context, query string, excludeUserID int) ([]models.Room, error) {
	return nil, nil
}

func newTestService() (*Service, *mocks.RoomRepositoryMock, *mocks.UserRepositoryMock, *mocks.OccupancyMock) {
	rooms := new(mocks.RoomRepositoryMock)
	users := new(mocks.UserRepositoryMock)
	live := new(mocks.OccupancyMock)
	return NewService(rooms, users, live), rooms, users, live
}

func TestCreateRoomAddsCreator(t *testing.T) {
	svc, rooms, _, _ := newTestService()
	ctx := context.Background()

	rooms.On("CreateRoom", mock.Anything, "general", "group").Return(models.Room{ID: 1, Name: "general", Kind: "group"}, nil).Once()
	rooms.On("AddMember", mock.Anything, 1, 42).Return(nil).Once()

	room, err := svc.CreateRoom(ctx, "general", "group", 42)
	require.NoError(t, err)
	assert.Equal(t, "general", room.Name)
	rooms.AssertExpectations(t)
}

func TestCreateRoomDefaultsToGroupKind(t *testing.T) {
	svc, rooms, _, _ := newTestService()

	rooms.On("CreateRoom", mock.Anything, "general", "group").Return(models.Room{ID: 1}, nil).Once()
	rooms.On("AddMember", mock.Anything, 1, 42).Return(nil).Once()

	_, err := svc.CreateRoom(context.Background(), "general", "", 42)
	require.NoError(t, err)
	rooms.AssertExpectations(t)
}

func TestCreateRoomRejectsInvalidKind(t *testing.T) {
	svc, rooms, _, _ := newTestService()

	_, err := svc.CreateRoom(context.Background(), "general", "broadcast", 42)
	assert.ErrorIs(t, err, ErrInvalidRoomKind)
	rooms.AssertNotCalled(t, "CreateRoom", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateRoomDuplicate(t *testing.T) {
	svc, rooms, _, _ := newTestService()

	rooms.On("CreateRoom", mock.Anything, "general", "group").Return(models.Room{}, repositories.ErrRoomExists).Once()

	_, err := svc.CreateRoom(context.Background(), "general", "group", 42)
	assert.ErrorIs(t, err, repositories.ErrRoomExists)
	rooms.AssertNotCalled(t, "AddMember", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateRoomExactlyOnceUnderConcurrency(t *testing.T) {
	store := newUniqueRoomStore()
	svc := NewService(store, new(mocks.UserRepositoryMock), new(mocks.OccupancyMock))

	const creators = 16
	start := make(chan struct{})
	errs := make(chan error, creators)
	var wg sync.WaitGroup
	for i := 0; i < creators; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.CreateRoom(context.Background(), "general", "group", 42)
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	var created, rejected int
	for err := range errs {
		switch {
		case err == nil:
			created++
		case errors.Is(err, repositories.ErrRoomExists):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, creators-1, rejected)
}

func TestAddMemberDuplicateRejected(t *testing.T) {
	svc, rooms, users, _ := newTestService()

	rooms.On("GetRoomByName", mock.Anything, "general").Return(models.Room{ID: 1, Name: "general"}, nil).Once()
	users.On("GetUserByUsername", mock.Anything, "bob").Return(models.User{ID: 2, Username: "bob"}, nil).Once()
	rooms.On("AddMember", mock.Anything, 1, 2).Return(repositories.ErrAlreadyMember).Once()

	err := svc.AddMember(context.Background(), "general", "bob")
	assert.ErrorIs(t, err, repositories.ErrAlreadyMember)
	rooms.AssertExpectations(t)
	users.AssertExpectations(t)
}

func TestRemoveMemberEvictsLiveSessions(t *testing.T) {
	svc, rooms, users, live := newTestService()

	rooms.On("GetRoomByName", mock.Anything, "general").Return(models.Room{ID: 1, Name: "general"}, nil).Once()
	users.On("GetUserByUsername", mock.Anything, "bob").Return(models.User{ID: 2, Username: "bob"}, nil).Once()
	rooms.On("RemoveMember", mock.Anything, 1, 2).Return(nil).Once()
	live.On("KickUser", 1, 2).Return(1).Once()

	require.NoError(t, svc.RemoveMember(context.Background(), "general", "bob"))
	live.AssertExpectations(t)
}

func TestRemoveMemberFailureLeavesLiveViewAlone(t *testing.T) {
	svc, rooms, users, live := newTestService()

	rooms.On("GetRoomByName", mock.Anything, "general").Return(models.Room{ID: 1, Name: "general"}, nil).Once()
	users.On("GetUserByUsername", mock.Anything, "bob").Return(models.User{ID: 2, Username: "bob"}, nil).Once()
	rooms.On("RemoveMember", mock.Anything, 1, 2).Return(repositories.ErrNotAMember).Once()

	err := svc.RemoveMember(context.Background(), "general", "bob")
	assert.ErrorIs(t, err, repositories.ErrNotAMember)
	live.AssertNotCalled(t, "KickUser", mock.Anything, mock.Anything)
}

func TestFindCollectsNames(t *testing.T) {
	svc, rooms, users, _ := newTestService()

	users.On("SearchUsers", mock.Anything, "gen", 42).Return([]models.User{{ID: 2, Username: "genevieve"}}, nil).Once()
	rooms.On("SearchRooms", mock.Anything, "gen", 42).Return([]models.Room{{ID: 1, Name: "general"}}, nil).Once()

	result, err := svc.Find(context.Background(), "gen", 42)
	require.NoError(t, err)
	assert.Equal(t, []string{"genevieve"}, result.Users)
	assert.Equal(t, []string{"general"}, result.Rooms)
}
