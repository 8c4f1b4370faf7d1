package service

import (
	"fmt"
	"time"

	"github.com/rdelolmomor/CalioBackend/internal/models"
	"github.com/rdelolmomor/CalioBackend/internal/repository"
	"github.com/rdelolmomor/CalioBackend/internal/role"
	"github.com/rdelolmomor/CalioBackend/internal/routing"
	"github.com/rdelolmomor/CalioBackend/internal/utils"
)

type fakeAuthRepo struct {
	checkErr      error
	record        *models.SessionRecord
	createCalls   int
	refreshCalls  int
	refreshErr    error
	statusUpdates []string
	linkOK        bool
	linkErr       error
	unlinkCalls   int
}

func (f *fakeAuthRepo) CheckCredentials(login, password string) error { return f.checkErr }

func (f *fakeAuthRepo) CreateSession(login, token string, expireAt time.Time) error {
	f.createCalls++
	f.record = &models.SessionRecord{
		Login:    login,
		Token:    token,
		State:    models.SessionAuthenticated,
		ExpireAt: expireAt,
	}
	return nil
}

func (f *fakeAuthRepo) ActiveSession(login, token string) (*models.SessionRecord, error) {
	if f.record == nil || f.record.Login != login || f.record.Token != token {
		return nil, nil
	}
	return f.record, nil
}

func (f *fakeAuthRepo) RefreshSession(login, token string, expireAt time.Time) (bool, error) {
	f.refreshCalls++
	if f.refreshErr != nil {
		return false, f.refreshErr
	}
	return true, nil
}

func (f *fakeAuthRepo) LinkSocket(login, token, socketID string) (bool, error) {
	return f.linkOK, f.linkErr
}

func (f *fakeAuthRepo) UnlinkSocket(login, token string) (bool, error) {
	f.unlinkCalls++
	return true, nil
}

func (f *fakeAuthRepo) UpdateSessionStatus(login, token, status string) (bool, error) {
	f.statusUpdates = append(f.statusUpdates, status)
	return true, nil
}

type fakeUserRepo struct {
	users     map[string]*models.User
	names     map[string]string
	roles     map[string]role.ID // "login/roomID"
	connected map[string]*repository.ConnectedUser
	created   []string
	changed   []string
}

func roleKey(login string, roomID uint) string { return fmt.Sprintf("%s/%d", login, roomID) }

func (f *fakeUserRepo) FindByLogin(login string) (*models.User, error) {
	u, ok := f.users[login]
	if !ok {
		return nil, fmt.Errorf("unknown user %s", login)
	}
	return u, nil
}

func (f *fakeUserRepo) UpdateAvatar(login, avatar string) (bool, error) {
	_, ok := f.users[login]
	return ok, nil
}

func (f *fakeUserRepo) NamesByLogins(logins []string) (map[string]string, error) {
	out := make(map[string]string)
	for _, l := range logins {
		if n, ok := f.names[l]; ok {
			out[l] = n
		}
	}
	return out, nil
}

func (f *fakeUserRepo) RoleInRoom(login string, roomID uint) (role.Role, error) {
	id, ok := f.roles[roleKey(login, roomID)]
	if !ok {
		return role.Role{}, repository.ErrNoRoomAccess
	}
	return role.Resolve(id)
}

func (f *fakeUserRepo) CreateUserRole(login string, roomID uint, id role.ID) error {
	f.created = append(f.created, roleKey(login, roomID))
	if f.roles == nil {
		f.roles = make(map[string]role.ID)
	}
	f.roles[roleKey(login, roomID)] = id
	return nil
}

func (f *fakeUserRepo) ChangeRole(login string, roomID uint, id role.ID) (bool, error) {
	f.changed = append(f.changed, roleKey(login, roomID))
	f.roles[roleKey(login, roomID)] = id
	return true, nil
}

func (f *fakeUserRepo) ConnectedUsers(login string, roomID uint, platformID int, viewer role.Role) ([]repository.ConnectedUser, error) {
	return nil, nil
}

func (f *fakeUserRepo) UserDataByRoom(login string, roomID uint) (*repository.ConnectedUser, error) {
	u, ok := f.connected[login]
	if !ok {
		return nil, nil
	}
	return u, nil
}

type fakeRoomRepo struct {
	serviceRooms []models.RoomMembership
	commonRooms  []models.RoomMembership
	privateRooms []models.RoomMembership
	rooms        map[uint]*models.Room
	byName       map[string]*models.Room
	nextID       uint
	activeSets   map[uint]bool
	roleGrants   [][]string
}

func (f *fakeRoomRepo) RoomType(roomID uint) (models.RoomType, error) {
	if r, ok := f.rooms[roomID]; ok {
		return r.Type, nil
	}
	return models.RoomService, nil
}

func (f *fakeRoomRepo) RoomByID(roomID uint) (*models.Room, error) {
	r, ok := f.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("unknown room %d", roomID)
	}
	return r, nil
}

func (f *fakeRoomRepo) ServiceRooms(login string) ([]models.RoomMembership, error) {
	return f.serviceRooms, nil
}

func (f *fakeRoomRepo) CommonRooms(login string) ([]models.RoomMembership, error) {
	return f.commonRooms, nil
}

func (f *fakeRoomRepo) PrivateRooms(login string) ([]models.RoomMembership, error) {
	return f.privateRooms, nil
}

func (f *fakeRoomRepo) PrivateRoomByName(name string) (*models.Room, error) {
	return f.byName[name], nil
}

func (f *fakeRoomRepo) CreatePrivateRoom(creator, name string) (uint, error) {
	f.nextID++
	room := &models.Room{ID: f.nextID, Name: name, Type: models.RoomPrivate, Creator: creator, Active: true}
	if f.rooms == nil {
		f.rooms = make(map[uint]*models.Room)
	}
	if f.byName == nil {
		f.byName = make(map[string]*models.Room)
	}
	f.rooms[room.ID] = room
	f.byName[name] = room
	return room.ID, nil
}

func (f *fakeRoomRepo) SetPrivateRoomActive(roomID uint, active bool) (bool, error) {
	if f.activeSets == nil {
		f.activeSets = make(map[uint]bool)
	}
	f.activeSets[roomID] = active
	r, ok := f.rooms[roomID]
	if !ok || r.Type != models.RoomPrivate {
		return false, nil
	}
	r.Active = active
	return true, nil
}

func (f *fakeRoomRepo) CreatePrivateRoomRoles(logins []string, roomID uint) error {
	f.roleGrants = append(f.roleGrants, logins)
	return nil
}

type fakeMessageRepo struct {
	stored   []*models.Message
	nextID   uint
	states   []models.MessageState
	stateOK  bool
	previous map[uint]*models.Message
}

func (f *fakeMessageRepo) Create(message *models.Message) (uint, error) {
	f.nextID++
	f.stored = append(f.stored, message)
	return f.nextID, nil
}

func (f *fakeMessageRepo) AppendState(login string, messageID uint, stateID int) (bool, error) {
	if !f.stateOK {
		return false, nil
	}
	f.states = append(f.states, models.MessageState{
		MessageID: messageID,
		StateID:   stateID,
		State:     models.StateName(stateID),
		Login:     login,
	})
	return true, nil
}

func (f *fakeMessageRepo) AnswerByID(messageID uint) (*models.Message, error) {
	return f.previous[messageID], nil
}

func (f *fakeMessageRepo) Available(q repository.HistoryQuery) ([]models.Message, error) {
	return nil, nil
}

func (f *fakeMessageRepo) Filtered(q repository.HistoryQuery) ([]models.Message, error) {
	return nil, nil
}

type emission struct {
	event      string
	fan        routing.FanOut
	skipSocket string
	payload    interface{}
}

// recordingEmitter captures fan-out calls instead of delivering them.
type recordingEmitter struct {
	emitted    []emission
	broadcasts []emission
	joins      map[string][]string
}

func (e *recordingEmitter) Emit(event string, fan routing.FanOut, skipSocket string, payload interface{}) {
	e.emitted = append(e.emitted, emission{event, fan, skipSocket, payload})
}

func (e *recordingEmitter) Broadcast(event string, skipSocket string, payload interface{}) {
	e.broadcasts = append(e.broadcasts, emission{event: event, skipSocket: skipSocket, payload: payload})
}

func (e *recordingEmitter) Join(socketID string, channels ...string) {
	if e.joins == nil {
		e.joins = make(map[string][]string)
	}
	e.joins[socketID] = append(e.joins[socketID], channels...)
}

func (e *recordingEmitter) JoinLogin(login string, channels ...string) {
	if e.joins == nil {
		e.joins = make(map[string][]string)
	}
	e.joins[login] = append(e.joins[login], channels...)
}

func (e *recordingEmitter) ChannelsOf(socketID string) []string {
	if e.joins == nil {
		return nil
	}
	return e.joins[socketID]
}

func (e *recordingEmitter) last() emission {
	return e.emitted[len(e.emitted)-1]
}

func newTestRepos(auth *fakeAuthRepo, users *fakeUserRepo, rooms *fakeRoomRepo, messages *fakeMessageRepo) *repository.Repositories {
	return &repository.Repositories{Auth: auth, User: users, Room: rooms, Message: messages}
}

func newTestRegistry(repos *repository.Repositories) *Registry {
	return NewRegistry(repos, utils.NewTokenIssuer("test-secret", 4*time.Hour), 4*time.Hour)
}
