package service

import (
	"fmt"
	"hash/fnv"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rdelolmomor/CalioBackend/internal/models"
	"github.com/rdelolmomor/CalioBackend/internal/repository"
	"github.com/rdelolmomor/CalioBackend/internal/role"
	"github.com/rdelolmomor/CalioBackend/internal/utils"
)

const registryShards = 32

// registryShard holds the cached sessions of one identity stripe. Operations
// on the same identity always hit the same shard and serialize on its mutex;
// identities in different stripes never block one another.
type registryShard struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
}

// Registry is the in-memory session cache over the persistent session store.
// It exclusively owns the cached copies; the store is the source of truth on
// cold lookup and is kept in sync write-behind on every validated use.
type Registry struct {
	auth   repository.AuthRepository
	users  repository.UserRepository
	rooms  repository.RoomRepository
	tokens *utils.TokenIssuer
	ttl    time.Duration
	shards [registryShards]registryShard
}

func NewRegistry(repos *repository.Repositories, tokens *utils.TokenIssuer, ttl time.Duration) *Registry {
	r := &Registry{
		auth:   repos.Auth,
		users:  repos.User,
		rooms:  repos.Room,
		tokens: tokens,
		ttl:    ttl,
	}
	for i := range r.shards {
		r.shards[i].sessions = make(map[string]*models.Session)
	}
	return r
}

func (r *Registry) shard(login string) *registryShard {
	h := fnv.New32a()
	h.Write([]byte(login))
	return &r.shards[h.Sum32()%registryShards]
}

// Login verifies credentials, issues a fresh token, persists the session and
// caches the composed session+profile, replacing any previous cached entry
// for the identity.
func (r *Registry) Login(login, password string) (*models.Session, error) {
	if err := r.auth.CheckCredentials(login, password); err != nil {
		return nil, err
	}
	token, expireAt, err := r.tokens.Issue(login)
	if err != nil {
		return nil, fmt.Errorf("%w: issuing token: %v", ErrPersistence, err)
	}
	if err := r.auth.CreateSession(login, token, expireAt); err != nil {
		return nil, fmt.Errorf("%w: creating session: %v", ErrPersistence, err)
	}
	session, err := r.composeSession(login, token, expireAt, models.SessionAuthenticated, "")
	if err != nil {
		return nil, err
	}

	sh := r.shard(login)
	sh.mu.Lock()
	sh.sessions[login] = session
	sh.mu.Unlock()
	return session, nil
}

// composeSession merges the session fields with the user's full room
// profile: service rooms, private rooms (display names rewritten to the
// counterpart's name) and common rooms, in that order.
func (r *Registry) composeSession(login, token string, expireAt time.Time, state, socketID string) (*models.Session, error) {
	user, err := r.users.FindByLogin(login)
	if err != nil {
		return nil, fmt.Errorf("%w: loading profile of %s: %v", ErrPersistence, login, err)
	}
	serviceRooms, err := r.rooms.ServiceRooms(login)
	if err != nil {
		return nil, fmt.Errorf("%w: service rooms of %s: %v", ErrPersistence, login, err)
	}
	privateRooms, err := r.privateRoomsWithNames(login)
	if err != nil {
		return nil, err
	}
	commonRooms, err := r.rooms.CommonRooms(login)
	if err != nil {
		return nil, fmt.Errorf("%w: common rooms of %s: %v", ErrPersistence, login, err)
	}

	rooms := make([]models.RoomMembership, 0, len(serviceRooms)+len(privateRooms)+len(commonRooms))
	rooms = append(rooms, serviceRooms...)
	rooms = append(rooms, privateRooms...)
	rooms = append(rooms, commonRooms...)

	return &models.Session{
		Login:      login,
		Token:      token,
		ExpireAt:   expireAt,
		State:      state,
		SocketID:   socketID,
		Name:       user.Name,
		Avatar:     user.Avatar,
		PlatformID: user.PlatformID,
		Rooms:      rooms,
	}, nil
}

// privateRoomsWithNames loads the login's private rooms and swaps each raw
// "a:b" room name for the counterpart's display name, sorted by counterpart.
func (r *Registry) privateRoomsWithNames(login string) ([]models.RoomMembership, error) {
	rooms, err := r.rooms.PrivateRooms(login)
	if err != nil {
		return nil, fmt.Errorf("%w: private rooms of %s: %v", ErrPersistence, login, err)
	}
	if len(rooms) == 0 {
		return rooms, nil
	}
	counterparts := make([]string, 0, len(rooms))
	for _, room := range rooms {
		counterparts = append(counterparts, counterpartLogin(room.RoomName, login))
	}
	names, err := r.users.NamesByLogins(counterparts)
	if err != nil {
		return nil, fmt.Errorf("%w: counterpart names of %s: %v", ErrPersistence, login, err)
	}
	for i := range rooms {
		if name, ok := names[counterparts[i]]; ok {
			rooms[i].RoomName = name
		}
	}
	sort.Slice(rooms, func(i, j int) bool {
		return counterparts[i] < counterparts[j]
	})
	return rooms, nil
}

// counterpartLogin extracts the other member from a "a:b" private room name.
func counterpartLogin(roomName, login string) string {
	return strings.Trim(strings.Replace(roomName, login, "", 1), ":")
}

// GetSession returns the live session for the identity, or nil when none
// exists. A token mismatch against a cached session is a hard fault. Every
// successful return refreshes the expiry in the store; a failed refresh is
// logged and the session stays valid for this call.
func (r *Registry) GetSession(login, token string) (*models.Session, error) {
	sh := r.shard(login)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return r.getSessionLocked(sh, login, token)
}

func (r *Registry) getSessionLocked(sh *registryShard, login, token string) (*models.Session, error) {
	session, cached := sh.sessions[login]
	if !cached {
		record, err := r.auth.ActiveSession(login, token)
		if err != nil {
			return nil, fmt.Errorf("%w: loading session of %s: %v", ErrPersistence, login, err)
		}
		if record == nil {
			return nil, nil
		}
		session, err = r.composeSession(login, record.Token, record.ExpireAt, record.State, record.SocketID)
		if err != nil {
			return nil, err
		}
		sh.sessions[login] = session
	} else {
		if session.Token != token {
			log.Printf("[registry] token mismatch for %s: possible hijack attempt", login)
			return nil, ErrTokenMismatch
		}
		if !session.ExpireAt.After(time.Now()) {
			if _, err := r.auth.UpdateSessionStatus(login, token, models.SessionExpired); err != nil {
				log.Printf("[registry] marking session of %s expired: %v", login, err)
			}
			delete(sh.sessions, login)
			return nil, nil
		}
	}

	expireAt := time.Now().Add(r.ttl)
	refreshed, err := r.auth.RefreshSession(login, token, expireAt)
	if err != nil {
		log.Printf("[registry] refreshing session of %s: %v", login, err)
	} else if refreshed {
		session.ExpireAt = expireAt
	}
	return session, nil
}

// LinkSocket binds a transport connection to a live session, moving it to
// ACTIVE. It fails closed when no valid session exists.
func (r *Registry) LinkSocket(login, token, socketID string) (bool, error) {
	sh := r.shard(login)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	session, err := r.getSessionLocked(sh, login, token)
	if err != nil {
		return false, err
	}
	if session == nil {
		return false, nil
	}
	linked, err := r.auth.LinkSocket(login, token, socketID)
	if err != nil {
		return false, fmt.Errorf("%w: linking socket of %s: %v", ErrPersistence, login, err)
	}
	if linked {
		session.State = models.SessionActive
		session.SocketID = socketID
	}
	return linked, nil
}

// UnlinkSocket reverts a session to AUTHENTICATED on disconnect. A missing
// session is not an error.
func (r *Registry) UnlinkSocket(login, token string) (bool, error) {
	sh := r.shard(login)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	session, err := r.getSessionLocked(sh, login, token)
	if err != nil {
		return false, err
	}
	if session == nil {
		return false, nil
	}
	unlinked, err := r.auth.UnlinkSocket(login, token)
	if err != nil {
		return false, fmt.Errorf("%w: unlinking socket of %s: %v", ErrPersistence, login, err)
	}
	if unlinked {
		session.State = models.SessionAuthenticated
		session.SocketID = ""
	}
	return unlinked, nil
}

// CloseSession evicts the cached session and marks the persistent record
// closed, typically on logout.
func (r *Registry) CloseSession(login, token string) (bool, error) {
	sh := r.shard(login)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	session, err := r.getSessionLocked(sh, login, token)
	if err != nil {
		return false, err
	}
	if session == nil {
		return false, nil
	}
	delete(sh.sessions, login)
	closed, err := r.auth.UpdateSessionStatus(login, token, models.SessionClosed)
	if err != nil {
		return false, fmt.Errorf("%w: closing session of %s: %v", ErrPersistence, login, err)
	}
	return closed, nil
}

// UpdateAvatar persists the new avatar and then mutates the cached copy.
func (r *Registry) UpdateAvatar(login, token, avatar string) (string, error) {
	sh := r.shard(login)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	session, err := r.getSessionLocked(sh, login, token)
	if err != nil {
		return "", err
	}
	if session == nil {
		return "", ErrSessionInvalid
	}
	updated, err := r.users.UpdateAvatar(login, avatar)
	if err != nil {
		return "", fmt.Errorf("%w: updating avatar of %s: %v", ErrPersistence, login, err)
	}
	if !updated {
		return "", ErrSessionInvalid
	}
	session.Avatar = avatar
	return avatar, nil
}

// JoinPrivateRoom appends the membership to every cached session among the
// given identities. Identities with no cached session are skipped: a later
// reload picks the membership up from storage.
func (r *Registry) JoinPrivateRoom(memberships map[string]models.RoomMembership) {
	for login, membership := range memberships {
		sh := r.shard(login)
		sh.mu.Lock()
		if session, ok := sh.sessions[login]; ok && session.Membership(membership.RoomID) == nil {
			session.Rooms = append(session.Rooms, membership)
		}
		sh.mu.Unlock()
	}
}

// UpdateRoomRole updates or inserts a room membership in the cached session
// only. It fails when the session is not cached, or when the membership does
// not exist and no room data is supplied to create it.
func (r *Registry) UpdateRoomRole(login string, roomID uint, newRole role.Role, room *models.RoomMembership) bool {
	sh := r.shard(login)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	session, ok := sh.sessions[login]
	if !ok {
		return false
	}
	if existing := session.Membership(roomID); existing != nil {
		existing.Role = newRole
		return true
	}
	if room == nil {
		return false
	}
	membership := *room
	membership.RoomID = roomID
	membership.Role = newRole
	session.Rooms = append(session.Rooms, membership)
	return true
}

// RemoveRoom drops a membership from the cached session, if both exist.
func (r *Registry) RemoveRoom(login string, roomID uint) bool {
	sh := r.shard(login)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	session, ok := sh.sessions[login]
	if !ok {
		return false
	}
	for i := range session.Rooms {
		if session.Rooms[i].RoomID == roomID {
			session.Rooms = append(session.Rooms[:i], session.Rooms[i+1:]...)
			return true
		}
	}
	return false
}
