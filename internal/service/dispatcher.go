package service

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rdelolmomor/CalioBackend/internal/models"
	"github.com/rdelolmomor/CalioBackend/internal/repository"
	"github.com/rdelolmomor/CalioBackend/internal/role"
	"github.com/rdelolmomor/CalioBackend/internal/routing"
)

// maxMessageLength bounds the trimmed message body.
const maxMessageLength = 300

// Emitter is the transport boundary the dispatcher emits through. The hub
// implements it; tests record through a fake.
type Emitter interface {
	// Emit sends the event to every member of an Include channel that is in
	// no Exclude channel, skipping the originating socket.
	Emit(event string, fan routing.FanOut, skipSocket string, payload interface{})
	// Broadcast sends the event to every connected socket but the origin.
	Broadcast(event string, skipSocket string, payload interface{})
	// Join subscribes a socket to channels.
	Join(socketID string, channels ...string)
	// JoinLogin subscribes every socket of an identity to channels.
	JoinLogin(login string, channels ...string)
	// ChannelsOf lists the channels a socket is subscribed to.
	ChannelsOf(socketID string) []string
}

// Server push event names.
const (
	EventMessage         = "message"
	EventMessageState    = "messageState"
	EventOnline          = "online"
	EventPrivateRoom     = "privateRoom"
	EventExitPrivate     = "exitPrivate"
	EventAdminPopup      = "adminPopup"
	EventForceDisconnect = "forceDisconnect"
	EventUpdateRoom      = "updateRoom"
	EventNotifyPopup     = "notifyPopup"
)

// Admin action types.
const (
	AdminPopup      = "POPUP"
	AdminDisconnect = "DISCONNECT"
	AdminUpdateRoom = "UPDATE_ROOM"
)

var adminEvents = map[string]string{
	AdminPopup:      EventAdminPopup,
	AdminDisconnect: EventForceDisconnect,
	AdminUpdateRoom: EventUpdateRoom,
}

// MessagePayload is an inbound chat message. Depending on which optional
// field is set it becomes a reply, a mention or a plain message; the kind is
// decided once, at ingress.
type MessagePayload struct {
	RoomID     uint   `json:"roomId"`
	Body       string `json:"message"`
	Receiver   string `json:"receiver,omitempty"`
	PreviousID *uint  `json:"previousId,omitempty"`
	Labels     string `json:"labels,omitempty"`
}

// MessageEvent is the outbound message envelope: the persisted message plus
// sender presentation and, for replies, the replied-to context.
type MessageEvent struct {
	models.Message
	Role            role.ID `json:"role"`
	Avatar          string  `json:"avatar,omitempty"`
	Private         bool    `json:"private,omitempty"`
	PreviousName    string  `json:"previousUserName,omitempty"`
	PreviousMessage string  `json:"previousMessage,omitempty"`
	PreviousEmitter string  `json:"previousLOGIN,omitempty"`
	PreviousRole    role.ID `json:"previousRole,omitempty"`
}

// StateChangePayload asks for one message state transition.
type StateChangePayload struct {
	RoomID    uint `json:"roomId"`
	MessageID uint `json:"messageId"`
	StateID   int  `json:"stateId"`
}

// StateEvent is the outbound denormalized state snapshot.
type StateEvent struct {
	MessageID  uint      `json:"messageId"`
	LastState  int       `json:"lastState"`
	StateDate  time.Time `json:"stateDate"`
	StateLogin string    `json:"stateLOGIN"`
}

// PresenceEvent announces a connect or disconnect.
type PresenceEvent struct {
	Login  string  `json:"login"`
	Name   string  `json:"name"`
	Status string  `json:"status"`
	RoomID uint    `json:"roomId,omitempty"`
	Role   role.ID `json:"role,omitempty"`
}

// PrivateRoomPayload asks to open a private room with a guest met in roomId.
type PrivateRoomPayload struct {
	RoomID     uint   `json:"roomId"`
	GuestLogin string `json:"guestLogin"`
}

// PrivateRoomEvent describes an opened private room to both members.
type PrivateRoomEvent struct {
	RoomID       uint            `json:"roomId"`
	RoomName     string          `json:"roomName"`
	CreatorLogin string          `json:"creatorLogin"`
	CreatorName  string          `json:"creatorName"`
	GuestLogin   string          `json:"guestLogin"`
	GuestName    string          `json:"guestName"`
	Private      bool            `json:"private"`
	Type         models.RoomType `json:"type"`
	Role         role.ID         `json:"role"`
}

// ExitPrivatePayload asks to leave (deactivate) a private room.
type ExitPrivatePayload struct {
	RoomID uint `json:"roomId"`
}

// AdminActionPayload is one admin panel action.
type AdminActionPayload struct {
	RoomID   uint         `json:"roomId"`
	Type     string       `json:"type"`
	Receiver string       `json:"receiver"`
	Payload  AdminPayload `json:"payload"`
}

// AdminPayload is the action-specific body forwarded to the receiver.
type AdminPayload struct {
	RoomID  uint    `json:"roomId,omitempty"`
	Role    role.ID `json:"role,omitempty"`
	Message string  `json:"message,omitempty"`
}

// NotifyActionPayload sends a popup notification to one user or, with the
// "/todos" receiver, to the whole platform audience of a room.
type NotifyActionPayload struct {
	RoomID   uint         `json:"roomId"`
	Receiver string       `json:"receiver"`
	Payload  AdminPayload `json:"payload"`
}

// RoomUpdateEvent notifies a user their role in a room changed.
type RoomUpdateEvent struct {
	RoomID   uint            `json:"roomId"`
	RoomName string          `json:"roomName"`
	Type     models.RoomType `json:"type"`
	Role     role.ID         `json:"role"`
}

// Dispatcher orchestrates inbound client events: authenticate, authorize,
// validate, persist, compute fan-out, emit. Failures short-circuit before
// persistence and reach only the originating caller.
type Dispatcher struct {
	registry      *Registry
	router        *routing.Router
	messages      repository.MessageRepository
	rooms         repository.RoomRepository
	users         repository.UserRepository
	emitter       Emitter
	releaseRoomID uint
}

func NewDispatcher(registry *Registry, router *routing.Router, repos *repository.Repositories, emitter Emitter, releaseRoomID uint) *Dispatcher {
	return &Dispatcher{
		registry:      registry,
		router:        router,
		messages:      repos.Message,
		rooms:         repos.Room,
		users:         repos.User,
		emitter:       emitter,
		releaseRoomID: releaseRoomID,
	}
}

// checkSessionAndRole authenticates the caller and authorizes it for the
// target room, the common prefix of every client event.
func (d *Dispatcher) checkSessionAndRole(login, token string, roomID uint) (*models.Session, *models.RoomMembership, error) {
	session, err := d.registry.GetSession(login, token)
	if err != nil {
		return nil, nil, err
	}
	if session == nil {
		return nil, nil, ErrSessionInvalid
	}
	membership := session.Membership(roomID)
	if membership == nil {
		return nil, nil, ErrRoomAccess
	}
	return session, membership, nil
}

// OnConnect joins the fresh connection to every channel its memberships map
// to and announces presence, room by room. The personal channel (the bare
// login) is joined last so mentions and admin events can target the user.
func (d *Dispatcher) OnConnect(session *models.Session, socketID string) error {
	presence := PresenceEvent{
		Login:  session.Login,
		Name:   strings.ToLower(session.Name),
		Status: "online",
	}
	for _, m := range session.Rooms {
		channels, err := d.router.JoinChannels(m, session.PlatformID)
		if err != nil {
			return err
		}
		d.emitter.Join(socketID, channels...)
		fan := d.router.PresenceChannels(m.Role.ID, m.RoomID, session.PlatformID, m.Private)
		event := presence
		event.RoomID = m.RoomID
		event.Role = m.Role.ID
		d.emitter.Emit(EventOnline, fan, socketID, event)
	}
	d.emitter.Join(socketID, session.Login)
	return nil
}

// OnDisconnect unlinks the socket and announces the user offline. The
// disconnect itself is the cancellation signal; there is nothing to abort.
func (d *Dispatcher) OnDisconnect(session *models.Session, token, socketID string) {
	if _, err := d.registry.UnlinkSocket(session.Login, token); err != nil {
		log.Printf("[dispatcher] unlinking socket of %s: %v", session.Login, err)
	}
	presence := PresenceEvent{
		Login:  session.Login,
		Name:   strings.ToLower(session.Name),
		Status: "offline",
	}
	for _, m := range session.Rooms {
		fan := d.router.PresenceChannels(m.Role.ID, m.RoomID, session.PlatformID, m.Private)
		d.emitter.Emit(EventOnline, fan, socketID, presence)
	}
}

// validateMessage applies the payload rules shared by every message kind.
func (d *Dispatcher) validateMessage(m *models.RoomMembership, body string) error {
	if m.RoomID == d.releaseRoomID && !m.Role.CanSendRelease {
		return ErrPermissionDenied
	}
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return validationErr("message must not be empty")
	}
	if utf8.RuneCountInString(trimmed) > maxMessageLength {
		return validationErr(fmt.Sprintf("message exceeds %d characters", maxMessageLength))
	}
	return nil
}

// OnMessage handles a chat message end to end and returns the broadcast
// event, which the transport also acks back to the sender.
func (d *Dispatcher) OnMessage(login, token, socketID string, payload MessagePayload) (*MessageEvent, error) {
	session, membership, err := d.checkSessionAndRole(login, token, payload.RoomID)
	if err != nil {
		return nil, err
	}
	if err := d.validateMessage(membership, payload.Body); err != nil {
		return nil, err
	}

	// The payload becomes exactly one kind here; the branches below never
	// re-probe optional fields.
	kind := routing.Plain
	switch {
	case payload.PreviousID != nil:
		kind = routing.Reply
		if !membership.Role.CanReply {
			return nil, ErrPermissionDenied
		}
	case payload.Receiver != "":
		kind = routing.Mention
		if !membership.Role.CanMention {
			return nil, ErrPermissionDenied
		}
	}

	now := time.Now()
	message := models.Message{
		RoomID:     payload.RoomID,
		Emitter:    login,
		Name:       strings.ToLower(session.Name),
		PlatformID: session.PlatformID,
		Receiver:   payload.Receiver,
		Body:       strings.TrimSpace(payload.Body),
		PreviousID: payload.PreviousID,
		Labels:     payload.Labels,
		Date:       now,
		LastState:  models.MessageSent,
		StateDate:  now,
		StateLogin: login,
	}

	event := MessageEvent{
		Role:    membership.Role.ID,
		Avatar:  session.Avatar,
		Private: membership.Private,
	}
	ctx := routing.MessageContext{
		Kind:       kind,
		Role:       membership.Role,
		RoomID:     payload.RoomID,
		PlatformID: session.PlatformID,
		Private:    membership.Private,
		Receiver:   payload.Receiver,
	}

	if kind == routing.Reply {
		previous, err := d.messages.AnswerByID(*payload.PreviousID)
		if err != nil {
			return nil, fmt.Errorf("%w: loading replied-to message: %v", ErrPersistence, err)
		}
		if previous == nil {
			return nil, validationErr("replied-to message does not exist")
		}
		previousRole, err := d.users.RoleInRoom(previous.Emitter, previous.RoomID)
		if err != nil {
			return nil, fmt.Errorf("%w: role of replied-to author: %v", ErrPersistence, err)
		}
		message.PreviousLogin = previous.Emitter
		event.PreviousName = previous.Name
		event.PreviousMessage = previous.Body
		event.PreviousEmitter = previous.Emitter
		event.PreviousRole = previousRole.ID
		ctx.PreviousRole = previousRole.ID
		ctx.PreviousAuthor = previous.Emitter
	}

	messageID, err := d.messages.Create(&message)
	if err != nil {
		log.Printf("[dispatcher] persisting message in room %d: %v", payload.RoomID, err)
		return nil, fmt.Errorf("%w: storing message", ErrPersistence)
	}
	message.ID = messageID

	if kind == routing.Reply {
		// A reply marks the replied-to message ANSWERED before fan-out.
		ok, err := d.messages.AppendState(login, *payload.PreviousID, models.MessageAnswered)
		if err != nil || !ok {
			log.Printf("[dispatcher] marking message %d answered: ok=%v err=%v", *payload.PreviousID, ok, err)
			return nil, fmt.Errorf("%w: updating replied-to message state", ErrPersistence)
		}
	}

	event.Message = message
	d.emitter.Emit(EventMessage, d.router.MessageChannels(ctx), socketID, event)
	return &event, nil
}

// OnMessageState applies one state transition to a message. Only roles with
// the assignment capability may drive the state machine, and the state id
// must sit in the closed [1,5] range.
func (d *Dispatcher) OnMessageState(login, token, socketID string, payload StateChangePayload) (*StateEvent, error) {
	session, membership, err := d.checkSessionAndRole(login, token, payload.RoomID)
	if err != nil {
		return nil, err
	}
	if payload.StateID < models.MessageSent || payload.StateID > models.MessageReverted {
		return nil, validationErr("state change not allowed")
	}
	if !membership.Role.CanAssign {
		return nil, ErrPermissionDenied
	}
	updated, err := d.messages.AppendState(login, payload.MessageID, payload.StateID)
	if err != nil {
		log.Printf("[dispatcher] appending state %d to message %d: %v", payload.StateID, payload.MessageID, err)
		return nil, fmt.Errorf("%w: storing message state", ErrPersistence)
	}
	if !updated {
		return nil, validationErr("message does not exist")
	}

	event := StateEvent{
		MessageID:  payload.MessageID,
		LastState:  payload.StateID,
		StateDate:  time.Now(),
		StateLogin: login,
	}
	fan := d.router.MessageChannels(routing.MessageContext{
		Kind:       routing.Plain,
		Role:       membership.Role,
		RoomID:     payload.RoomID,
		PlatformID: session.PlatformID,
	})
	d.emitter.Emit(EventMessageState, fan, socketID, event)
	return &event, nil
}

// OnRooms lists the channels the socket is currently subscribed to.
func (d *Dispatcher) OnRooms(socketID string) []string {
	return d.emitter.ChannelsOf(socketID)
}

// OnPrivateRoom opens (or reopens) the private room between the caller and a
// guest met in the given room. The room name is the sorted login pair, so
// the same pair can never yield two rooms.
func (d *Dispatcher) OnPrivateRoom(login, token, socketID string, payload PrivateRoomPayload) (*PrivateRoomEvent, error) {
	session, membership, err := d.checkSessionAndRole(login, token, payload.RoomID)
	if err != nil {
		return nil, err
	}
	guest, err := d.users.UserDataByRoom(payload.GuestLogin, payload.RoomID)
	if err != nil {
		return nil, fmt.Errorf("%w: loading guest data: %v", ErrPersistence, err)
	}
	if guest == nil {
		return nil, validationErr("guest user is not connected")
	}
	if !membership.Role.CanSeeOnline.Includes(role.ID(guest.Role)) {
		return nil, ErrPermissionDenied
	}

	pair := []string{login, payload.GuestLogin}
	sort.Strings(pair)
	name := strings.Join(pair, ":")

	existing, err := d.rooms.PrivateRoomByName(name)
	if err != nil {
		return nil, fmt.Errorf("%w: looking up private room %s: %v", ErrPersistence, name, err)
	}

	var roomID uint
	switch {
	case existing == nil:
		roomID, err = d.rooms.CreatePrivateRoom(login, name)
		if err != nil {
			return nil, fmt.Errorf("%w: creating private room %s: %v", ErrPersistence, name, err)
		}
		if err := d.rooms.CreatePrivateRoomRoles([]string{login, payload.GuestLogin}, roomID); err != nil {
			return nil, fmt.Errorf("%w: granting private room roles: %v", ErrPersistence, err)
		}
	case !existing.Active:
		roomID = existing.ID
		ok, err := d.rooms.SetPrivateRoomActive(roomID, true)
		if err != nil || !ok {
			return nil, fmt.Errorf("%w: reactivating private room %d", ErrPersistence, roomID)
		}
	default:
		roomID = existing.ID
	}

	member := role.PrivateMember()
	event := PrivateRoomEvent{
		RoomID:       roomID,
		RoomName:     name,
		CreatorLogin: login,
		CreatorName:  session.Name,
		GuestLogin:   payload.GuestLogin,
		GuestName:    guest.Name,
		Private:      true,
		Type:         models.RoomPrivate,
		Role:         member.ID,
	}

	// Each cached session shows the counterpart's display name as the room
	// name.
	base := models.RoomMembership{
		RoomID:  roomID,
		Type:    models.RoomPrivate,
		Role:    member,
		Private: true,
		Sound:   true,
	}
	creatorMembership := base
	creatorMembership.RoomName = guest.Name
	guestMembership := base
	guestMembership.RoomName = session.Name
	d.registry.JoinPrivateRoom(map[string]models.RoomMembership{
		login:              creatorMembership,
		payload.GuestLogin: guestMembership,
	})

	private := routing.PrivateChannel(roomID)
	d.emitter.Join(socketID, private)
	d.emitter.JoinLogin(payload.GuestLogin, private)
	d.emitter.Emit(EventPrivateRoom, routing.FanOut{Include: []string{payload.GuestLogin}}, socketID, event)
	return &event, nil
}

// OnExitPrivateRoom deactivates a private room, removes it from both cached
// sessions and notifies the counterpart.
func (d *Dispatcher) OnExitPrivateRoom(login, token, socketID string, payload ExitPrivatePayload) error {
	_, _, err := d.checkSessionAndRole(login, token, payload.RoomID)
	if err != nil {
		return err
	}
	room, err := d.rooms.RoomByID(payload.RoomID)
	if err != nil {
		return fmt.Errorf("%w: loading private room %d: %v", ErrPersistence, payload.RoomID, err)
	}
	closed, err := d.rooms.SetPrivateRoomActive(payload.RoomID, false)
	if err != nil {
		return fmt.Errorf("%w: deactivating private room %d: %v", ErrPersistence, payload.RoomID, err)
	}
	if !closed {
		return validationErr("room is not an active private room")
	}

	other := counterpartLogin(room.Name, login)
	d.registry.RemoveRoom(login, payload.RoomID)
	d.registry.RemoveRoom(other, payload.RoomID)
	d.emitter.Emit(EventExitPrivate, routing.FanOut{Include: []string{other}}, socketID, payload)
	return nil
}

// OnAdminAction executes one admin panel action. Only the two administrative
// ranks may call it.
func (d *Dispatcher) OnAdminAction(login, token, socketID string, action AdminActionPayload) error {
	_, membership, err := d.checkSessionAndRole(login, token, action.RoomID)
	if err != nil {
		return err
	}
	if !membership.Role.IsAdmin() {
		return ErrPermissionDenied
	}
	event, ok := adminEvents[action.Type]
	if !ok {
		return validationErr("undefined admin action")
	}

	if action.Type == AdminUpdateRoom {
		return d.updateRoomRole(action, socketID, event)
	}

	// POPUP and DISCONNECT forward the payload to one user, or to everyone
	// when the receiver is the wildcard.
	if action.Receiver == "*" {
		d.emitter.Broadcast(event, socketID, action.Payload)
		return nil
	}
	d.emitter.Emit(event, routing.FanOut{Include: []string{action.Receiver}}, socketID, action.Payload)
	return nil
}

// updateRoomRole changes (or creates) the receiver's role in a room, keeping
// store and cached session in step, then notifies the receiver. The receiver
// must be connected: a cold session would otherwise resurrect the stale role
// from its cache.
func (d *Dispatcher) updateRoomRole(action AdminActionPayload, socketID, event string) error {
	newRole, err := role.Resolve(action.Payload.Role)
	if err != nil {
		return validationErr(err.Error())
	}
	target := action.Receiver
	targetRoomID := action.Payload.RoomID

	_, err = d.users.RoleInRoom(target, targetRoomID)
	switch {
	case errors.Is(err, repository.ErrNoRoomAccess):
		// No membership yet: create it and add the room to the session.
		if err := d.users.CreateUserRole(target, targetRoomID, newRole.ID); err != nil {
			return fmt.Errorf("%w: creating role assignment: %v", ErrPersistence, err)
		}
		room, err := d.rooms.RoomByID(targetRoomID)
		if err != nil {
			return fmt.Errorf("%w: loading room %d: %v", ErrPersistence, targetRoomID, err)
		}
		membership := models.RoomMembership{
			RoomID:        room.ID,
			RoomName:      room.Name,
			Type:          room.Type,
			Interplatform: room.Interplatform,
			Sound:         true,
		}
		if !d.registry.UpdateRoomRole(target, targetRoomID, newRole, &membership) {
			return validationErr("user must be connected")
		}
		d.emitter.Emit(event, routing.FanOut{Include: []string{target}}, socketID, RoomUpdateEvent{
			RoomID: room.ID, RoomName: room.Name, Type: room.Type, Role: newRole.ID,
		})
		return nil
	case err != nil:
		return fmt.Errorf("%w: loading role assignment: %v", ErrPersistence, err)
	}

	if !d.registry.UpdateRoomRole(target, targetRoomID, newRole, nil) {
		return validationErr("user must be connected")
	}
	changed, err := d.users.ChangeRole(target, targetRoomID, newRole.ID)
	if err != nil || !changed {
		return fmt.Errorf("%w: updating role assignment", ErrPersistence)
	}
	room, err := d.rooms.RoomByID(targetRoomID)
	if err != nil {
		return fmt.Errorf("%w: loading room %d: %v", ErrPersistence, targetRoomID, err)
	}
	d.emitter.Emit(event, routing.FanOut{Include: []string{target}}, socketID, RoomUpdateEvent{
		RoomID: room.ID, RoomName: room.Name, Type: room.Type, Role: newRole.ID,
	})
	return nil
}

// OnNotifyAction sends a popup to one user or, with the "/todos" receiver,
// to the whole platform audience of the room. Agent ranks may not notify.
func (d *Dispatcher) OnNotifyAction(login, token, socketID string, action NotifyActionPayload) error {
	session, membership, err := d.checkSessionAndRole(login, token, action.RoomID)
	if err != nil {
		return err
	}
	if membership.Role.IsAgentRank() {
		return ErrPermissionDenied
	}
	if action.Receiver == "/todos" {
		// Always the caller's own platform channel, even for interplatform
		// ranks: a popup is a platform-local announcement, not a broadcast.
		fan := routing.FanOut{Include: []string{routing.AllRolesChannel(action.Payload.RoomID, session.PlatformID)}}
		d.emitter.Emit(EventNotifyPopup, fan, socketID, action.Payload)
		return nil
	}
	d.emitter.Emit(EventNotifyPopup, routing.FanOut{Include: []string{action.Receiver}}, socketID, action.Payload)
	return nil
}
