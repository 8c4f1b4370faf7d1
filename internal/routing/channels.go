// Package routing computes, from role, room and platform, the logical
// broadcast channels of every fan-out decision: which channels a connection
// joins, and the {include, exclude} sets for presence, message and mention
// events.
//
// All functions are pure. The channel topology is a table keyed by role id so
// the routing rules stay the single testable source of truth for "who can see
// what"; an unrecognized role is an error, never a silent no-op.
package routing

import (
	"fmt"

	"github.com/rdelolmomor/CalioBackend/internal/models"
	"github.com/rdelolmomor/CalioBackend/internal/role"
)

// Channel name prefixes. A channel is "<prefix>:<roomId>:<platformId>";
// private rooms use the bare "<a2 prefix>:<roomId>" form and personal
// channels are the plain login.
const (
	prefixAgent       = "a1"
	prefixSuperAgent  = "a2"
	prefixCoordinator = "c1"
	prefixComms       = "com" // shared by C2 and C3
	prefixSupervisor  = "s1"
	prefixAreaManager = "r1"
	prefixAdmin       = "z1"
	prefixDeveloper   = "z2"
	prefixAll         = "tp" // every role of one platform
)

// FanOut is an {include, exclude} channel pair: the event reaches every
// member of an Include channel that is in no Exclude channel.
type FanOut struct {
	Include []string
	Exclude []string
}

// rule describes one role's channel topology inside a room.
type rule struct {
	own         string   // the role's peer channel prefix
	cross       bool     // joins the cross-platform all-roles set
	presenceIn  []string // prefixes notified of connect/disconnect
	presenceOut []string // prefixes excluded from presence notification
}

// The topology table. Agent ranks are excluded from their own peer channels
// on presence so peers are not notified of identical-role churn; the upper
// ranks are notified through their own and the developer channels because
// they do not sit in the platform-wide channel audience for presence.
var rules = map[role.ID]rule{
	role.Agent:          {own: prefixAgent, presenceIn: []string{prefixAll}, presenceOut: []string{prefixAgent, prefixSuperAgent}},
	role.SuperAgent:     {own: prefixSuperAgent, presenceIn: []string{prefixAll}, presenceOut: []string{prefixAgent, prefixSuperAgent}},
	role.Coordinator:    {own: prefixCoordinator, presenceIn: []string{prefixAll}},
	role.Communications: {own: prefixComms, presenceIn: []string{prefixComms, prefixSupervisor}},
	role.HumanResources: {own: prefixComms, presenceIn: []string{prefixComms, prefixSupervisor}},
	role.Supervisor:     {own: prefixSupervisor, presenceIn: []string{prefixAll}, presenceOut: []string{prefixAgent, prefixSuperAgent}},
	role.AreaManager:    {own: prefixAreaManager, cross: true, presenceIn: []string{prefixAreaManager, prefixDeveloper}},
	role.Administrator:  {own: prefixAdmin, cross: true, presenceIn: []string{prefixAdmin, prefixDeveloper}},
	role.Developer:      {own: prefixDeveloper, cross: true, presenceIn: []string{prefixDeveloper}},
}

// mentionPrefixes are every administrative/supervisory channel of a room:
// the audience of mentions and of replies addressed to the lowest rank.
var mentionPrefixes = []string{
	prefixSuperAgent, prefixCoordinator, prefixComms,
	prefixSupervisor, prefixAreaManager, prefixAdmin, prefixDeveloper,
}

func channel(prefix string, roomID uint, platformID int) string {
	return fmt.Sprintf("%s:%d:%d", prefix, roomID, platformID)
}

// PrivateChannel is the single dedicated channel of a private room.
func PrivateChannel(roomID uint) string {
	return fmt.Sprintf("%s:%d", prefixSuperAgent, roomID)
}

// AllRolesChannel is the room's all-roles channel on one platform.
func AllRolesChannel(roomID uint, platformID int) string {
	return channel(prefixAll, roomID, platformID)
}

// Router resolves channel sets against the configured tenant (platform)
// table; the cross-platform set spans every known platform.
type Router struct {
	platforms []int
}

// NewRouter builds a router over the given platform ids.
func NewRouter(platforms []int) *Router {
	return &Router{platforms: platforms}
}

// crossPlatform returns the all-roles channel of the room on every platform.
func (rt *Router) crossPlatform(roomID uint) []string {
	out := make([]string, 0, len(rt.platforms))
	for _, p := range rt.platforms {
		out = append(out, channel(prefixAll, roomID, p))
	}
	return out
}

// JoinChannels returns the channels a newly connected session subscribes to
// for one room membership. Private memberships join only the dedicated
// private channel; interplatform ranks join the cross-platform set.
func (rt *Router) JoinChannels(m models.RoomMembership, platformID int) ([]string, error) {
	if m.Private {
		return []string{PrivateChannel(m.RoomID)}, nil
	}
	r, ok := rules[m.Role.ID]
	if !ok {
		return nil, fmt.Errorf("no channel rule for role %q", m.Role.ID)
	}
	join := []string{channel(r.own, m.RoomID, platformID)}
	if r.cross {
		return append(join, rt.crossPlatform(m.RoomID)...), nil
	}
	return append(join, channel(prefixAll, m.RoomID, platformID)), nil
}

// PresenceChannels returns the {include, exclude} pair notified when a member
// of the room connects or disconnects. Private memberships emit no presence
// notification at all.
func (rt *Router) PresenceChannels(id role.ID, roomID uint, platformID int, private bool) FanOut {
	if private {
		return FanOut{}
	}
	r, ok := rules[id]
	if !ok {
		return FanOut{}
	}
	var fan FanOut
	for _, p := range r.presenceIn {
		fan.Include = append(fan.Include, channel(p, roomID, platformID))
	}
	for _, p := range r.presenceOut {
		fan.Exclude = append(fan.Exclude, channel(p, roomID, platformID))
	}
	return fan
}

// MessageKind tags a message context, decided once at ingress.
type MessageKind int

const (
	Plain MessageKind = iota
	Reply
	Mention
)

// MessageContext carries everything the message fan-out decision needs.
type MessageContext struct {
	Kind       MessageKind
	Role       role.Role
	RoomID     uint
	PlatformID int
	Private    bool

	// Reply only: role and author of the replied-to message.
	PreviousRole   role.ID
	PreviousAuthor string

	// Mention only: the named recipient's login.
	Receiver string
}

// MessageChannels returns the {include, exclude} pair of a message event.
//
// Private messages target only the dedicated private channel. Replies to a
// lowest-rank author reroute to the mention set so the addressed agent (and
// the supervisory ranks) see them while other agents do not. Plain messages
// from the lowest rank exclude that rank's own peer channel, because agents
// may not read each other.
func (rt *Router) MessageChannels(ctx MessageContext) FanOut {
	if ctx.Private {
		return FanOut{Include: []string{PrivateChannel(ctx.RoomID)}}
	}
	if ctx.Kind == Mention {
		return rt.MentionChannels(ctx.RoomID, ctx.PlatformID, ctx.Receiver)
	}
	if ctx.Kind == Reply && ctx.PreviousRole == role.Agent {
		return rt.MentionChannels(ctx.RoomID, ctx.PlatformID, ctx.PreviousAuthor)
	}
	var include []string
	if ctx.Role.Interplatform {
		include = rt.crossPlatform(ctx.RoomID)
	} else {
		include = []string{channel(prefixAll, ctx.RoomID, ctx.PlatformID)}
	}
	fan := FanOut{Include: include}
	if ctx.Kind == Reply || ctx.Role.ID == role.Agent {
		fan.Exclude = []string{channel(prefixAgent, ctx.RoomID, ctx.PlatformID)}
	}
	return fan
}

// MentionChannels returns the union of every administrative/supervisory
// channel of the room plus the named recipient's personal channel, regardless
// of platform partitioning of the author.
func (rt *Router) MentionChannels(roomID uint, platformID int, receiver string) FanOut {
	include := make([]string, 0, len(mentionPrefixes)+1)
	for _, p := range mentionPrefixes {
		include = append(include, channel(p, roomID, platformID))
	}
	return FanOut{Include: append(include, receiver)}
}
