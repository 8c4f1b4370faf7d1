// Package role defines the fixed role table of the chat platform and the
// hierarchy-aware visibility predicates derived from it.
//
// Roles never mutate after package initialization. Every capability is plain
// data on the Role struct so routing and permission rules can be tested
// against the table instead of against executable predicates.
package role

import (
	"fmt"
	"sort"
)

// ID identifies a role in the fixed role set.
type ID string

const (
	Agent          ID = "A1" // front-line agent
	SuperAgent     ID = "A2"
	Coordinator    ID = "C1" // coordination/training, owns message assignment
	Communications ID = "C2" // announcement room publisher
	HumanResources ID = "C3"
	Supervisor     ID = "S1"
	AreaManager    ID = "R1" // first interplatform rank
	Administrator  ID = "Z1"
	Developer      ID = "Z2"
)

// Visibility describes which roles a user may see online. Either All is set
// or Roles lists the visible role ids explicitly.
type Visibility struct {
	All   bool
	Roles []ID
}

// Includes reports whether the given role id is visible.
func (v Visibility) Includes(id ID) bool {
	if v.All {
		return true
	}
	for _, r := range v.Roles {
		if r == id {
			return true
		}
	}
	return false
}

// Role is an immutable capability record. Code places the role in a totally
// ordered rank space; ReceiveMin is the lowest rank whose authored messages
// the role may read (readability is monotonic in rank above that bound).
type Role struct {
	ID             ID
	Code           int
	ReceiveMin     int
	Interplatform  bool
	CanReply       bool
	CanMention     bool
	CanAssign      bool
	CanSeeOnline   Visibility
	CanExport      bool
	CanSendRelease bool
}

// CanReceiveFrom reports whether messages authored by a role of the given
// rank are readable by this role.
func (r Role) CanReceiveFrom(code int) bool {
	return code >= r.ReceiveMin
}

// IsAdmin reports whether the role is one of the two administrative ranks
// allowed to issue admin actions.
func (r Role) IsAdmin() bool {
	return r.ID == Administrator || r.ID == Developer
}

// IsAgentRank reports whether the role sits below the coordination ranks.
// Agent-rank users may not send notifications to other users.
func (r Role) IsAgentRank() bool {
	return r.Code < table[Coordinator].Code
}

var table = map[ID]Role{
	Agent: {
		ID: Agent, Code: 0, ReceiveMin: 1,
		CanReply:     true,
		CanSeeOnline: Visibility{Roles: []ID{Coordinator}},
	},
	SuperAgent: {
		ID: SuperAgent, Code: 1,
		CanReply: true, CanMention: true,
		CanSeeOnline: Visibility{Roles: []ID{Coordinator}},
	},
	Coordinator: {
		ID: Coordinator, Code: 10,
		CanReply: true, CanMention: true, CanAssign: true,
		CanSeeOnline: Visibility{Roles: []ID{Agent, SuperAgent, Coordinator}},
		CanExport:    true,
	},
	Communications: {
		ID: Communications, Code: 11,
		CanSeeOnline:   Visibility{Roles: []ID{Agent, SuperAgent, Coordinator, Communications}},
		CanExport:      true,
		CanSendRelease: true,
	},
	HumanResources: {
		ID: HumanResources, Code: 13,
		CanReply: true, CanMention: true,
		CanSeeOnline:   Visibility{Roles: []ID{Agent, SuperAgent, Coordinator, HumanResources}},
		CanExport:      true,
		CanSendRelease: true,
	},
	Supervisor: {
		ID: Supervisor, Code: 20,
		CanReply: true, CanMention: true,
		CanSeeOnline: Visibility{Roles: []ID{Agent, SuperAgent, Coordinator, Supervisor, AreaManager}},
		CanExport:    true,
	},
	AreaManager: {
		ID: AreaManager, Code: 30, Interplatform: true,
		CanReply: true, CanMention: true,
		CanSeeOnline: Visibility{Roles: []ID{Agent, SuperAgent, Coordinator, Supervisor, AreaManager}},
		CanExport:    true,
	},
	Administrator: {
		ID: Administrator, Code: 90, Interplatform: true,
		CanSeeOnline: Visibility{Roles: []ID{Agent, SuperAgent, Coordinator, Communications, HumanResources, Supervisor, AreaManager, Administrator}},
		CanExport:    true,
	},
	Developer: {
		ID: Developer, Code: 99, Interplatform: true,
		CanReply: true, CanMention: true,
		CanSeeOnline:   Visibility{All: true},
		CanExport:      true,
		CanSendRelease: true,
	},
}

// byRank caches every role sorted by ascending rank code.
var byRank []Role

// messageRoles caches, per role, the ids whose messages it may read.
var messageRoles = map[ID][]ID{}

func init() {
	for _, r := range table {
		byRank = append(byRank, r)
	}
	sort.Slice(byRank, func(i, j int) bool { return byRank[i].Code < byRank[j].Code })
	for id, r := range table {
		var readable []ID
		for _, other := range byRank {
			if r.CanReceiveFrom(other.Code) {
				readable = append(readable, other.ID)
			}
		}
		messageRoles[id] = readable
	}
}

// Resolve returns the role for the given id. Unknown ids are a hard error:
// they mean a corrupt membership row and must be rejected at session load,
// never silently ignored at routing time.
func Resolve(id ID) (Role, error) {
	r, ok := table[id]
	if !ok {
		return Role{}, fmt.Errorf("unknown role %q", id)
	}
	return r, nil
}

// MessageRoles returns the role ids whose authored messages the role may
// read, in ascending rank order. The set is computed once from the table.
func (r Role) MessageRoles() []ID {
	return messageRoles[r.ID]
}

// LowerRoles returns every role id of strictly lower rank, in ascending rank
// order. It is derived from the same rank space as CanReceiveFrom so the two
// views of the hierarchy cannot drift apart.
func LowerRoles(id ID) ([]ID, error) {
	r, ok := table[id]
	if !ok {
		return nil, fmt.Errorf("unknown role %q", id)
	}
	var lower []ID
	for _, other := range byRank {
		if other.Code < r.Code {
			lower = append(lower, other.ID)
		}
	}
	return lower, nil
}

// PrivateMember returns the role granted to both members of a private room:
// SuperAgent stripped of reply/mention rights and of online visibility.
func PrivateMember() Role {
	r := table[SuperAgent]
	r.CanReply = false
	r.CanMention = false
	r.CanSeeOnline = Visibility{}
	return r
}

// All returns every role in ascending rank order.
func All() []Role {
	out := make([]Role, len(byRank))
	copy(out, byRank)
	return out
}
