package role_test

import (
	"testing"

	"github.com/rdelolmomor/CalioBackend/internal/role"
)

// Every role's MessageRoles must agree with its CanReceiveFrom predicate over
// the whole table: an id is listed iff the predicate admits its rank.
func TestMessageRolesMatchReceivePredicate(t *testing.T) {
	for _, r := range role.All() {
		readable := map[role.ID]bool{}
		for _, id := range r.MessageRoles() {
			readable[id] = true
		}
		for _, other := range role.All() {
			want := r.CanReceiveFrom(other.Code)
			if readable[other.ID] != want {
				t.Fatalf("%s: MessageRoles includes %s = %v, CanReceiveFrom(%d) = %v",
					r.ID, other.ID, readable[other.ID], other.Code, want)
			}
		}
	}
}

func TestAgentCannotReadPeers(t *testing.T) {
	agent, err := role.Resolve(role.Agent)
	if err != nil {
		t.Fatalf("Resolve(A1) err: %v", err)
	}
	if agent.CanReceiveFrom(agent.Code) {
		t.Fatal("A1 must not read messages authored by its own rank")
	}
	for _, id := range agent.MessageRoles() {
		if id == role.Agent {
			t.Fatal("A1 listed in its own MessageRoles")
		}
	}
}

func TestResolveUnknownRole(t *testing.T) {
	if _, err := role.Resolve("X9"); err == nil {
		t.Fatal("expected error for unknown role id")
	}
}

func TestLowerRolesFollowRankOrder(t *testing.T) {
	cases := []struct {
		id   role.ID
		want []role.ID
	}{
		{role.Coordinator, []role.ID{role.Agent, role.SuperAgent}},
		{role.Supervisor, []role.ID{role.Agent, role.SuperAgent, role.Coordinator, role.Communications, role.HumanResources}},
		{role.Administrator, []role.ID{role.Agent, role.SuperAgent, role.Coordinator, role.Communications, role.HumanResources, role.Supervisor, role.AreaManager}},
		{role.Developer, []role.ID{role.Agent, role.SuperAgent, role.Coordinator, role.Communications, role.HumanResources, role.Supervisor, role.AreaManager, role.Administrator}},
	}
	for _, tc := range cases {
		got, err := role.LowerRoles(tc.id)
		if err != nil {
			t.Fatalf("LowerRoles(%s) err: %v", tc.id, err)
		}
		if len(got) != len(tc.want) {
			t.Fatalf("LowerRoles(%s) = %v, want %v", tc.id, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("LowerRoles(%s) = %v, want %v", tc.id, got, tc.want)
			}
		}
	}
	if _, err := role.LowerRoles("X9"); err == nil {
		t.Fatal("expected error for unknown role id")
	}
}

func TestPrivateMemberRestrictions(t *testing.T) {
	r := role.PrivateMember()
	if r.ID != role.SuperAgent {
		t.Fatalf("private member role = %s, want A2", r.ID)
	}
	if r.CanReply || r.CanMention {
		t.Fatal("private member must not reply or mention")
	}
	if r.CanSeeOnline.All || len(r.CanSeeOnline.Roles) != 0 {
		t.Fatal("private member must not see anyone online")
	}
	// The restriction is a copy, not a mutation of the table entry.
	base, _ := role.Resolve(role.SuperAgent)
	if !base.CanReply || !base.CanMention {
		t.Fatal("A2 table entry mutated by PrivateMember")
	}
}

func TestAdminAndAgentRanks(t *testing.T) {
	for _, r := range role.All() {
		wantAdmin := r.ID == role.Administrator || r.ID == role.Developer
		if r.IsAdmin() != wantAdmin {
			t.Fatalf("%s IsAdmin = %v", r.ID, r.IsAdmin())
		}
		wantAgent := r.ID == role.Agent || r.ID == role.SuperAgent
		if r.IsAgentRank() != wantAgent {
			t.Fatalf("%s IsAgentRank = %v", r.ID, r.IsAgentRank())
		}
	}
}

func TestVisibilityIncludes(t *testing.T) {
	sup, _ := role.Resolve(role.Supervisor)
	if !sup.CanSeeOnline.Includes(role.Agent) {
		t.Fatal("S1 must see A1 online")
	}
	if sup.CanSeeOnline.Includes(role.Developer) {
		t.Fatal("S1 must not see Z2 online")
	}
	dev, _ := role.Resolve(role.Developer)
	if !dev.CanSeeOnline.Includes(role.Agent) || !dev.CanSeeOnline.Includes(role.Developer) {
		t.Fatal("Z2 sees everyone online")
	}
}

// The online-visibility lists are configuration data, not derivable from the
// rank order: every row is pinned here so a table edit cannot silently
// narrow or widen what a role sees.
func TestOnlineVisibilityTable(t *testing.T) {
	cases := []struct {
		id   role.ID
		all  bool
		want []role.ID
	}{
		{id: role.Agent, want: []role.ID{role.Coordinator}},
		{id: role.SuperAgent, want: []role.ID{role.Coordinator}},
		{id: role.Coordinator, want: []role.ID{role.Agent, role.SuperAgent, role.Coordinator}},
		{id: role.Communications, want: []role.ID{role.Agent, role.SuperAgent, role.Coordinator, role.Communications}},
		{id: role.HumanResources, want: []role.ID{role.Agent, role.SuperAgent, role.Coordinator, role.HumanResources}},
		{id: role.Supervisor, want: []role.ID{role.Agent, role.SuperAgent, role.Coordinator, role.Supervisor, role.AreaManager}},
		{id: role.AreaManager, want: []role.ID{role.Agent, role.SuperAgent, role.Coordinator, role.Supervisor, role.AreaManager}},
		{id: role.Administrator, want: []role.ID{role.Agent, role.SuperAgent, role.Coordinator, role.Communications, role.HumanResources, role.Supervisor, role.AreaManager, role.Administrator}},
		{id: role.Developer, all: true},
	}
	for _, tc := range cases {
		r, err := role.Resolve(tc.id)
		if err != nil {
			t.Fatalf("Resolve(%s) err: %v", tc.id, err)
		}
		if r.CanSeeOnline.All != tc.all {
			t.Fatalf("%s CanSeeOnline.All = %v, want %v", tc.id, r.CanSeeOnline.All, tc.all)
		}
		if tc.all {
			continue
		}
		wanted := map[role.ID]bool{}
		for _, id := range tc.want {
			wanted[id] = true
		}
		for _, other := range role.All() {
			if r.CanSeeOnline.Includes(other.ID) != wanted[other.ID] {
				t.Fatalf("%s CanSeeOnline.Includes(%s) = %v, want %v",
					tc.id, other.ID, r.CanSeeOnline.Includes(other.ID), wanted[other.ID])
			}
		}
	}
}

func TestAdministratorSeesPeerAdministrators(t *testing.T) {
	admin, err := role.Resolve(role.Administrator)
	if err != nil {
		t.Fatalf("Resolve(Z1) err: %v", err)
	}
	if !admin.CanSeeOnline.Includes(role.Administrator) {
		t.Fatal("Z1 must see other Z1 users online")
	}
	if admin.CanSeeOnline.Includes(role.Developer) {
		t.Fatal("Z1 must not see Z2 online")
	}
}
