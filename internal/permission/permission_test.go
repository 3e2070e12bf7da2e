package permission

import (
	"testing"

	"github.com/cccckit/cccc/internal/model"
)

func testGroup() model.Group {
	return model.Group{
		Actors: []model.Actor{
			{ID: "foreman-1", Enabled: true},
			{ID: "peer-a", Enabled: true},
		},
	}
}

func TestUserHasAllRights(t *testing.T) {
	g := testGroup()
	if err := Check(g, "alice", OpGroupDelete, ""); err != nil {
		t.Fatalf("user should be able to delete group: %v", err)
	}
}

func TestPeerCannotStartOtherActor(t *testing.T) {
	g := testGroup()
	if err := Check(g, "peer-a", OpActorStart, "foreman-1"); err == nil {
		t.Fatalf("expected permission_denied for peer starting foreman")
	}
}

func TestPeerCanStopSelf(t *testing.T) {
	g := testGroup()
	if err := Check(g, "peer-a", OpActorStop, "peer-a"); err != nil {
		t.Fatalf("peer should be able to stop itself: %v", err)
	}
}

func TestForemanCanStartGroup(t *testing.T) {
	g := testGroup()
	if err := Check(g, "foreman-1", OpGroupStart, ""); err != nil {
		t.Fatalf("foreman should be able to start group: %v", err)
	}
}

func TestActorUpdateDeniedForEveryoneButUser(t *testing.T) {
	g := testGroup()
	if err := Check(g, "foreman-1", OpActorUpdate, "foreman-1"); err == nil {
		t.Fatalf("actor_update should be denied for foreman")
	}
	if err := Check(g, "peer-a", OpActorUpdate, "peer-a"); err == nil {
		t.Fatalf("actor_update should be denied for peer")
	}
}

func TestNonActorByIsTreatedAsUser(t *testing.T) {
	g := testGroup()
	if err := Check(g, "alice", OpSend, ""); err != nil {
		t.Fatalf("a by that is not an actor id should be treated as user: %v", err)
	}
}

func TestForemanCanRemoveSelfOnly(t *testing.T) {
	g := testGroup()
	if err := Check(g, "foreman-1", OpActorRemove, "foreman-1"); err != nil {
		t.Fatalf("foreman should be able to remove itself: %v", err)
	}
	if err := Check(g, "foreman-1", OpActorRemove, "peer-a"); err == nil {
		t.Fatalf("expected permission_denied for foreman removing another actor")
	}
}

func TestPeerCanRemoveSelfOnly(t *testing.T) {
	g := testGroup()
	if err := Check(g, "peer-a", OpActorRemove, "peer-a"); err != nil {
		t.Fatalf("peer should be able to remove itself: %v", err)
	}
	if err := Check(g, "peer-a", OpActorRemove, "foreman-1"); err == nil {
		t.Fatalf("expected permission_denied for peer removing another actor")
	}
}

func TestDisabledActorRejected(t *testing.T) {
	g := testGroup()
	g.Actors = append(g.Actors, model.Actor{ID: "retired", Enabled: false})
	if err := Check(g, "retired", OpSend, ""); err == nil {
		t.Fatalf("expected permission_denied for a disabled actor id")
	}
}
