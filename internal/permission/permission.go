// Package permission implements the foreman/peer/user permission matrix
// from §4.1, in the discrete validate-function-per-rule shape the teacher
// uses for admission review (internal/webhook's PolicyEnforcer), adapted
// from Kubernetes admission control to op-level authorization.
package permission

import (
	"fmt"

	"github.com/cccckit/cccc/internal/model"
)

// Role is the caller's effective role for a given request.
type Role string

const (
	RoleUser    Role = "user"
	RoleForeman Role = "foreman"
	RolePeer    Role = "peer"
	RoleUnknown Role = "unknown"
)

// ResolveRole derives by's role in group g. Any by that is not one of g's
// actor ids is a user (the spec's rule: "any by that is not an actor id").
func ResolveRole(g model.Group, by string) Role {
	actor, ok := g.FindActor(by)
	if !ok {
		return RoleUser
	}
	if !actor.Enabled {
		return RoleUnknown
	}
	switch g.EffectiveRole(by) {
	case "foreman":
		return RoleForeman
	case "peer":
		return RolePeer
	default:
		return RoleUnknown
	}
}

// Denied is returned by a validate function that rejects an operation.
type Denied struct {
	Reason string
}

func (d *Denied) Error() string { return d.Reason }

func deny(format string, args ...any) error {
	return &Denied{Reason: fmt.Sprintf(format, args...)}
}

// Op enumerates the permission-checked op surface.
type Op string

const (
	OpGroupStart        Op = "group_start"
	OpGroupStop         Op = "group_stop"
	OpGroupSetState     Op = "group_set_state"
	OpGroupUpdate       Op = "group_update"
	OpGroupDetachScope  Op = "group_detach_scope"
	OpGroupDelete       Op = "group_delete"
	OpActorAdd          Op = "actor_add"
	OpActorStart        Op = "actor_start"
	OpActorStop         Op = "actor_stop"
	OpActorRestart      Op = "actor_restart"
	OpActorRemove       Op = "actor_remove"
	OpActorUpdate       Op = "actor_update"
	OpActorList         Op = "actor_list"
	OpInboxList         Op = "inbox_list"
	OpInboxMarkRead     Op = "inbox_mark_read"
	OpSend              Op = "send"
)

// Check validates whether by (with role in group g) may perform op against
// targetActor (empty if the op is not actor-scoped). It returns a *Denied
// error when the rule denies the request.
func Check(g model.Group, by string, op Op, targetActor string) error {
	role := ResolveRole(g, by)

	if role == RoleUnknown {
		return deny("permission_denied: unknown or disabled actor %q", by)
	}
	if role == RoleUser {
		return nil
	}

	switch op {
	case OpActorStart, OpActorStop, OpActorRestart:
		if role == RoleForeman {
			return nil
		}
		// Peers may only act on themselves.
		if targetActor == by {
			return nil
		}
		return deny("permission_denied: peer %q may only %s itself", by, op)
	case OpActorRemove:
		// Foreman and peer alike may only remove themselves.
		if targetActor == by {
			return nil
		}
		return deny("permission_denied: %s %q may only remove itself", role, by)
	case OpActorList, OpInboxList, OpInboxMarkRead:
		return nil
	case OpGroupStart, OpGroupStop, OpGroupUpdate, OpGroupDetachScope, OpGroupDelete, OpGroupSetState:
		if role == RoleForeman {
			return nil
		}
		return deny("permission_denied: peer %q may not run %s", by, op)
	case OpActorAdd:
		if role == RoleForeman {
			return nil
		}
		return deny("permission_denied: peer %q may not add actors", by)
	case OpActorUpdate:
		// Denied for both foreman and peer — UI/CLI (user) only.
		return deny("permission_denied: actor_update is user-only")
	case OpSend:
		return nil
	default:
		return nil
	}
}
