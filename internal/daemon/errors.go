package daemon

// Error code constants, per §7's taxonomy. Kept as a flat const block (not
// an enum type) because the wire format carries them as bare strings.
const (
	ErrMissingGroupID     = "missing_group_id"
	ErrMissingActorID     = "missing_actor_id"
	ErrMissingEventID     = "missing_event_id"
	ErrMissingPath        = "missing_path"
	ErrInvalidPatch       = "invalid_patch"
	ErrInvalidTemplate    = "invalid_template"
	ErrInvalidScope       = "invalid_scope"
	ErrInvalidCommand     = "invalid_command"
	ErrInvalidRequest     = "invalid_request"
	ErrInvalidProjectRoot = "invalid_project_root"

	ErrGroupNotFound    = "group_not_found"
	ErrActorNotFound    = "actor_not_found"
	ErrEventNotFound    = "event_not_found"
	ErrSessionNotFound  = "session_not_found"
	ErrScopeNotAttached = "scope_not_attached"

	ErrActorAlreadyRunning = "actor_already_running"
	ErrActorNotRunning     = "actor_not_running"
	ErrGroupStartFailed    = "group_start_failed"
	ErrGroupStopFailed     = "group_stop_failed"
	ErrActorStartFailed    = "actor_start_failed"
	ErrActorStopFailed     = "actor_stop_failed"
	ErrActorWriteFailed    = "actor_write_failed"

	ErrPermissionDenied = "permission_denied"

	ErrDaemonUnavailable   = "daemon_unavailable"
	ErrLedgerCompactFailed = "ledger_compact_failed"
	ErrLedgerSnapshotFailed = "ledger_snapshot_failed"

	ErrUnknownOp = "unknown_op"
)
