package daemon

import (
	"encoding/json"
	"sync"

	"github.com/cccckit/cccc/internal/automation"
	"github.com/cccckit/cccc/internal/eventbus"
	"github.com/cccckit/cccc/internal/homedir"
	"github.com/cccckit/cccc/internal/inbox"
	"github.com/cccckit/cccc/internal/ledger"
	"github.com/cccckit/cccc/internal/model"
)

// groupRuntime bundles the long-lived, per-group collaborators that back
// every op touching that group: its ledger writer, cursor store, and
// automation bookkeeping. Exactly one groupRuntime exists per group id for
// the lifetime of the daemon process, enforcing the single-writer-per-group
// model from §5.
type groupRuntime struct {
	mu sync.Mutex // serializes every op handler that mutates this group

	gid     string
	layout  homedir.Layout
	ledger  *ledger.Ledger
	cursors *inbox.CursorStore
	autoSt  *automation.Store
	backp   *automation.BackPressure
	bus     *eventbus.Broadcaster // may be nil in tests that construct groupRuntime directly
}

func newGroupRuntime(layout homedir.Layout, gid string, bus *eventbus.Broadcaster) *groupRuntime {
	return &groupRuntime{
		gid:     gid,
		layout:  layout,
		ledger:  ledger.Open(layout.LedgerPath(gid)),
		cursors: inbox.NewCursorStore(layout.StateDir(gid) + "/read_cursors.json"),
		autoSt:  automation.NewStore(layout.StateDir(gid) + "/automation.json"),
		backp:   automation.NewBackPressure(),
		bus:     bus,
	}
}

// appendEvent writes to the group's ledger and, if an event bus is
// attached, fans the same event out over TopicLedgerAppended for the
// automation ticker and any attached bridge/CLI watchers. Publish failures
// are swallowed: the ledger append already succeeded and is the durable
// record, per §5's single-writer model.
func (gr *groupRuntime) appendEvent(kind model.Kind, groupID, scopeKey, by string, data any) (model.Event, error) {
	ev, err := gr.ledger.Append(kind, groupID, scopeKey, by, data)
	if err != nil {
		return ev, err
	}
	if gr.bus != nil {
		if payload, merr := json.Marshal(ev); merr == nil {
			_ = gr.bus.Publish(eventbus.TopicLedgerAppended, groupID, payload)
		}
	}
	return ev, nil
}

// runnerStateDir returns the PTY runner-state sidecar directory for gid,
// matching the shape ptysup.NewSupervisor expects.
func runnerStateDir(layout homedir.Layout, gid string) string {
	return layout.StateDir(gid) + "/runners/pty"
}

func deliveryDir(layout homedir.Layout, gid string) string {
	return layout.StateDir(gid) + "/delivery"
}
