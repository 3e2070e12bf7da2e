package daemon

import (
	"context"
	"time"

	"github.com/cccckit/cccc/internal/automation"
	"github.com/cccckit/cccc/internal/inbox"
	"github.com/cccckit/cccc/internal/model"
	"github.com/cccckit/cccc/internal/obs"
	"github.com/cccckit/cccc/internal/ptysup"
)

// automationTicker runs at ~1 Hz across every running, non-paused group:
// unread nudges and the back-pressure resend pass.
func (d *Daemon) automationTicker(ctx context.Context) {
	defer d.wg.Done()
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.shutdown:
			return
		case <-t.C:
			d.tickAutomationOnce()
		}
	}
}

func (d *Daemon) tickAutomationOnce() {
	for _, meta := range d.Registry.List() {
		g, err := d.loadGroup(meta.GroupID)
		if err != nil || !g.Running || g.Paused {
			continue
		}
		d.tickGroupAutomation(g)
	}
}

func (d *Daemon) tickGroupAutomation(g model.Group) {
	gr := d.groupRuntime(g.GroupID)
	events, err := readAllLedger(gr)
	if err != nil {
		return
	}

	for _, a := range g.Actors {
		if !a.Enabled {
			continue
		}
		key := ptysup.Key{GroupID: g.GroupID, ActorID: a.ID}
		sess, running := d.PTY.Get(key)
		if !running || !sess.Running() {
			continue
		}

		cursor, err := gr.cursors.Get(a.ID)
		if err != nil {
			continue
		}
		unread := inbox.Unread(g, a.ID, events, cursor, 1)
		if len(unread) == 0 {
			continue
		}
		oldest := unread[0]

		st, err := gr.autoSt.Get(a.ID)
		if err != nil {
			continue
		}
		dec := automation.EvaluateNudge(g.Delivery, st, a.ID, oldest.ID, oldest.TS, time.Now())
		if !dec.ShouldNudge {
			continue
		}
		if err := sess.WriteInput([]byte(dec.Text + submitSuffixFor(g, a.ID))); err != nil {
			continue
		}
		st.LastNudgeEventID = dec.EventID
		st.LastNudgeAt = nowISO()
		_ = gr.autoSt.Put(a.ID, st)
	}

	decisions := gr.backp.Tick(time.Duration(g.Delivery.AckTimeoutSeconds)*time.Second, g.Delivery.ResendAttempts)
	for _, rd := range decisions {
		if rd.Resend != nil {
			d.redeliverHandoff(g, rd.Resend)
		}
		if rd.Dropped != nil {
			obs.RecordHandoffDropped()
			_, _ = gr.appendEvent(model.KindSystemNotify, g.GroupID, g.ActiveScopeKey, "daemon", model.SystemNotifyData{
				Text: "handoff-timeout-drop: " + rd.Dropped.MID, To: []string{rd.Dropped.Receiver},
			})
			if rd.Next != nil {
				d.redeliverHandoff(g, rd.Next)
			}
		}
	}
}

func (d *Daemon) redeliverHandoff(g model.Group, h *automation.Handoff) {
	key := ptysup.Key{GroupID: g.GroupID, ActorID: h.Receiver}
	sess, running := d.PTY.Get(key)
	if !running {
		return
	}
	_ = sess.WriteInput([]byte(h.Text + submitSuffixFor(g, h.Receiver)))
}

// compactionTicker runs every 60s, attempting a non-forced compaction for
// every registered group; Compact's own min-interval/size checks make most
// ticks a no-op.
func (d *Daemon) compactionTicker(ctx context.Context) {
	defer d.wg.Done()
	t := time.NewTicker(60 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.shutdown:
			return
		case <-t.C:
			for _, meta := range d.Registry.List() {
				gr := d.groupRuntime(meta.GroupID)
				_, _ = compactGroup(d, gr, false)
			}
		}
	}
}
