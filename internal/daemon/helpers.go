package daemon

import (
	"context"

	"github.com/cccckit/cccc/internal/automation"
	"github.com/cccckit/cccc/internal/delivery"
	"github.com/cccckit/cccc/internal/fsutil"
	"github.com/cccckit/cccc/internal/ledger"
	"github.com/cccckit/cccc/internal/model"
	"github.com/cccckit/cccc/internal/ptysup"
)

func readAllLedger(gr *groupRuntime) ([]model.Event, error) {
	return ledger.ReadAll(gr.layout.LedgerPath(gr.gid))
}

// renderDelivery wraps internal/delivery.Render with the actor's
// bracketed-paste state and fallback policy.
func renderDelivery(d *Daemon, g model.Group, a model.Actor, sess *ptysup.Session, by string, data model.ChatMessageData) string {
	payload, err := delivery.Render(delivery.RenderOptions{
		By: by, To: data.To, Body: data.Text, ReplyTo: data.ReplyTo, QuoteText: data.QuoteText,
		BracketedPaste: sess.BracketedPasteEnabled(),
		Fallback:       delivery.FallbackFile,
		Submit:         a.Submit,
		DeliveryDir:    deliveryDir(d.Layout, g.GroupID),
		ActorID:        a.ID,
	})
	if err != nil {
		return data.Text
	}
	return payload
}

// recordHandoff bumps the receiving actor's automation bookkeeping after a
// successful (or best-effort) delivery.
func (d *Daemon) recordHandoff(gr *groupRuntime, g model.Group, aid string) {
	st, err := gr.autoSt.Get(aid)
	if err != nil {
		return
	}
	st, dec := automation.EvaluateOnHandoff(g.Delivery, st)
	_ = gr.autoSt.Put(aid, st)
	if !dec.SelfCheck {
		return
	}
	key := ptysup.Key{GroupID: g.GroupID, ActorID: aid}
	if sess, ok := d.PTY.Get(key); ok {
		_ = sess.WriteInput([]byte(automation.SelfCheckText() + submitSuffixFor(g, aid)))
	}
	if dec.SystemRefresh {
		if a, found := g.FindActor(aid); found {
			d.injectSystemPrompt(g, a)
		}
	}
}

func submitSuffixFor(g model.Group, aid string) string {
	a, ok := g.FindActor(aid)
	if !ok {
		return ""
	}
	switch a.Submit {
	case model.SubmitEnter:
		return "\r"
	case model.SubmitNewline:
		return "\n"
	default:
		return ""
	}
}

func writeLedgerSnapshot(gr *groupRuntime) (ledger.Snapshot, error) {
	ledgerPath := gr.layout.LedgerPath(gr.gid)
	sidecar := gr.layout.StateDir(gr.gid) + "/ledger/snapshot.json"
	return ledger.WriteSnapshot(ledgerPath, sidecar)
}

func compactGroup(d *Daemon, gr *groupRuntime, force bool) (ledger.CompactionRecord, error) {
	safe, err := gr.cursors.GlobalSafeCursorTS()
	if err != nil {
		return ledger.CompactionRecord{}, err
	}
	stateLedgerDir := gr.layout.StateDir(gr.gid) + "/ledger"
	compactionPath := stateLedgerDir + "/compaction.json"

	var lastRunAt string
	var prev ledger.CompactionRecord
	if fsutil.Exists(compactionPath) {
		if err := fsutil.ReadJSON(compactionPath, &prev); err == nil {
			lastRunAt = prev.RanAt
		}
	}

	var g model.Group
	if err := fsutil.ReadYAML(gr.layout.GroupYAML(gr.gid), &g); err != nil {
		return ledger.CompactionRecord{}, err
	}

	rec, err := ledger.Compact(ledger.CompactOptions{
		LedgerPath:   gr.layout.LedgerPath(gr.gid),
		ArchiveDir:   stateLedgerDir + "/archive",
		LockPath:     stateLedgerDir + "/ledger.lock",
		Config:       g.Ledger,
		SafeCursorTS: safe,
		LastRunAt:    lastRunAt,
		Force:        force,
	})
	if err != nil {
		return ledger.CompactionRecord{}, err
	}
	_ = fsutil.AtomicWriteJSON(compactionPath, rec, 0o644)

	if d.Archive != nil && rec.ArchivedTo != "" && g.Ledger.ArchiveBackend == "postgres" {
		mirrorArchiveSegment(d, gr.gid, rec)
	}
	return rec, nil
}

// mirrorArchiveSegment copies one freshly-written archive segment into the
// optional Postgres mirror. Best-effort: a failure here never blocks
// compaction, since the flat-file segment under archive/ is already the
// durable record.
func mirrorArchiveSegment(d *Daemon, gid string, rec ledger.CompactionRecord) {
	events, err := ledger.ReadAll(rec.ArchivedTo)
	if err != nil {
		d.log.Error(err, "archive mirror: read segment", "path", rec.ArchivedTo)
		return
	}
	if err := d.Archive.MirrorSegment(context.Background(), gid, rec.ArchivedTo, rec.RanAt, rec.SafeCursorTS, events); err != nil {
		d.log.Error(err, "archive mirror: write segment", "path", rec.ArchivedTo)
	}
}
