// Digest is a supplemented feature not present in spec.md or the original
// implementation: an optional per-group cron schedule. The daemon does not
// construct a DigestScheduler, so a group's delivery.digest_cron setting
// schedules nothing and no digest summary is posted.
package automation

import (
	"github.com/robfig/cron/v3"
)

// DigestScheduler wraps one robfig/cron scheduler holding at most one
// caller-supplied job per group, added and replaced through Register.
type DigestScheduler struct {
	cr *cron.Cron
	ids map[string]cron.EntryID
}

// NewDigestScheduler starts the underlying cron scheduler.
func NewDigestScheduler() *DigestScheduler {
	d := &DigestScheduler{cr: cron.New(), ids: map[string]cron.EntryID{}}
	d.cr.Start()
	return d
}

// Register schedules fn to run on spec for gid, replacing any prior
// schedule for that group. An empty spec removes the schedule.
func (d *DigestScheduler) Register(gid, spec string, fn func()) error {
	if id, ok := d.ids[gid]; ok {
		d.cr.Remove(id)
		delete(d.ids, gid)
	}
	if spec == "" {
		return nil
	}
	id, err := d.cr.AddFunc(spec, fn)
	if err != nil {
		return err
	}
	d.ids[gid] = id
	return nil
}

// Stop halts the scheduler.
func (d *DigestScheduler) Stop() {
	d.cr.Stop()
}
