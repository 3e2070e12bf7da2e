package ledger

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cccckit/cccc/internal/model"
)

// Follow tails path from its current end, emitting each newly appended
// well-formed event on the returned channel until ctx is cancelled. It
// wakes on fsnotify write events when available, falling back to a 200ms
// poll loop (matching the spec's documented SSE/IM tail behavior) when the
// watch cannot be established.
func Follow(ctx context.Context, path string) (<-chan model.Event, <-chan error) {
	events := make(chan model.Event, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)

		f, err := os.Open(path)
		if err != nil {
			errs <- err
			return
		}
		defer f.Close()
		if _, err := f.Seek(0, io.SeekEnd); err != nil {
			errs <- err
			return
		}
		reader := bufio.NewReader(f)

		watcher, werr := fsnotify.NewWatcher()
		var wakeups <-chan fsnotify.Event
		if werr == nil {
			if err := watcher.Add(path); err == nil {
				wakeups = watcher.Events
			}
			defer watcher.Close()
		}

		drain := func() {
			for {
				line, rerr := reader.ReadString('\n')
				if line != "" {
					var ev model.Event
					if json.Unmarshal([]byte(line), &ev) == nil {
						select {
						case events <- ev:
						case <-ctx.Done():
							return
						}
					}
				}
				if rerr != nil {
					return
				}
			}
		}

		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()

		for {
			drain()
			select {
			case <-ctx.Done():
				return
			case <-wakeups:
			case <-ticker.C:
			}
		}
	}()

	return events, errs
}
