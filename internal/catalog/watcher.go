package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"configurateur/internal/live"
)

const defaultSettle = 250 * time.Millisecond

// Watcher reports catalog files edited outside the API (editor, sync tool,
// fetch-media) as catalog.changed events. Bursts of filesystem events for
// the same file are coalesced.
type Watcher struct {
	Root   string
	Settle time.Duration

	events live.Publisher
	log    *zap.Logger
}

func NewWatcher(root string, events live.Publisher, log *zap.Logger) *Watcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{Root: root, Settle: defaultSettle, events: live.OrDiscard(events), log: log}
}

// Run blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.Root); err != nil {
		return fmt.Errorf("watch %s: %w", w.Root, err)
	}
	w.log.Info("watching catalogs", zap.String("dir", w.Root))

	byFile := make(map[string]string, len(declared))
	for _, f := range declared {
		byFile[f.Filename()] = f.Name
	}

	pending := make(map[string]struct{})
	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			kind, tracked := byFile[filepath.Base(ev.Name)]
			if !tracked || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			pending[kind] = struct{}{}
			timer.Reset(w.Settle)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("catalog watcher error", zap.Error(err))

		case <-timer.C:
			kinds := make([]string, 0, len(pending))
			for k := range pending {
				kinds = append(kinds, k)
			}
			sort.Strings(kinds)
			for _, k := range kinds {
				w.log.Info("catalog changed on disk", zap.String("kind", k))
				w.events.Publish(live.NewEvent(live.TypeCatalogChanged, map[string]string{"kind": k}))
			}
			clear(pending)
		}
	}
}
