package config

import (
	"context"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/d2herder/d2herder/pkg/telemetry"
)

// PickitWatcher keeps the active pickit rules in sync with the file on
// disk. Readers call Current on every lookup and always see a complete
// rule set; a reload that fails to parse keeps the previous rules.
type PickitWatcher struct {
	path    string
	current atomic.Pointer[Pickit]
	watcher *fsnotify.Watcher
	log     *telemetry.Logger
}

// NewPickitWatcher loads the initial rules and prepares the watcher. The
// initial load must succeed; later reload failures only log.
func NewPickitWatcher(path string, log *telemetry.Logger) (*PickitWatcher, error) {
	rules, err := LoadPickit(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory, not the file: editors replace files by rename
	// and a file watch dies with the old inode.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &PickitWatcher{
		path:    path,
		watcher: fw,
		log:     log.Component("pickit"),
	}
	w.current.Store(rules)
	return w, nil
}

// Current returns the active rule set.
func (w *PickitWatcher) Current() *Pickit {
	return w.current.Load()
}

// Wants consults the active rule set, so a reload applies to the next
// lookup. Satisfies the loot-filter port runs pick items through.
func (w *PickitWatcher) Wants(name, quality string, ethereal bool) bool {
	return w.Current().Wants(name, quality, ethereal)
}

// Run processes file events until ctx is done. Call in its own goroutine.
func (w *PickitWatcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Zerolog().Warn().Err(err).Msg("pickit watcher error")
		}
	}
}

func (w *PickitWatcher) reload() {
	rules, err := LoadPickit(w.path)
	if err != nil {
		w.log.Zerolog().Warn().Err(err).Msg("pickit reload failed, keeping previous rules")
		return
	}
	w.current.Store(rules)
	w.log.Infof("pickit reloaded: %d rules", len(rules.Rules))
}
