package artifact

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch blocks until ctx is done, calling reload once per burst of writes
// to any of files inside dir. Bursts are collapsed over the debounce window.
func Watch(ctx context.Context, dir string, files []string, debounce time.Duration, log *zap.Logger, reload func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return err
	}
	if log == nil {
		log = zap.NewNop()
	}

	watched := make(map[string]struct{}, len(files))
	for _, f := range files {
		watched[filepath.Base(f)] = struct{}{}
	}

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if _, ok := watched[filepath.Base(event.Name)]; !ok {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			log.Debug("artifact changed", zap.String("file", event.Name), zap.String("op", event.Op.String()))
			if pending && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(debounce)
			pending = true
		case <-timer.C:
			pending = false
			reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("artifact watcher error", zap.Error(err))
		}
	}
}
