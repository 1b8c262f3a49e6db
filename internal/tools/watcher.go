package tools

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/soyeahso/dealflow/internal/logging"
)

const seedDebounce = 500 * time.Millisecond

// seedWatcher calls reload after a file settles following a change. The
// parent directory is watched so editors that replace the file by rename
// are still seen.
type seedWatcher struct {
	w        *fsnotify.Watcher
	path     string
	reload   func()
	debounce time.Duration
	stop     chan struct{}
	done     chan struct{}
	log      *logging.Logger
}

func watchFile(path string, reload func(), log *logging.Logger) (*seedWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, err
	}

	sw := &seedWatcher{
		w:        w,
		path:     abs,
		reload:   reload,
		debounce: seedDebounce,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		log:      log,
	}
	go sw.run()
	log.Info().Str("file", abs).Msg("watching company seed file")
	return sw, nil
}

func (sw *seedWatcher) run() {
	defer close(sw.done)

	var pending <-chan time.Time
	for {
		select {
		case <-sw.stop:
			return
		case ev, ok := <-sw.w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != sw.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				pending = time.After(sw.debounce)
			}
		case err, ok := <-sw.w.Errors:
			if !ok {
				return
			}
			sw.log.Warn().Err(err).Msg("seed watcher error")
		case <-pending:
			pending = nil
			sw.log.Info().Str("file", sw.path).Msg("company seed changed, re-importing")
			sw.reload()
		}
	}
}

// Close stops the watcher and waits for its goroutine.
func (sw *seedWatcher) Close() error {
	close(sw.stop)
	<-sw.done
	return sw.w.Close()
}
