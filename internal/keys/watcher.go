package keys

import (
	"log"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the registry whenever the key directory changes. Bursts of
// filesystem events collapse into a single reload. The caller owns the
// returned watcher and closes it on shutdown.
func (r *Registry) Watch() (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(r.dir); err != nil {
		watcher.Close()
		return nil, err
	}

	reload := make(chan struct{})
	go scheduleReload(reload, func() {
		if err := r.Reload(); err != nil {
			log.Printf("key registry reload failed, keeping previous keys: %v\n", err)
		}
	})
	go handleWatcher(watcher, reload)
	return watcher, nil
}

func handleWatcher(watcher *fsnotify.Watcher, reload chan<- struct{}) {
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				close(reload)
				return
			}
			if event.Has(fsnotify.Write | fsnotify.Remove | fsnotify.Create) {
				reload <- struct{}{}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("key registry watcher error: %v\n", err)
		}
	}
}

func scheduleReload(reload <-chan struct{}, callback func()) {
	var timer *time.Timer = nil
	var c <-chan time.Time = nil
	duration := time.Millisecond * 500
	for {
		select {
		case _, ok := <-reload:
			if !ok {
				return
			}
			if timer != nil {
				timer.Reset(duration)
			} else {
				timer = time.NewTimer(duration)
				c = timer.C
			}

		case <-c:
			c = nil
			timer = nil
			callback()
		}
	}
}
