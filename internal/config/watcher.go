package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pterm/pterm"
)

// Watcher reloads the config file when it changes and pushes the new
// redirect target to its callback. Only redirect_url is hot-reloadable;
// ports and storage need a restart.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onTarget func(url string)
	logger   *pterm.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewWatcher starts watching path. onTarget is called with the new
// redirect_url after every valid reload.
func NewWatcher(path string, onTarget func(url string), logger *pterm.Logger) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.WithCaller().Error("Failed to create config watcher", logger.Args("error", err))
		return nil, err
	}

	if err := watcher.Add(path); err != nil {
		logger.WithCaller().Error("Failed to watch config file", logger.Args("path", path, "error", err))
		watcher.Close()
		return nil, err
	}

	w := &Watcher{
		path:     path,
		watcher:  watcher,
		onTarget: onTarget,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}

	w.wg.Add(1)
	go w.eventLoop()

	logger.Debug("Watching config file for changes", logger.Args("path", path))
	return w, nil
}

// Stop stops watching and releases the inotify handle
func (w *Watcher) Stop() {
	close(w.stopCh)
	w.watcher.Close()
	w.wg.Wait()
	w.logger.Debug("Config watcher stopped")
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			switch {
			case event.Op&fsnotify.Write == fsnotify.Write:
				w.reload()

			case event.Op&fsnotify.Create == fsnotify.Create:
				// Editors that replace the file drop the watch with it
				if err := w.watcher.Add(w.path); err != nil {
					w.logger.Warn("Failed to re-watch config file",
						w.logger.Args("path", w.path, "error", err))
				}
				w.reload()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watcher error", w.logger.Args("error", err))
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("Ignoring unreadable config change", w.logger.Args("path", w.path, "error", err))
		return
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		w.logger.Warn("Ignoring invalid config change", w.logger.Args("path", w.path, "error", err))
		return
	}

	w.logger.Info("Redirect target reloaded", w.logger.Args("redirect_url", cfg.RedirectURL))
	w.onTarget(cfg.RedirectURL)
}
