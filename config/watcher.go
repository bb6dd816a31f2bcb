package config

import (
	"sync/atomic"

	"AuraFM/logger"

	"github.com/fsnotify/fsnotify"
)

// Store holds the current Config snapshot. Readers get a consistent
// pointer; Watch swaps in a fresh snapshot when the .env file changes.
type Store struct {
	p atomic.Pointer[Config]
}

// NewStore creates a Store seeded with the given config.
func NewStore(cfg *Config) *Store {
	s := &Store{}
	s.p.Store(cfg)
	return s
}

// Current returns the latest config snapshot.
func (s *Store) Current() *Config {
	return s.p.Load()
}

// Watch reloads the config whenever the given file changes and swaps the
// snapshot in the Store. Returns the watcher so the caller can Close it.
func (s *Store) Watch(path string) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					s.p.Store(Reload())
					logger.Info("config reloaded", logger.String("file", event.Name))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config watcher error", logger.ErrorField(err))
			}
		}
	}()

	return watcher, nil
}
