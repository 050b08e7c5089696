package main

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"
	"github.com/ishanjain/tuntap/pkg/adapter"
	"github.com/ishanjain/tuntap/pkg/config"
)

// supervisor re-applies the mutable interface settings (MTU, addresses,
// state) when the config file changes. The mutex serializes configuration
// against teardown; the adapter itself does no locking.
type supervisor struct {
	mu      sync.Mutex
	adapter *adapter.Adapter
	logger  logr.Logger
}

func (s *supervisor) watchConfig(path string) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Error(err, "Failed to create config watcher")
		return
	}
	defer watcher.Close()

	// Watch the directory (handles rename-based editor saves)
	configDir := filepath.Dir(path)
	if err := watcher.Add(configDir); err != nil {
		s.logger.Error(err, "Failed to watch config directory", "path", configDir)
		return
	}

	s.logger.Info("Watching config file for changes", "path", path)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Name != path {
				continue
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				s.logger.Info("Config file changed, re-applying interface settings", "path", event.Name)
				// Small delay to ensure file is fully written
				time.Sleep(100 * time.Millisecond)
				s.reapply(path)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error(err, "Config watcher error")
		}
	}
}

func (s *supervisor) reapply(path string) {
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		s.logger.Error(err, "Invalid config, keeping current settings", "path", path)
		return
	}
	ic := cfg.Interface

	// Mode and name are fixed for the lifetime of the interface; only the
	// mutable settings are re-applied. Address assignment is idempotent,
	// so unchanged values are harmless.
	s.mu.Lock()
	defer s.mu.Unlock()

	if ic.MTU != 0 {
		if err := s.adapter.SetMTU(ic.MTU); err != nil {
			s.logger.Error(err, "Failed to set mtu", "mtu", ic.MTU)
		}
	}
	if ipnet := parseCIDR(ic.IPv4); ipnet != nil {
		if err := s.adapter.SetIPv4(ipnet); err != nil {
			s.logger.Error(err, "Failed to set IPv4 address", "addr", ic.IPv4)
		}
	}
	if ipnet := parseCIDR(ic.IPv6); ipnet != nil {
		if err := s.adapter.SetIPv6(ipnet); err != nil {
			s.logger.Error(err, "Failed to set IPv6 address", "addr", ic.IPv6)
		}
	}
	if ic.Up != nil {
		if err := s.adapter.SetConnectedState(*ic.Up); err != nil {
			s.logger.Error(err, "Failed to change interface state", "up", *ic.Up)
		}
	}
}
