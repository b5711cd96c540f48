// Package preferences persists named boolean preferences to a YAML file
// and picks up edits made to that file by other processes.
package preferences

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DarkMode is the theme preference
const DarkMode = "darkMode"

const debounceDuration = 100 * time.Millisecond

type document struct {
	Preferences map[string]bool `yaml:"preferences"`
}

// FileStore implements ports.PreferenceStore over one YAML file
type FileStore struct {
	path   string
	logger *zap.Logger

	mu       sync.RWMutex
	values   map[string]bool
	onChange []func(map[string]bool)

	writeMu sync.Mutex // serializes file writes

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	done    chan struct{}
}

// NewFileStore loads path. A missing file is an empty store; it is created
// on the first SetBool.
func NewFileStore(path string, logger *zap.Logger) (*FileStore, error) {
	values, err := load(path)
	if err != nil {
		return nil, err
	}
	return &FileStore{
		path:   path,
		logger: logger,
		values: values,
	}, nil
}

func load(path string) (map[string]bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read preferences: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse preferences: %w", err)
	}
	if doc.Preferences == nil {
		doc.Preferences = map[string]bool{}
	}
	return doc.Preferences, nil
}

// Bool returns the named preference, or def if it was never set
func (s *FileStore) Bool(name string, def bool) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[name]; ok {
		return v
	}
	return def
}

// All returns a copy of every stored preference
func (s *FileStore) All() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyValues(s.values)
}

// SetBool stores a preference and writes the file
func (s *FileStore) SetBool(name string, value bool) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	prev, existed := s.values[name]
	s.values[name] = value
	snapshot := copyValues(s.values)
	s.mu.Unlock()

	if err := s.write(snapshot); err != nil {
		s.mu.Lock()
		if existed {
			s.values[name] = prev
		} else {
			delete(s.values, name)
		}
		s.mu.Unlock()
		return err
	}

	s.logger.Debug("Preference saved", zap.String("name", name), zap.Bool("value", value))
	if !existed || prev != value {
		s.notify(snapshot)
	}
	return nil
}

// write replaces the file atomically via rename
func (s *FileStore) write(values map[string]bool) error {
	data, err := yaml.Marshal(document{Preferences: values})
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create preferences directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	return nil
}

// OnChange registers a callback invoked with every changed value set
func (s *FileStore) OnChange(handler func(map[string]bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, handler)
}

func (s *FileStore) notify(values map[string]bool) {
	s.mu.RLock()
	handlers := append([]func(map[string]bool){}, s.onChange...)
	s.mu.RUnlock()

	for _, h := range handlers {
		h(copyValues(values))
	}
}

// Watch starts reloading the file when it changes on disk. The directory
// is watched so editors that save by rename are seen.
func (s *FileStore) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to create preferences directory: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch preferences directory: %w", err)
	}

	s.watcher = watcher
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	go s.watchLoop()

	s.logger.Info("Preferences watcher started", zap.String("path", s.path))
	return nil
}

// Stop stops the watcher started by Watch
func (s *FileStore) Stop() {
	if s.watcher == nil {
		return
	}
	close(s.stopCh)
	s.watcher.Close()
	<-s.done
	s.watcher = nil
	s.logger.Info("Preferences watcher stopped")
}

func (s *FileStore) watchLoop() {
	defer close(s.done)

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-s.stopCh:
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(s.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceDuration, s.reload)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error("Preferences watcher error", zap.Error(err))
		}
	}
}

// reload replaces the in-memory values if the file differs from them
func (s *FileStore) reload() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	values, err := load(s.path)
	if err != nil {
		s.logger.Error("Failed to reload preferences, keeping current", zap.Error(err))
		return
	}

	s.mu.Lock()
	changed := !equal(s.values, values)
	if changed {
		s.values = values
	}
	s.mu.Unlock()

	if changed {
		s.logger.Info("Preferences reloaded", zap.String("path", s.path), zap.Int("count", len(values)))
		s.notify(values)
	}
}

func copyValues(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func equal(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}
