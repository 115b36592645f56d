package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ChangeEvent describes one override file change.
type ChangeEvent struct {
	File      string
	Action    string // create, modify, delete
	Values    map[string]interface{}
	Timestamp time.Time
}

// ChangeHandler is called after an override file is (re)loaded. Handlers
// run on the watch goroutine and should return quickly.
type ChangeHandler func(event ChangeEvent) error

// Watcher hot-reloads YAML/JSON override files from a directory. The
// orchestrator uses it to retune routing thresholds without a restart.
type Watcher struct {
	dir     string
	logger  *zap.Logger
	watcher *fsnotify.Watcher
	stopCh  chan struct{}

	mu       sync.RWMutex
	values   map[string]map[string]interface{}
	handlers map[string][]ChangeHandler
	started  bool
}

// NewWatcher creates a watcher over dir, creating the directory if needed.
func NewWatcher(dir string, logger *zap.Logger) (*Watcher, error) {
	if dir == "" {
		return nil, fmt.Errorf("override directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create override directory: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	return &Watcher{
		dir:      dir,
		logger:   logger,
		watcher:  fsw,
		stopCh:   make(chan struct{}),
		values:   make(map[string]map[string]interface{}),
		handlers: make(map[string][]ChangeHandler),
	}, nil
}

// OnChange registers a handler for changes to the named file.
func (w *Watcher) OnChange(filename string, handler ChangeHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[filename] = append(w.handlers[filename], handler)
}

// Get returns the last loaded values for the named file.
func (w *Watcher) Get(filename string) (map[string]interface{}, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	vals, ok := w.values[filename]
	if !ok {
		return nil, false
	}
	out := make(map[string]interface{}, len(vals))
	for k, v := range vals {
		out[k] = v
	}
	return out, true
}

// Start loads the current override files and begins watching. Handlers
// fire once per existing file with action "load" before Start returns.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("read override directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !isOverrideFile(e.Name()) {
			continue
		}
		if err := w.load(filepath.Join(w.dir, e.Name()), "load"); err != nil {
			w.logger.Warn("Skipping unreadable override file",
				zap.String("file", e.Name()),
				zap.Error(err),
			)
		}
	}

	go w.watchLoop()
	w.logger.Info("Override watcher started", zap.String("dir", w.dir))
	return nil
}

// Stop ends the watch goroutine and closes the file watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return nil
	}
	w.started = false
	close(w.stopCh)
	return w.watcher.Close()
}

func (w *Watcher) watchLoop() {
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Override watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !isOverrideFile(event.Name) {
		return
	}
	filename := filepath.Base(event.Name)

	switch {
	case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
		w.mu.Lock()
		delete(w.values, filename)
		w.mu.Unlock()
		w.notify(ChangeEvent{File: filename, Action: "delete", Timestamp: time.Now().UTC()})

	case event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write):
		// Editors often emit several writes in quick succession.
		time.Sleep(50 * time.Millisecond)
		action := "modify"
		if event.Op.Has(fsnotify.Create) {
			action = "create"
		}
		if err := w.load(event.Name, action); err != nil {
			w.logger.Error("Failed to reload override file",
				zap.String("file", filename),
				zap.Error(err),
			)
		}
	}
}

func (w *Watcher) load(path, action string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	filename := filepath.Base(path)
	vals := make(map[string]interface{})
	if filepath.Ext(filename) == ".json" {
		err = json.Unmarshal(data, &vals)
	} else {
		err = yaml.Unmarshal(data, &vals)
	}
	if err != nil {
		return fmt.Errorf("parse %s: %w", filename, err)
	}

	w.mu.Lock()
	w.values[filename] = vals
	w.mu.Unlock()

	w.logger.Info("Override file loaded",
		zap.String("file", filename),
		zap.String("action", action),
		zap.Int("keys", len(vals)),
	)
	w.notify(ChangeEvent{File: filename, Action: action, Values: vals, Timestamp: time.Now().UTC()})
	return nil
}

func (w *Watcher) notify(event ChangeEvent) {
	w.mu.RLock()
	handlers := make([]ChangeHandler, len(w.handlers[event.File]))
	copy(handlers, w.handlers[event.File])
	w.mu.RUnlock()

	for _, h := range handlers {
		if err := h(event); err != nil {
			w.logger.Error("Override handler failed",
				zap.String("file", event.File),
				zap.String("action", event.Action),
				zap.Error(err),
			)
		}
	}
}

func isOverrideFile(name string) bool {
	switch filepath.Ext(name) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// EngineOverrides decodes the engine override file into an EngineConfig,
// keeping the current value for any key the file does not set.
func EngineOverrides(vals map[string]interface{}, current EngineConfig) EngineConfig {
	out := current
	if v, ok := intValue(vals["confidence_threshold"]); ok {
		out.ConfidenceThreshold = v
	}
	if v, ok := intValue(vals["max_research_attempts"]); ok {
		out.MaxResearchAttempts = v
	}
	if v, ok := intValue(vals["max_clarification_attempts"]); ok {
		out.MaxClarificationAttempts = v
	}
	if v, ok := intValue(vals["max_transitions"]); ok {
		out.MaxTransitions = v
	}
	return out
}

// intValue tolerates the numeric types the YAML and JSON decoders produce.
func intValue(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
