// Package settings persists the operator's run preferences between sessions.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tOgg1/pocketbench/internal/models"
)

const (
	CurrentVersion = 1

	defaultDebounce = 500 * time.Millisecond
)

var writeSettingsFile = writeAtomicJSON

// File is the on-disk layout.
type File struct {
	Version   int             `json:"version" yaml:"version"`
	Settings  models.Settings `json:"settings" yaml:"settings"`
	UpdatedAt time.Time       `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// Manager loads and saves settings. Writes are debounced; Close flushes.
type Manager struct {
	path     string
	lockPath string
	defaults models.Settings

	// saveMu serializes writes so Close can wait for a debounced save.
	saveMu sync.Mutex

	mu       sync.Mutex
	current  models.Settings
	dirty    bool
	timer    *time.Timer
	debounce time.Duration
}

// New creates a manager backed by path. Defaults are the values used for
// anything the file does not set. An empty path keeps settings in memory.
func New(path string, defaults models.Settings) *Manager {
	path = strings.TrimSpace(path)
	defaults = models.DefaultSettings().Merge(defaults)
	m := &Manager{
		path:     path,
		defaults: defaults,
		current:  defaults,
		debounce: defaultDebounce,
	}
	if path != "" {
		m.lockPath = path + ".lock"
	}
	return m
}

// Path returns the backing file.
func (m *Manager) Path() string { return m.path }

// Load reads the file and merges it over the defaults. A missing file is not
// an error. Stored values that are no longer valid fall back to defaults.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.path == "" {
		return nil
	}

	stored, err := m.loadLocked()
	if err != nil {
		return err
	}
	merged := m.defaults.Merge(stored)
	if err := merged.Validate(); err != nil {
		merged = m.sanitize(merged)
	}
	m.current = merged
	m.dirty = false
	return nil
}

// Get returns the current settings.
func (m *Manager) Get() models.Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Set validates and stores new settings; empty fields keep their value.
func (m *Manager) Set(update models.Settings) (models.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.current.Merge(update)
	if err := next.Validate(); err != nil {
		return m.current, err
	}
	if next == m.current {
		return next, nil
	}
	m.current = next
	m.markDirtyLocked()
	return next, nil
}

// Reset restores the defaults.
func (m *Manager) Reset() models.Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.defaults
	m.markDirtyLocked()
	return m.current
}

// SaveNow writes the settings immediately.
func (m *Manager) SaveNow() error {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()
	return m.saveLocked()
}

func (m *Manager) saveLocked() error {
	m.mu.Lock()
	if m.path == "" {
		m.dirty = false
		m.mu.Unlock()
		return nil
	}
	file := File{Version: CurrentVersion, Settings: m.current, UpdatedAt: time.Now().UTC()}
	m.dirty = false
	m.mu.Unlock()

	if err := withFileLock(m.lockPath, func() error {
		return writeSettingsFile(m.path, file)
	}); err != nil {
		m.mu.Lock()
		m.dirty = true
		m.mu.Unlock()
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// Close stops the debounce timer and flushes pending changes. A save already
// started by the timer finishes before Close returns.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.mu.Unlock()

	m.saveMu.Lock()
	defer m.saveMu.Unlock()
	m.mu.Lock()
	needsSave := m.dirty
	m.mu.Unlock()
	if !needsSave {
		return nil
	}
	return m.saveLocked()
}

// WriteYAML writes the current settings as YAML.
func (m *Manager) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(m.Get()); err != nil {
		return err
	}
	return enc.Close()
}

func (m *Manager) markDirtyLocked() {
	m.dirty = true
	if m.path == "" {
		return
	}
	if m.timer == nil {
		m.timer = time.AfterFunc(m.debounce, func() {
			_ = m.SaveNow()
		})
		return
	}
	m.timer.Reset(m.debounce)
}

func (m *Manager) sanitize(s models.Settings) models.Settings {
	if models.OneOf(s.Device, models.DeviceOptions...) != nil {
		s.Device = m.defaults.Device
	}
	if models.OneOf(s.BatchSize, models.BatchSizeOptions...) != nil {
		s.BatchSize = m.defaults.BatchSize
	}
	if models.OneOf(s.Verbosity, models.VerbosityOptions...) != nil {
		s.Verbosity = m.defaults.Verbosity
	}
	return s
}

func (m *Manager) loadLocked() (models.Settings, error) {
	var out models.Settings
	err := withFileLock(m.lockPath, func() error {
		payload, err := os.ReadFile(m.path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if len(payload) == 0 {
			return nil
		}

		var file File
		if err := json.Unmarshal(payload, &file); err == nil && file.Version > 0 {
			out = file.Settings
			return nil
		}

		// Unversioned files hold the settings object itself.
		if err := json.Unmarshal(payload, &out); err != nil {
			return fmt.Errorf("parse %s: %w", m.path, err)
		}
		return nil
	})
	if err != nil {
		return models.Settings{}, err
	}
	return out, nil
}

func withFileLock(lockPath string, fn func() error) error {
	if strings.TrimSpace(lockPath) == "" {
		return fn()
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("lock %s: %w", lockPath, err)
	}
	defer func() {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	}()
	return fn()
}

func writeAtomicJSON(path string, file File) error {
	payload, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
