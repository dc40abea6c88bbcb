// Package settings persists small pieces of runtime state that must survive restarts.
package settings

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Settings is the runtime state stored next to the database.
type Settings struct {
	// Auth: only the bcrypt hash of the API token is kept; the token itself is shown once.
	AuthTokenHash    string    `json:"authTokenHash,omitempty"`
	AuthTokenRotated time.Time `json:"authTokenRotated,omitzero"`

	// LastCleanup is when audit events were last pruned.
	LastCleanup time.Time `json:"lastCleanup,omitzero"`
}

// Manager handles persistence of Settings on disk.
// Another process (the token command) may rewrite the file while a server holds a
// Manager, so every read checks the file's identity and reloads when it changed.
type Manager struct {
	path   string
	mu     sync.Mutex
	cached Settings
	info   os.FileInfo
	loaded bool
}

// NewManager creates a settings manager whose file is at settingsPath.
// Pass the full file path (e.g. "/var/lib/ovpn-issuer/state.json").
func NewManager(settingsPath string) *Manager {
	return &Manager{path: settingsPath}
}

// Get returns the current settings, reading the file again if it was replaced or
// modified since the last load.
func (m *Manager) Get() (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLocked()
}

// Update loads the current settings, applies fn and saves the result under one lock.
func (m *Manager) Update(fn func(*Settings) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, err := m.loadLocked()
	if err != nil {
		return err
	}
	if err := fn(&current); err != nil {
		return err
	}
	return m.saveLocked(current)
}

// Save persists the provided settings to disk.
func (m *Manager) Save(settings Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked(settings)
}

func (m *Manager) loadLocked() (Settings, error) {
	info, err := os.Stat(m.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Settings{}, err
		}
		info = nil
	}
	if m.loaded && unchanged(m.info, info) {
		return m.cached, nil
	}
	if info == nil {
		m.cached, m.info, m.loaded = Settings{}, nil, true
		return m.cached, nil
	}

	bytes, err := os.ReadFile(m.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			m.cached, m.info, m.loaded = Settings{}, nil, true
			return m.cached, nil
		}
		return Settings{}, err
	}

	var settings Settings
	if err := json.Unmarshal(bytes, &settings); err != nil {
		return Settings{}, err
	}
	m.cached, m.info, m.loaded = settings, info, true
	return settings, nil
}

func (m *Manager) saveLocked(settings Settings) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return err
	}
	info, err := os.Stat(m.path)
	if err != nil {
		m.loaded = false
		return nil
	}
	m.cached, m.info, m.loaded = settings, info, true
	return nil
}

// unchanged reports whether two stats describe the same file contents.
// The file is always replaced by rename, so a rotation elsewhere changes its identity.
func unchanged(a, b os.FileInfo) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return os.SameFile(a, b) && a.Size() == b.Size() && a.ModTime().Equal(b.ModTime())
}
