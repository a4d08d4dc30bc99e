package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"mergetree/internal/logging"
)

var (
	logger = logging.GetLogger().WithPrefix("manifest")

	// ErrInvalidManifest is wrapped by every validation failure of Load.
	ErrInvalidManifest = errors.New("invalid manifest")
)

// Manager loads and saves one manifest file.
type Manager struct {
	path string
	mu   sync.Mutex
}

// NewManager creates a manager for the manifest at path, resolved against
// the current directory.
func NewManager(path string) (*Manager, error) {
	logger.Debug("Creating new manifest manager with path: %s", path)

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve manifest path %s: %w", path, err)
	}
	logger.Debug("Resolved manifest path: %s", absPath)

	return &Manager{path: absPath}, nil
}

// Path returns the absolute manifest path.
func (m *Manager) Path() string {
	return m.path
}

// Load reads and validates the manifest. Relative layer paths are resolved
// against the manifest's directory.
func (m *Manager) Load() (*Manifest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	logger.Debug("Loading manifest from: %s", m.path)
	data, err := os.ReadFile(m.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrInvalidManifest, m.path)
	}

	logger.Debug("Parsing manifest (%d bytes)", len(data))
	var mf Manifest
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if err := validate(&mf); err != nil {
		return nil, err
	}

	dir := filepath.Dir(m.path)
	mf.Base = resolve(dir, mf.Base)
	for i, u := range mf.Uppers {
		mf.Uppers[i] = resolve(dir, u)
	}

	logger.Info("Manifest loaded: base %s, %d upper layers, %s whiteouts", mf.Base, len(mf.Uppers), mf.Whiteout)
	return &mf, nil
}

// Save writes mf, keeping the previous file as a ".bak" sibling.
func (m *Manager) Save(mf *Manifest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if mf.Version == 0 {
		mf.Version = Version
	}
	if err := validate(mf); err != nil {
		return err
	}

	logger.Debug("Saving manifest to: %s", m.path)
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}
	if err := m.createBackup(); err != nil {
		logger.Warn("Failed to create backup: %v", err)
	}

	data, err := json.MarshalIndent(mf, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	data = append(data, '\n')

	// Write to a temporary sibling first so readers never see a partial file.
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace manifest: %w", err)
	}

	logger.Debug("Manifest saved (%d bytes)", len(data))
	return nil
}

func (m *Manager) createBackup() error {
	data, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	backupPath := m.path + ".bak"
	logger.Debug("Creating backup: %s", backupPath)
	return os.WriteFile(backupPath, data, 0o644)
}

func validate(mf *Manifest) error {
	if mf.Version != Version {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidManifest, mf.Version)
	}
	if mf.Base == "" {
		return fmt.Errorf("%w: base layer is required", ErrInvalidManifest)
	}
	if len(mf.Uppers) == 0 {
		return fmt.Errorf("%w: at least one upper layer is required", ErrInvalidManifest)
	}
	for i, u := range mf.Uppers {
		if u == "" {
			return fmt.Errorf("%w: upper layer %d is empty", ErrInvalidManifest, i)
		}
	}
	if mf.Whiteout == "" {
		return fmt.Errorf("%w: whiteout convention is required", ErrInvalidManifest)
	}
	if _, err := mf.Spec(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	return nil
}

func resolve(dir, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(dir, p)
}
