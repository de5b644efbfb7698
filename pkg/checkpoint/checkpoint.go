package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"igengage/pkg/logger"
	"igengage/pkg/models"
	"igengage/pkg/retrieval"
	"igengage/pkg/target"
)

const version = 1

// Checkpoint holds the completed phases of one post
type Checkpoint struct {
	Shortcode string                                   `json:"shortcode"`
	Post      *models.PostSummary                      `json:"post"`
	Phases    map[retrieval.Phase][]models.Interaction `json:"phases"`
	CreatedAt time.Time                                `json:"created_at"`
	UpdatedAt time.Time                                `json:"updated_at"`
	Version   int                                      `json:"version"`
}

// HasPhase reports whether phase was completed
func (c *Checkpoint) HasPhase(phase retrieval.Phase) bool {
	_, ok := c.Phases[phase]
	return ok
}

// Manager reads and writes the checkpoint of a single post
type Manager struct {
	fs        afero.Fs
	path      string
	shortcode target.Shortcode
	logger    logger.Logger
	mu        sync.Mutex
}

// NewManager creates a manager for the post's checkpoint file under dir
func NewManager(fs afero.Fs, dir string, sc target.Shortcode, log logger.Logger) (*Manager, error) {
	if sc == "" {
		return nil, errors.New("checkpoint needs a shortcode")
	}
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Manager{
		fs:        fs,
		path:      filepath.Join(dir, fmt.Sprintf("%s.checkpoint.json", sc)),
		shortcode: sc,
		logger:    log.WithField("shortcode", sc.String()),
	}, nil
}

// Path returns the checkpoint file location
func (m *Manager) Path() string {
	return m.path
}

// Load reads the checkpoint. It returns nil, nil when none exists.
func (m *Manager) Load() (*Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load()
}

func (m *Manager) load() (*Checkpoint, error) {
	data, err := afero.ReadFile(m.fs, m.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open checkpoint file: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if cp.Shortcode != m.shortcode.String() {
		return nil, fmt.Errorf("checkpoint belongs to %q, not %q", cp.Shortcode, m.shortcode)
	}
	if cp.Phases == nil {
		cp.Phases = make(map[retrieval.Phase][]models.Interaction)
	}
	return &cp, nil
}

// Save writes the checkpoint atomically
func (m *Manager) Save(cp *Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.save(cp)
}

func (m *Manager) save(cp *Checkpoint) error {
	cp.UpdatedAt = time.Now()
	if cp.Version == 0 {
		cp.Version = version
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	tempPath := m.path + ".tmp"
	file, err := m.fs.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		m.fs.Remove(tempPath)
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		m.fs.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}

	if err := file.Close(); err != nil {
		m.fs.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}

	if err := m.fs.Rename(tempPath, m.path); err != nil {
		m.fs.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}

	m.logger.DebugWithFields("Checkpoint saved", map[string]interface{}{
		"phases": len(cp.Phases),
	})
	return nil
}

// PhaseDone records a completed phase. It implements retrieval.PhaseSink.
func (m *Manager) PhaseDone(post *models.PostSummary, phase retrieval.Phase, items []models.Interaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, err := m.load()
	if err != nil {
		m.logger.WithError(err).Warn("Replacing unreadable checkpoint")
		cp = nil
	}
	if cp == nil {
		cp = &Checkpoint{
			Shortcode: m.shortcode.String(),
			Phases:    make(map[retrieval.Phase][]models.Interaction),
			CreatedAt: time.Now(),
			Version:   version,
		}
	}

	cp.Post = post
	cp.Phases[phase] = append([]models.Interaction(nil), items...)

	if err := m.save(cp); err != nil {
		return err
	}

	m.logger.InfoWithFields("Phase checkpointed", map[string]interface{}{
		"phase": string(phase),
		"items": len(items),
	})
	return nil
}

// Completed returns the phases a resumed run can skip
func (m *Manager) Completed() (map[retrieval.Phase][]models.Interaction, error) {
	cp, err := m.Load()
	if err != nil || cp == nil {
		return nil, err
	}
	return cp.Phases, nil
}

// Delete removes the checkpoint file
func (m *Manager) Delete() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fs.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}

	m.logger.Debug("Checkpoint deleted")
	return nil
}

// Exists checks if a checkpoint file exists
func (m *Manager) Exists() bool {
	ok, err := afero.Exists(m.fs, m.path)
	return err == nil && ok
}

// Info summarizes the checkpoint for display, nil when none exists
func (m *Manager) Info() (map[string]interface{}, error) {
	cp, err := m.Load()
	if err != nil || cp == nil {
		return nil, err
	}

	phases := make([]string, 0, len(cp.Phases))
	total := 0
	for _, p := range []retrieval.Phase{retrieval.PhaseComments, retrieval.PhaseLikes} {
		if items, ok := cp.Phases[p]; ok {
			phases = append(phases, string(p))
			total += len(items)
		}
	}

	return map[string]interface{}{
		"shortcode":  cp.Shortcode,
		"phases":     phases,
		"items":      total,
		"updated_at": cp.UpdatedAt,
		"age":        time.Since(cp.UpdatedAt),
	}, nil
}
