package epochcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"eegprep/internal/config"
	"eegprep/internal/container"
	"eegprep/internal/eeg"
	"eegprep/internal/fileutil"
	"eegprep/internal/logging"
	"eegprep/internal/services"
)

// Manager reads and writes per-directory artifacts.
type Manager struct {
	fileName string
	logger   *slog.Logger
}

// Stats describes an artifact without loading its samples.
type Stats struct {
	Path       string        `json:"path"`
	Exists     bool          `json:"exists"`
	SizeBytes  int64         `json:"size_bytes"`
	ModifiedAt time.Time     `json:"modified_at"`
	Shape      []int         `json:"shape,omitempty"`
	Status     string        `json:"status,omitempty"`
	Threshold  float64       `json:"threshold,omitempty"`
	Attempts   []eeg.Attempt `json:"attempts,omitempty"`
	SHA256     string        `json:"sha256,omitempty"`
	Problem    string        `json:"problem,omitempty"`
}

// NewManager builds a cache manager when enabled; returns nil when caching is disabled.
func NewManager(cfg *config.Config, logger *slog.Logger) *Manager {
	if cfg == nil || !cfg.Cache.Enabled {
		return nil
	}
	name := strings.TrimSpace(cfg.Cache.FileName)
	if name == "" {
		return nil
	}
	manager := &Manager{fileName: name}
	manager.SetLogger(logger)
	return manager
}

// SetLogger refreshes the manager's logging destination.
func (m *Manager) SetLogger(logger *slog.Logger) {
	if m == nil {
		return
	}
	m.logger = logging.NewComponentLogger(logger, "epochcache")
}

// Path returns the artifact location for a recording directory.
func (m *Manager) Path(dir string) string {
	return filepath.Join(dir, m.fileName)
}

// Load returns the cached epochs for dir. A missing artifact yields
// (nil, false, nil). An unreadable or empty artifact is removed and reported
// as ErrCacheCorrupt so the caller can reprocess.
func (m *Manager) Load(ctx context.Context, dir string) (*eeg.EpochSet, bool, error) {
	if m == nil {
		return nil, false, nil
	}
	path := m.Path(dir)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("epochcache: open artifact: %w", err)
	}
	set, decodeErr := container.DecodeEpochs(f)
	_ = f.Close()

	problem := ""
	switch {
	case decodeErr != nil:
		problem = decodeErr.Error()
	case set.Empty():
		problem = "empty tensor"
	}
	if problem == "" {
		m.logger.DebugContext(ctx, "loaded cached epochs",
			logging.String("path", path),
			logging.Shape("shape", shapeOf(set)...),
		)
		return set, true, nil
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, false, fmt.Errorf("epochcache: remove invalid artifact: %w", err)
	}
	logging.WarnWithContext(logging.WithContext(ctx, m.logger), "cached epochs invalid; reprocessing", "cache_invalid",
		logging.String("path", path),
		logging.String("problem", problem),
		logging.String(logging.FieldImpact, "recording will be processed from raw input"),
		logging.String(logging.FieldErrorHint, "none; the artifact is rebuilt automatically"),
	)
	return nil, false, services.Wrap(services.ErrCacheCorrupt, "cache", "load", problem, decodeErr)
}

// Store writes set atomically, replacing any prior artifact.
func (m *Manager) Store(ctx context.Context, dir string, set *eeg.EpochSet) error {
	if m == nil || set == nil {
		return nil
	}
	path := m.Path(dir)
	err := fileutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
		return container.EncodeEpochs(w, set)
	})
	if err != nil {
		return fmt.Errorf("epochcache: store artifact: %w", err)
	}
	m.logger.InfoContext(ctx, "stored cached epochs",
		logging.String("path", path),
		logging.Shape("shape", shapeOf(set)...),
	)
	return nil
}

// Clear removes the artifact for dir and reports whether one existed.
func (m *Manager) Clear(dir string) (bool, error) {
	if m == nil {
		return false, nil
	}
	err := os.Remove(m.Path(dir))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("epochcache: clear: %w", err)
	}
}

// Stat reports artifact metadata for dir.
func (m *Manager) Stat(dir string) (Stats, error) {
	if m == nil {
		return Stats{}, errors.New("epochcache: cache disabled")
	}
	path := m.Path(dir)
	stats := Stats{Path: path}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return stats, nil
		}
		return stats, fmt.Errorf("epochcache: stat: %w", err)
	}
	stats.Exists = true
	stats.SizeBytes = info.Size()
	stats.ModifiedAt = info.ModTime()

	f, err := os.Open(path)
	if err != nil {
		return stats, fmt.Errorf("epochcache: open: %w", err)
	}
	_, header, err := container.ReadHeader(f)
	_ = f.Close()
	if err != nil {
		stats.Problem = err.Error()
		return stats, nil
	}
	stats.Shape = header.Shape
	stats.Status = header.Status
	stats.Threshold = header.Threshold
	stats.Attempts = header.Attempts
	switch v := header.Values(); {
	case v < 0:
		stats.Problem = "invalid shape"
	case v == 0:
		stats.Problem = "empty tensor"
	}
	if sum, err := fileutil.FileSHA256(path); err == nil {
		stats.SHA256 = sum
	}
	return stats, nil
}

func shapeOf(set *eeg.EpochSet) []int {
	n, c, s := set.Shape()
	return []int{n, c, s}
}
