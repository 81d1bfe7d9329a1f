package archive

import (
	"errors"
	"os"
	"sync"
	"time"

	"github.com/BaSui01/crewflow/internal/metrics"
	"go.uber.org/zap"
)

// DefaultFolder 默认归档子目录名.
const DefaultFolder = "archive"

// ErrEmptySink 表示 sink 路径为空.
var ErrEmptySink = errors.New("archive: empty sink path")

// Config configures the archive manager.
type Config struct {
	DefaultFolder string      `yaml:"default_folder" json:"default_folder"`
	DirPerm       os.FileMode `yaml:"dir_perm" json:"dir_perm"`
	FilePerm      os.FileMode `yaml:"file_perm" json:"file_perm"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultFolder: DefaultFolder,
		DirPerm:       0o755,
		FilePerm:      0o644,
	}
}

// Manager handles archive rotation for every run of the process.
type Manager struct {
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Collector
	now     func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewManager creates a new archive manager.
func NewManager(cfg Config, collector *metrics.Collector, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultConfig()
	if cfg.DefaultFolder == "" {
		cfg.DefaultFolder = defaults.DefaultFolder
	}
	if cfg.DirPerm == 0 {
		cfg.DirPerm = defaults.DirPerm
	}
	if cfg.FilePerm == 0 {
		cfg.FilePerm = defaults.FilePerm
	}
	return &Manager{
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "archive_manager")),
		metrics: collector,
		now:     time.Now,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// NewSession opens the archive session of one run.
func (m *Manager) NewSession(runID string) *Session {
	return &Session{
		manager:     m,
		runID:       runID,
		rotatedDirs: make(map[string]string),
		written:     make(map[string]int),
		logger:      m.logger.With(zap.String("run_id", runID)),
	}
}

// dirLock 返回目录级互斥锁
func (m *Manager) dirLock(dir string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()

	lock, ok := m.locks[dir]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[dir] = lock
	}
	return lock
}
