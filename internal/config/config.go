// Package config layers compiled defaults, an optional TOML file, environment
// variables, and CLI flags into a single Config, and hot-reloads the subset
// of tunables that are safe to change without a restart.
package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"

	"github.com/inkdrift/scriptorium/pkg/logger"
)

var log = logger.With("component", "config")

// Config holds all server configuration.
type Config struct {
	Port              string
	SaveInterval      int // ms
	MaxDocMB          int
	MaxImageKB        int
	ImageMaxDimension int
	ImageJPEGQuality  int
	CursorTimeout     int // ms, client-display-only

	ConfigFile string
	AuditDB    string
	DocPath    string
}

// fileLayer mirrors the subset of Config a TOML file may override.
type fileLayer struct {
	SaveInterval      *int `toml:"save_interval_ms"`
	MaxDocMB          *int `toml:"max_doc_mb"`
	MaxImageKB        *int `toml:"max_image_kb"`
	ImageMaxDimension *int `toml:"image_max_dimension"`
	ImageJPEGQuality  *int `toml:"image_jpeg_quality"`
	CursorTimeout     *int `toml:"cursor_timeout_ms"`
}

func defaults() Config {
	return Config{
		Port:              "3000",
		SaveInterval:      15000,
		MaxDocMB:          50,
		MaxImageKB:        250,
		ImageMaxDimension: 400,
		ImageJPEGQuality:  40,
		CursorTimeout:     0,
		DocPath:           "./doc.txt",
	}
}

// Load builds a Config from defaults, an optional TOML file, the process
// environment, and the given CLI flag overrides (each flag value empty/zero
// means "not set, fall through"). Flags win over file, which wins over env,
// which wins over defaults.
func Load(flagConfigFile, flagAuditDB, flagDocPath, flagPort string) (*Config, error) {
	cfg := defaults()

	applyEnv(&cfg)

	configFile := flagConfigFile
	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
	}
	cfg.ConfigFile = configFile
	if configFile != "" {
		if err := applyFile(&cfg, configFile); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if flagAuditDB != "" {
		cfg.AuditDB = flagAuditDB
	} else if cfg.AuditDB == "" {
		cfg.AuditDB = os.Getenv("AUDIT_DB")
	}
	if flagDocPath != "" {
		cfg.DocPath = flagDocPath
	}
	if flagPort != "" {
		cfg.Port = flagPort
	}

	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v, ok := envInt("SAVE_INTERVAL"); ok {
		cfg.SaveInterval = v
	}
	if v, ok := envInt("MAX_DOC_MB"); ok {
		cfg.MaxDocMB = v
	}
	if v, ok := envInt("MAX_IMAGE_KB"); ok {
		cfg.MaxImageKB = v
	}
	if v, ok := envInt("IMAGE_MAX_DIMENSION"); ok {
		cfg.ImageMaxDimension = v
	}
	if v, ok := envInt("IMAGE_JPEG_QUALITY"); ok {
		cfg.ImageJPEGQuality = v
	}
	if v, ok := envInt("CURSOR_TIMEOUT"); ok {
		cfg.CursorTimeout = v
	}
	if v := os.Getenv("DOC_PATH"); v != "" {
		cfg.DocPath = v
	}
	if v := os.Getenv("AUDIT_DB"); v != "" {
		cfg.AuditDB = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return i, true
}

func applyFile(cfg *Config, path string) error {
	var fl fileLayer
	if _, err := toml.DecodeFile(path, &fl); err != nil {
		return err
	}
	mergeFileLayer(cfg, &fl)
	return nil
}

func mergeFileLayer(cfg *Config, fl *fileLayer) {
	if fl.SaveInterval != nil {
		cfg.SaveInterval = *fl.SaveInterval
	}
	if fl.MaxDocMB != nil {
		cfg.MaxDocMB = *fl.MaxDocMB
	}
	if fl.MaxImageKB != nil {
		cfg.MaxImageKB = *fl.MaxImageKB
	}
	if fl.ImageMaxDimension != nil {
		cfg.ImageMaxDimension = *fl.ImageMaxDimension
	}
	if fl.ImageJPEGQuality != nil {
		cfg.ImageJPEGQuality = *fl.ImageJPEGQuality
	}
	if fl.CursorTimeout != nil {
		cfg.CursorTimeout = *fl.CursorTimeout
	}
}

// Live wraps a Config behind a mutex and, when backed by a config file,
// watches that file and hot-reloads the reloadable subset of fields on write.
type Live struct {
	mu  sync.RWMutex
	cfg Config
}

// NewLive wraps cfg for safe concurrent reads and reload.
func NewLive(cfg Config) *Live {
	return &Live{cfg: cfg}
}

// Snapshot returns a copy of the current config.
func (l *Live) Snapshot() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// Watch starts watching ConfigFile (if set) for writes and reloads the
// reloadable fields in place. It returns immediately if no file is set. If
// onReload is non-nil, it is invoked with the updated snapshot after each
// successful reload, so callers like the Persistence Scheduler and the Image
// Processor can re-read the tunables they were built from. The watcher runs
// until the caller closes the returned stop function.
func (l *Live) Watch(onReload func(Config)) (stop func(), err error) {
	path := l.Snapshot().ConfigFile
	if path == "" {
		return func() {}, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				l.reload(path, onReload)
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Error("config watcher error: %v", werr)
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}, nil
}

func (l *Live) reload(path string, onReload func(Config)) {
	var fl fileLayer
	if _, err := toml.DecodeFile(path, &fl); err != nil {
		log.Error("config hot-reload: %v", err)
		return
	}

	// max_doc_mb and cursor_timeout_ms are read only at startup.
	fl.MaxDocMB = nil
	fl.CursorTimeout = nil

	l.mu.Lock()
	mergeFileLayer(&l.cfg, &fl)
	updated := l.cfg
	l.mu.Unlock()

	log.Info("config hot-reloaded from %s", path)
	if onReload != nil {
		onReload(updated)
	}
}
