package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/anvil/engine/core"
)

// RendererConfig is the one user-facing knob surface of the device layer.
// Everything else is derived from the device capabilities at startup.
type RendererConfig struct {
	AppName        string `toml:"app_name"`
	Width          uint32 `toml:"width"`
	Height         uint32 `toml:"height"`
	LogLevel       string `toml:"log_level"`
	Validation     bool   `toml:"validation"`
	FramesInFlight uint8  `toml:"frames_in_flight"`

	Staging StagingConfig `toml:"staging"`
}

type StagingConfig struct {
	// Number of pooled staging buffers.
	BufferCount int `toml:"buffer_count"`
	// Size of each pooled staging buffer, in bytes.
	BufferSize uint64 `toml:"buffer_size"`
}

func Default() *RendererConfig {
	return &RendererConfig{
		AppName:        "anvil",
		Width:          1280,
		Height:         720,
		LogLevel:       "info",
		Validation:     false,
		FramesInFlight: 2,
		Staging: StagingConfig{
			BufferCount: 8,
			BufferSize:  16 * 1024 * 1024,
		},
	}
}

// Load reads a TOML config file on top of the defaults. A missing file is not
// an error; the defaults are returned unchanged.
func Load(path string) (*RendererConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			core.LogInfo("no config file at %s, using defaults", path)
			return cfg, nil
		}
		core.LogError(err.Error())
		return nil, err
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		err = fmt.Errorf("failed to parse config %s: %w", path, err)
		core.LogError(err.Error())
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	core.SetLogLevel(cfg.LogLevel)
	return cfg, nil
}

func (c *RendererConfig) validate() error {
	if c.FramesInFlight == 0 {
		return fmt.Errorf("frames_in_flight must be at least 1")
	}
	if c.Staging.BufferCount < 1 {
		return fmt.Errorf("staging.buffer_count must be at least 1")
	}
	if c.Staging.BufferSize == 0 {
		return fmt.Errorf("staging.buffer_size must be non-zero")
	}
	return nil
}

// Watcher re-reads the config file whenever it changes on disk and hands the
// new config to the registered callback. Only hot-applicable settings should
// be consumed from reloads; swapchain dimensions require a restart.
type Watcher struct {
	path     string
	fsnotify *fsnotify.Watcher
	onReload func(*RendererConfig)

	mu     sync.Mutex
	closed bool
}

func NewWatcher(path string, onReload func(*RendererConfig)) (*Watcher, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	w := &Watcher{
		path:     path,
		fsnotify: fsWatch,
		onReload: onReload,
	}
	if err := fsWatch.Add(path); err != nil {
		fsWatch.Close()
		return nil, err
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.fsnotify.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				core.LogWarn("config reload failed, keeping previous: %s", err)
				continue
			}
			core.LogInfo("config reloaded from %s", w.path)
			w.onReload(cfg)
		case err, ok := <-w.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogWarn("config watcher: %s", err)
		}
	}
}

func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.fsnotify.Close()
}
