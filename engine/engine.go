package engine

import (
	"github.com/spaghettifunk/anvil/engine/config"
	"github.com/spaghettifunk/anvil/engine/core"
	"github.com/spaghettifunk/anvil/engine/platform"
	"github.com/spaghettifunk/anvil/engine/renderer"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

type Engine struct {
	currentStage Stage
	isRunning    bool
	isSuspended  bool

	configPath string
	config     *config.RendererConfig
	watcher    *config.Watcher

	platform *platform.Platform
	clock    *core.Clock
	lastTime float64
}

func New(configPath string) (*Engine, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	p, err := platform.New()
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	return &Engine{
		currentStage: EngineStageUninitialized,
		configPath:   configPath,
		config:       cfg,
		platform:     p,
		clock:        core.NewClock(),
		isRunning:    false,
		isSuspended:  false,
		lastTime:     0,
	}, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing

	if err := core.MetricsInitialize(); err != nil {
		return err
	}

	if err := e.platform.Startup(e.config.AppName, 100, 100, e.config.Width, e.config.Height); err != nil {
		return err
	}

	e.platform.OnResize(func(width, height uint32) {
		if width == 0 || height == 0 {
			core.LogInfo("Window minimized, suspending application.")
			e.isSuspended = true
			return
		}
		e.isSuspended = false
		if err := renderer.OnResize(uint16(width), uint16(height)); err != nil {
			core.LogError(err.Error())
		}
	})

	if err := renderer.Initialize(e.config, e.platform); err != nil {
		return err
	}

	// Hot-reload for settings that can change while running. Only the log
	// level applies live; everything else needs a restart.
	w, err := config.NewWatcher(e.configPath, func(cfg *config.RendererConfig) {
		e.config.LogLevel = cfg.LogLevel
	})
	if err != nil {
		core.LogWarn("config watching disabled: %s", err)
	} else {
		e.watcher = w
	}

	e.currentStage = EngineStageInitialized
	return nil
}

func (e *Engine) Run() error {
	e.isRunning = true
	e.currentStage = EngineStageRunning

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	for e.isRunning && !e.platform.ShouldClose() {
		e.platform.PumpMessages()

		if e.isSuspended {
			continue
		}

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		deltaTime := currentTime - e.lastTime
		e.lastTime = currentTime

		if err := renderer.DrawFrame(deltaTime); err != nil {
			core.LogError("frame draw failed, shutting down")
			e.isRunning = false
			return err
		}
	}

	e.isRunning = false
	return e.Shutdown()
}

func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShuttingDown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	e.isRunning = false

	if e.watcher != nil {
		e.watcher.Close()
	}

	queued, calls := core.MetricsBarriers()
	core.LogInfo("barriers queued: %d, barrier calls emitted: %d", queued, calls)

	if err := renderer.Shutdown(); err != nil {
		core.LogError(err.Error())
	}
	return e.platform.Shutdown()
}
