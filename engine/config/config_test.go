package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func timeout(t *testing.T) <-chan time.Time {
	t.Helper()
	return time.After(5 * time.Second)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "anvil.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	if *cfg != *want {
		t.Errorf("cfg = %+v, want defaults %+v", cfg, want)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
app_name = "demo"
width = 1920
height = 1080
validation = true
frames_in_flight = 3

[staging]
buffer_count = 4
buffer_size = 1048576
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AppName != "demo" || cfg.Width != 1920 || cfg.Height != 1080 {
		t.Errorf("window settings not applied: %+v", cfg)
	}
	if !cfg.Validation || cfg.FramesInFlight != 3 {
		t.Errorf("renderer settings not applied: %+v", cfg)
	}
	if cfg.Staging.BufferCount != 4 || cfg.Staging.BufferSize != 1<<20 {
		t.Errorf("staging settings not applied: %+v", cfg.Staging)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("unset log_level should keep the default, got %q", cfg.LogLevel)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := writeConfig(t, `width = "not a number"`)
	if _, err := Load(path); err == nil {
		t.Error("Load accepted a malformed file")
	}
}

func TestLoadValidates(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"zero frames in flight", "frames_in_flight = 0"},
		{"no staging buffers", "[staging]\nbuffer_count = 0"},
		{"zero staging size", "[staging]\nbuffer_size = 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			if _, err := Load(path); err == nil {
				t.Error("Load accepted an invalid config")
			}
		})
	}
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, `app_name = "before"`)

	reloaded := make(chan *RendererConfig, 1)
	w, err := NewWatcher(path, func(cfg *RendererConfig) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte(`app_name = "after"`), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.AppName != "after" {
			t.Errorf("reloaded app_name = %q", cfg.AppName)
		}
	case <-timeout(t):
		t.Fatal("no reload observed")
	}
}

func TestWatcherCloseIsIdempotent(t *testing.T) {
	path := writeConfig(t, "")
	w, err := NewWatcher(path, func(*RendererConfig) {})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("first Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
