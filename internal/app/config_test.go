package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/yungbote/skillgraph-backend/internal/platform/logger"
)

func configLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}

func TestLoadConfig_DefaultsWithoutFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("APP_ENV", "")
	t.Setenv("APP_VERSION", "")

	cfg := LoadConfig(configLogger(t))
	if cfg.Environment != "development" || cfg.Version != "dev" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Engine.WeakThreshold != 60 || cfg.Engine.MaxUpdateAttempts != 5 {
		t.Fatalf("engine defaults not applied: %+v", cfg.Engine)
	}
}

func TestLoadConfig_OverlaysYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	body := "engine:\n  weak_threshold: 70\n  max_update_attempts: 8\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)

	cfg := LoadConfig(configLogger(t))
	if cfg.Engine.WeakThreshold != 70 {
		t.Fatalf("expected weak_threshold 70, got %v", cfg.Engine.WeakThreshold)
	}
	if cfg.Engine.MaxUpdateAttempts != 8 {
		t.Fatalf("expected max_update_attempts 8, got %v", cfg.Engine.MaxUpdateAttempts)
	}
	// Values the file omits keep their defaults.
	if cfg.Engine.KBase != 0.3 {
		t.Fatalf("expected k_base default, got %v", cfg.Engine.KBase)
	}
}

func TestLoadConfig_InvalidFileFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	if err := os.WriteFile(path, []byte("engine: [not a map"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)

	cfg := LoadConfig(configLogger(t))
	if cfg.Engine.WeakThreshold != 60 {
		t.Fatalf("expected defaults after invalid file, got %+v", cfg.Engine)
	}
}

func TestLoadConfig_MissingFileFallsBack(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))

	cfg := LoadConfig(configLogger(t))
	if cfg.Engine.MaxUpdateAttempts != 5 {
		t.Fatalf("expected defaults after missing file, got %+v", cfg.Engine)
	}
}
