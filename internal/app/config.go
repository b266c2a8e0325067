package app

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/skillgraph-backend/internal/engine"
	"github.com/yungbote/skillgraph-backend/internal/platform/envutil"
	"github.com/yungbote/skillgraph-backend/internal/platform/logger"
)

type Config struct {
	Engine      engine.Config
	Environment string
	Version     string
}

type fileConfig struct {
	Engine engine.Config `yaml:"engine"`
}

// LoadConfig starts from the engine defaults and overlays the YAML file
// named by CONFIG_PATH when present. A broken file is logged and ignored
// rather than blocking startup.
func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Engine:      engine.DefaultConfig(),
		Environment: envutil.String("APP_ENV", "development"),
		Version:     envutil.String("APP_VERSION", "dev"),
	}

	path := strings.TrimSpace(os.Getenv("CONFIG_PATH"))
	if path == "" {
		return cfg
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		log.Warn("config file unreadable, using defaults", "path", path, "error", err)
		return cfg
	}

	fc := fileConfig{Engine: cfg.Engine}
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		log.Warn("config file invalid, using defaults", "path", path, "error", err)
		return cfg
	}
	cfg.Engine = fc.Engine
	log.Info("loaded engine config", "path", path)
	return cfg
}
