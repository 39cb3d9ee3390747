package daemon

import (
	"context"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// Config is the daemon's configuration. Defaults come from the
// environment; a YAML file overlays them.
type Config struct {
	LogLevel      string        `yaml:"logLevel" env:"VIREO_LOG_LEVEL,default=info"`
	ProfileFile   string        `yaml:"profileFile" env:"VIREO_PROFILES,default=/etc/vireo/profiles.yaml"`
	DispatcherDir string        `yaml:"dispatcherDir" env:"VIREO_DISPATCHER_DIR,default=/etc/vireo/dispatcher.d"`
	UseResolved   bool          `yaml:"useResolved" env:"VIREO_USE_RESOLVED,default=true"`
	LookupTimeout time.Duration `yaml:"lookupTimeout" env:"VIREO_LOOKUP_TIMEOUT,default=5s"`
}

// LoadConfig resolves the configuration from the environment and the
// optional file at path.
func LoadConfig(ctx context.Context, path string) (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process(ctx, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process environment")
	}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "malformed config file %s", path)
	}
	return cfg, nil
}
