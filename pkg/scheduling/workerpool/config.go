package workerpool

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	gterrors "github.com/vnykmshr/gotask/pkg/common/errors"
	"github.com/vnykmshr/gotask/pkg/common/validation"
)

// Environment variables that override values read by LoadConfig.
const (
	EnvWorkers    = "GOTASK_WORKERS"
	EnvPoolName   = "GOTASK_POOL_NAME"
	EnvAutoUpdate = "GOTASK_AUTO_UPDATE"
)

// LoadConfig reads a pool configuration from a YAML file and applies
// environment overrides:
//
//	name: render
//	workers: 8
//	auto_update: true
//
// Logger, Observer and Registry are not read from the file.
func LoadConfig(path string) (Config, error) {
	var config Config

	// #nosec G304 -- the path is chosen by the caller.
	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("failed to read pool config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("failed to unmarshal pool config: %w", err)
	}

	if err := applyEnv(&config); err != nil {
		return config, err
	}

	if err := validation.ValidatePositive("workerpool", "WorkerCount", config.WorkerCount); err != nil {
		return config, err
	}
	return config, nil
}

func applyEnv(config *Config) error {
	if v := os.Getenv(EnvWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return gterrors.NewValidationError("workerpool", EnvWorkers, v, "must be an integer")
		}
		config.WorkerCount = n
	}
	if v := os.Getenv(EnvPoolName); v != "" {
		config.Name = v
	}
	if v := os.Getenv(EnvAutoUpdate); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return gterrors.NewValidationError("workerpool", EnvAutoUpdate, v, "must be a boolean")
		}
		config.AutoUpdate = b
	}
	return nil
}
