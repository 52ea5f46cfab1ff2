package infra

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	EnvLogLevel = "MACROFLOW_LOG_LEVEL"
	EnvDryRun   = "MACROFLOW_DRY_RUN"
)

// LoadEnvFiles loads KEY=value files into the environment. Missing files are
// skipped and variables already set are not overridden.
func LoadEnvFiles(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// EnvOverrides are the environment-level settings.
type EnvOverrides struct {
	LogLevel string
	DryRun   bool
}

// ReadEnvOverrides reads MACROFLOW_LOG_LEVEL and MACROFLOW_DRY_RUN.
func ReadEnvOverrides() (EnvOverrides, error) {
	o := EnvOverrides{LogLevel: os.Getenv(EnvLogLevel)}
	if v := os.Getenv(EnvDryRun); v != "" {
		dry, err := strconv.ParseBool(v)
		if err != nil {
			return o, fmt.Errorf("invalid %s=%q: %w", EnvDryRun, v, err)
		}
		o.DryRun = dry
	}
	return o, nil
}
