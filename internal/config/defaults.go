package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultLogDir             = "~/.local/share/twop/logs"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultRegistrationTool   = "sima-mc"
	defaultSeparationTool     = "fissa-sep"
	defaultInferenceTool      = "oasis-infer"
	defaultNWBExportTool      = "nwb-export"
	defaultToolTimeoutSeconds = 3600
	defaultMinFreeGiB         = 2
	defaultINIEncoding        = "windows-1252"
	defaultDeltaFMethod       = "percentile"
	defaultDeltaFPercentile   = 5.0
	defaultDeltaFWindowMode   = "trailing"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir: defaultWorkDir(),
			LogDir:  defaultLogDir,
		},
		Tools: Tools{
			Registration:   defaultRegistrationTool,
			Separation:     defaultSeparationTool,
			Inference:      defaultInferenceTool,
			NWBExport:      defaultNWBExportTool,
			TimeoutSeconds: defaultToolTimeoutSeconds,
		},
		Convert: Convert{
			MinFreeGiB:   defaultMinFreeGiB,
			StrictSuffix: true,
			INIEncoding:  defaultINIEncoding,
		},
		DeltaF: DeltaF{
			Method:     defaultDeltaFMethod,
			Percentile: defaultDeltaFPercentile,
			WindowMode: defaultDeltaFWindowMode,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

func defaultWorkDir() string {
	if base, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "twop", "work")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "~/.cache/twop/work"
	}
	return filepath.Join(home, ".cache", "twop", "work")
}
