package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTools()
	c.normalizeConvert()
	c.normalizeDeltaF()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir()
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) != "" {
		if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
			return fmt.Errorf("paths.output_dir: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeTools() {
	if strings.TrimSpace(c.Tools.Registration) == "" {
		c.Tools.Registration = defaultRegistrationTool
	}
	if strings.TrimSpace(c.Tools.Separation) == "" {
		c.Tools.Separation = defaultSeparationTool
	}
	if strings.TrimSpace(c.Tools.Inference) == "" {
		c.Tools.Inference = defaultInferenceTool
	}
	if strings.TrimSpace(c.Tools.NWBExport) == "" {
		c.Tools.NWBExport = defaultNWBExportTool
	}
	if c.Tools.TimeoutSeconds <= 0 {
		c.Tools.TimeoutSeconds = defaultToolTimeoutSeconds
	}
}

func (c *Config) normalizeConvert() {
	if c.Convert.MinFreeGiB < 0 {
		c.Convert.MinFreeGiB = 0
	}
	c.Convert.INIEncoding = strings.ToLower(strings.TrimSpace(c.Convert.INIEncoding))
	if c.Convert.INIEncoding == "" {
		c.Convert.INIEncoding = defaultINIEncoding
	}
}

func (c *Config) normalizeDeltaF() {
	c.DeltaF.Method = strings.ToLower(strings.TrimSpace(c.DeltaF.Method))
	if c.DeltaF.Method == "" {
		c.DeltaF.Method = defaultDeltaFMethod
	}
	if c.DeltaF.Percentile == 0 {
		c.DeltaF.Percentile = defaultDeltaFPercentile
	}
	c.DeltaF.WindowMode = strings.ToLower(strings.TrimSpace(c.DeltaF.WindowMode))
	if c.DeltaF.WindowMode == "" {
		c.DeltaF.WindowMode = defaultDeltaFWindowMode
	}
	if c.DeltaF.Window < 0 {
		c.DeltaF.Window = 0
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
