package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTools(); err != nil {
		return err
	}
	if err := c.validateConvert(); err != nil {
		return err
	}
	if err := c.validateDeltaF(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateTools() error {
	if c.Tools.TimeoutSeconds <= 0 {
		return errors.New("tools.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateConvert() error {
	switch c.Convert.INIEncoding {
	case "windows-1252", "utf-8":
	default:
		return fmt.Errorf("convert.ini_encoding: unsupported encoding %q", c.Convert.INIEncoding)
	}
	return nil
}

func (c *Config) validateDeltaF() error {
	switch c.DeltaF.Method {
	case "percentile", "mean", "median":
	default:
		return fmt.Errorf("deltaf.method: unknown method %q", c.DeltaF.Method)
	}
	if c.DeltaF.Percentile < 0 || c.DeltaF.Percentile > 100 {
		return errors.New("deltaf.percentile must be between 0 and 100")
	}
	switch c.DeltaF.WindowMode {
	case "trailing", "centered":
	default:
		return fmt.Errorf("deltaf.window_mode: unknown mode %q", c.DeltaF.WindowMode)
	}
	if c.DeltaF.Window < 0 {
		return errors.New("deltaf.window must be >= 0")
	}
	return nil
}
