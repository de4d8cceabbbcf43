// Package motion corrects frame-to-frame movement in an imaging stack by
// delegating registration to an external tool and recording its outputs
// alongside the acquisition data.
package motion

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Strategy selects the registration algorithm.
type Strategy string

// Known registration strategies, named as the registration tool expects them.
const (
	StrategyHiddenMarkov     Strategy = "HiddenMarkov2D"
	StrategyPlaneTranslation Strategy = "PlaneTranslation2D"
	StrategyDiscreteFourier  Strategy = "DiscreteFourier2D"
)

// ParseStrategy resolves a canonical strategy name or one of the short
// aliases markov, plane, and fourier. Matching ignores case.
func ParseStrategy(value string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "hiddenmarkov2d", "markov":
		return StrategyHiddenMarkov, nil
	case "planetranslation2d", "plane":
		return StrategyPlaneTranslation, nil
	case "discretefourier2d", "fourier":
		return StrategyDiscreteFourier, nil
	default:
		return "", fmt.Errorf("unknown strategy %q", value)
	}
}

// Settings configure one registration run.
type Settings struct {
	Strategy     Strategy
	Displacement [2]int
}

// DefaultSettings returns the Fourier strategy with a 50x50 search bound.
func DefaultSettings() Settings {
	return Settings{Strategy: StrategyDiscreteFourier, Displacement: [2]int{50, 50}}
}

// Validate checks the run configuration.
func (s Settings) Validate() error {
	switch s.Strategy {
	case StrategyHiddenMarkov, StrategyPlaneTranslation, StrategyDiscreteFourier:
	default:
		return fmt.Errorf("unknown strategy %q", s.Strategy)
	}
	if s.Displacement[0] <= 0 || s.Displacement[1] <= 0 {
		return fmt.Errorf("displacement bounds must be positive, got %dx%d", s.Displacement[0], s.Displacement[1])
	}
	return nil
}

type settingsFile struct {
	MotionCorrection *settingsSection `toml:"motion-correction"`
}

type settingsSection struct {
	Strategy     string `toml:"strategy"`
	Displacement []int  `toml:"displacement"`
}

// LoadSettings reads the [motion-correction] table from a TOML settings file.
// Omitted keys fall back to defaults; an absent table is an error so a typo'd
// file cannot silently run with defaults.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}

	var file settingsFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return Settings{}, fmt.Errorf("parse settings: %w", err)
	}
	if file.MotionCorrection == nil {
		return Settings{}, fmt.Errorf("settings file %s has no [motion-correction] table", path)
	}

	settings := DefaultSettings()
	section := file.MotionCorrection
	if section.Strategy != "" {
		strategy, err := ParseStrategy(section.Strategy)
		if err != nil {
			return Settings{}, err
		}
		settings.Strategy = strategy
	}
	if section.Displacement != nil {
		if len(section.Displacement) != 2 {
			return Settings{}, fmt.Errorf("displacement must hold two values, got %d", len(section.Displacement))
		}
		settings.Displacement = [2]int{section.Displacement[0], section.Displacement[1]}
	}
	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}
