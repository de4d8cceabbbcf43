// Package sessions manages trial structure within and across recordings.
//
// Trial bounds segment one recording's time axis without touching pixel data.
// Stitching concatenates the traces of several recordings of the same field
// of view into one session-level container, recording where each source
// recording starts and ends.
package sessions

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Trial is one [Start, End) frame interval, optionally labelled.
type Trial struct {
	Start int64
	End   int64
	Label string
}

// ParseBounds parses a "10:100,120:200" bounds flag into trials.
func ParseBounds(value string) ([]Trial, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, errors.New("no bounds given")
	}
	parts := strings.Split(value, ",")
	trials := make([]Trial, 0, len(parts))
	for _, part := range parts {
		lo, hi, found := strings.Cut(strings.TrimSpace(part), ":")
		if !found {
			return nil, fmt.Errorf("bounds %q: want start:end", part)
		}
		start, err := strconv.ParseInt(strings.TrimSpace(lo), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bounds %q: bad start: %w", part, err)
		}
		end, err := strconv.ParseInt(strings.TrimSpace(hi), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bounds %q: bad end: %w", part, err)
		}
		trials = append(trials, Trial{Start: start, End: end})
	}
	return trials, nil
}

type trialsFile struct {
	Trial []trialEntry `toml:"trial"`
}

type trialEntry struct {
	Start int64  `toml:"start"`
	End   int64  `toml:"end"`
	Label string `toml:"label"`
}

// LoadTrials reads [[trial]] tables from a TOML file.
func LoadTrials(path string) ([]Trial, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trials: %w", err)
	}
	var file trialsFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse trials: %w", err)
	}
	if len(file.Trial) == 0 {
		return nil, fmt.Errorf("trials file %s has no [[trial]] tables", path)
	}
	trials := make([]Trial, 0, len(file.Trial))
	for _, entry := range file.Trial {
		trials = append(trials, Trial{Start: entry.Start, End: entry.End, Label: entry.Label})
	}
	return trials, nil
}

// ValidateTrials checks every interval against the recording length and
// requires trial starts to be nondecreasing.
func ValidateTrials(trials []Trial, frames int64) error {
	if len(trials) == 0 {
		return errors.New("no trials given")
	}
	prev := int64(-1)
	for i, trial := range trials {
		if trial.Start < 0 || trial.End > frames || trial.Start >= trial.End {
			return fmt.Errorf("trial %d bounds %d:%d fall outside 0..%d", i, trial.Start, trial.End, frames)
		}
		if trial.Start < prev {
			return fmt.Errorf("trial %d starts before trial %d", i, i-1)
		}
		prev = trial.Start
	}
	return nil
}
