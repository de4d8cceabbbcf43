package convert

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// NoteEntry is one acquisition record from a session notes file. The File
// value is whatever path the acquisition workstation logged, usually a
// Windows path; Start and End are millisecond clock readings.
type NoteEntry struct {
	File  string
	Start float64
	End   float64
}

// ParseNotes reads a session notes file. Each entry begins with a "File:"
// line followed by "Start:" and "End:" lines; free-form note text between
// entries is ignored.
func ParseNotes(path string) ([]NoteEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var (
		entries []NoteEntry
		current *NoteEntry
	)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "File:"):
			if current != nil {
				entries = append(entries, *current)
			}
			current = &NoteEntry{File: strings.TrimSpace(strings.TrimPrefix(line, "File:"))}
		case strings.HasPrefix(line, "Start:"):
			if current == nil {
				continue
			}
			value, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(line, "Start:")), 64)
			if err != nil {
				return nil, fmt.Errorf("notes %s: bad Start value: %w", path, err)
			}
			current.Start = value
		case strings.HasPrefix(line, "End:"):
			if current == nil {
				continue
			}
			value, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(line, "End:")), 64)
			if err != nil {
				return nil, fmt.Errorf("notes %s: bad End value: %w", path, err)
			}
			current.End = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("notes %s: %w", path, err)
	}
	if current != nil {
		entries = append(entries, *current)
	}
	return entries, nil
}

// Timestamps derives evenly spaced per-frame timestamps in milliseconds for
// the raw file named rawBase. Exactly one notes entry must reference that
// file. The spacing comes from the entry's duration divided by the configured
// frame count; frames sets how many timestamps are produced.
func Timestamps(entries []NoteEntry, rawBase string, frameCount, frames int) ([]float64, error) {
	var matched []NoteEntry
	for _, entry := range entries {
		if windowsBase(entry.File) == rawBase {
			matched = append(matched, entry)
		}
	}
	switch len(matched) {
	case 0:
		return nil, fmt.Errorf("no notes entry for %s", rawBase)
	case 1:
	default:
		return nil, fmt.Errorf("%d notes entries for %s, expected one", len(matched), rawBase)
	}

	entry := matched[0]
	duration := entry.End - entry.Start
	if duration <= 0 {
		return nil, fmt.Errorf("notes entry for %s spans %.0f ms", rawBase, duration)
	}
	if frameCount <= 0 || frames <= 0 {
		return nil, fmt.Errorf("frame counts must be positive, got %d and %d", frameCount, frames)
	}

	spacing := duration / float64(frameCount)
	timestamps := make([]float64, frames)
	for i := range timestamps {
		timestamps[i] = float64(i) * spacing
	}
	return timestamps, nil
}

// windowsBase returns the final path element for either path flavor.
func windowsBase(path string) string {
	if i := strings.LastIndexAny(path, `\/`); i >= 0 {
		return path[i+1:]
	}
	return path
}
