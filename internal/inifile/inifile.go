// Package inifile parses the vendor sidecar metadata written next to each raw
// recording. The files are INI key-value listings with exactly one section;
// values are typed on read so they can be stored as container attributes
// without further interpretation.
package inifile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

var (
	// ErrNoSections indicates the file contains no section header.
	ErrNoSections = errors.New("ini: no sections found")
	// ErrTooManySections indicates more than one section besides DEFAULT.
	ErrTooManySections = errors.New("ini: too many sections found")
)

// defaultSection holds fallback values merged into the data section.
const defaultSection = "DEFAULT"

// File is a parsed sidecar file. Keys are lowercased; iteration order follows
// the file.
type File struct {
	Section string
	keys    []string
	values  map[string]any
}

// Load reads and parses the file at path using the given character encoding
// ("windows-1252" or "utf-8").
func Load(path, encoding string) (*File, error) {
	handle, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ini: %w", err)
	}
	defer handle.Close()

	file, err := Parse(handle, encoding)
	if err != nil {
		return nil, fmt.Errorf("%w (%s)", err, path)
	}
	return file, nil
}

// Parse reads sidecar metadata from r.
func Parse(r io.Reader, encoding string) (*File, error) {
	if encoding == "windows-1252" {
		r = charmap.Windows1252.NewDecoder().Reader(r)
	}

	type section struct {
		name   string
		keys   []string
		values map[string]any
	}
	var (
		sections []*section
		current  *section
		lastKey  string
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, ";") {
			lastKey = ""
			continue
		}

		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			name := strings.TrimSpace(trimmed[1 : len(trimmed)-1])
			current = &section{name: name, values: make(map[string]any)}
			sections = append(sections, current)
			lastKey = ""
			continue
		}

		// Indented lines continue the previous value.
		if current != nil && lastKey != "" && line != trimmed && (line[0] == ' ' || line[0] == '\t') {
			prev, _ := current.values[lastKey].(string)
			current.values[lastKey] = prev + "\n" + trimmed
			continue
		}

		if current == nil {
			return nil, fmt.Errorf("ini: line %d: property before section header", lineNo)
		}

		sep := strings.IndexAny(trimmed, "=:")
		if sep < 0 {
			return nil, fmt.Errorf("ini: line %d: missing key separator", lineNo)
		}
		key := strings.ToLower(strings.TrimSpace(trimmed[:sep]))
		if key == "" {
			return nil, fmt.Errorf("ini: line %d: empty key", lineNo)
		}
		value := strings.TrimSpace(trimmed[sep+1:])
		if _, seen := current.values[key]; !seen {
			current.keys = append(current.keys, key)
		}
		current.values[key] = value
		lastKey = key
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ini: read: %w", err)
	}

	var defaults *section
	var data []*section
	for _, s := range sections {
		if s.name == defaultSection {
			defaults = s
			continue
		}
		data = append(data, s)
	}
	if len(data) == 0 {
		return nil, ErrNoSections
	}
	if len(data) > 1 {
		names := make([]string, len(data))
		for i, s := range data {
			names[i] = s.name
		}
		return nil, fmt.Errorf("%w: only a single section besides [DEFAULT] is supported, found %s",
			ErrTooManySections, strings.Join(names, " "))
	}

	file := &File{Section: data[0].name, values: make(map[string]any)}
	if defaults != nil {
		for _, key := range defaults.keys {
			if _, shadowed := data[0].values[key]; shadowed {
				continue
			}
			file.keys = append(file.keys, key)
			file.values[key] = typedValue(defaults.values[key].(string))
		}
	}
	for _, key := range data[0].keys {
		file.keys = append(file.keys, key)
		file.values[key] = typedValue(data[0].values[key].(string))
	}
	return file, nil
}

func typedValue(raw string) any {
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	switch strings.ToLower(raw) {
	case "true":
		return true
	case "false":
		return false
	}
	if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		return raw[1 : len(raw)-1]
	}
	return raw
}

// Keys returns the key names in file order.
func (f *File) Keys() []string {
	out := make([]string, len(f.keys))
	copy(out, f.keys)
	return out
}

// Get returns the typed value for key.
func (f *File) Get(key string) (any, bool) {
	v, ok := f.values[strings.ToLower(key)]
	return v, ok
}

// String returns a string value for key; numeric values are not converted.
func (f *File) String(key string) (string, bool) {
	v, ok := f.Get(key)
	if !ok {
		return "", false
	}
	s, isString := v.(string)
	return s, isString
}

// Int returns an integer value for key.
func (f *File) Int(key string) (int64, bool) {
	v, ok := f.Get(key)
	if !ok {
		return 0, false
	}
	i, isInt := v.(int64)
	return i, isInt
}

// Float returns a numeric value for key, promoting integers.
func (f *File) Float(key string) (float64, bool) {
	v, ok := f.Get(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
