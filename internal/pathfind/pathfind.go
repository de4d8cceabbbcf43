// Package pathfind discovers recording files on disk. Extension matching and
// the include/exclude regular-expression filters are shared by every batch
// command, so directory arguments behave identically across stages.
package pathfind

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// ErrSeparatorTooLong indicates a multi-character filter separator.
var ErrSeparatorTooLong = errors.New("separator must be a single character")

// DefaultSeparator splits include/exclude filter lists.
const DefaultSeparator = ";"

// Collect returns the files under root carrying one of the given extensions.
// A file root is matched directly. With strict set, only the final extension is
// checked; otherwise any dotted suffix of the name may match, so archives like
// "scan.raw.bak" are still found. Directories are descended only when recursive
// is set.
func Collect(root string, extensions []string, recursive, strict bool) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}

	if !info.IsDir() {
		if matchesExtension(root, extensions, strict) {
			return []string{root}, nil
		}
		return nil, nil
	}

	var collected []string
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", root, err)
	}
	for _, entry := range entries {
		path := filepath.Join(root, entry.Name())
		if entry.IsDir() {
			if !recursive {
				continue
			}
			nested, err := Collect(path, extensions, recursive, strict)
			if err != nil {
				return nil, err
			}
			collected = append(collected, nested...)
			continue
		}
		if matchesExtension(path, extensions, strict) {
			collected = append(collected, path)
		}
	}
	return collected, nil
}

func matchesExtension(path string, extensions []string, strict bool) bool {
	var suffixes []string
	if strict {
		suffixes = []string{filepath.Ext(path)}
	} else {
		suffixes = allSuffixes(filepath.Base(path))
	}
	for _, suffix := range suffixes {
		for _, ext := range extensions {
			if suffix == ext {
				return true
			}
		}
	}
	return false
}

func allSuffixes(name string) []string {
	var suffixes []string
	for {
		ext := filepath.Ext(name)
		if ext == "" {
			break
		}
		suffixes = append(suffixes, ext)
		name = strings.TrimSuffix(name, ext)
	}
	return suffixes
}

// Filter applies include filters first, then exclude filters. Each filter list
// is separator-joined regular expressions matched unanchored against the whole
// path. An empty include list keeps everything.
func Filter(paths []string, include, exclude string) ([]string, error) {
	includes, err := compileFilters(include)
	if err != nil {
		return nil, fmt.Errorf("include filters: %w", err)
	}
	excludes, err := compileFilters(exclude)
	if err != nil {
		return nil, fmt.Errorf("exclude filters: %w", err)
	}

	var kept []string
	for _, path := range paths {
		if len(includes) > 0 && !anyMatch(includes, path) {
			continue
		}
		if anyMatch(excludes, path) {
			continue
		}
		kept = append(kept, path)
	}
	return kept, nil
}

func compileFilters(value string) ([]*regexp.Regexp, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	parts, err := Split(value, DefaultSeparator)
	if err != nil {
		return nil, err
	}
	filters := make([]*regexp.Regexp, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		re, err := regexp.Compile(part)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", part, err)
		}
		filters = append(filters, re)
	}
	return filters, nil
}

func anyMatch(filters []*regexp.Regexp, path string) bool {
	for _, re := range filters {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// Split splits value on the unescaped single-character separator. Escaped
// separators remain in the element with their backslash intact, so callers can
// pass them through to the regular-expression engine unchanged.
func Split(value, separator string) ([]string, error) {
	if len(separator) != 1 {
		return nil, fmt.Errorf("%w: %q", ErrSeparatorTooLong, separator)
	}
	sep := separator[0]

	var (
		parts   []string
		current strings.Builder
	)
	for i := 0; i < len(value); i++ {
		ch := value[i]
		if ch == '\\' && i+1 < len(value) && value[i+1] == sep {
			current.WriteByte('\\')
			current.WriteByte(sep)
			i++
			continue
		}
		if ch == sep {
			parts = append(parts, current.String())
			current.Reset()
			continue
		}
		current.WriteByte(ch)
	}
	parts = append(parts, current.String())
	return parts, nil
}

// Find composes Collect and Filter and returns the matches sorted, giving
// batch commands a deterministic processing order.
func Find(root string, extensions []string, include, exclude string, recursive, strict bool) ([]string, error) {
	paths, err := Collect(root, extensions, recursive, strict)
	if err != nil {
		return nil, err
	}
	paths, err = Filter(paths, include, exclude)
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}
