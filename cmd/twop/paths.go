package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"twop/internal/config"
	"twop/internal/container"
	"twop/internal/pathfind"
)

// containerQuery controls how a directory argument expands to containers.
// The zero value matches *.twop files directly under the directory.
type containerQuery struct {
	Recursive bool
	Include   string
	Exclude   string
}

// resolveContainers expands a file-or-directory argument into container
// paths. A file must carry the container extension; a directory yields every
// matching container beneath it, sorted.
func resolveContainers(arg string, query containerQuery) ([]string, error) {
	path, err := config.ExpandPath(strings.TrimSpace(arg))
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("inspect path %q: %w", path, err)
	}
	if !info.IsDir() {
		if !strings.EqualFold(filepath.Ext(path), container.Ext) {
			return nil, fmt.Errorf("%s is not a %s container", path, container.Ext)
		}
		return []string{path}, nil
	}

	paths, err := pathfind.Find(path, []string{container.Ext}, query.Include, query.Exclude, query.Recursive, true)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no %s containers under %s", container.Ext, path)
	}
	return paths, nil
}
