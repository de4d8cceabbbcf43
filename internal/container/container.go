package container

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

// Container is one recording's hierarchical dataset store backed by a single
// SQLite file. Writable handles hold an exclusive advisory lock for their whole
// lifetime; read-only handles hold a shared lock.
type Container struct {
	db       *sql.DB
	path     string
	lock     *flock.Flock
	writable bool
}

// Create initializes a new container file. It fails when the path already
// exists. The returned handle is writable.
func Create(path string) (*Container, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrExists, path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("stat container: %w", err)
	}
	return open(path, true)
}

// Open connects to an existing container for writing.
func Open(path string) (*Container, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return open(path, true)
}

// OpenReadOnly connects to an existing container for reading. Multiple readers
// may hold the shared lock concurrently.
func OpenReadOnly(path string) (*Container, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return open(path, false)
}

func open(path string, writable bool) (*Container, error) {
	lock := flock.New(path + ".lock")
	var (
		locked bool
		err    error
	)
	if writable {
		locked, err = lock.TryLock()
	} else {
		locked, err = lock.TryRLock()
	}
	if err != nil {
		return nil, fmt.Errorf("acquire container lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrBusy, path)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	c := &Container{db: db, path: path, lock: lock, writable: writable}
	if err := c.initSchema(context.Background()); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}
	return c, nil
}

// Close releases the database connection and the advisory lock.
func (c *Container) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	if c.lock != nil {
		if unlockErr := c.lock.Unlock(); err == nil {
			err = unlockErr
		}
		c.lock = nil
	}
	return err
}

// Path returns the container file path.
func (c *Container) Path() string { return c.path }

// Writable reports whether this handle may write.
func (c *Container) Writable() bool { return c.writable }

// Remove deletes a container file along with its lock and WAL sidecars.
// A missing container is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	os.Remove(path + ".lock")
	os.Remove(path + "-wal")
	os.Remove(path + "-shm")
	return nil
}
