package container

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// StageWrite describes one stage's transactional write. Groups lists the
// dataset path prefixes the stage owns, either whole groups ("motion") or
// single subtrees ("qc/neuropil") when a group is shared between stages.
// Existing outputs under those prefixes block the write unless Force is set.
// Acquisition data is never replaced.
type StageWrite struct {
	Stage  string
	Groups []string
	Force  bool
}

// StageWriter adds datasets and attributes inside one stage transaction.
// All writes become visible atomically when the surrounding WriteStage commits.
type StageWriter struct {
	ctx context.Context
	tx  *sql.Tx
}

// WriteStage runs fn inside a single transaction implementing the stage write
// protocol: prior outputs of the stage's groups are either rejected or, with
// Force, removed first; a failing fn leaves the container untouched.
func (c *Container) WriteStage(ctx context.Context, op StageWrite, fn func(w *StageWriter) error) error {
	if !c.writable {
		return ErrReadOnly
	}
	if len(op.Groups) == 0 {
		return fmt.Errorf("stage %s: no groups declared", op.Stage)
	}
	for _, group := range op.Groups {
		if underAcquisition(group) && op.Force {
			return fmt.Errorf("%w: stage %s", ErrImmutableGroup, op.Stage)
		}
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin stage tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, group := range op.Groups {
		occupied, err := groupOccupied(ctx, tx, group)
		if err != nil {
			return err
		}
		if !occupied {
			continue
		}
		if !op.Force {
			return fmt.Errorf("%w: %s outputs already present (use --force to replace)", ErrExists, group)
		}
		if err := clearGroup(ctx, tx, group); err != nil {
			return err
		}
	}

	if err := fn(&StageWriter{ctx: ctx, tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit stage %s: %w", op.Stage, err)
	}
	return nil
}

func groupOccupied(ctx context.Context, tx *sql.Tx, group string) (bool, error) {
	var count int
	err := tx.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM datasets WHERE path = ? OR path LIKE ?",
		group, group+"/%",
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check group %s: %w", group, err)
	}
	return count > 0, nil
}

func underAcquisition(group string) bool {
	return group == GroupAcquisition || strings.HasPrefix(group, GroupAcquisition+"/")
}

func clearGroup(ctx context.Context, tx *sql.Tx, group string) error {
	if underAcquisition(group) {
		return ErrImmutableGroup
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM datasets WHERE path = ? OR path LIKE ?",
		group, group+"/%",
	); err != nil {
		return fmt.Errorf("clear group %s datasets: %w", group, err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM attrs WHERE path = ? OR path LIKE ?",
		group, group+"/%",
	); err != nil {
		return fmt.Errorf("clear group %s attrs: %w", group, err)
	}
	return nil
}

func (w *StageWriter) put(path string, dtype Dtype, shape []int, data []byte) error {
	if strings.TrimSpace(path) == "" || strings.HasPrefix(path, "/") {
		return fmt.Errorf("invalid dataset path %q", path)
	}
	if !dtype.valid() {
		return fmt.Errorf("dataset %s: unknown dtype %q", path, dtype)
	}
	if err := checkPayload(path, dtype, shape, len(data)); err != nil {
		return err
	}
	shapeJSON, err := json.Marshal(shape)
	if err != nil {
		return fmt.Errorf("marshal shape: %w", err)
	}
	created := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = w.tx.ExecContext(w.ctx,
		"INSERT INTO datasets (path, dtype, shape, data, created_at) VALUES (?, ?, ?, ?, ?)",
		path, string(dtype), string(shapeJSON), data, created,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrExists, path)
		}
		return fmt.Errorf("insert dataset %s: %w", path, err)
	}
	return nil
}

// PutUint8 stores a uint8 dataset at path.
func (w *StageWriter) PutUint8(path string, shape []int, values []uint8) error {
	return w.put(path, Uint8, shape, encodeUint8(values))
}

// PutUint16 stores a uint16 dataset at path.
func (w *StageWriter) PutUint16(path string, shape []int, values []uint16) error {
	return w.put(path, Uint16, shape, encodeUint16(values))
}

// PutInt64 stores an int64 dataset at path.
func (w *StageWriter) PutInt64(path string, shape []int, values []int64) error {
	return w.put(path, Int64, shape, encodeInt64(values))
}

// PutFloat64 stores a float64 dataset at path.
func (w *StageWriter) PutFloat64(path string, shape []int, values []float64) error {
	return w.put(path, Float64, shape, encodeFloat64(values))
}

// SetAttr attaches a JSON-encodable attribute to a dataset or group path.
// Writing the same key twice inside one stage replaces the value.
func (w *StageWriter) SetAttr(path, key string, value any) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("invalid attr path %q", path)
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("attr %s: empty key", path)
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal attr %s.%s: %w", path, key, err)
	}
	_, err = w.tx.ExecContext(w.ctx,
		"INSERT INTO attrs (path, key, value) VALUES (?, ?, ?) ON CONFLICT(path, key) DO UPDATE SET value = excluded.value",
		path, key, string(encoded),
	)
	if err != nil {
		return fmt.Errorf("set attr %s.%s: %w", path, key, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
