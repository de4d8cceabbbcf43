package container

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

// DatasetInfo describes a stored dataset without its payload.
type DatasetInfo struct {
	Path      string
	Dtype     Dtype
	Shape     []int
	CreatedAt time.Time
}

// Group returns the first path element.
func (d DatasetInfo) Group() string { return GroupOf(d.Path) }

// Len returns the element count.
func (d DatasetInfo) Len() int { return shapeLen(d.Shape) }

// SizeBytes returns the payload size.
func (d DatasetInfo) SizeBytes() int64 {
	return int64(shapeLen(d.Shape)) * int64(d.Dtype.itemSize())
}

// HasDataset reports whether a dataset exists at path.
func (c *Container) HasDataset(ctx context.Context, path string) (bool, error) {
	var count int
	err := c.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM datasets WHERE path = ?", path).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check dataset %s: %w", path, err)
	}
	return count > 0, nil
}

// Stat returns dataset metadata without loading the payload.
func (c *Container) Stat(ctx context.Context, path string) (DatasetInfo, error) {
	row := c.db.QueryRowContext(ctx,
		"SELECT path, dtype, shape, created_at FROM datasets WHERE path = ?", path)
	return scanInfo(row)
}

// List returns metadata for every dataset, ordered by path.
func (c *Container) List(ctx context.Context) ([]DatasetInfo, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT path, dtype, shape, created_at FROM datasets ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer rows.Close()

	var infos []DatasetInfo
	for rows.Next() {
		info, err := scanInfo(rows)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// Groups returns the distinct group names present, sorted.
func (c *Container) Groups(ctx context.Context) ([]string, error) {
	infos, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(infos))
	var groups []string
	for _, info := range infos {
		group := info.Group()
		if _, ok := seen[group]; ok {
			continue
		}
		seen[group] = struct{}{}
		groups = append(groups, group)
	}
	sort.Strings(groups)
	return groups, nil
}

type scanner interface{ Scan(dest ...any) error }

func scanInfo(row scanner) (DatasetInfo, error) {
	var (
		info     DatasetInfo
		dtype    string
		shapeRaw string
		created  string
	)
	if err := row.Scan(&info.Path, &dtype, &shapeRaw, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DatasetInfo{}, ErrNotFound
		}
		return DatasetInfo{}, fmt.Errorf("scan dataset: %w", err)
	}
	info.Dtype = Dtype(dtype)
	if err := json.Unmarshal([]byte(shapeRaw), &info.Shape); err != nil {
		return DatasetInfo{}, fmt.Errorf("decode shape for %s: %w", info.Path, err)
	}
	if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
		info.CreatedAt = ts
	}
	return info, nil
}

func (c *Container) readRaw(ctx context.Context, path string, want Dtype) ([]byte, []int, error) {
	row := c.db.QueryRowContext(ctx,
		"SELECT dtype, shape, data FROM datasets WHERE path = ?", path)
	var (
		dtype    string
		shapeRaw string
		data     []byte
	)
	if err := row.Scan(&dtype, &shapeRaw, &data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, nil, fmt.Errorf("read dataset %s: %w", path, err)
	}
	if Dtype(dtype) != want {
		return nil, nil, fmt.Errorf("%w: %s is %s, requested %s", ErrTypeMismatch, path, dtype, want)
	}
	var shape []int
	if err := json.Unmarshal([]byte(shapeRaw), &shape); err != nil {
		return nil, nil, fmt.Errorf("decode shape for %s: %w", path, err)
	}
	if err := checkPayload(path, want, shape, len(data)); err != nil {
		return nil, nil, err
	}
	return data, shape, nil
}

// ReadUint8 loads a uint8 dataset with its shape.
func (c *Container) ReadUint8(ctx context.Context, path string) ([]uint8, []int, error) {
	data, shape, err := c.readRaw(ctx, path, Uint8)
	if err != nil {
		return nil, nil, err
	}
	return decodeUint8(data), shape, nil
}

// ReadUint16 loads a uint16 dataset with its shape.
func (c *Container) ReadUint16(ctx context.Context, path string) ([]uint16, []int, error) {
	data, shape, err := c.readRaw(ctx, path, Uint16)
	if err != nil {
		return nil, nil, err
	}
	return decodeUint16(data), shape, nil
}

// ReadInt64 loads an int64 dataset with its shape.
func (c *Container) ReadInt64(ctx context.Context, path string) ([]int64, []int, error) {
	data, shape, err := c.readRaw(ctx, path, Int64)
	if err != nil {
		return nil, nil, err
	}
	return decodeInt64(data), shape, nil
}

// ReadFloat64 loads a float64 dataset with its shape.
func (c *Container) ReadFloat64(ctx context.Context, path string) ([]float64, []int, error) {
	data, shape, err := c.readRaw(ctx, path, Float64)
	if err != nil {
		return nil, nil, err
	}
	return decodeFloat64(data), shape, nil
}

// Attr returns the decoded attribute value at path/key.
func (c *Container) Attr(ctx context.Context, path, key string) (any, bool, error) {
	row := c.db.QueryRowContext(ctx,
		"SELECT value FROM attrs WHERE path = ? AND key = ?", path, key)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read attr %s.%s: %w", path, key, err)
	}
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, false, fmt.Errorf("decode attr %s.%s: %w", path, key, err)
	}
	return value, true, nil
}

// AttrString returns a string attribute, or "" when absent.
func (c *Container) AttrString(ctx context.Context, path, key string) (string, bool, error) {
	value, ok, err := c.Attr(ctx, path, key)
	if err != nil || !ok {
		return "", ok, err
	}
	s, isString := value.(string)
	if !isString {
		return "", false, fmt.Errorf("%w: attr %s.%s is not a string", ErrTypeMismatch, path, key)
	}
	return s, true, nil
}

// AttrFloat returns a numeric attribute, or 0 when absent.
func (c *Container) AttrFloat(ctx context.Context, path, key string) (float64, bool, error) {
	value, ok, err := c.Attr(ctx, path, key)
	if err != nil || !ok {
		return 0, ok, err
	}
	f, isNumber := value.(float64)
	if !isNumber {
		return 0, false, fmt.Errorf("%w: attr %s.%s is not numeric", ErrTypeMismatch, path, key)
	}
	return f, true, nil
}

// Attrs returns every attribute attached to path.
func (c *Container) Attrs(ctx context.Context, path string) (map[string]any, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT key, value FROM attrs WHERE path = ? ORDER BY key", path)
	if err != nil {
		return nil, fmt.Errorf("list attrs for %s: %w", path, err)
	}
	defer rows.Close()

	attrs := make(map[string]any)
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("scan attr: %w", err)
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			return nil, fmt.Errorf("decode attr %s.%s: %w", path, key, err)
		}
		attrs[key] = value
	}
	return attrs, rows.Err()
}
