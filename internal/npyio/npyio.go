// Package npyio reads and writes NumPy .npy files, the interchange format the
// pipeline shares with its external science tools.
package npyio

import (
	"fmt"

	"github.com/kshedden/gonpy"
)

// WriteUint16 stores values at path with the given shape in C order.
func WriteUint16(path string, shape []int, values []uint16) error {
	w, err := gonpy.NewFileWriter(path)
	if err != nil {
		return fmt.Errorf("open npy writer %s: %w", path, err)
	}
	w.Shape = append([]int{}, shape...)
	w.Version = 2
	if err := w.WriteUint16(values); err != nil {
		return fmt.Errorf("write npy %s: %w", path, err)
	}
	return nil
}

// WriteUint8 stores values at path with the given shape in C order.
func WriteUint8(path string, shape []int, values []uint8) error {
	w, err := gonpy.NewFileWriter(path)
	if err != nil {
		return fmt.Errorf("open npy writer %s: %w", path, err)
	}
	w.Shape = append([]int{}, shape...)
	w.Version = 2
	if err := w.WriteUint8(values); err != nil {
		return fmt.Errorf("write npy %s: %w", path, err)
	}
	return nil
}

// WriteFloat64 stores values at path with the given shape in C order.
func WriteFloat64(path string, shape []int, values []float64) error {
	w, err := gonpy.NewFileWriter(path)
	if err != nil {
		return fmt.Errorf("open npy writer %s: %w", path, err)
	}
	w.Shape = append([]int{}, shape...)
	w.Version = 2
	if err := w.WriteFloat64(values); err != nil {
		return fmt.Errorf("write npy %s: %w", path, err)
	}
	return nil
}

// WriteInt64 stores values at path with the given shape in C order.
func WriteInt64(path string, shape []int, values []int64) error {
	w, err := gonpy.NewFileWriter(path)
	if err != nil {
		return fmt.Errorf("open npy writer %s: %w", path, err)
	}
	w.Shape = append([]int{}, shape...)
	w.Version = 2
	if err := w.WriteInt64(values); err != nil {
		return fmt.Errorf("write npy %s: %w", path, err)
	}
	return nil
}

// ReadUint16 loads a uint16 array with its shape.
func ReadUint16(path string) ([]uint16, []int, error) {
	r, err := gonpy.NewFileReader(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open npy %s: %w", path, err)
	}
	values, err := r.GetUint16()
	if err != nil {
		return nil, nil, fmt.Errorf("read npy %s: %w", path, err)
	}
	return values, append([]int{}, r.Shape...), nil
}

// ReadUint8 loads a uint8 array with its shape.
func ReadUint8(path string) ([]uint8, []int, error) {
	r, err := gonpy.NewFileReader(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open npy %s: %w", path, err)
	}
	values, err := r.GetUint8()
	if err != nil {
		return nil, nil, fmt.Errorf("read npy %s: %w", path, err)
	}
	return values, append([]int{}, r.Shape...), nil
}

// ReadFloat64 loads a float64 array with its shape.
func ReadFloat64(path string) ([]float64, []int, error) {
	r, err := gonpy.NewFileReader(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open npy %s: %w", path, err)
	}
	values, err := r.GetFloat64()
	if err != nil {
		return nil, nil, fmt.Errorf("read npy %s: %w", path, err)
	}
	return values, append([]int{}, r.Shape...), nil
}

// ReadInt64 loads an int64 array with its shape.
func ReadInt64(path string) ([]int64, []int, error) {
	r, err := gonpy.NewFileReader(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open npy %s: %w", path, err)
	}
	values, err := r.GetInt64()
	if err != nil {
		return nil, nil, fmt.Errorf("read npy %s: %w", path, err)
	}
	return values, append([]int{}, r.Shape...), nil
}
