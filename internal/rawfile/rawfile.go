// Package rawfile reads the vendor's raw acquisition stream: unsigned 16-bit
// little-endian samples with no header, whose geometry comes entirely from the
// sidecar metadata.
package rawfile

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrSizeMismatch indicates the stream length disagrees with the metadata shape.
var ErrSizeMismatch = errors.New("raw stream size does not match metadata shape")

// Size returns the stream length in bytes.
func Size(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat raw file: %w", err)
	}
	return info.Size(), nil
}

// Validate checks the stream length against the expected value count without
// reading the payload.
func Validate(path string, expectedValues int) error {
	size, err := Size(path)
	if err != nil {
		return err
	}
	want := int64(expectedValues) * 2
	if size != want {
		return fmt.Errorf("%w: %s is %d bytes, metadata requires %d (%d values)",
			ErrSizeMismatch, path, size, want, expectedValues)
	}
	return nil
}

// Read loads the whole stream, validating its length first.
func Read(path string, expectedValues int) ([]uint16, error) {
	if err := Validate(path, expectedValues); err != nil {
		return nil, err
	}

	handle, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open raw file: %w", err)
	}
	defer handle.Close()

	reader := bufio.NewReaderSize(handle, 1<<20)
	buf := make([]byte, expectedValues*2)
	if _, err := io.ReadFull(reader, buf); err != nil {
		return nil, fmt.Errorf("read raw stream: %w", err)
	}

	values := make([]uint16, expectedValues)
	for i := range values {
		values[i] = binary.LittleEndian.Uint16(buf[i*2:])
	}
	return values, nil
}
