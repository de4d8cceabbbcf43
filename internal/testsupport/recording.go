package testsupport

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Recording locates the on-disk artifacts of one synthetic vendor recording.
type Recording struct {
	RawPath string
	INIPath string
	Frames  int
	Height  int
	Width   int
	Values  []uint16
}

type recordingSpec struct {
	siblingOME    bool
	writeNotes    bool
	notesStart    float64
	notesEnd      float64
	frameRate     float64
	omitFrames    bool
	truncateBytes int
}

// RecordingOption customizes a generated recording.
type RecordingOption func(*recordingSpec)

// WithSiblingOME writes the OME-XML as a sibling file instead of embedding it
// in the INI.
func WithSiblingOME() RecordingOption {
	return func(s *recordingSpec) { s.siblingOME = true }
}

// WithNotes writes a session notes file covering the recording between the
// two millisecond clock readings.
func WithNotes(start, end float64) RecordingOption {
	return func(s *recordingSpec) {
		s.writeNotes = true
		s.notesStart = start
		s.notesEnd = end
	}
}

// WithoutFrameCount drops the frame.count key from the INI.
func WithoutFrameCount() RecordingOption {
	return func(s *recordingSpec) { s.omitFrames = true }
}

// WithFrameRate overrides the INI frame rate.
func WithFrameRate(hz float64) RecordingOption {
	return func(s *recordingSpec) { s.frameRate = hz }
}

// WithTruncatedRaw removes n bytes from the end of the raw stream so the file
// no longer matches its metadata.
func WithTruncatedRaw(n int) RecordingOption {
	return func(s *recordingSpec) { s.truncateBytes = n }
}

// WriteRecording generates a raw stream and its sidecar metadata under dir.
// The pixel values are deterministic so tests can assert on round trips.
func WriteRecording(t testing.TB, dir, stem string, frames, height, width int, opts ...RecordingOption) Recording {
	t.Helper()

	spec := recordingSpec{frameRate: 30}
	for _, opt := range opts {
		opt(&spec)
	}

	values := PixelPattern(frames * height * width)
	raw := make([]byte, len(values)*2)
	for i, v := range values {
		binary.LittleEndian.PutUint16(raw[2*i:], v)
	}
	if spec.truncateBytes > 0 && spec.truncateBytes < len(raw) {
		raw = raw[:len(raw)-spec.truncateBytes]
	}

	rawPath := filepath.Join(dir, stem+".raw")
	if err := os.WriteFile(rawPath, raw, 0o644); err != nil {
		t.Fatalf("write raw: %v", err)
	}

	ome := fmt.Sprintf(`<?xml version="1.0"?><OME><Image ID="Image:0"><Pixels ID="Pixels:0" SizeX="%d" SizeY="%d" SizeZ="1" SizeC="1" SizeT="%d" DimensionOrder="XYZCT" Type="uint16"/></Image></OME>`,
		width, height, frames)

	var ini strings.Builder
	ini.WriteString("[recording]\n")
	if !spec.omitFrames {
		fmt.Fprintf(&ini, "frame.count = %d\n", frames)
	}
	fmt.Fprintf(&ini, "frame.rate = %g\n", spec.frameRate)
	ini.WriteString("objective.magnification = 16\n")
	ini.WriteString("pmt.gain = 680\n")
	if spec.siblingOME {
		omePath := filepath.Join(dir, strings.ReplaceAll(stem, "XYT", "OME")+".xml")
		if err := os.WriteFile(omePath, []byte(ome), 0o644); err != nil {
			t.Fatalf("write ome sidecar: %v", err)
		}
	} else {
		fmt.Fprintf(&ini, "ome.xml.string = %s\n", ome)
	}

	iniPath := filepath.Join(dir, stem+".ini")
	if err := os.WriteFile(iniPath, []byte(ini.String()), 0o644); err != nil {
		t.Fatalf("write ini: %v", err)
	}

	if spec.writeNotes {
		notes := fmt.Sprintf("Session notes\nFile: D:\\scope\\%s.raw\nStart: %g\nEnd: %g\n",
			stem, spec.notesStart, spec.notesEnd)
		notesPath := filepath.Join(dir, stem+".notes.txt")
		if err := os.WriteFile(notesPath, []byte(notes), 0o644); err != nil {
			t.Fatalf("write notes: %v", err)
		}
	}

	return Recording{
		RawPath: rawPath,
		INIPath: iniPath,
		Frames:  frames,
		Height:  height,
		Width:   width,
		Values:  values,
	}
}

// PixelPattern produces n deterministic uint16 values.
func PixelPattern(n int) []uint16 {
	values := make([]uint16, n)
	for i := range values {
		values[i] = uint16((i*31 + 7) % 4096)
	}
	return values
}
