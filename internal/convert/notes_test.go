package convert

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleNotes = `Imaging session, mouse 12, anesthetized
File: D:\scope\m12\rec_XYT_001.raw
Start: 1000
End: 97000

Adjusted PMT gain before the second run.
File: D:\scope\m12\rec_XYT_002.raw
Start: 100000
End: 196000
File: D:\scope\m12\rec_XYT_002.raw
Start: 200000
End: 296000
`

func writeNotes(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.notes.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write notes: %v", err)
	}
	return path
}

func TestParseNotes(t *testing.T) {
	entries, err := ParseNotes(writeNotes(t, sampleNotes))
	if err != nil {
		t.Fatalf("ParseNotes returned error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	first := entries[0]
	if !strings.HasSuffix(first.File, "rec_XYT_001.raw") {
		t.Fatalf("unexpected file %q", first.File)
	}
	if first.Start != 1000 || first.End != 97000 {
		t.Fatalf("unexpected clock readings %g..%g", first.Start, first.End)
	}
}

func TestParseNotesRejectsBadClock(t *testing.T) {
	_, err := ParseNotes(writeNotes(t, "File: a.raw\nStart: soon\n"))
	if err == nil {
		t.Fatal("expected error for unparseable Start value")
	}
}

func TestTimestampsSingleMatch(t *testing.T) {
	entries, err := ParseNotes(writeNotes(t, sampleNotes))
	if err != nil {
		t.Fatalf("ParseNotes returned error: %v", err)
	}
	timestamps, err := Timestamps(entries, "rec_XYT_001.raw", 96, 96)
	if err != nil {
		t.Fatalf("Timestamps returned error: %v", err)
	}
	if len(timestamps) != 96 {
		t.Fatalf("expected 96 timestamps, got %d", len(timestamps))
	}
	if timestamps[0] != 0 {
		t.Fatalf("first timestamp must be zero, got %g", timestamps[0])
	}
	if timestamps[1] != 1000 {
		t.Fatalf("expected 1000 ms spacing, got %g", timestamps[1])
	}
}

func TestTimestampsNoMatch(t *testing.T) {
	entries := []NoteEntry{{File: `C:\other.raw`, Start: 0, End: 1000}}
	if _, err := Timestamps(entries, "rec.raw", 10, 10); err == nil {
		t.Fatal("expected error when no entry matches")
	}
}

func TestTimestampsAmbiguousMatch(t *testing.T) {
	entries, err := ParseNotes(writeNotes(t, sampleNotes))
	if err != nil {
		t.Fatalf("ParseNotes returned error: %v", err)
	}
	if _, err := Timestamps(entries, "rec_XYT_002.raw", 96, 96); err == nil {
		t.Fatal("expected error when multiple entries match")
	}
}

func TestTimestampsRejectsNonPositiveSpan(t *testing.T) {
	entries := []NoteEntry{{File: "rec.raw", Start: 5000, End: 5000}}
	if _, err := Timestamps(entries, "rec.raw", 10, 10); err == nil {
		t.Fatal("expected error for zero-length span")
	}
}

func TestWindowsBase(t *testing.T) {
	cases := map[string]string{
		`D:\scope\m12\rec.raw`: "rec.raw",
		"/data/rec.raw":        "rec.raw",
		"rec.raw":              "rec.raw",
	}
	for input, want := range cases {
		if got := windowsBase(input); got != want {
			t.Fatalf("windowsBase(%q) = %q, want %q", input, got, want)
		}
	}
}
