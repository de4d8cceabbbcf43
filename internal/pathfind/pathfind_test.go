package pathfind_test

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"

	"twop/internal/pathfind"
)

var testFiles = []string{
	"file123.abc",
	"file234.xyz",
	"file345.abc.xyz",
	"file456.xyz.abc",
	filepath.Join("subfolder", "file123.abc"),
	filepath.Join("subfolder", "file234.xyz"),
	filepath.Join("subfolder", "file345.abc.xyz"),
	filepath.Join("subfolder", "file456.xyz.abc"),
}

func buildTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, rel := range testFiles {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			t.Fatalf("touch: %v", err)
		}
	}
	return root
}

func TestCollect(t *testing.T) {
	cases := []struct {
		name      string
		recursive bool
		strict    bool
		expected  []string
	}{
		{
			name: "flat strict", strict: true,
			expected: []string{"file234.xyz", "file345.abc.xyz"},
		},
		{
			name: "flat loose",
			expected: []string{"file234.xyz", "file345.abc.xyz", "file456.xyz.abc"},
		},
		{
			name: "recursive strict", recursive: true, strict: true,
			expected: []string{
				"file234.xyz", "file345.abc.xyz",
				filepath.Join("subfolder", "file234.xyz"),
				filepath.Join("subfolder", "file345.abc.xyz"),
			},
		},
		{
			name: "recursive loose", recursive: true,
			expected: []string{
				"file234.xyz", "file345.abc.xyz", "file456.xyz.abc",
				filepath.Join("subfolder", "file234.xyz"),
				filepath.Join("subfolder", "file345.abc.xyz"),
				filepath.Join("subfolder", "file456.xyz.abc"),
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			root := buildTree(t)
			got, err := pathfind.Collect(root, []string{".xyz"}, tc.recursive, tc.strict)
			if err != nil {
				t.Fatalf("Collect failed: %v", err)
			}
			want := make([]string, len(tc.expected))
			for i, rel := range tc.expected {
				want[i] = filepath.Join(root, rel)
			}
			sort.Strings(got)
			sort.Strings(want)
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("got %v want %v", got, want)
			}
		})
	}
}

func TestCollectSingleFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "rec_XYT_001.raw")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("touch: %v", err)
	}

	got, err := pathfind.Collect(path, []string{".raw"}, false, true)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(got) != 1 || got[0] != path {
		t.Fatalf("got %v", got)
	}

	got, err = pathfind.Collect(path, []string{".twop"}, false, true)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no match, got %v", got)
	}
}

func TestFilter(t *testing.T) {
	paths := []string{"file123.abc", "file234.xyz", "file345.abc.xyz", "file456.xyz.abc"}

	cases := []struct {
		name     string
		include  string
		exclude  string
		expected []string
	}{
		{"no filters", "", "", paths},
		{"include only", "1;2;3", "", []string{"file123.abc", "file234.xyz", "file345.abc.xyz"}},
		{"exclude only", "", "34", []string{"file123.abc", "file456.xyz.abc"}},
		{"both", "1;2;3", "34", []string{"file123.abc"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := pathfind.Filter(paths, tc.include, tc.exclude)
			if err != nil {
				t.Fatalf("Filter failed: %v", err)
			}
			if !reflect.DeepEqual(got, tc.expected) {
				t.Fatalf("got %v want %v", got, tc.expected)
			}
		})
	}
}

func TestSplit(t *testing.T) {
	cases := []struct {
		value     string
		separator string
		expected  []string
	}{
		{"foo;bar", ";", []string{"foo", "bar"}},
		{`foo;b\;ar`, ";", []string{"foo", `b\;ar`}},
		{`foo bar foo\ bar`, " ", []string{"foo", "bar", `foo\ bar`}},
	}
	for _, tc := range cases {
		got, err := pathfind.Split(tc.value, tc.separator)
		if err != nil {
			t.Fatalf("Split(%q) failed: %v", tc.value, err)
		}
		if !reflect.DeepEqual(got, tc.expected) {
			t.Fatalf("Split(%q) = %v, want %v", tc.value, got, tc.expected)
		}
	}
}

func TestSplitRejectsLongSeparator(t *testing.T) {
	if _, err := pathfind.Split("a;;b", ";;"); !errors.Is(err, pathfind.ErrSeparatorTooLong) {
		t.Fatalf("expected ErrSeparatorTooLong, got %v", err)
	}
}

func TestFindSortsResults(t *testing.T) {
	root := buildTree(t)
	got, err := pathfind.Find(root, []string{".xyz"}, "", "", true, true)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if !sort.StringsAreSorted(got) {
		t.Fatalf("expected sorted output, got %v", got)
	}
}

func TestFindRejectsBadRegexp(t *testing.T) {
	root := buildTree(t)
	if _, err := pathfind.Find(root, []string{".xyz"}, "[", "", false, true); err == nil {
		t.Fatal("expected regexp compile error")
	}
}
