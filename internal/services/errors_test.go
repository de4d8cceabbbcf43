package services_test

import (
	"errors"
	"strings"
	"testing"

	"twop/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "motion", "register", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"motion", "register", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapNilMarkerDefaults(t *testing.T) {
	err := services.Wrap(nil, "convert", "open", "cannot open container", nil)
	if !errors.Is(err, services.ErrContainerState) {
		t.Fatalf("expected container state marker, got %v", err)
	}
}

func TestIsUserError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		expect bool
	}{
		{"settings", services.Wrap(services.ErrSettingsInvalid, "deltaf", "validate", "bad window", nil), true},
		{"metadata", services.Wrap(services.ErrMetadataMissing, "convert", "metadata", "no xml", nil), true},
		{"session", services.Wrap(services.ErrSessionMismatch, "stitch", "validate", "rate differs", nil), true},
		{"shape", services.Wrap(services.ErrShapeMismatch, "convert", "validate", "size", nil), false},
		{"tool", services.Wrap(services.ErrExternalTool, "motion", "run", "exit 1", nil), false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.IsUserError(tc.err); got != tc.expect {
				t.Fatalf("IsUserError(%v) = %v, want %v", tc.err, got, tc.expect)
			}
		})
	}
}
