package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMetadataMissing    = errors.New("metadata missing")
	ErrSettingsInvalid    = errors.New("settings invalid")
	ErrShapeMismatch      = errors.New("shape mismatch")
	ErrBaselineDegenerate = errors.New("baseline degenerate")
	ErrSessionMismatch    = errors.New("session mismatch")
	ErrExternalTool       = errors.New("external tool error")
	ErrContainerState     = errors.New("container state error")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrContainerState
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsUserError reports whether err stems from operator input (settings, missing
// metadata, mismatched sessions) rather than tool or container failures. The CLI
// uses this to decide whether to suggest re-running with different flags.
func IsUserError(err error) bool {
	return errors.Is(err, ErrSettingsInvalid) ||
		errors.Is(err, ErrMetadataMissing) ||
		errors.Is(err, ErrSessionMismatch)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
