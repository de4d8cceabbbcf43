package inference

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func TestNewCLIWithBinary(t *testing.T) {
	cli := NewCLI(WithBinary("/opt/oasis-infer"))
	if cli.binary != "/opt/oasis-infer" {
		t.Fatalf("expected binary override to be applied, got %q", cli.binary)
	}
}

func TestCLIInferRequiresTraces(t *testing.T) {
	cli := NewCLI()
	if _, err := cli.Infer(context.Background(), "", "/tmp", 30, nil); err == nil {
		t.Fatal("expected error when traces path is empty")
	}
}

func TestCLIInferRejectsNonPositiveRate(t *testing.T) {
	cli := NewCLI()
	if _, err := cli.Infer(context.Background(), "/work/deltaf.npy", "/tmp", 0, nil); err == nil {
		t.Fatal("expected error for zero frame rate")
	}
}

func TestCLIInferBuildsArgs(t *testing.T) {
	var capturedArgs []string
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		capturedArgs = append([]string(nil), args...)
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "OASIS_HELPER_MODE=success")
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})

	cli := NewCLI()
	if _, err := cli.Infer(context.Background(), "/work/deltaf.npy", t.TempDir(), 29.13, nil); err != nil {
		t.Fatalf("Infer returned error: %v", err)
	}

	idx := findArg(capturedArgs, "--rate")
	if idx == -1 {
		t.Fatalf("expected --rate in args %v", capturedArgs)
	}
	if capturedArgs[idx+1] != "29.13" {
		t.Fatalf("expected rate value 29.13, got %q", capturedArgs[idx+1])
	}
}

func TestCLIInferSuccess(t *testing.T) {
	setHelperCommand(t, "success")

	cli := NewCLI()
	outputDir := t.TempDir()

	var updates []ProgressUpdate
	path, err := cli.Infer(context.Background(), "/work/deltaf.npy", outputDir, 30, func(update ProgressUpdate) {
		updates = append(updates, update)
	})
	if err != nil {
		t.Fatalf("Infer returned error: %v", err)
	}

	if want := filepath.Join(outputDir, "deltaf_events.npy"); path != want {
		t.Fatalf("expected output path %q, got %q", want, path)
	}
	if len(updates) != 2 {
		t.Fatalf("expected 2 progress updates, got %d", len(updates))
	}
	if updates[0].ROI != 3 {
		t.Fatalf("expected roi 3 in first update, got %d", updates[0].ROI)
	}
}

func TestCLIInferFailure(t *testing.T) {
	setHelperCommand(t, "failure")

	cli := NewCLI()
	if _, err := cli.Infer(context.Background(), "/work/deltaf.npy", t.TempDir(), 30, nil); err == nil {
		t.Fatal("expected inference failure error")
	}
}

func setHelperCommand(t *testing.T, mode string) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", fmt.Sprintf("OASIS_HELPER_MODE=%s", mode))
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	switch os.Getenv("OASIS_HELPER_MODE") {
	case "success":
		fmt.Println(`{"percent":40,"roi":3,"message":"deconvolving roi 3/8"}`)
		fmt.Println(`{"percent":100,"roi":8,"message":"done"}`)
		os.Exit(0)
	case "failure":
		fmt.Fprintln(os.Stderr, "inference failed")
		os.Exit(1)
	default:
		os.Exit(0)
	}
}

func findArg(args []string, target string) int {
	for i, arg := range args {
		if arg == target {
			return i
		}
	}
	return -1
}
