package separation

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func TestNewCLIWithBinary(t *testing.T) {
	cli := NewCLI(WithBinary("/opt/fissa-sep"))
	if cli.binary != "/opt/fissa-sep" {
		t.Fatalf("expected binary override to be applied, got %q", cli.binary)
	}
}

func TestCLISeparateRequiresFrames(t *testing.T) {
	cli := NewCLI()
	if _, err := cli.Separate(context.Background(), "", "/work/masks.npy", "/tmp", nil); err == nil {
		t.Fatal("expected error when frames path is empty")
	}
}

func TestCLISeparateRequiresMasks(t *testing.T) {
	cli := NewCLI()
	if _, err := cli.Separate(context.Background(), "/work/frames.npy", "", "/tmp", nil); err == nil {
		t.Fatal("expected error when masks path is empty")
	}
}

func TestCLISeparateRequiresOutputDir(t *testing.T) {
	cli := NewCLI()
	if _, err := cli.Separate(context.Background(), "/work/frames.npy", "/work/masks.npy", "  ", nil); err == nil {
		t.Fatal("expected error when output directory is blank")
	}
}

func TestCLISeparateSuccess(t *testing.T) {
	setHelperCommand(t, "success")

	cli := NewCLI()
	outputDir := t.TempDir()

	var updates []ProgressUpdate
	path, err := cli.Separate(context.Background(), "/work/trial_000.npy", "/work/masks.npy", outputDir, func(update ProgressUpdate) {
		updates = append(updates, update)
	})
	if err != nil {
		t.Fatalf("Separate returned error: %v", err)
	}

	if want := filepath.Join(outputDir, "trial_000_separated.npy"); path != want {
		t.Fatalf("expected output path %q, got %q", want, path)
	}
	if len(updates) != 3 {
		t.Fatalf("expected 3 progress updates, got %d", len(updates))
	}
	if updates[1].ROI != 4 {
		t.Fatalf("expected roi 4 in middle update, got %d", updates[1].ROI)
	}
	if updates[len(updates)-1].Percent != 100 {
		t.Fatalf("expected final update to report 100 percent, got %f", updates[len(updates)-1].Percent)
	}
}

func TestCLISeparateFailure(t *testing.T) {
	setHelperCommand(t, "failure")

	cli := NewCLI()
	if _, err := cli.Separate(context.Background(), "/work/frames.npy", "/work/masks.npy", t.TempDir(), nil); err == nil {
		t.Fatal("expected separate failure error")
	}
}

func TestCLISeparateSkipsInvalidJSON(t *testing.T) {
	setHelperCommand(t, "badjson")

	cli := NewCLI()
	var updates []ProgressUpdate
	if _, err := cli.Separate(context.Background(), "/work/frames.npy", "/work/masks.npy", t.TempDir(), func(update ProgressUpdate) {
		updates = append(updates, update)
	}); err != nil {
		t.Fatalf("Separate returned error: %v", err)
	}
	if len(updates) != 1 {
		t.Fatalf("expected 1 progress update from valid json, got %d", len(updates))
	}
	if updates[0].ROI != 7 {
		t.Fatalf("expected roi 7, got %d", updates[0].ROI)
	}
}

func setHelperCommand(t *testing.T, mode string) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", fmt.Sprintf("FISSA_HELPER_MODE=%s", mode))
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

	switch os.Getenv("FISSA_HELPER_MODE") {
	case "success":
		fmt.Println(`{"percent":0,"roi":0,"message":"preparing"}`)
		fmt.Println(`{"percent":50,"roi":4,"message":"separating roi 4/8"}`)
		fmt.Println(`{"percent":100,"roi":8,"message":"done"}`)
		os.Exit(0)
	case "failure":
		fmt.Fprintln(os.Stderr, "separation failed")
		os.Exit(1)
	case "badjson":
		fmt.Println("not-json")
		fmt.Println(`{"percent":80,"roi":7,"message":"separating roi 7/8"}`)
		os.Exit(0)
	default:
		os.Exit(0)
	}
}
