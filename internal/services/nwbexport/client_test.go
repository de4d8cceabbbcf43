package nwbexport

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"testing"
)

func TestNewCLIWithBinary(t *testing.T) {
	cli := NewCLI(WithBinary("/opt/nwb-export"))
	if cli.binary != "/opt/nwb-export" {
		t.Fatalf("expected binary override to be applied, got %q", cli.binary)
	}
}

func TestCLIExportRequiresManifest(t *testing.T) {
	cli := NewCLI()
	if err := cli.Export(context.Background(), "", "/out/session.nwb", nil); err == nil {
		t.Fatal("expected error when manifest path is empty")
	}
}

func TestCLIExportRequiresOutput(t *testing.T) {
	cli := NewCLI()
	if err := cli.Export(context.Background(), "/work/manifest.json", "", nil); err == nil {
		t.Fatal("expected error when output path is empty")
	}
}

func TestCLIExportBuildsArgs(t *testing.T) {
	var capturedArgs []string
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		capturedArgs = append([]string(nil), args...)
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "NWB_HELPER_MODE=success")
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})

	cli := NewCLI()
	if err := cli.Export(context.Background(), "/work/manifest.json", "/out/session.nwb", nil); err != nil {
		t.Fatalf("Export returned error: %v", err)
	}

	idx := findArg(capturedArgs, "--manifest")
	if idx == -1 || capturedArgs[idx+1] != "/work/manifest.json" {
		t.Fatalf("expected --manifest /work/manifest.json, got args %v", capturedArgs)
	}
	if findArg(capturedArgs, "--progress-json") == -1 {
		t.Fatalf("expected --progress-json in args %v", capturedArgs)
	}
}

func TestCLIExportSuccess(t *testing.T) {
	setHelperCommand(t, "success")

	cli := NewCLI()
	var updates []ProgressUpdate
	err := cli.Export(context.Background(), "/work/manifest.json", "/out/session.nwb", func(update ProgressUpdate) {
		updates = append(updates, update)
	})
	if err != nil {
		t.Fatalf("Export returned error: %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("expected 2 progress updates, got %d", len(updates))
	}
	if updates[0].Stage != "package" {
		t.Fatalf("expected package stage, got %q", updates[0].Stage)
	}
}

func TestCLIExportFailure(t *testing.T) {
	setHelperCommand(t, "failure")

	cli := NewCLI()
	if err := cli.Export(context.Background(), "/work/manifest.json", "/out/session.nwb", nil); err == nil {
		t.Fatal("expected export failure error")
	}
}

func setHelperCommand(t *testing.T, mode string) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", fmt.Sprintf("NWB_HELPER_MODE=%s", mode))
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

	switch os.Getenv("NWB_HELPER_MODE") {
	case "success":
		fmt.Println(`{"percent":30,"stage":"package","message":"writing acquisition"}`)
		fmt.Println(`{"percent":100,"stage":"complete","message":"done"}`)
		os.Exit(0)
	case "failure":
		fmt.Fprintln(os.Stderr, "export failed")
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
