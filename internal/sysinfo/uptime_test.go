package sysinfo

import (
	"context"
	"errors"
	"testing"
)

func TestRunMissingBinary(t *testing.T) {
	_, err := run(context.Background(), "guildmind-no-such-binary")
	if !errors.Is(err, ErrUptimeUnavailable) {
		t.Fatalf("run() error = %v, want ErrUptimeUnavailable", err)
	}
}

func TestRunNonZeroExit(t *testing.T) {
	_, err := run(context.Background(), "sh", "-c", "echo broken >&2; exit 3")
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("run() error = %v, want CommandError", err)
	}
	if cmdErr.Stderr != "broken" {
		t.Fatalf("Stderr = %q", cmdErr.Stderr)
	}
}

func TestRunTrimsOutput(t *testing.T) {
	out, err := run(context.Background(), "sh", "-c", "printf '  up 3 hours  \\n'")
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if out != "up 3 hours" {
		t.Fatalf("run() = %q", out)
	}
}
