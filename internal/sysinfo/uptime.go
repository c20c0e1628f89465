package sysinfo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

var ErrUptimeUnavailable = errors.New("uptime command not found")

// CommandError carries the stderr of a failed uptime invocation.
type CommandError struct {
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return e.Stderr
	}
	return e.Err.Error()
}

func (e *CommandError) Unwrap() error { return e.Err }

// Uptime returns the pretty uptime reported by `uptime -p`.
func Uptime(ctx context.Context) (string, error) {
	return run(ctx, "uptime", "-p")
}

func run(ctx context.Context, name string, args ...string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrUptimeUnavailable, name)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", &CommandError{Stderr: strings.TrimSpace(stderr.String()), Err: err}
		}
		return "", err
	}
	return strings.TrimSpace(stdout.String()), nil
}
