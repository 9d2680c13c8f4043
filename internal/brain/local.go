package brain

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"time"
)

// LocalRunner executes the four local-execution tools directly on the
// control-plane host, for requests resolved to the "prime"/"self"/"local"
// alias. Resting on stdlib (os/exec, os): this is a thin host-process
// action surface with no domain dependency to reuse — the pack's remote
// execution primitives (daemonlink, the Slack bot's shell-outs) all talk
// to a different process over a wire, not the local one.
type LocalRunner struct {
	shellTimeout time.Duration
}

// NewLocalRunner returns a LocalRunner bounding shell commands to timeout.
func NewLocalRunner(timeout time.Duration) *LocalRunner {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &LocalRunner{shellTimeout: timeout}
}

// ExecuteShell runs command via /bin/sh -c, bounded by the runner's timeout.
func (r *LocalRunner) ExecuteShell(ctx context.Context, command string) (stdout string, stderr string, exitCode int, err error) {
	ctx, cancel := context.WithTimeout(ctx, r.shellTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	var outBuf, errBuf strings.Builder
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	runErr := cmd.Run()
	exitCode = cmd.ProcessState.ExitCode()
	if runErr != nil && exitCode < 0 {
		return outBuf.String(), errBuf.String(), exitCode, runErr
	}
	return outBuf.String(), errBuf.String(), exitCode, nil
}

func (r *LocalRunner) ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (r *LocalRunner) WriteFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o640)
}

func (r *LocalRunner) ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}
