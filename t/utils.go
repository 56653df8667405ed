package t

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultCommandTimeout = 30 * time.Second

// cmd describes a command run along with the assertions on its result
type cmd struct {
	Cmd  string   // the command to run (required)
	Args []string // arguments for the command
	Dir  string   // work dir, defaults to the current folder

	Like    []string // stdout must match these regular expressions
	ErrLike []string // stderr must match these regular expressions, stderr must be empty if nil
	Exit    int      // expected exit code, -1 accepts any exit code

	Timeout time.Duration     // maximum run duration, defaults to 30sec
	Env     map[string]string // additional environment
}

// runCmd runs the command and verifies exit code and output
func runCmd(t *testing.T, opt *cmd) {
	t.Helper()
	require.NotEmptyf(t, opt.Cmd, "command must not be empty")

	timeout := opt.Timeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	proc := exec.CommandContext(ctx, opt.Cmd, opt.Args...) //nolint:gosec // for testing purposes only
	proc.Env = os.Environ()
	for key, val := range opt.Env {
		proc.Env = append(proc.Env, fmt.Sprintf("%s=%s", key, val))
	}
	proc.Dir = opt.Dir
	if proc.Dir == "" {
		proc.Dir, _ = filepath.Abs(".")
	}
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	proc.Stdout = stdout
	proc.Stderr = stderr

	t.Logf("run: %s", proc.String())
	err := proc.Run()

	exitCode := 0
	var exitErr *exec.ExitError
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		logCmd(t, proc, -1, stdout, stderr)
		assert.Failf(t, "command run into timeout", "timeout after %s", timeout)

		return
	case errors.As(err, &exitErr):
		exitCode = exitErr.ExitCode()
	case err != nil:
		logCmd(t, proc, -1, stdout, stderr)
		require.NoErrorf(t, err, "command started: %s", opt.Cmd)
	}

	if opt.Exit != -1 && !assert.Equalf(t, opt.Exit, exitCode, "exit code is: %d", opt.Exit) {
		logCmd(t, proc, exitCode, stdout, stderr)
	}

	for _, l := range opt.Like {
		assert.Regexpf(t, l, stdout.String(), "stdout contains: %s", l)
	}

	if len(opt.ErrLike) == 0 {
		assert.Regexpf(t, `^\s*$`, stderr.String(), "stderr must be empty")
	}
	for _, l := range opt.ErrLike {
		assert.Regexpf(t, l, stderr.String(), "stderr contains: %s", l)
	}
}

// getBinary returns path to the check_teamspeak3 test binary
func getBinary() string {
	workDir, _ := filepath.Abs(".")
	if runtime.GOOS == "windows" {
		return filepath.Join(workDir, "check_teamspeak3.exe")
	}

	return filepath.Join(workDir, "check_teamspeak3")
}

// logCmd prints some diagnostics useful when a command fails
func logCmd(t *testing.T, proc *exec.Cmd, exitCode int, stdout, stderr *bytes.Buffer) {
	t.Helper()
	t.Logf("cmd:     %s", proc.String())
	t.Logf("workdir: %s", proc.Dir)
	t.Logf("exit:    %d", exitCode)
	t.Logf("stdout:  %s", stdout.String())
	t.Logf("stderr:  %s", stderr.String())
}

// writeFile creates/updates a file with given content
func writeFile(t *testing.T, path, content string) {
	t.Helper()

	err := os.WriteFile(path, []byte(content), 0o600)
	require.NoErrorf(t, err, "writing file %s succeeded", path)
}
