// Package shell executes a single shell command under a deadline and
// normalizes every outcome into a Result.
package shell

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/http-ssh-server/backend/internal/buffer"
)

const (
	// DefaultTimeout bounds command execution when no timeout is configured.
	DefaultTimeout = 10 * time.Second

	// DefaultCaptureSize is the per-stream capture capacity (256KB).
	DefaultCaptureSize = 256 * 1024
)

// Result is the normalized outcome of one command. Every failure mode
// (non-zero exit, spawn failure, timeout, bad cd target) resolves to a
// Result; Execute never reports an error through any other channel.
//
// ExitCode -1 means the command could not run to completion. A failed cd
// returns exit code 1.
type Result struct {
	Command  string
	Stdout   string
	Stderr   string
	ExitCode int

	// Dir is the working directory in effect when the command ran, or the
	// new directory after a successful cd. The caller adopts it as the
	// session's working directory.
	Dir string
}

// Executor runs shell commands. The zero value is not usable; use New.
type Executor struct {
	timeout     time.Duration
	captureSize int
}

// New creates an Executor. A non-positive timeout falls back to
// DefaultTimeout.
func New(timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{timeout: timeout, captureSize: DefaultCaptureSize}
}

// Timeout returns the configured execution deadline.
func (e *Executor) Timeout() time.Duration {
	return e.timeout
}

// Execute runs commandText with workingDirectory as the process's starting
// directory. It is a pure function of its arguments and safe for concurrent
// use. Blocks up to the configured timeout.
func (e *Executor) Execute(commandText, workingDirectory string) Result {
	if target, ok := cdTarget(commandText); ok {
		return changeDirectory(commandText, target, workingDirectory)
	}
	return e.run(commandText, workingDirectory)
}

// cdTarget reports whether commandText is the cd form and extracts its
// argument. Bare `cd` yields an empty target.
func cdTarget(commandText string) (string, bool) {
	trimmed := strings.TrimSpace(commandText)
	if trimmed == "cd" {
		return "", true
	}
	if strings.HasPrefix(trimmed, "cd ") {
		return strings.TrimSpace(trimmed[3:]), true
	}
	return "", false
}

// changeDirectory resolves a cd without spawning a subprocess. A bad target
// is a local, recoverable failure: exit code 1 and an unchanged directory.
func changeDirectory(commandText, target, workingDirectory string) Result {
	var newPath string
	switch {
	case target == "":
		home, err := os.UserHomeDir()
		if err != nil {
			home = string(filepath.Separator)
		}
		newPath = home
	case target == ".":
		newPath = workingDirectory
	case target == "..":
		parent := filepath.Dir(workingDirectory)
		if parent == "" {
			parent = workingDirectory
		}
		newPath = parent
	case isAbsPath(target):
		newPath = target
	default:
		newPath = filepath.Join(workingDirectory, target)
	}

	resolved, err := canonicalize(newPath)
	if err != nil {
		return Result{
			Command:  commandText,
			Stderr:   fmt.Sprintf("cd: %q: %v", target, err),
			ExitCode: 1,
			Dir:      workingDirectory,
		}
	}

	return Result{Command: commandText, ExitCode: 0, Dir: resolved}
}

// isAbsPath matches both the native convention and the Windows drive-letter
// form, so a client on either platform convention is understood.
func isAbsPath(target string) bool {
	if strings.HasPrefix(target, "/") {
		return true
	}
	return len(target) > 1 && target[1] == ':'
}

// canonicalize resolves symlinks and verifies the target exists and is a
// directory.
func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory")
	}
	return resolved, nil
}

// run spawns the platform shell and waits for completion under the deadline.
func (e *Executor) run(commandText, workingDirectory string) Result {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.Command("cmd", "/C", commandText)
	} else {
		cmd = exec.Command("bash", "-c", commandText)
	}
	cmd.Dir = workingDirectory

	stdout := buffer.NewCaptureBuffer(e.captureSize)
	stderr := buffer.NewCaptureBuffer(e.captureSize)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return Result{
			Command:  commandText,
			Stderr:   fmt.Sprintf("Failed to execute command: %v", err),
			ExitCode: -1,
			Dir:      workingDirectory,
		}
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		exitCode := 0
		if err != nil {
			exitCode = -1
			if exitErr, ok := err.(*exec.ExitError); ok {
				exitCode = exitErr.ExitCode()
			}
		}
		return Result{
			Command:  commandText,
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			ExitCode: exitCode,
			Dir:      workingDirectory,
		}
	case <-time.After(e.timeout):
		// Best effort: kill, then reap so no zombie is left behind.
		_ = cmd.Process.Kill()
		<-done
		return Result{
			Command:  commandText,
			Stderr:   fmt.Sprintf("Command timed out after %d seconds", int(e.timeout.Seconds())),
			ExitCode: -1,
			Dir:      workingDirectory,
		}
	}
}
