package shell

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startDir(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	require.NoError(t, err)
	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	return resolved
}

func TestExecuteEcho(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("bash-specific test")
	}
	e := New(5 * time.Second)
	dir := startDir(t)

	result := e.Execute("echo hi", dir)

	assert.Equal(t, "echo hi", result.Command)
	assert.Equal(t, "hi", result.Stdout)
	assert.Equal(t, "", result.Stderr)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, dir, result.Dir)
}

func TestExecuteNonZeroExit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("bash-specific test")
	}
	e := New(5 * time.Second)
	result := e.Execute("exit 3", startDir(t))

	assert.Equal(t, 3, result.ExitCode)
}

func TestExecuteCapturesStderr(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("bash-specific test")
	}
	e := New(5 * time.Second)
	result := e.Execute("echo oops 1>&2", startDir(t))

	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "", result.Stdout)
	assert.Equal(t, "oops", result.Stderr)
}

func TestExecuteTrimsOutput(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("bash-specific test")
	}
	e := New(5 * time.Second)
	result := e.Execute(`printf '  spaced  \n\n'`, startDir(t))

	assert.Equal(t, "spaced", result.Stdout)
}

func TestExecuteSpawnFailure(t *testing.T) {
	e := &Executor{timeout: time.Second, captureSize: DefaultCaptureSize}
	// A nonexistent working directory makes the spawn itself fail.
	result := e.Execute("echo hi", filepath.Join(os.TempDir(), "does-not-exist-xyz"))

	assert.Equal(t, -1, result.ExitCode)
	assert.Contains(t, result.Stderr, "Failed to execute command")
}

func TestExecuteTimeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("bash-specific test")
	}
	e := New(1 * time.Second)
	dir := startDir(t)

	start := time.Now()
	result := e.Execute("sleep 30", dir)
	elapsed := time.Since(start)

	assert.Equal(t, -1, result.ExitCode)
	assert.Contains(t, result.Stderr, "timed out")
	assert.Equal(t, dir, result.Dir)
	// Deadline plus a small bounded margin for kill and reap.
	assert.Less(t, elapsed, 3*time.Second)
}

func TestChangeDirectoryDot(t *testing.T) {
	e := New(time.Second)
	dir := startDir(t)

	result := e.Execute("cd .", dir)

	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, dir, result.Dir)
	assert.Equal(t, "", result.Stdout)
	assert.Equal(t, "", result.Stderr)
}

func TestChangeDirectoryDotDot(t *testing.T) {
	e := New(time.Second)
	base := t.TempDir()
	child := filepath.Join(base, "child")
	require.NoError(t, os.Mkdir(child, 0755))
	resolvedChild, err := filepath.EvalSymlinks(child)
	require.NoError(t, err)

	result := e.Execute("cd ..", resolvedChild)

	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, filepath.Dir(resolvedChild), result.Dir)
}

func TestChangeDirectoryDotDotAtRoot(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix root path")
	}
	e := New(time.Second)

	result := e.Execute("cd ..", "/")

	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "/", result.Dir)
}

func TestChangeDirectoryAbsolute(t *testing.T) {
	e := New(time.Second)
	target := t.TempDir()
	resolved, err := filepath.EvalSymlinks(target)
	require.NoError(t, err)

	result := e.Execute(fmt.Sprintf("cd %s", target), startDir(t))

	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, resolved, result.Dir)
}

func TestChangeDirectoryRelative(t *testing.T) {
	e := New(time.Second)
	base := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(base, "sub"), 0755))
	resolvedBase, err := filepath.EvalSymlinks(base)
	require.NoError(t, err)

	result := e.Execute("cd sub", resolvedBase)

	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, filepath.Join(resolvedBase, "sub"), result.Dir)
}

func TestChangeDirectoryHome(t *testing.T) {
	e := New(time.Second)
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	resolvedHome, err := filepath.EvalSymlinks(home)
	require.NoError(t, err)

	result := e.Execute("cd", startDir(t))

	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, resolvedHome, result.Dir)
}

func TestChangeDirectoryMissingTarget(t *testing.T) {
	e := New(time.Second)
	dir := startDir(t)

	result := e.Execute("cd nope-not-here", dir)

	assert.Equal(t, 1, result.ExitCode)
	assert.Contains(t, result.Stderr, "cd:")
	assert.Equal(t, dir, result.Dir)
}

func TestChangeDirectoryFileTarget(t *testing.T) {
	e := New(time.Second)
	base := t.TempDir()
	file := filepath.Join(base, "plain.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
	resolvedBase, err := filepath.EvalSymlinks(base)
	require.NoError(t, err)

	result := e.Execute("cd plain.txt", resolvedBase)

	assert.Equal(t, 1, result.ExitCode)
	assert.Equal(t, resolvedBase, result.Dir)
}

func TestCdTargetParsing(t *testing.T) {
	cases := []struct {
		command string
		target  string
		isCd    bool
	}{
		{"cd", "", true},
		{"cd ", "", true},
		{"cd /tmp", "/tmp", true},
		{"cd  ..", "..", true},
		{"cdd /tmp", "", false},
		{"echo cd /tmp", "", false},
		{"", "", false},
	}

	for _, tc := range cases {
		target, ok := cdTarget(tc.command)
		assert.Equal(t, tc.isCd, ok, "command %q", tc.command)
		if ok {
			assert.Equal(t, tc.target, target, "command %q", tc.command)
		}
	}
}

func TestExecuteConcurrentIsolation(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("bash-specific test")
	}
	e := New(5 * time.Second)

	dirA := t.TempDir()
	dirB := t.TempDir()

	var wg sync.WaitGroup
	results := make([]Result, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		results[0] = e.Execute("pwd", dirA)
	}()
	go func() {
		defer wg.Done()
		results[1] = e.Execute("pwd", dirB)
	}()
	wg.Wait()

	resolvedA, _ := filepath.EvalSymlinks(dirA)
	resolvedB, _ := filepath.EvalSymlinks(dirB)
	assert.True(t, strings.HasSuffix(results[0].Stdout, filepath.Base(resolvedA)))
	assert.True(t, strings.HasSuffix(results[1].Stdout, filepath.Base(resolvedB)))
}
