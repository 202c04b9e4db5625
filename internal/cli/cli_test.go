package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGlobals() (*Globals, *bytes.Buffer, *bytes.Buffer) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	g := &Globals{Stdout: stdout, Stderr: stderr}
	return g, stdout, stderr
}

func TestNewGlobals(t *testing.T) {
	t.Run("defaults to process streams", func(t *testing.T) {
		var c CLI
		g := NewGlobals(&c)
		assert.Equal(t, os.Stdout, g.Stdout)
		assert.Equal(t, os.Stderr, g.Stderr)
	})

	t.Run("keeps injected streams", func(t *testing.T) {
		buf := &bytes.Buffer{}
		c := CLI{Globals: Globals{Stdout: buf, Stderr: buf}}
		g := NewGlobals(&c)
		assert.Same(t, buf, g.Stdout.(*bytes.Buffer))
	})
}

func TestExitError(t *testing.T) {
	g, _, stderr := newTestGlobals()
	err := failf(g, 3, "bad thing: %s", "detail")

	var coder ExitCoder
	require.ErrorAs(t, err, &coder)
	assert.Equal(t, 3, coder.ExitCode())
	assert.Equal(t, "bad thing: detail", err.Error())
	assert.Equal(t, "Error: bad thing: detail\n", stderr.String())
}

func TestGlobalsLoadConfig(t *testing.T) {
	t.Run("flags override discovered file", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "steptrace.yaml"),
			[]byte("log_level: ERROR\nlog_dir: from_file\n"), 0644))

		g, _, _ := newTestGlobals()
		g.LogLevel = "DEBUG"

		cfg, err := g.loadConfig(dir)
		require.NoError(t, err)
		assert.Equal(t, "DEBUG", cfg.LogLevel)
		assert.Equal(t, "from_file", cfg.LogDir)
	})

	t.Run("explicit config flag wins over discovery", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "steptrace.yaml"),
			[]byte("log_level: ERROR\n"), 0644))
		explicit := filepath.Join(dir, "alt.yaml")
		require.NoError(t, os.WriteFile(explicit, []byte("log_level: WARNING\n"), 0644))

		g, _, _ := newTestGlobals()
		g.Config = explicit

		cfg, err := g.loadConfig(dir)
		require.NoError(t, err)
		assert.Equal(t, "WARNING", cfg.LogLevel)
	})

	t.Run("unsupported explicit format errors", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "steptrace.ini")
		require.NoError(t, os.WriteFile(bad, []byte("x"), 0644))

		g, _, _ := newTestGlobals()
		g.Config = bad
		_, err := g.loadConfig(".")
		assert.Error(t, err)
	})
}

func TestDemoCmd(t *testing.T) {
	t.Run("sync demo writes step records", func(t *testing.T) {
		g, stdout, _ := newTestGlobals()
		g.LogOutput = "STDOUT"
		g.LogDir = t.TempDir()

		cmd := &DemoCmd{}
		require.NoError(t, cmd.Run(g))

		out := stdout.String()
		assert.Contains(t, out, "--------------------- Step 1 ---------------------")
		assert.Contains(t, out, "total: int :: 0")
		assert.Contains(t, out, "greeting: string ::")
		assert.Contains(t, out, "demo.go::")
	})

	t.Run("changed mode reports value evolution", func(t *testing.T) {
		g, stdout, _ := newTestGlobals()
		g.LogOutput = "STDOUT"
		g.LogDir = t.TempDir()
		g.VariableMode = "CHANGED"

		cmd := &DemoCmd{}
		require.NoError(t, cmd.Run(g))

		out := stdout.String()
		assert.Contains(t, out, "[NEW] total: int :: 0")
		assert.Contains(t, out, "[CHANGED] total: int ::")
	})

	t.Run("async demo writes coroutine records", func(t *testing.T) {
		g, stdout, _ := newTestGlobals()
		g.LogOutput = "STDOUT"
		g.LogDir = t.TempDir()

		cmd := &DemoCmd{Async: true}
		require.NoError(t, cmd.Run(g))

		out := stdout.String()
		assert.Contains(t, out, "COROUTINE START: demo_main")
		assert.Contains(t, out, "COROUTINE END: demo_main [ok]")
		assert.Contains(t, out, "AWAIT START:")
		assert.Contains(t, out, "TASK CREATED: background_sum")
		assert.Contains(t, out, "TASK DONE: background_sum [ok]")
		assert.Contains(t, out, "COROUTINE START: double_a")
		assert.Contains(t, out, "COROUTINE START: double_b")
	})

	t.Run("silent demo emits nothing but the announcement", func(t *testing.T) {
		g, stdout, _ := newTestGlobals()
		g.LogOutput = "STDOUT"
		g.LogLevel = "SILENT"
		g.LogDir = t.TempDir()

		cmd := &DemoCmd{}
		require.NoError(t, cmd.Run(g))

		for _, line := range strings.Split(strings.TrimRight(stdout.String(), "\n"), "\n") {
			assert.NotContains(t, line, "Step")
			assert.NotContains(t, line, "::")
		}
	})
}

func TestConfigCmd(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "steptrace.toml"),
		[]byte("log_level = \"DEBUG\"\nvariable_mode = \"bogus\"\n"), 0644))

	g, stdout, _ := newTestGlobals()
	cmd := &ConfigCmd{Dir: dir}
	require.NoError(t, cmd.Run(g))

	out := stdout.String()
	assert.Contains(t, out, "Configuration source:")
	assert.Contains(t, out, "steptrace.toml")
	assert.Contains(t, out, "log_level")
	assert.Contains(t, out, "DEBUG")
	// Unrecognized enum strings show their effective fallback.
	assert.Contains(t, out, "bogus")
	assert.Contains(t, out, "ALL")
}

func TestRunCmd(t *testing.T) {
	t.Run("missing target fails with exit code 1", func(t *testing.T) {
		g, _, stderr := newTestGlobals()
		cmd := &RunCmd{Target: filepath.Join(t.TempDir(), "absent")}
		err := cmd.Run(g)

		var coder ExitCoder
		require.ErrorAs(t, err, &coder)
		assert.Equal(t, 1, coder.ExitCode())
		assert.Contains(t, stderr.String(), "target not found")
	})

	t.Run("target exit status propagates", func(t *testing.T) {
		if runtime.GOOS == "windows" {
			t.Skip("shell script target")
		}
		dir := t.TempDir()
		script := filepath.Join(dir, "fail.sh")
		require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nexit 3\n"), 0755))

		g, _, _ := newTestGlobals()
		g.LogOutput = "STDOUT"
		cmd := &RunCmd{Target: script}
		err := cmd.Run(g)

		var coder ExitCoder
		require.ErrorAs(t, err, &coder)
		assert.Equal(t, 3, coder.ExitCode())
	})

	t.Run("successful target passes its output through", func(t *testing.T) {
		if runtime.GOOS == "windows" {
			t.Skip("shell script target")
		}
		dir := t.TempDir()
		script := filepath.Join(dir, "ok.sh")
		require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho program-output\n"), 0755))

		g, stdout, _ := newTestGlobals()
		g.LogOutput = "STDOUT"
		cmd := &RunCmd{Target: script}
		require.NoError(t, cmd.Run(g))
		assert.Contains(t, stdout.String(), "program-output")
		assert.Contains(t, stdout.String(), "Tracing:")
	})
}

func TestViewCmd(t *testing.T) {
	t.Run("missing file fails", func(t *testing.T) {
		g, _, _ := newTestGlobals()
		cmd := &ViewCmd{File: filepath.Join(t.TempDir(), "absent.log")}
		err := cmd.Run(g)

		var coder ExitCoder
		require.ErrorAs(t, err, &coder)
		assert.Equal(t, 1, coder.ExitCode())
	})
}

func TestSessionOptionsMapping(t *testing.T) {
	g, _, _ := newTestGlobals()
	g.TraceableFunctions = []string{"compute"}

	cfg, err := g.loadConfig(t.TempDir())
	require.NoError(t, err)
	cfg.LogLevel = "ERROR"
	cfg.LogOutput = "FILE_STDERR"
	cfg.VariableMode = "NONE"
	cfg.AwaitThresholdMs = 12.5

	opts := g.asyncSessionOptions(cfg, "/ws")
	assert.Equal(t, "/ws", opts.Workspace)
	assert.Equal(t, []string{"compute"}, opts.TraceableFuncs)
	assert.Equal(t, "ERROR", opts.Level.String())
	assert.Equal(t, "FILE_STDERR", opts.Output.String())
	assert.Equal(t, "NONE", opts.VarMode.String())
	assert.Equal(t, "12.5ms", opts.AwaitThreshold.String())
	assert.True(t, opts.TraceTasks)
}
