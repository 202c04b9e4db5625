package trace

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snap(vars ...Var) *Snapshot {
	return snapshotScope(NewScope(vars...), varFilter{})
}

func TestMs(t *testing.T) {
	assert.Equal(t, 5.0, ms(5*time.Millisecond))
	assert.Equal(t, 2.5, ms(2500*time.Microsecond))
	assert.Equal(t, 0.0, ms(0))
}

func TestRenderStep(t *testing.T) {
	rec := stepRecord{
		step:    3,
		elapsed: 5 * time.Millisecond,
		frames: []Frame{
			{File: "/ws/main.go", Function: "main.main", Line: 10},
			{File: "/ws/calc.go", Function: "main.compute", Line: 42},
		},
		globals: snap(V("limit", 100)),
		locals:  snap(V("x", 30), V("name", "hi")),
	}

	t.Run("error level is header only", func(t *testing.T) {
		out := renderStep(LevelError, VarAll, rec)
		assert.Equal(t, "--------------------- Step 3 ---------------------\n", out)
	})

	t.Run("info level renders runtime, frames and variables", func(t *testing.T) {
		out := renderStep(LevelInfo, VarAll, rec)
		assert.Contains(t, out, "--------------------- Step 3 ---------------------\n")
		assert.Contains(t, out, "Runtime: 5.0000 ms\n")
		assert.Contains(t, out, "/ws/main.go::main.main -- line 10\n")
		assert.Contains(t, out, "/ws/calc.go::main.compute -- line 42\n")
		assert.Contains(t, out, "------> Global variables <------\nlimit: int :: 100\n")
		assert.Contains(t, out, "------> Local variables <------\nx: int :: 30\nname: string :: hi\n")
	})

	t.Run("warning matches info verbosity", func(t *testing.T) {
		assert.Equal(t, renderStep(LevelInfo, VarAll, rec), renderStep(LevelWarning, VarAll, rec))
	})

	t.Run("sub-millisecond runtime keeps four decimals", func(t *testing.T) {
		r := rec
		r.elapsed = 2500 * time.Microsecond
		out := renderStep(LevelDebug, VarAll, r)
		assert.Contains(t, out, "Runtime: 2.5000 ms\n")
	})

	t.Run("none mode omits variable sections", func(t *testing.T) {
		out := renderStep(LevelInfo, VarNone, rec)
		assert.Contains(t, out, "Runtime:")
		assert.NotContains(t, out, "variables <------")
		assert.NotContains(t, out, "::")
	})

	t.Run("empty sections are omitted entirely", func(t *testing.T) {
		r := rec
		r.globals = snap()
		out := renderStep(LevelInfo, VarAll, r)
		assert.NotContains(t, out, globalsHeader)
		assert.Contains(t, out, localsHeader)
	})
}

func TestRenderStepChanged(t *testing.T) {
	t.Run("first step reports everything as new", func(t *testing.T) {
		rec := stepRecord{
			step:   1,
			locals: snap(V("x", 1)),
		}
		out := renderStep(LevelInfo, VarChanged, rec)
		assert.Contains(t, out, "------> Local variable changes <------\n[NEW] x: int :: 1\n")
	})

	t.Run("changed entries carry old and new representations", func(t *testing.T) {
		rec := stepRecord{
			step:       2,
			locals:     snap(V("x", 2), V("fresh", "yes")),
			prevLocals: snap(V("x", 1), V("gone", 0)),
		}
		out := renderStep(LevelInfo, VarChanged, rec)
		assert.Contains(t, out, "[CHANGED] x: int :: 1 -> 2\n")
		assert.Contains(t, out, "[NEW] fresh: string :: yes\n")
		assert.Contains(t, out, "[DELETED] gone\n")
		// NEW/CHANGED interleave in current order; DELETED trails.
		require.Less(t,
			indexOf(t, out, "[CHANGED] x"),
			indexOf(t, out, "[NEW] fresh"))
		require.Less(t,
			indexOf(t, out, "[NEW] fresh"),
			indexOf(t, out, "[DELETED] gone"))
	})

	t.Run("no changes means no section", func(t *testing.T) {
		same := snap(V("x", 1))
		rec := stepRecord{
			step:       3,
			locals:     same,
			prevLocals: snap(V("x", 1)),
		}
		out := renderStep(LevelInfo, VarChanged, rec)
		assert.NotContains(t, out, localChangesHeader)
		assert.NotContains(t, out, globalChangesHeader)
	})
}

func indexOf(t *testing.T, haystack, needle string) int {
	t.Helper()
	i := strings.Index(haystack, needle)
	require.GreaterOrEqual(t, i, 0, "expected %q in output", needle)
	return i
}
