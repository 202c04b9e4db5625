package trace

import (
	"fmt"
	"strings"
	"time"
)

const (
	globalsHeader       = "------> Global variables <------\n"
	localsHeader        = "------> Local variables <------\n"
	globalChangesHeader = "------> Global variable changes <------\n"
	localChangesHeader  = "------> Local variable changes <------\n"
)

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// stepRecord is everything one step needs to be rendered.
type stepRecord struct {
	step    int
	elapsed time.Duration
	frames  []Frame
	globals *Snapshot
	locals  *Snapshot

	// CHANGED mode compares against the previous step's snapshots.
	prevGlobals *Snapshot
	prevLocals  *Snapshot
}

// renderStep formats one step record. At LevelError only the header appears;
// DEBUG through WARNING include runtime, the frame path and the variable
// section the mode selects. Callers have already handled LevelSilent.
func renderStep(level Level, mode VarMode, r stepRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "--------------------- Step %d ---------------------\n", r.step)
	if level > LevelWarning {
		return b.String()
	}
	fmt.Fprintf(&b, "Runtime: %.4f ms\n", ms(r.elapsed))
	b.WriteString(renderFrames(r.frames))
	b.WriteByte('\n')
	b.WriteString(renderVariables(mode, r))
	return b.String()
}

func renderVariables(mode VarMode, r stepRecord) string {
	switch mode {
	case VarNone:
		return ""
	case VarChanged:
		var b strings.Builder
		writeChangeSection(&b, globalChangesHeader, diff(r.globals, r.prevGlobals))
		writeChangeSection(&b, localChangesHeader, diff(r.locals, r.prevLocals))
		return b.String()
	default:
		var b strings.Builder
		writeSnapshotSection(&b, globalsHeader, r.globals)
		writeSnapshotSection(&b, localsHeader, r.locals)
		return b.String()
	}
}

// writeSnapshotSection renders a labeled full-snapshot section, omitting it
// entirely when there are no entries.
func writeSnapshotSection(b *strings.Builder, header string, snap *Snapshot) {
	if snap.Len() == 0 {
		return
	}
	b.WriteString(header)
	for _, name := range snap.Names() {
		v, _ := snap.Get(name)
		fmt.Fprintf(b, "%s: %s :: %s\n", name, v.Type, v.Repr)
	}
	b.WriteByte('\n')
}

// writeChangeSection renders a labeled NEW/CHANGED/DELETED section, omitting
// it entirely when nothing changed.
func writeChangeSection(b *strings.Builder, header string, c Changes) {
	if c.empty() {
		return
	}
	b.WriteString(header)
	for _, e := range c.Entries {
		switch e.Kind {
		case ChangeNew:
			fmt.Fprintf(b, "[NEW] %s: %s :: %s\n", e.Name, e.New.Type, e.New.Repr)
		case ChangeChanged:
			fmt.Fprintf(b, "[CHANGED] %s: %s :: %s -> %s\n", e.Name, e.New.Type, e.Old.Repr, e.New.Repr)
		case ChangeDeleted:
			fmt.Fprintf(b, "[DELETED] %s\n", e.Name)
		}
	}
	b.WriteByte('\n')
}
