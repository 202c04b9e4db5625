package trace

import "strings"

// Level controls trace verbosity. Higher values suppress more output.
type Level int

const (
	// LevelDebug is the most verbose: full records plus async call/return
	// detection and await result previews.
	LevelDebug Level = 10
	// LevelInfo is the standard verbosity: step info and variables.
	LevelInfo Level = 20
	// LevelWarning carries the same verbosity as LevelInfo; the label is the
	// only difference, and the distinction is intentional.
	LevelWarning Level = 30
	// LevelError emits bare step headers only.
	LevelError Level = 40
	// LevelSilent emits nothing at all, from any component.
	LevelSilent Level = 50
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	case LevelSilent:
		return "SILENT"
	}
	return "INFO"
}

// ParseLevel maps a config string to a Level. Unrecognized values fall back
// to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARNING":
		return LevelWarning
	case "ERROR":
		return LevelError
	case "SILENT":
		return LevelSilent
	}
	return LevelInfo
}

// Output selects the sink(s) a session writes records to.
type Output int

const (
	OutputFile Output = iota + 1
	OutputStdout
	OutputStderr
	OutputFileStdout
	OutputFileStderr
)

func (o Output) String() string {
	switch o {
	case OutputFile:
		return "FILE"
	case OutputStdout:
		return "STDOUT"
	case OutputStderr:
		return "STDERR"
	case OutputFileStdout:
		return "FILE_STDOUT"
	case OutputFileStderr:
		return "FILE_STDERR"
	}
	return "FILE"
}

func (o Output) usesFile() bool {
	return o == OutputFile || o == OutputFileStdout || o == OutputFileStderr
}

func (o Output) usesStdout() bool {
	return o == OutputStdout || o == OutputFileStdout
}

func (o Output) usesStderr() bool {
	return o == OutputStderr || o == OutputFileStderr
}

// ParseOutput maps a config string to an Output. Unrecognized values fall
// back to OutputFile.
func ParseOutput(s string) Output {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "FILE":
		return OutputFile
	case "STDOUT":
		return OutputStdout
	case "STDERR":
		return OutputStderr
	case "FILE_STDOUT":
		return OutputFileStdout
	case "FILE_STDERR":
		return OutputFileStderr
	}
	return OutputFile
}

// VarMode selects how variables are reported per step.
type VarMode int

const (
	// VarAll reports the full filtered snapshot on every step.
	VarAll VarMode = iota + 1
	// VarChanged reports only NEW/CHANGED/DELETED entries since the last step.
	VarChanged
	// VarNone omits the variable section entirely.
	VarNone
)

func (m VarMode) String() string {
	switch m {
	case VarAll:
		return "ALL"
	case VarChanged:
		return "CHANGED"
	case VarNone:
		return "NONE"
	}
	return "ALL"
}

// ParseVarMode maps a config string to a VarMode. Unrecognized values fall
// back to VarAll.
func ParseVarMode(s string) VarMode {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ALL":
		return VarAll
	case "CHANGED":
		return VarChanged
	case "NONE":
		return VarNone
	}
	return VarAll
}
