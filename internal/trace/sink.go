package trace

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// sink fans one formatted record out to every destination the output policy
// implies. Every destination receives identical bytes.
type sink struct {
	output Output
	file   *os.File
	path   string
	stdout io.Writer
	stderr io.Writer
}

func newSink(output Output, dir string, stdout, stderr io.Writer) (*sink, error) {
	s := &sink{output: output, stdout: stdout, stderr: stderr}
	if output.usesFile() {
		for {
			path, err := nextLogPath(dir)
			if err != nil {
				return nil, err
			}
			f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY|os.O_APPEND, 0o644)
			if os.IsExist(err) {
				// Another session claimed the name between Stat and open.
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("failed to create log file: %w", err)
			}
			s.file = f
			s.path = path
			break
		}
	}
	return s, nil
}

// nextLogPath picks trace.log, then trace_1.log, trace_2.log, … so sessions
// sharing a directory never clobber each other.
func nextLogPath(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}
	path := filepath.Join(dir, "trace.log")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path, nil
	}
	for i := 1; ; i++ {
		path = filepath.Join(dir, fmt.Sprintf("trace_%d.log", i))
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path, nil
		}
	}
}

func (s *sink) write(text string) error {
	if s == nil {
		return nil
	}
	if s.file != nil {
		if _, err := s.file.WriteString(text); err != nil {
			return err
		}
	}
	if s.output.usesStdout() && s.stdout != nil {
		if _, err := io.WriteString(s.stdout, text); err != nil {
			return err
		}
	}
	if s.output.usesStderr() && s.stderr != nil {
		if _, err := io.WriteString(s.stderr, text); err != nil {
			return err
		}
	}
	return nil
}

func (s *sink) logPath() string {
	if s == nil {
		return ""
	}
	return s.path
}

func (s *sink) close() {
	if s == nil || s.file == nil {
		return
	}
	s.file.Close()
	s.file = nil
}
