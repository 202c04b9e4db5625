package cli

import (
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/steptrace/steptrace/internal/tui"
)

// ViewCmd opens a written trace log in an interactive scrollable viewer.
type ViewCmd struct {
	File string `arg:"" type:"path" help:"Trace log file to open"`
}

func (c *ViewCmd) Run(globals *Globals) error {
	data, err := os.ReadFile(c.File)
	if err != nil {
		return failf(globals, 1, "cannot read trace log %s: %v", c.File, err)
	}

	model := tui.New(filepath.Base(c.File), string(data))
	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return failf(globals, 1, "viewer error: %v", err)
	}
	return nil
}
