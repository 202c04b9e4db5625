package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/steptrace/steptrace/internal/trace"
)

// ConfigCmd prints the effective configuration after file discovery and flag
// overlay, including where each enum string actually lands.
type ConfigCmd struct {
	Dir string `arg:"" optional:"" default:"." help:"Directory to resolve configuration from"`
}

func (c *ConfigCmd) Run(globals *Globals) error {
	cfg, err := globals.loadConfig(c.Dir)
	if err != nil {
		return failf(globals, 1, "%v", err)
	}

	source := cfg.Source
	if source == "" {
		source = "(defaults)"
	}
	fmt.Fprintf(globals.stdout(), "Configuration source: %s\n\n", source)

	funcs := "(all)"
	if len(cfg.TraceableFuncs) > 0 {
		funcs = strings.Join(cfg.TraceableFuncs, ", ")
	}

	table := tablewriter.NewWriter(globals.stdout())
	table.Header("Setting", "Value", "Effective")
	rows := [][]string{
		{"log_level", cfg.LogLevel, trace.ParseLevel(cfg.LogLevel).String()},
		{"log_output", cfg.LogOutput, trace.ParseOutput(cfg.LogOutput).String()},
		{"variable_mode", cfg.VariableMode, trace.ParseVarMode(cfg.VariableMode).String()},
		{"log_dir", cfg.LogDir, cfg.LogDir},
		{"filter_workspace", strconv.FormatBool(cfg.FilterWorkspace), strconv.FormatBool(cfg.FilterWorkspace)},
		{"traceable_functions", funcs, funcs},
		{"trace_async", strconv.FormatBool(cfg.TraceAsync), strconv.FormatBool(cfg.TraceAsync)},
		{"await_threshold_ms", fmt.Sprintf("%g", cfg.AwaitThresholdMs), fmt.Sprintf("%g", cfg.AwaitThresholdMs)},
		{"trace_tasks", strconv.FormatBool(cfg.TraceTasks), strconv.FormatBool(cfg.TraceTasks)},
	}
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return failf(globals, 1, "failed to render config table: %v", err)
		}
	}
	if err := table.Render(); err != nil {
		return failf(globals, 1, "failed to render config table: %v", err)
	}
	return nil
}
