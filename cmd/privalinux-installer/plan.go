package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/privalinux/installer/internal/config"
	"github.com/privalinux/installer/pkg/command"
	"github.com/privalinux/installer/pkg/install"
	"github.com/privalinux/installer/pkg/progress"
)

// PlannedStep is a step of a dry run with the commands it would run.
type PlannedStep struct {
	ID       string   `json:"id" yaml:"id"`
	Percent  int      `json:"percent" yaml:"percent"`
	Message  string   `json:"message" yaml:"message"`
	Commands []string `json:"commands" yaml:"commands"`
}

// plan runs the installation against a recorder and an in-memory
// filesystem and groups the recorded commands by step.
func plan(conf *config.Config, target install.Target) ([]PlannedStep, error) {
	rec := &command.Recorder{}
	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll(conf.SourceTree, 0755); err != nil {
		return nil, err
	}
	inst, err := install.New(rec, fs, conf.Options())
	if err != nil {
		return nil, err
	}

	var planned []PlannedStep
	var starts []int
	steps := install.Steps(target.Mode)
	reporter := progress.Func(func(ev progress.Event) {
		// per-command events from experimental flags are not step boundaries
		if ev.Terminal || len(planned) == len(steps) || ev.Message != steps[len(planned)].Message {
			return
		}
		s := steps[len(planned)]
		planned = append(planned, PlannedStep{ID: s.ID, Percent: ev.Percent, Message: ev.Message})
		starts = append(starts, len(rec.Calls()))
	})
	res, err := inst.Run(context.Background(), target, reporter)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, fmt.Errorf("cannot plan installation: %s", res.Message)
	}

	calls := rec.CommandLines()
	for i := range planned {
		end := len(calls)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		planned[i].Commands = calls[starts[i]:end]
	}
	return planned, nil
}

func outputPlan(out io.Writer, format string, planned []PlannedStep) error {
	switch format {
	case "", "text":
		for _, s := range planned {
			fmt.Fprintf(out, "%s\n", progress.Event{Percent: s.Percent, Message: s.Message})
			for _, c := range s.Commands {
				fmt.Fprintf(out, "    %s\n", c)
			}
		}
	case "json":
		data, err := json.MarshalIndent(planned, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(planned); err != nil {
			return err
		}
		return enc.Close()
	default:
		return unsupportedFormat(format, "text", "json", "yaml")
	}
	return nil
}

func cmdPlan(cmd *cobra.Command, args []string) error {
	conf, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	planned, err := plan(conf, conf.Target)
	if err != nil {
		return err
	}
	return outputPlan(osStdout, format, planned)
}
