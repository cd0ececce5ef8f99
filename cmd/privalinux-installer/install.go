package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/privalinux/installer/pkg/install"
	"github.com/privalinux/installer/pkg/progress"
)

func newReporter(kind string) (progress.Reporter, error) {
	switch kind {
	case "", "bar":
		return progress.NewBar(osStdout), nil
	case "log":
		return progress.Log{}, nil
	case "jsonseq":
		return progress.NewJSONSeq(osStdout), nil
	default:
		return nil, fmt.Errorf("unsupported progress type %q, use one of [bar log jsonseq]", kind)
	}
}

func cmdInstall(cmd *cobra.Command, args []string) error {
	conf, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	progressKind, err := cmd.Flags().GetString("progress")
	if err != nil {
		return err
	}
	yes, err := cmd.Flags().GetBool("yes")
	if err != nil {
		return err
	}

	target := conf.Target
	if err := target.Validate(); err != nil {
		return err
	}
	if !yes {
		what := target.Drive
		if target.Mode == install.ModeManual {
			what = fmt.Sprintf("%s and %s", target.EFI, target.Root)
			if target.Home != "" {
				what = fmt.Sprintf("%s, %s and %s", target.EFI, target.Root, target.Home)
			}
		}
		return fmt.Errorf("refusing to install without --yes: all data on %s will be erased", what)
	}
	if err := checkPrivilege(); err != nil {
		return err
	}

	inst, err := install.New(newRunner(), newFs(), conf.Options())
	if err != nil {
		return err
	}
	reporter, err := newReporter(progressKind)
	if err != nil {
		return err
	}

	// cancellation takes effect before the next step, a running command
	// is never interrupted
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	task, err := inst.Start(ctx, target, reporter)
	if err != nil {
		return err
	}
	logrus.Debugf("started installation %s", task.RunID())
	res := task.Wait()

	if len(res.Mounts) > 0 {
		logrus.Warnf("the target is still mounted at %s (%d mounts)", res.Mounts[0].Target, len(res.Mounts))
	}
	if !res.Success {
		return errors.New(res.Message)
	}
	if progressKind != "jsonseq" {
		fmt.Fprintln(osStdout, res.Message)
	}
	return nil
}
