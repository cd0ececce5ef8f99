package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/privalinux/installer/pkg/disk"
)

func outputDrives(out io.Writer, format string, drives []disk.Drive) error {
	switch format {
	case "", "text":
		for _, d := range drives {
			fmt.Fprintln(out, d.String())
		}
	case "json":
		if drives == nil {
			drives = []disk.Drive{}
		}
		data, err := json.MarshalIndent(drives, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
	default:
		return unsupportedFormat(format, "text", "json")
	}
	return nil
}

func cmdListDrives(cmd *cobra.Command, args []string) error {
	if _, err := loadConfig(cmd); err != nil {
		return err
	}
	exclude, err := cmd.Flags().GetStringArray("exclude")
	if err != nil {
		return err
	}
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}

	drives, err := disk.ListDrives(newRunner(), exclude...)
	if err != nil {
		return err
	}
	return outputDrives(osStdout, format, drives)
}
