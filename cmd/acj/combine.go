package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-acj/infrastructure/storage"
)

type combineOptions struct {
	dir     string
	outPath string
}

func newCombineCmd(global *globalOptions) *cobra.Command {
	opts := &combineOptions{}

	cmd := &cobra.Command{
		Use:   "combine",
		Short: "Merge session exports into one trial table",
		Long: `combine reads every JSON session export in a data directory and writes a
single CSV with one row per trial. Session fields such as participant,
start and end time and duration are repeated on every row.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := global.setup(cmd)
			if err != nil {
				return err
			}
			runErr := runCombine(cmd, deps, opts)
			return joinShutdown(cmd.Context(), deps, runErr)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.dir, "dir", "d", "data", "directory holding the session exports")
	f.StringVarP(&opts.outPath, "out", "o", "", "output file (default <dir>/working/combined_data.csv)")
	return cmd
}

func runCombine(cmd *cobra.Command, deps *runtimeDeps, opts *combineOptions) (err error) {
	outPath := opts.outPath
	if outPath == "" {
		outPath = filepath.Join(opts.dir, "working", "combined_data.csv")
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := os.Create(filepath.Clean(outPath))
	if err != nil {
		return fmt.Errorf("failed to create combined file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close combined file: %w", cerr))
		}
		if err != nil {
			_ = os.Remove(outPath)
		}
	}()

	report, err := storage.CombineDir(opts.dir, f)
	if err != nil {
		return err
	}
	deps.logger.Info("combined session exports",
		"dir", opts.dir,
		"sessions", report.Sessions,
		"trials", report.Trials,
		"out", outPath,
	)
	fmt.Fprintf(cmd.OutOrStdout(), "combined %d trials from %d sessions into %s\n",
		report.Trials, report.Sessions, outPath)
	return nil
}
