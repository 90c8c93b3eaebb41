package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-acj/infrastructure/storage"
	"github.com/ahrav/go-acj/internal/application"
	"github.com/ahrav/go-acj/internal/domain"
)

type replayOptions struct {
	items      []string
	itemsDir   string
	extensions []string
	trialsPath string
	step       float64
	top        int
}

func newReplayCmd(global *globalOptions) *cobra.Command {
	opts := &replayOptions{}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Rebuild quality scores from a recorded trial file",
		Long: `replay feeds the trials of a recorded CSV file through a fresh engine in
order and prints the resulting ranking. Missed trials are skipped. Replaying
with the step used during the session reproduces its final scores.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := global.setup(cmd)
			if err != nil {
				return err
			}
			runErr := runReplay(cmd, deps, opts)
			return joinShutdown(cmd.Context(), deps, runErr)
		},
	}

	f := cmd.Flags()
	f.StringSliceVar(&opts.items, "items", nil, "comma-separated item identifiers")
	f.StringVar(&opts.itemsDir, "items-dir", "", "directory whose files are the items")
	f.StringSliceVar(&opts.extensions, "extensions", application.DefaultImageExtensions, "file extensions accepted from --items-dir")
	f.StringVarP(&opts.trialsPath, "trials", "t", "", "trial CSV file (required)")
	f.Float64Var(&opts.step, "step", application.DefaultStep, "update learning rate used during the session")
	f.IntVar(&opts.top, "top", 0, "print only the first N items of the ranking")
	_ = cmd.MarkFlagRequired("trials")
	cmd.MarkFlagsMutuallyExclusive("items", "items-dir")
	cmd.MarkFlagsOneRequired("items", "items-dir")
	return cmd
}

func runReplay(cmd *cobra.Command, deps *runtimeDeps, opts *replayOptions) error {
	var items []domain.ItemID
	if opts.itemsDir != "" {
		listed, err := application.ListItemDir(opts.itemsDir, opts.extensions)
		if err != nil {
			return err
		}
		items = listed
	} else {
		for _, raw := range opts.items {
			if id := strings.TrimSpace(raw); id != "" {
				items = append(items, domain.ItemID(id))
			}
		}
	}

	records, err := storage.ReadTrialsFile(opts.trialsPath)
	if err != nil {
		return err
	}

	engine, report, err := application.Replay(items, records,
		application.WithStep(opts.step),
		application.WithLogger(deps.logger),
		application.WithMetrics(deps.metrics, nil),
	)
	if err != nil {
		return err
	}
	deps.logger.Info("replay complete",
		"trials", len(records),
		"applied", report.Applied,
		"missed", report.Missed,
	)

	ranking := engine.Ranking()
	if opts.top > 0 && opts.top < len(ranking) {
		ranking = ranking[:opts.top]
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tITEM\tQUALITY")
	for i, sc := range ranking {
		fmt.Fprintf(w, "%d\t%s\t%.4f\n", i+1, sc.Item, sc.Quality)
	}
	fmt.Fprintf(w, "\napplied %d of %d trials (%d missed)\n", report.Applied, len(records), report.Missed)
	return w.Flush()
}
