package main

import (
	"context"
	"fmt"
	"runtime"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-acj/infrastructure/middleware"
	"github.com/ahrav/go-acj/infrastructure/participants"
	"github.com/ahrav/go-acj/infrastructure/storage"
	"github.com/ahrav/go-acj/internal/application"
	"github.com/ahrav/go-acj/internal/domain"
	"github.com/ahrav/go-acj/internal/ports"
)

type simulateOptions struct {
	configPath   string
	participants int
	parallel     int
	missRate     float64
	truthSD      float64
	outputDir    string
	realTime     bool
}

// simulationResult is one participant's outcome.
type simulationResult struct {
	summary     ports.SessionSummary
	correlation float64
	csvPath     string
}

func newSimulateCmd(global *globalOptions) *cobra.Command {
	opts := &simulateOptions{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run judgement sessions with simulated participants",
		Long: `simulate loads a session configuration, draws hidden true qualities
for its items and runs one session per simulated participant. Each session
writes its own trial files. The report compares the estimated ranking of
each session with the hidden truth.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := global.setup(cmd)
			if err != nil {
				return err
			}
			runErr := runSimulate(cmd, deps, opts)
			return joinShutdown(cmd.Context(), deps, runErr)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "session configuration file (required)")
	f.IntVarP(&opts.participants, "participants", "n", 1, "number of simulated participants")
	f.IntVar(&opts.parallel, "parallel", runtime.GOMAXPROCS(0), "maximum sessions run at once")
	f.Float64Var(&opts.missRate, "miss-rate", 0, "probability that a simulated trial gets no response")
	f.Float64Var(&opts.truthSD, "truth-sd", 1.5, "standard deviation of the hidden true qualities")
	f.StringVarP(&opts.outputDir, "out", "o", "", "override the configured output directory")
	f.BoolVar(&opts.realTime, "real-time", false, "wait for each simulated reaction time")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runSimulate(cmd *cobra.Command, deps *runtimeDeps, opts *simulateOptions) error {
	if opts.participants < 1 {
		return fmt.Errorf("--participants must be at least 1")
	}

	loader, err := application.NewConfigLoader(application.NewSelectorRegistry())
	if err != nil {
		return err
	}
	config, err := loader.LoadFromFile(opts.configPath)
	if err != nil {
		return err
	}
	if opts.outputDir != "" {
		config.Output.Dir = opts.outputDir
	}
	items, err := loader.ResolveItems(config)
	if err != nil {
		return err
	}
	truth := participants.GenerateQualities(items, config.Selection.Seed, opts.truthSD)

	deps.logger.Info("starting simulation",
		"session", config.Session.Name,
		"items", len(items),
		"participants", opts.participants,
		"policy", config.Selection.Policy,
		"seed", config.Selection.Seed,
	)

	results := make([]simulationResult, opts.participants)

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(max(opts.parallel, 1))
	for i := range opts.participants {
		g.Go(func() error {
			res, err := simulateOne(ctx, deps, loader, config, truth, opts, i)
			if err != nil {
				return fmt.Errorf("participant %d: %w", i+1, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	return printSimulationReport(cmd, results)
}

func simulateOne(
	ctx context.Context,
	deps *runtimeDeps,
	loader *application.ConfigLoader,
	config *application.SessionConfig,
	truth map[domain.ItemID]float64,
	opts *simulateOptions,
	index int,
) (simulationResult, error) {
	participantID := fmt.Sprintf("sim%02d", index+1)
	if config.Session.ParticipantID != "" {
		participantID = fmt.Sprintf("%s_%02d", config.Session.ParticipantID, index+1)
	}
	labels := map[string]string{middleware.LabelParticipant: participantID}
	logger := deps.logger.With("participant_id", participantID)

	// Each participant gets its own selector and noise stream.
	perSession := *config
	perSession.Selection.Seed = config.Selection.Seed + uint64(index) + 1
	engine, err := loader.BuildEngine(&perSession,
		application.WithLogger(logger),
		application.WithMetrics(deps.metrics, labels),
	)
	if err != nil {
		return simulationResult{}, err
	}

	simOpts := []participants.SimulatedOption{
		participants.WithSeed(perSession.Selection.Seed),
		participants.WithMissRate(opts.missRate),
	}
	if opts.realTime {
		simOpts = append(simOpts, participants.WithRealTime())
	}
	sim, err := participants.NewSimulated(truth, simOpts...)
	if err != nil {
		return simulationResult{}, err
	}
	responder := participants.Chain(sim, participants.TimeoutMiddleware(config.Trials.ResponseTimeout))

	recorder, err := storage.NewDataManager(config.Output.Dir, participantID, time.Now(),
		storage.WithFormats(config.Output.Formats...),
		storage.WithLogger(logger),
	)
	if err != nil {
		return simulationResult{}, err
	}

	sessionOpts := []application.SessionOption{
		application.WithParticipant(participantID),
		application.WithRoundType(config.Session.RoundType),
		application.WithRecorder(recorder),
		application.WithObserver(middleware.NewOTelTrialObserver(deps.tracer, deps.metrics, labels)),
		application.WithMaxTrials(config.TrialBudget(len(engine.Items()))),
		application.WithPace(config.Trials.PacePerSecond),
		application.WithSessionLogger(logger),
	}
	if config.Trials.RandomizeSides {
		sessionOpts = append(sessionOpts, application.WithRandomizedSides(perSession.Selection.Seed))
	}
	session, err := application.NewSession(engine, responder, sessionOpts...)
	if err != nil {
		_ = recorder.Close(ctx, ports.SessionSummary{ParticipantID: participantID})
		return simulationResult{}, err
	}

	summary, err := session.Run(ctx)
	if err != nil {
		return simulationResult{}, err
	}
	return simulationResult{
		summary:     summary,
		correlation: participants.RankCorrelation(truth, summary.Ranking),
		csvPath:     recorder.CSVPath(),
	}, nil
}

func printSimulationReport(cmd *cobra.Command, results []simulationResult) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PARTICIPANT\tTRIALS\tMISSED\tEND\tRANK CORR\tTOP ITEM\tDATA")
	for _, r := range results {
		top := "-"
		if len(r.summary.Ranking) > 0 {
			top = string(r.summary.Ranking[0].Item)
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%.3f\t%s\t%s\n",
			r.summary.ParticipantID,
			r.summary.Trials,
			r.summary.Missed,
			endReason(r.summary),
			r.correlation,
			top,
			r.csvPath,
		)
	}
	return w.Flush()
}

func endReason(s ports.SessionSummary) string {
	switch {
	case s.Aborted:
		return "aborted"
	case s.Exhausted:
		return "exhausted"
	default:
		return "budget"
	}
}

func joinShutdown(ctx context.Context, deps *runtimeDeps, runErr error) error {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := deps.shutdown(shutdownCtx); err != nil && runErr == nil {
		return err
	}
	return runErr
}
