package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shawkym/councilpipe/pkg/config"
	"github.com/shawkym/councilpipe/pkg/council"
	"github.com/shawkym/councilpipe/pkg/export"
	"github.com/shawkym/councilpipe/pkg/log"
	"github.com/shawkym/councilpipe/pkg/metrics"
	"github.com/shawkym/councilpipe/pkg/tui"
)

var (
	runConfigPath   string
	runModels       []string
	runSystemPrompt string
	runPrompt       string
	runRounds       int
	runFirstN       int
	runTimeLimit    time.Duration
	runSynthesize   bool
	runSynthesizer  string
	runCouncilName  string
	runExportFormat string
	runMetricsAddr  string
	runWatchConfig  bool
	runTUI          bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Query a council of models and print the result",
	Long: `Run fans a prompt out to a council of models, optionally runs peer-revision
consensus rounds and a synthesis pass, and prints the combined result. Models
can be supplied directly via --models or loaded from a YAML config file.`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "path to council YAML config file")
	runCmd.Flags().StringVar(&runCouncilName, "council", "", "named council to run from the config file (default: config's default_council)")
	runCmd.Flags().StringSliceVarP(&runModels, "models", "m", nil, "model ids to query (overrides config), e.g. openai/gpt-4o,anthropic/claude-3.5-sonnet")
	runCmd.Flags().StringVar(&runSystemPrompt, "system", "", "system prompt sent to every model")
	runCmd.Flags().StringVarP(&runPrompt, "prompt", "p", "", "the question to put to the council")
	runCmd.Flags().IntVar(&runRounds, "rounds", 1, "number of consensus rounds")
	runCmd.Flags().IntVar(&runFirstN, "first-n", 0, "stop the round once N responses settle (0 = wait for all)")
	runCmd.Flags().DurationVar(&runTimeLimit, "time-limit", 0, "drop responses slower than this duration (0 = disabled)")
	runCmd.Flags().BoolVar(&runSynthesize, "synthesize", false, "synthesize a single answer from the final round")
	runCmd.Flags().StringVar(&runSynthesizer, "synthesizer", "", "model id used for synthesis (required with --synthesize unless set in config)")
	runCmd.Flags().StringVar(&runExportFormat, "format", "text", "output format: text, markdown, json")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address while running (e.g. :9090)")
	runCmd.Flags().BoolVar(&runWatchConfig, "watch-config", false, "hot-reload the config file on change (requires --config; affects the next invocation's defaults only)")
	runCmd.Flags().BoolVarP(&runTUI, "tui", "t", false, "show a live progress view while the query runs")
}

func runQuery(cmd *cobra.Command, args []string) error {
	councilCfg, rate, burst, err := resolveCouncilConfig()
	if err != nil {
		return err
	}

	apiKey := os.Getenv("OPENROUTER_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("OPENROUTER_API_KEY must be set")
	}

	client := council.NewBackendClient(apiKey, "https://github.com/shawkym/councilpipe", "councilpipe")

	var recorder council.MetricsRecorder
	if runMetricsAddr != "" {
		srv := metrics.NewServer(metrics.ServerConfig{Addr: runMetricsAddr})
		recorder = srv.GetMetrics()
		go func() {
			if srvErr := srv.Start(); srvErr != nil {
				log.WithError(srvErr).Error("metrics server stopped")
			}
		}()
		defer srv.Stop(context.Background())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\ninterrupted, shutting down...")
		cancel()
	}()

	opts := councilCfg.Options
	if runSynthesize {
		opts.Synthesize = true
	}
	if runSynthesizer != "" {
		opts.SynthesizerModel = council.ModelRef{ID: runSynthesizer}
	}

	log.WithFields(map[string]interface{}{
		"models": len(opts.Models),
		"rounds": opts.Rounds,
	}).Info("starting council query")

	var result council.ConsensusResponse
	if runTUI {
		result, err = tui.Run(ctx, client, councilCfg.SystemPrompt, runPrompt, opts,
			council.WithMetrics(recorder),
			council.WithRateLimit(rate, burst),
		)
	} else {
		session := council.NewSession(client,
			council.WithMetrics(recorder),
			council.WithRateLimit(rate, burst),
			council.WithProgressObserver(council.ProgressObserverFunc(printProgress)),
		)
		result, err = session.QueryWithConsensus(ctx, councilCfg.SystemPrompt, runPrompt, opts)
	}
	if err != nil {
		return fmt.Errorf("council query failed: %w", err)
	}

	exporter := export.NewExporter(export.Options{
		Format:         export.Format(runExportFormat),
		IncludeMetrics: true,
		Title:          councilCfg.Name,
	})
	return exporter.Export(result, os.Stdout)
}

func resolveCouncilConfig() (council.CouncilConfig, float64, int, error) {
	if runConfigPath != "" {
		cfg, err := config.LoadConfig(runConfigPath)
		if err != nil {
			return council.CouncilConfig{}, 0, 0, fmt.Errorf("loading config: %w", err)
		}
		if runWatchConfig {
			watcher, werr := config.NewConfigWatcher(runConfigPath)
			if werr != nil {
				log.WithError(werr).Warn("failed to start config watcher")
			} else {
				go watcher.StartWatching()
			}
		}
		cc, err := cfg.Resolve(runCouncilName)
		if err != nil {
			return council.CouncilConfig{}, 0, 0, err
		}
		rate, burst := cfg.RateLimit(cc.Name)
		applyCLIOverrides(&cc)
		return cc, rate, burst, nil
	}

	if len(runModels) == 0 {
		return council.CouncilConfig{}, 0, 0, fmt.Errorf("either --config or --models must be specified")
	}

	models := make([]council.ModelRef, 0, len(runModels))
	for _, id := range runModels {
		models = append(models, council.ModelRef{ID: strings.TrimSpace(id)})
	}

	cc := council.CouncilConfig{
		Name:         "ad-hoc",
		SystemPrompt: runSystemPrompt,
		Options: council.QueryOptions{
			Models:    models,
			Rounds:    runRounds,
			FirstN:    runFirstN,
			TimeLimit: runTimeLimit,
		},
	}
	return cc, 0, 1, nil
}

func applyCLIOverrides(cc *council.CouncilConfig) {
	if len(runModels) > 0 {
		models := make([]council.ModelRef, 0, len(runModels))
		for _, id := range runModels {
			models = append(models, council.ModelRef{ID: strings.TrimSpace(id)})
		}
		cc.Options.Models = models
	}
	if runSystemPrompt != "" {
		cc.SystemPrompt = runSystemPrompt
	}
	if cmdFlagChanged("rounds") {
		cc.Options.Rounds = runRounds
	}
	if cmdFlagChanged("first-n") {
		cc.Options.FirstN = runFirstN
	}
	if cmdFlagChanged("time-limit") {
		cc.Options.TimeLimit = runTimeLimit
	}
}

func cmdFlagChanged(name string) bool {
	f := runCmd.Flags().Lookup(name)
	return f != nil && f.Changed
}

func printProgress(e council.ProgressEvent) {
	fmt.Fprintf(os.Stderr, "[round %d] %s: %s\n", e.Round, e.Model.ID, e.Status)
}
