// Package main provides the mbr-decode CLI.
// The CLI decodes candidate pools locally or against a remote decode
// server, scores system outputs, and manages metric checkpoints.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/mbrdecode/mbr-decode/internal/client"
	"github.com/mbrdecode/mbr-decode/internal/config"
	"github.com/mbrdecode/mbr-decode/internal/corpus"
	"github.com/mbrdecode/mbr-decode/internal/decoder"
	"github.com/mbrdecode/mbr-decode/internal/evaluation"
	"github.com/mbrdecode/mbr-decode/internal/metric"
	"github.com/mbrdecode/mbr-decode/internal/pkg/logger"
	"github.com/mbrdecode/mbr-decode/internal/scoring"
	"github.com/mbrdecode/mbr-decode/internal/server"
	"github.com/mbrdecode/mbr-decode/internal/timer"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mbr-decode",
		Short: "MBR Decode - minimum Bayes risk decoding for candidate pools",
		Long: `mbr-decode selects output sentences from candidate pools by expected
utility under a translation quality metric.

Run 'mbr-decode decode' to decode line-oriented candidate files.
Run 'mbr-decode --help' for available commands.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")

	rootCmd.AddCommand(
		decodeCmd(),
		scoreCmd(),
		modelsCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and builds a logger from the shared flags.
func setup(cmd *cobra.Command) (*config.Config, *logger.Logger, error) {
	configPath, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")

	logLevel := "warn"
	if verbose {
		logLevel = "debug"
	}
	log := logger.New(logLevel, "text")

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, log, nil
}

// metricOptions wires the scoring backend and cache for local decoding.
func metricOptions(cfg *config.Config, log *logger.Logger) (metric.Options, error) {
	backend := scoring.New(scoring.Config{
		BaseURL:           cfg.Backend.URL,
		APIKey:            cfg.Backend.APIKey,
		Timeout:           time.Duration(cfg.Backend.TimeoutSeconds) * time.Second,
		BatchSize:         cfg.Metric.BatchSize,
		MaxParallel:       cfg.Backend.MaxParallel,
		RequestsPerSecond: cfg.Backend.RequestsPerSecond,
		MaxRetries:        cfg.Backend.MaxRetries,
	}, log)

	cache, err := metric.NewCache(cfg.Cache)
	if err != nil {
		return metric.Options{}, fmt.Errorf("failed to create score cache: %w", err)
	}

	return metric.Options{Config: cfg.Metric, Backend: backend, Cache: cache}, nil
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func decodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode HYPOTHESES",
		Short: "Decode candidate pools from line-oriented files",
		Long: `Decode reads a hypotheses file holding num-candidates consecutive lines
per sentence and writes the selected output, one block of nbest lines
per sentence. A timing report follows on stderr unless --quiet.

References are optional. Without them a reference-based decoder uses
the candidate pool itself as pseudo-references (sampling-based MBR).

Examples:
  mbr-decode decode samples.txt -n 64 -m chrf
  mbr-decode decode samples.txt -r refs.txt -n 64 --num-references 4
  mbr-decode decode samples.txt -n 64 -d rerank -m cometqe -s source.txt
  mbr-decode decode samples.txt -n 64 --server http://decode-host:8080`,
		Args: cobra.ExactArgs(1),
		RunE: runDecode,
	}

	cmd.Flags().StringP("references", "r", "", "references file, num-references lines per sentence")
	cmd.Flags().StringP("source", "s", "", "source file, one line per sentence")
	cmd.Flags().IntP("num-candidates", "n", 0, "candidate pool size per sentence (required)")
	cmd.Flags().Int("num-references", 0, "reference count per sentence (default num-candidates)")
	cmd.Flags().StringP("metric", "m", "", "utility metric (overrides config)")
	cmd.Flags().StringP("decoder", "d", "", "decoder (overrides config)")
	cmd.Flags().Int("nbest", 0, "lines to emit per sentence (overrides config)")
	cmd.Flags().StringP("output", "o", "-", "output file, - for stdout")
	cmd.Flags().IntP("batch-size", "b", 0, "metric scoring batch size (overrides config)")
	cmd.Flags().Bool("fp16", false, "request half-precision backend scoring")
	cmd.Flags().String("server", "", "decode remotely against this server URL")
	cmd.Flags().String("api-key", "", "API key for the remote server")
	cmd.Flags().IntP("width", "w", 1, "decimal digits in the timing report")
	cmd.Flags().BoolP("quiet", "q", false, "suppress progress bar and timing report")

	_ = cmd.MarkFlagRequired("num-candidates")

	return cmd
}

func runDecode(cmd *cobra.Command, args []string) error {
	input := args[0]
	refPath, _ := cmd.Flags().GetString("references")
	srcPath, _ := cmd.Flags().GetString("source")
	numCandidates, _ := cmd.Flags().GetInt("num-candidates")
	numReferences, _ := cmd.Flags().GetInt("num-references")
	metricName, _ := cmd.Flags().GetString("metric")
	decoderName, _ := cmd.Flags().GetString("decoder")
	nbest, _ := cmd.Flags().GetInt("nbest")
	output, _ := cmd.Flags().GetString("output")
	batchSize, _ := cmd.Flags().GetInt("batch-size")
	fp16, _ := cmd.Flags().GetBool("fp16")
	serverURL, _ := cmd.Flags().GetString("server")
	apiKey, _ := cmd.Flags().GetString("api-key")
	width, _ := cmd.Flags().GetInt("width")
	quiet, _ := cmd.Flags().GetBool("quiet")

	if numReferences == 0 {
		numReferences = numCandidates
	}

	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	if metricName != "" {
		cfg.Metric.Default = metricName
	}
	if decoderName != "" {
		cfg.Decoder.Default = decoderName
	}
	if nbest > 0 {
		cfg.Decoder.NBest = nbest
	}
	if batchSize > 0 {
		cfg.Metric.BatchSize = batchSize
	}
	if fp16 {
		cfg.Metric.FP16 = true
	}

	ctx, cancel := signalContext()
	defer cancel()

	timers := timer.NewSet()
	stopTotal := timers.Measure("total")

	stopLoad := timers.Measure("load")
	pools, err := loadPools(input, refPath, srcPath, numCandidates, numReferences)
	stopLoad()
	if err != nil {
		return err
	}

	var bar *progressbar.ProgressBar
	if !quiet {
		bar = progressbar.NewOptions(len(pools),
			progressbar.OptionSetDescription("decoding"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionShowCount(),
		)
	}

	var results []*client.Output
	stopDecode := timers.Measure("decode")
	if serverURL != "" {
		results, err = decodeRemote(ctx, cfg, serverURL, apiKey, pools, bar)
	} else {
		results, err = decodeLocal(ctx, cfg, log, pools, timers, bar)
	}
	stopDecode()
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		return err
	}

	if err := writeOutputs(output, results); err != nil {
		return err
	}
	stopTotal()

	if !quiet {
		printTiming(timers, len(pools), width)
	}
	return nil
}

// loadPools reads the line-oriented corpus files into per-sentence
// pools. Line counts that do not divide evenly are an error.
func loadPools(input, refPath, srcPath string, numCandidates, numReferences int) ([]client.Pool, error) {
	hypBlocks, err := corpus.LoadBlocks(input, numCandidates)
	if err != nil {
		return nil, err
	}

	var refBlocks [][]string
	if refPath != "" {
		refBlocks, err = corpus.LoadBlocks(refPath, numReferences)
		if err != nil {
			return nil, err
		}
		if len(refBlocks) != len(hypBlocks) {
			return nil, fmt.Errorf("references cover %d sentences, hypotheses cover %d",
				len(refBlocks), len(hypBlocks))
		}
	}

	var sources []string
	if srcPath != "" {
		sources, err = corpus.Load(srcPath)
		if err != nil {
			return nil, err
		}
		if len(sources) != len(hypBlocks) {
			return nil, fmt.Errorf("sources cover %d sentences, hypotheses cover %d",
				len(sources), len(hypBlocks))
		}
	}

	pools := make([]client.Pool, len(hypBlocks))
	for i, block := range hypBlocks {
		pools[i] = client.Pool{Hypotheses: corpus.Strip(block)}
		if refBlocks != nil {
			pools[i].References = corpus.Strip(refBlocks[i])
		}
		if sources != nil {
			pools[i].Source = strings.TrimSpace(sources[i])
		}
	}
	return pools, nil
}

// decodeLocal runs the decode service in-process, pool by pool.
func decodeLocal(ctx context.Context, cfg *config.Config, log *logger.Logger, pools []client.Pool, timers *timer.Set, bar *progressbar.ProgressBar) ([]*client.Output, error) {
	opts, err := metricOptions(cfg, log)
	if err != nil {
		return nil, err
	}
	defer func() {
		if opts.Cache != nil {
			_ = opts.Cache.Close()
		}
	}()

	svc := server.NewDecodeService(cfg, opts, log, nil)

	// Decoders report their "score" stopwatch into the same set.
	ctx = timer.WithContext(ctx, timers)

	results := make([]*client.Output, len(pools))
	for i, pool := range pools {
		stop := timers.Measure("decode/" + cfg.Decoder.Default)
		out, err := svc.DecodePool(ctx, "", "", 0, server.PoolRequest{
			Hypotheses: pool.Hypotheses,
			References: pool.References,
			Source:     pool.Source,
		})
		stop()
		if err != nil {
			return nil, fmt.Errorf("decoding sentence %d: %w", i, err)
		}
		results[i] = &client.Output{
			Indices:   out.Indices,
			Sentences: out.Sentences,
			Scores:    out.Scores,
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	return results, nil
}

// decodeRemote submits the corpus as one batch job and polls until it
// finishes.
func decodeRemote(ctx context.Context, cfg *config.Config, serverURL, apiKey string, pools []client.Pool, bar *progressbar.ProgressBar) ([]*client.Output, error) {
	clientCfg := client.DefaultConfig()
	clientCfg.BaseURL = serverURL
	clientCfg.APIKey = apiKey
	c := client.New(clientCfg)

	submitted, err := c.SubmitBatch(ctx, client.BatchRequest{
		Decoder: cfg.Decoder.Default,
		Metric:  cfg.Metric.Default,
		NBest:   cfg.Decoder.NBest,
		Pools:   pools,
	})
	if err != nil {
		return nil, fmt.Errorf("submitting batch: %w", err)
	}

	interval := 500 * time.Millisecond
	for {
		job, err := c.GetJob(ctx, submitted.ID)
		if err != nil {
			return nil, fmt.Errorf("polling job %s: %w", submitted.ID, err)
		}
		if bar != nil {
			_ = bar.Set(job.Done)
		}
		switch job.Status {
		case "completed":
			return job.Results, nil
		case "failed":
			return nil, fmt.Errorf("job %s failed: %s", job.ID, job.Error)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}

// writeOutputs emits the selected sentences, nbest lines per pool.
func writeOutputs(path string, results []*client.Output) error {
	out := os.Stdout
	if path != "" && path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("cannot create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	for _, res := range results {
		for _, sentence := range res.Sentences {
			if _, err := fmt.Fprintln(out, sentence); err != nil {
				return fmt.Errorf("writing output: %w", err)
			}
		}
	}
	return nil
}

// printTiming renders the stopwatch report to stderr.
func printTiming(timers *timer.Set, nsents, width int) {
	table := tablewriter.NewWriter(os.Stderr)
	table.SetHeader([]string{"Stage", "Total (s)", "Avg (s/sent)", "Calls"})
	table.SetBorder(false)
	for _, row := range timers.Result(nsents) {
		table.Append([]string{
			row.Name,
			strconv.FormatFloat(row.AccSeconds, 'f', width, 64),
			strconv.FormatFloat(row.AvgSeconds, 'f', width+2, 64),
			strconv.FormatInt(row.Calls, 10),
		})
	}
	table.Render()
}

func scoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score OUTPUT",
		Short: "Score system outputs against references",
		Long: `Score computes corpus-level statistics of a sentence metric over
aligned output and reference files, one line per sentence.

Examples:
  mbr-decode score output.txt -r refs.txt -m chrf
  mbr-decode score output.txt -s source.txt -m cometqe --sentences`,
		Args: cobra.ExactArgs(1),
		RunE: runScore,
	}

	cmd.Flags().StringP("references", "r", "", "reference file, one line per sentence")
	cmd.Flags().StringP("source", "s", "", "source file, one line per sentence")
	cmd.Flags().StringP("metric", "m", "", "metric to score with (overrides config)")
	cmd.Flags().Bool("sentences", false, "also print per-sentence scores")

	return cmd
}

func runScore(cmd *cobra.Command, args []string) error {
	outPath := args[0]
	refPath, _ := cmd.Flags().GetString("references")
	srcPath, _ := cmd.Flags().GetString("source")
	metricName, _ := cmd.Flags().GetString("metric")
	perSentence, _ := cmd.Flags().GetBool("sentences")

	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	if metricName == "" {
		metricName = cfg.Metric.Default
	}

	outputs, err := corpus.Load(outPath)
	if err != nil {
		return err
	}

	var references, sources []string
	if refPath != "" {
		if references, err = corpus.Load(refPath); err != nil {
			return err
		}
	}
	if srcPath != "" {
		if sources, err = corpus.Load(srcPath); err != nil {
			return err
		}
	}

	opts, err := metricOptions(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if opts.Cache != nil {
			_ = opts.Cache.Close()
		}
	}()

	ctx, cancel := signalContext()
	defer cancel()

	summary, err := evaluation.NewEvaluator(opts, log).
		EvaluateCorpus(ctx, metricName, outputs, references, sources)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Metric", "Sentences", "Mean", "Median", "StdDev", "Min", "Max"})
	table.SetBorder(false)
	table.Append([]string{
		summary.Metric,
		strconv.Itoa(summary.Sentences),
		fmt.Sprintf("%.4f", summary.Mean),
		fmt.Sprintf("%.4f", summary.Median),
		fmt.Sprintf("%.4f", summary.StdDev),
		fmt.Sprintf("%.4f", summary.Min),
		fmt.Sprintf("%.4f", summary.Max),
	})
	table.Render()

	if perSentence {
		for _, s := range summary.Scores {
			fmt.Printf("%d\t%.4f\n", s.Index, s.Score)
		}
	}
	return nil
}

func modelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Manage neural metric checkpoints",
		Long: `Models lists, inspects, downloads, and removes the checkpoints the
scoring backend loads from the models directory.`,
	}

	cmd.AddCommand(
		modelsListCmd(),
		modelsStatusCmd(),
		modelsDownloadCmd(),
		modelsRemoveCmd(),
	)
	return cmd
}

func newManager(cmd *cobra.Command) (*scoring.ModelManager, error) {
	cfg, log, err := setup(cmd)
	if err != nil {
		return nil, err
	}
	return scoring.NewModelManager(cfg.Metric.ModelsDir, log), nil
}

func modelsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known checkpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			mgr, err := newManager(cmd)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Name", "Metric", "Repository", "Description"})
			table.SetBorder(false)
			for _, cp := range mgr.List() {
				table.Append([]string{cp.Name, cp.Metric, cp.RepoID, cp.Description})
			}
			table.Render()
			return nil
		},
	}
}

func modelsStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show checkpoint install state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			mgr, err := newManager(cmd)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Name", "Installed", "Size", "Path"})
			table.SetBorder(false)
			for _, st := range mgr.Status() {
				installed := "no"
				if st.Installed {
					installed = "yes"
				}
				table.Append([]string{
					st.Checkpoint.Name,
					installed,
					humanBytes(st.SizeBytes),
					st.Path,
				})
			}
			table.Render()
			return nil
		},
	}
}

func modelsDownloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download <name>",
		Short: "Download a checkpoint from its repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := newManager(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			bars := make(map[string]*progressbar.ProgressBar)
			onProgress := func(file string, downloaded, total int64) {
				bar, ok := bars[file]
				if !ok {
					bar = progressbar.DefaultBytes(total, file)
					bars[file] = bar
				}
				_ = bar.Set64(downloaded)
			}

			if err := mgr.Download(ctx, args[0], onProgress); err != nil {
				return err
			}
			fmt.Printf("checkpoint %s ready\n", args[0])
			return nil
		},
	}
}

func modelsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Delete a checkpoint from disk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := newManager(cmd)
			if err != nil {
				return err
			}
			if err := mgr.Remove(args[0]); err != nil {
				return err
			}
			fmt.Printf("checkpoint %s removed\n", args[0])
			return nil
		},
	}
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMG"[exp])
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mbr-decode %s\n", version)
			fmt.Printf("  metrics:  %s\n", strings.Join(metric.Names(), ", "))
			fmt.Printf("  decoders: %s\n", strings.Join(decoder.Names(), ", "))
			fmt.Printf("  commit:   %s\n", commit)
			fmt.Printf("  built:    %s\n", date)
		},
	}
}
