// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/poiesic/recollect"
	"github.com/poiesic/recollect/core"
	"github.com/poiesic/recollect/reindex"
	"github.com/urfave/cli/v2"
)

const defaultDataDir = "./recollect_data"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "recollect",
		Usage: "Ingest personal content and search it by meaning",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML configuration file",
			},
			&cli.StringFlag{
				Name:    "data",
				Aliases: []string{"d"},
				Usage:   "Data directory (overrides data_dir in the config file)",
			},
			&cli.StringFlag{
				Name:  "redis-url",
				Usage: "Share rate limits and cached stage results through Redis",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Run content through the ingestion pipeline",
				ArgsUsage: "[text...]",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "source",
						Aliases: []string{"s"},
						Usage:   "Source type (email, calendar, note)",
						Value:   string(core.SourceNote),
					},
					&cli.StringFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "Ingest each non-empty line of this file (- for stdin)",
					},
					&cli.TimestampFlag{
						Name:   "received-at",
						Usage:  "When the content was received (RFC 3339)",
						Layout: time.RFC3339,
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Find memories relevant to a query",
				ArgsUsage: "<query...>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "top-k",
						Aliases: []string{"k"},
						Usage:   "Number of results to return",
						Value:   5,
					},
				},
			},
			{
				Name:   "recent",
				Usage:  "List the most recently created memories",
				Action: recentCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Number of memories to list",
						Value:   10,
					},
				},
			},
			{
				Name:   "reindex",
				Usage:  "Re-embed every stored memory with the configured embedding model",
				Action: reindexCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "fresh",
						Usage: "Discard the vector index first (required when dimensions change)",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of memories to process in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N memories",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
			{
				Name:   "reconcile",
				Usage:  "Repair memories left half-written by a crash",
				Action: reconcileCommand,
			},
			{
				Name:   "stats",
				Usage:  "Show store sizes, rate windows and recent pipeline timings",
				Action: statsCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "runs",
						Usage: "Number of recent runs to summarize",
						Value: 100,
					},
				},
			},
		},
	}
}

// openEngine opens the engine described by the global flags.
func openEngine(ctx context.Context, c *cli.Context, extra ...recollect.Option) (*recollect.Engine, error) {
	fc := &recollect.FileConfig{}
	if path := c.String("config"); path != "" {
		var err error
		if fc, err = recollect.LoadFileConfig(path); err != nil {
			return nil, err
		}
	}

	dataDir := c.String("data")
	if dataDir == "" {
		dataDir = fc.DataDir
	}
	if dataDir == "" {
		dataDir = defaultDataDir
	}

	opts := append(fc.Options(), recollect.WithLogger(slog.Default()))
	if url := c.String("redis-url"); url != "" {
		opts = append(opts, recollect.WithRedisURL(url))
	}
	opts = append(opts, extra...)

	slog.Debug("opening engine", "data_dir", dataDir)
	engine, err := recollect.Open(ctx, dataDir, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open engine: %w", err)
	}
	return engine, nil
}

func ingestCommand(c *cli.Context) error {
	source, err := core.ParseSourceType(c.String("source"))
	if err != nil {
		return err
	}
	receivedAt := time.Now()
	if ts := c.Timestamp("received-at"); ts != nil {
		receivedAt = *ts
	}

	texts, err := ingestTexts(c)
	if err != nil {
		return err
	}
	if len(texts) == 0 {
		return fmt.Errorf("nothing to ingest: pass text arguments or --file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	engine, err := openEngine(ctx, c)
	if err != nil {
		return err
	}
	defer engine.Close()

	units := make([]*core.ContentUnit, len(texts))
	for i, text := range texts {
		units[i] = core.NewContentUnit(text, source, receivedAt)
	}
	runs, err := engine.IngestBatch(ctx, units)
	out := c.App.Writer
	for i, run := range runs {
		if run == nil {
			fmt.Fprintf(out, "%d\tREJECTED\t%s\n", units[i].Id, preview(texts[i]))
			continue
		}
		fmt.Fprintf(out, "%d\t%s\t%s\t%s\n", run.ContentUnitID, run.State(), run.Elapsed().Round(time.Millisecond), preview(texts[i]))
	}
	if err != nil {
		return fmt.Errorf("ingest finished with errors: %w", err)
	}
	return nil
}

// ingestTexts collects the units to ingest from the arguments or --file.
func ingestTexts(c *cli.Context) ([]string, error) {
	path := c.String("file")
	if path == "" {
		if c.NArg() == 0 {
			return nil, nil
		}
		return []string{strings.Join(c.Args().Slice(), " ")}, nil
	}

	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var texts []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			texts = append(texts, line)
		}
	}
	return texts, scanner.Err()
}

func searchCommand(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return fmt.Errorf("query is required")
	}
	topK := c.Int("top-k")
	if topK <= 0 {
		return fmt.Errorf("top-k must be greater than 0")
	}

	ctx := context.Background()
	engine, err := openEngine(ctx, c)
	if err != nil {
		return err
	}
	defer engine.Close()

	results, err := engine.Search(ctx, query, topK)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	out := c.App.Writer
	fmt.Fprintf(out, "Found %d hits\n", len(results))
	for i, hit := range results {
		marker := " "
		if hit.Reranked {
			marker = "*"
		}
		fmt.Fprintf(out, "%d: [%0.3f%s] (%s) %s\n", i+1, hit.FinalScore, marker, hit.Kind, preview(hit.Content))
	}
	return nil
}

func reindexCommand(c *cli.Context) error {
	config := &reindex.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}

	// Validate config
	if config.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if config.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if config.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	var extra []recollect.Option
	if c.Bool("fresh") {
		extra = append(extra, recollect.WithFreshIndex())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	engine, err := openEngine(ctx, c, extra...)
	if err != nil {
		return err
	}
	defer engine.Close()

	if _, err := engine.Reindex(ctx, config, c.App.ErrWriter); err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}
	return nil
}

func recentCommand(c *cli.Context) error {
	limit := c.Int("limit")
	if limit <= 0 {
		return fmt.Errorf("limit must be greater than 0")
	}

	ctx := context.Background()
	engine, err := openEngine(ctx, c)
	if err != nil {
		return err
	}
	defer engine.Close()

	memories, err := engine.Recent(ctx, limit)
	if err != nil {
		return err
	}
	out := c.App.Writer
	for _, m := range memories {
		fmt.Fprintf(out, "%s (%s) %s\n", m.CreatedAt.Local().Format(time.DateTime), m.SourceType, preview(m.Content))
	}
	return nil
}

func reconcileCommand(c *cli.Context) error {
	ctx := context.Background()
	engine, err := openEngine(ctx, c)
	if err != nil {
		return err
	}
	defer engine.Close()

	report, err := engine.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("reconcile failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Pending: %d, rolled forward: %d (re-embedded %d), removed: %d, deferred: %d\n",
		report.Pending, report.RolledForward, report.Reembedded, report.Removed, report.Deferred)
	return nil
}

func statsCommand(c *cli.Context) error {
	ctx := context.Background()
	engine, err := openEngine(ctx, c)
	if err != nil {
		return err
	}
	defer engine.Close()

	stats, err := engine.Stats(ctx, c.Int("runs"))
	if err != nil {
		return err
	}

	out := c.App.Writer
	fmt.Fprintf(out, "Memories: %d\nVectors:  %d\nPending:  %d\n", stats.Memories, stats.Vectors, stats.Pending)
	for _, w := range stats.Windows {
		fmt.Fprintf(out, "Window %s: %d/%d (resets %s)\n", w.Key, w.Count, w.Limit, w.ExpiresAt.Format(time.Kitchen))
	}
	runs := stats.Runs
	fmt.Fprintf(out, "Runs: %d (%d complete, %d failed), mean %s, max %s\n",
		runs.Runs, runs.Completed, runs.Failed, runs.MeanTotal.Round(time.Millisecond), runs.MaxTotal.Round(time.Millisecond))
	for _, s := range runs.Stages {
		fmt.Fprintf(out, "  %-12s mean %-8s max %-8s skipped %d failed %d\n",
			s.Stage, s.Mean.Round(time.Microsecond), s.Max.Round(time.Microsecond), s.Skipped, s.Failed)
	}
	return nil
}

func preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if r := []rune(text); len(r) > 72 {
		return string(r[:71]) + "…"
	}
	return text
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	// Configure slog with the specified level
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
