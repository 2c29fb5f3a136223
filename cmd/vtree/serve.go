package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vango-dev/vtree/internal/config"
	"github.com/vango-dev/vtree/internal/errors"
	"github.com/vango-dev/vtree/pkg/journal"
	"github.com/vango-dev/vtree/pkg/metrics"
	"github.com/vango-dev/vtree/pkg/server"
)

type serveOptions struct {
	configPath string
	addr       string
	debug      bool
	verbose    bool
	journal    string
	journalDir string
	metrics    bool
}

func serveCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the demo program over WebSocket",
		Long: `Serve the demo program. Each WebSocket connection to the live path
runs its own session; GET / renders the initial view as HTML.

Settings come from vtree.json (found in the working directory or a parent)
and are overridden by flags.

Examples:
  vtree serve
  vtree serve --addr :9000 --debug
  vtree serve --journal memory --journal-dir ./journals`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to vtree.json (default: search from the working directory)")
	cmd.Flags().StringVarP(&opts.addr, "addr", "a", "", "Listen address (default from vtree.json)")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Validate every rendered tree")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log at debug level")
	cmd.Flags().StringVar(&opts.journal, "journal", "", "Journal sink: none, memory or s3")
	cmd.Flags().StringVar(&opts.journalDir, "journal-dir", "", "Write memory journals here on exit")
	cmd.Flags().BoolVar(&opts.metrics, "metrics", false, "Serve Prometheus metrics")
	return cmd
}

// loadConfig reads the configuration named by path, or the nearest
// vtree.json, or the defaults when there is none.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		if st, err := os.Stat(path); err == nil && st.IsDir() {
			return config.Load(path)
		}
		return config.LoadFile(path)
	}
	cfg, err := config.LoadFromWorkingDir()
	var ce *errors.CodedError
	if err != nil && stderrors.As(err, &ce) && ce.Code == "E121" {
		return config.New(), nil
	}
	return cfg, err
}

func runServe(ctx context.Context, stdout, stderr io.Writer, opts serveOptions) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.addr != "" {
		cfg.Server.Address = opts.addr
	}
	if opts.debug {
		cfg.Debug = true
	}
	if opts.journal != "" {
		cfg.Journal.Kind = opts.journal
	}
	if opts.metrics {
		cfg.Metrics.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	srvCfg, err := cfg.ServerConfig()
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	srvOpts := []server.Option{server.WithLogger(logger)}
	if cfg.Metrics.Enabled {
		srvOpts = append(srvOpts, server.WithMetrics(metrics.New(metrics.WithNamespace(cfg.Metrics.Namespace))))
	}
	sink, memory := newJournal(cfg.Journal, logger)
	if sink != nil {
		srvOpts = append(srvOpts, server.WithJournal(sink))
	}

	srv := server.New(srvCfg, newDemo, srvOpts...)

	success(stdout, "serving on %s", srvCfg.Address)
	info(stdout, "live:    %s", srvCfg.LivePath)
	if cfg.Metrics.Enabled {
		info(stdout, "metrics: %s", srvCfg.MetricsPath)
	}
	info(stdout, "journal: %s", cfg.Journal.Kind)

	if ctx == nil {
		ctx = context.Background()
	}
	if err := srv.Run(ctx); err != nil {
		return errors.FromError(err, "E140")
	}

	if memory != nil && opts.journalDir != "" {
		n, err := dumpJournals(memory, opts.journalDir)
		if err != nil {
			return err
		}
		success(stdout, "wrote %d journals to %s", n, opts.journalDir)
	}
	return nil
}

// newJournal builds the configured sink. The memory sink is also returned
// on its own so it can be dumped on exit.
func newJournal(jc config.JournalConfig, logger *slog.Logger) (journal.Sink, *journal.MemorySink) {
	switch jc.Kind {
	case config.JournalMemory:
		m := journal.NewMemorySink()
		return m, m
	case config.JournalS3:
		client := journal.NewS3Client(journal.S3Options{
			Region:          jc.Region,
			Endpoint:        jc.Endpoint,
			UsePathStyle:    jc.UsePathStyle,
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		})
		return journal.NewS3Sink(client, jc.Bucket, jc.Prefix, logger), nil
	}
	return nil, nil
}

// dumpJournals writes every journal of m to dir as <session>.vtj.
func dumpJournals(m *journal.MemorySink, dir string) (int, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, err
	}
	ids := m.Sessions()
	for _, id := range ids {
		path := filepath.Join(dir, id+".vtj")
		if err := os.WriteFile(path, m.Bytes(id), 0644); err != nil {
			return 0, fmt.Errorf("write journal %s: %w", path, err)
		}
	}
	return len(ids), nil
}
