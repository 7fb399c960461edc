// relevance is an interactive shell over a ranked full-text index. It
// indexes JSON documents, scores queries with a configurable similarity
// and explains how every score was computed.
//
// Run with: go run ./cmd/relevance --dir .history
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/c-bata/go-prompt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"harshagw/relevance/internal/analysis"
	"harshagw/relevance/internal/config"
	"harshagw/relevance/internal/index"
	"harshagw/relevance/internal/logger"
	"harshagw/relevance/internal/metrics"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		dir         string
		model       string
		logLevel    string
		logFormat   string
		metricsPort int
	)

	flagSet := pflag.NewFlagSet("relevance", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to YAML config file")
	flagSet.StringVar(&dir, "dir", "", "index directory (overrides index.dir)")
	flagSet.StringVar(&model, "similarity", "", "similarity model: bm25, bm25l, bm25plus, robertson, ltc, lnc, lnclpc, ldp")
	flagSet.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	flagSet.StringVar(&logFormat, "log-format", "", "log format: text or json")
	flagSet.IntVar(&metricsPort, "metrics-port", -1, "serve Prometheus metrics on this port, 0 disables")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if dir != "" {
		cfg.Index.Dir = dir
	}
	if model != "" {
		cfg.Similarity.Model = model
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if metricsPort >= 0 {
		cfg.Metrics.Port = metricsPort
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New(prometheus.NewRegistry())
	if cfg.Metrics.Port > 0 {
		go func() {
			if err := m.StartServer(ctx, cfg.Metrics.Port); err != nil {
				slog.Error("metrics server failed", "port", cfg.Metrics.Port, "error", err)
			}
		}()
		slog.Info("serving metrics", "port", cfg.Metrics.Port)
	}

	r := &REPL{cfg: cfg, metrics: m}
	if err := r.open(cfg.Similarity); err != nil {
		return err
	}
	defer r.close()

	fmt.Println("Relevance REPL")
	fmt.Println()
	printHelp()
	fmt.Println()
	fmt.Printf("Index loaded from %s (%d segments, %s)\n\n", cfg.Index.Dir, r.idx.NumSegments(), r.idx.Model())

	p := prompt.New(
		r.executor,
		completer,
		prompt.OptionPrefix("relevance >> "),
		prompt.OptionTitle("relevance"),
		prompt.OptionSetExitCheckerOnInput(func(in string, breakline bool) bool {
			return breakline && r.quit
		}),
	)
	p.Run()
	return nil
}

// open (re)opens the index with the given similarity.
func (r *REPL) open(sc config.SimilarityConfig) error {
	model, err := sc.Build()
	if err != nil {
		return err
	}

	var analyzer analysis.Analyzer = analysis.NewSimple()
	if len(r.cfg.Index.Synonyms) > 0 {
		analyzer = analysis.NewSynonyms(analyzer, r.cfg.Index.Synonyms)
	}

	idx, err := index.New(index.Config{
		Dir:            r.cfg.Index.Dir,
		FlushThreshold: r.cfg.Index.FlushThreshold,
		Analyzer:       analyzer,
		Similarity:     model,
		Metrics:        r.metrics,
	})
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	r.idx = idx
	r.cfg.Similarity = sc
	return nil
}

func (r *REPL) close() {
	if r.idx == nil {
		return
	}
	if err := r.idx.Flush(); err != nil {
		slog.Error("flush on exit failed", "error", err)
	}
	if err := r.idx.Close(); err != nil {
		slog.Error("close failed", "error", err)
	}
	r.idx = nil
}

func completer(d prompt.Document) []prompt.Suggest {
	if d.TextBeforeCursor() == "" || len(d.GetWordBeforeCursor()) != len(d.TextBeforeCursor()) {
		return nil
	}
	return prompt.FilterHasPrefix(suggestions(), d.GetWordBeforeCursor(), true)
}
