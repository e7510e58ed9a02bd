// Command docxtract is a thin operator CLI over the extraction
// pipeline's two stateful stores: `stats` reports cache and template
// counts, `warm` replays a directory of PDFs through the pipeline for a
// given label/schema so templates get a head start before real
// traffic. Dispatch style (flat switch on args[0], one runX per
// command) is grounded on the teacher's internal/cli/cli.go Execute.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/divyang-garg/docxtract/internal/batch"
	"github.com/divyang-garg/docxtract/internal/cache"
	"github.com/divyang-garg/docxtract/internal/config"
	"github.com/divyang-garg/docxtract/internal/llm"
	"github.com/divyang-garg/docxtract/internal/logging"
	"github.com/divyang-garg/docxtract/internal/metrics"
	"github.com/divyang-garg/docxtract/internal/model"
	"github.com/divyang-garg/docxtract/internal/parser"
	"github.com/divyang-garg/docxtract/internal/pipeline"
	"github.com/divyang-garg/docxtract/internal/template"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "docxtract:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return printHelp()
	}
	switch args[0] {
	case "stats":
		return runStats(args[1:])
	case "warm":
		return runWarm(args[1:])
	case "help", "--help", "-h":
		return printHelp()
	default:
		return fmt.Errorf("unknown command: %s\n\nRun 'docxtract help' for usage", args[0])
	}
}

func printHelp() error {
	fmt.Println("docxtract - PDF field extraction pipeline operator CLI")
	fmt.Println("Usage: docxtract <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  stats                         Show cache and template store counts")
	fmt.Println("  warm <label> <dir> <fields>   Replay a directory of PDFs through the pipeline")
	fmt.Println("  help                          Show this help message")
	return nil
}

func runStats(args []string) error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logging.NewDefault()

	l2, err := cache.OpenL2(cfg.Cache.L2Dir, cfg.Cache.L2QuotaMB, log)
	if err != nil {
		return fmt.Errorf("open L2 cache: %w", err)
	}
	c := cache.New(cfg.Cache.L1Capacity, l2, metrics.Noop(), log)

	db, err := template.NewConnection(cfg.Template.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to template store: %w", err)
	}
	defer db.Close()
	store := template.New(db, cfg.Template.MaxPerLabel, metrics.Noop(), log)

	counts, err := store.CountPerLabel(context.Background())
	if err != nil {
		return fmt.Errorf("count templates: %w", err)
	}

	stats := c.Stats()
	fmt.Printf("cache: l1_size=%d l1_hits=%d l1_misses=%d l2_hits=%d l2_misses=%d\n",
		stats.L1Size, stats.L1Hits, stats.L1Misses, stats.L2Hits, stats.L2Misses)

	fmt.Println("templates per label:")
	for label, n := range counts {
		fmt.Printf("  %s: %d\n", label, n)
	}
	return nil
}

// runWarm replays every .pdf file under dir through the pipeline with
// the given label and a schema built from a comma-separated
// field:description list, so templates accumulate sample_count before
// production traffic arrives.
func runWarm(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: docxtract warm <label> <dir> <field:description,...>")
	}
	label, dir, fieldSpec := args[0], args[1], args[2]

	schema, err := parseSchemaSpec(fieldSpec)
	if err != nil {
		return err
	}

	files, err := collectPDFs(dir)
	if err != nil {
		return fmt.Errorf("collect PDFs under %s: %w", dir, err)
	}
	if len(files) == 0 {
		fmt.Println("no .pdf files found, nothing to warm")
		return nil
	}

	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	p, err := buildPipeline(cfg)
	if err != nil {
		return err
	}

	items := make([]batch.Item, len(files))
	for i, path := range files {
		b, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		items[i] = batch.Item{Index: i, PDFBytes: b, Label: label, Schema: schema}
	}

	sched := batch.New(p, cfg.Batch.MaxWorkers, metrics.Noop())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	for ev := range sched.Run(ctx, items) {
		switch ev.Kind {
		case batch.EventResult:
			if ev.Result.Success {
				fmt.Printf("[%d] %s -> %s\n", ev.FileIndex, files[ev.FileIndex], ev.Result.Metadata.Method)
			} else {
				fmt.Printf("[%d] %s -> error: %s\n", ev.FileIndex, files[ev.FileIndex], ev.Result.Error)
			}
		case batch.EventComplete:
			fmt.Printf("done: total=%d successful=%d failed=%d elapsed=%.2fs\n",
				ev.Stats.Total, ev.Stats.Successful, ev.Stats.Failed, ev.Stats.ProcessingTimeSecs)
		}
	}
	return nil
}

func buildPipeline(cfg *config.Config) (*pipeline.Pipeline, error) {
	log := logging.NewDefault()
	met := metrics.NewRegistry(prometheus.DefaultRegisterer)

	l2, err := cache.OpenL2(cfg.Cache.L2Dir, cfg.Cache.L2QuotaMB, log)
	if err != nil {
		return nil, fmt.Errorf("open L2 cache: %w", err)
	}
	c := cache.New(cfg.Cache.L1Capacity, l2, met, log)

	db, err := template.NewConnection(cfg.Template.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to template store: %w", err)
	}
	store := template.New(db, cfg.Template.MaxPerLabel, met, log)

	var client llm.Client
	switch cfg.LLM.Provider {
	case "openai":
		client = llm.NewOpenAIClient(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.Timeout())
	default:
		client = llm.NewOllamaClient(cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.Timeout())
	}
	client = llm.NewRetryingClient(client, log)

	return pipeline.New(c, store, parser.New(), client, cfg, met, log), nil
}

func parseSchemaSpec(spec string) (model.Schema, error) {
	var schema model.Schema
	for _, entry := range strings.Split(spec, ",") {
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("invalid field spec %q, expected field:description", entry)
		}
		schema = append(schema, model.SchemaField{Name: parts[0], Description: parts[1]})
	}
	if len(schema) == 0 {
		return nil, fmt.Errorf("schema must have at least one field")
	}
	return schema, nil
}

func collectPDFs(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".pdf") {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
