package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edvin/firestore-admin/internal/cli"
	"github.com/edvin/firestore-admin/internal/config"
	"github.com/edvin/firestore-admin/internal/firestore"
	"github.com/edvin/firestore-admin/internal/logging"
	"github.com/edvin/firestore-admin/internal/metrics"
	"github.com/edvin/firestore-admin/internal/model"
	"github.com/edvin/firestore-admin/internal/pipeline"
	"github.com/edvin/firestore-admin/internal/resource"
)

// city is one row of the sample data set.
type city struct {
	id     string
	fields map[string]any
}

var sampleCities = []city{
	{"NYC", map[string]any{"name": "New York City", "state": "New York", "country": "USA"}},
	{"TOK", map[string]any{"name": "Tokyo", "country": "Japan", "capital": true}},
	{"SF", map[string]any{"name": "San Francisco", "state": "CA", "country": "USA", "capital": false, "population": 860000}},
	{"LA", map[string]any{"name": "Los Angeles", "state": "CA", "country": "USA", "capital": false, "population": 3900000}},
	{"DC", map[string]any{"name": "Washington D.C.", "country": "USA", "capital": true, "population": 680000}},
	{"BJ", map[string]any{"name": "Beijing", "country": "China", "capital": true, "population": 21500000}},
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "write":
		cmdWrite(os.Args[2:])
	case "read":
		cmdRead(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

type env struct {
	ctx    context.Context
	cfg    *config.Config
	client *firestore.Client
	logger zerolog.Logger
	root   resource.DocumentRootName
}

func setup(profile string) *env {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "fsbatch"
	}
	if _, err := cli.Resolve(cfg, profile); err != nil {
		fmt.Fprintf(os.Stderr, "failed to resolve profile: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate("fsbatch"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	if cfg.MetricsAddr != "" {
		srv := metrics.NewServer(cfg.MetricsAddr)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics server error")
			}
		}()
	}

	client, err := firestore.NewFromConfig(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create firestore client")
	}

	ctx, _ := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return &env{
		ctx:    ctx,
		cfg:    cfg,
		client: client,
		logger: logger,
		root:   resource.ProjectName{Project: cfg.ProjectID}.Database(cfg.DatabaseID).Documents(),
	}
}

func cmdWrite(args []string) {
	fs := flag.NewFlagSet("write", flag.ExitOnError)
	profile := fs.String("profile", "", "Connection profile (defaults to the active profile)")
	collection := fs.String("collection", "", "Collection ID (default: cities-collection-<random>)")
	batchSize := fs.Int("batch-size", pipeline.MaxBatchSize, "Writes per BatchWrite request")
	workers := fs.Int("workers", 4, "Concurrent BatchWrite requests")
	fs.Parse(args)

	e := setup(*profile)
	if *collection == "" {
		*collection = "cities-collection-" + uuid.NewString()[:10]
	}

	writes := make([]model.Write, 0, len(sampleCities))
	for _, c := range sampleCities {
		fields, err := model.Fields(c.fields)
		if err != nil {
			e.logger.Fatal().Err(err).Str("city", c.id).Msg("invalid sample data")
		}
		writes = append(writes, model.Write{Update: &model.Document{
			Name:   e.root.String() + "/" + *collection + "/" + c.id,
			Fields: fields,
		}})
	}

	w, err := pipeline.NewWriter(e.client, pipeline.WriterConfig{
		Database:     resource.ProjectName{Project: e.cfg.ProjectID}.Database(e.cfg.DatabaseID).String(),
		MaxBatchSize: *batchSize,
		Workers:      *workers,
	}, e.logger)
	if err != nil {
		e.logger.Fatal().Err(err).Msg("invalid writer config")
	}

	stats, err := w.Write(e.ctx, writes)
	e.logger.Info().
		Str("collection", *collection).
		Int64("written", stats.Written).
		Int64("failed", stats.Failed).
		Int64("retried", stats.Retried).
		Msg("batch write finished")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(*collection)
}

func cmdRead(args []string) {
	fs := flag.NewFlagSet("read", flag.ExitOnError)
	profile := fs.String("profile", "", "Connection profile (defaults to the active profile)")
	collection := fs.String("collection", "", "Collection ID to read (required)")
	field := fs.String("field", "country", "Field to filter on")
	value := fs.String("value", "USA", "Value the field must equal")
	partitions := fs.Int("partitions", 4, "Number of partitions to read in parallel")
	workers := fs.Int("workers", 4, "Concurrent partition queries")
	fs.Parse(args)

	if *collection == "" {
		fmt.Fprintln(os.Stderr, "Usage: fsbatch read -collection ID [-field F -value V] [-partitions N]")
		os.Exit(1)
	}

	e := setup(*profile)
	q := &model.StructuredQuery{
		From:  []model.CollectionSelector{{CollectionID: *collection}},
		Where: model.FieldEq(*field, model.StringValue(*value)),
	}

	r := pipeline.NewReader(e.client, pipeline.ReaderConfig{Partitions: *partitions, Workers: *workers}, e.logger)
	count := 0
	err := r.Read(e.ctx, e.root.String(), q, func(d *model.Document) error {
		fmt.Println(d.Name)
		count++
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	e.logger.Info().Str("collection", *collection).Int("documents", count).Msg("partitioned read finished")
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `fsbatch - bulk Firestore reads and writes

Usage:
  fsbatch write [-collection ID] [-batch-size N] [-workers N]
  fsbatch read -collection ID [-field country] [-value USA] [-partitions N]

Connection settings come from the active profile or FIRESTORE_* environment.`)
}
