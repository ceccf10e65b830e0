package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/poiesic/kbase"
	"github.com/poiesic/kbase/config"
	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/metrics"
	"github.com/poiesic/kbase/queue"
	"github.com/poiesic/kbase/reembed"
	"github.com/poiesic/kbase/search"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
)

const sessionKey = "session"

// session is the per-invocation state built by setup.
type session struct {
	cfg      *config.Config
	logger   *slog.Logger
	closeLog func() error
}

func setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("db") {
		cfg.Database.Path = c.String("db")
	}
	if c.IsSet("log-level") {
		cfg.Logging.Level = c.String("log-level")
		if _, err := config.ParseLevel(cfg.Logging.Level); err != nil {
			return err
		}
	}

	logger, closeLog, err := config.SetupLogger(cfg.Logging)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	c.App.Metadata[sessionKey] = &session{cfg: cfg, logger: logger, closeLog: closeLog}
	return nil
}

func teardown(c *cli.Context) error {
	if s, ok := c.App.Metadata[sessionKey].(*session); ok {
		return s.closeLog()
	}
	return nil
}

func currentSession(c *cli.Context) *session {
	return c.App.Metadata[sessionKey].(*session)
}

// openDatabase opens the configured database. When serveMetrics is set and a
// metrics address is configured, queue metrics are served until the returned
// function is called.
func openDatabase(c *cli.Context, serveMetrics bool) (*kbase.Database, func() error, error) {
	s := currentSession(c)
	opts := []kbase.DatabaseOption{
		kbase.WithAIConfig(s.cfg.AIConfig()),
		kbase.WithQueueConfig(s.cfg.QueueConfig()),
		kbase.WithEmbedBatchSize(s.cfg.Queue.EmbedBatchSize),
		kbase.WithLogger(s.logger),
	}

	addr := s.cfg.Metrics.Addr
	if !serveMetrics || addr == "" {
		db, err := kbase.NewDatabase(s.cfg.Database.Path, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		return db, db.Close, nil
	}

	reg := prometheus.NewRegistry()
	db, err := kbase.NewDatabase(s.cfg.Database.Path, append(opts, kbase.WithMetrics(reg))...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithCancel(c.Context)
	served := make(chan error, 1)
	go func() {
		served <- metrics.Serve(ctx, addr, reg, s.logger)
	}()
	return db, func() error {
		err := db.Close()
		cancel()
		return errors.Join(err, <-served)
	}, nil
}

func lookupCollection(ctx context.Context, db *kbase.Database, name string) (*core.Collection, error) {
	if name == "" {
		return nil, errors.New("collection name is required")
	}
	collection, err := db.GetCollectionByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("collection %q: %w", name, err)
	}
	return collection, nil
}

// Collections

func createCollectionCommand(c *cli.Context) (err error) {
	name := c.Args().First()
	if name == "" {
		return errors.New("collection name is required")
	}

	db, closeDB, err := openDatabase(c, false)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, closeDB()) }()

	collection, err := db.CreateCollection(c.Context, &core.Collection{
		Name:          name,
		Description:   c.String("description"),
		Model:         c.String("model"),
		ChunkSize:     c.Int("chunk-size"),
		ChunkOverlap:  c.Int("chunk-overlap"),
		ChunkStrategy: core.ChunkStrategy(c.String("strategy")),
		Threshold:     float32(c.Float64("threshold")),
		DocumentCount: c.Int("count"),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	fmt.Fprintf(c.App.Writer, "Created collection %s (%d) using %s\n", collection.Name, collection.Id, collection.Model)
	return nil
}

func listCollectionsCommand(c *cli.Context) (err error) {
	db, closeDB, err := openDatabase(c, false)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, closeDB()) }()

	collections, err := db.ListCollections(c.Context)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tMODEL\tDIMS\tSTRATEGY\tCHUNK\tDESCRIPTION")
	for _, col := range collections {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%d/%d\t%s\n",
			col.Id, col.Name, col.Model, col.Dimensions, col.ChunkStrategy,
			col.ChunkSize, col.ChunkOverlap, col.Description)
	}
	return w.Flush()
}

func deleteCollectionCommand(c *cli.Context) (err error) {
	db, closeDB, err := openDatabase(c, false)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, closeDB()) }()

	collection, err := lookupCollection(c.Context, db, c.Args().First())
	if err != nil {
		return err
	}
	if err := db.DeleteCollection(c.Context, collection.Id); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}

	fmt.Fprintf(c.App.Writer, "Deleted collection %s\n", collection.Name)
	return nil
}

// Ingestion

func addFileCommand(c *cli.Context) error {
	paths := c.Args().Tail()
	if len(paths) == 0 {
		return errors.New("at least one file is required")
	}
	return ingest(c, func(ctx context.Context, db *kbase.Database, id core.ID) ([]*queue.Future[queue.Task], error) {
		futures := make([]*queue.Future[queue.Task], 0, len(paths))
		for _, path := range paths {
			data, err := os.ReadFile(path)
			if err != nil {
				return futures, err
			}
			future, err := db.AddFile(ctx, id, filepath.Base(path), data)
			if err != nil {
				return futures, err
			}
			futures = append(futures, future)
		}
		return futures, nil
	})
}

func addURLCommand(c *cli.Context) error {
	urls := c.Args().Tail()
	if len(urls) == 0 {
		return errors.New("at least one URL is required")
	}
	return ingest(c, func(ctx context.Context, db *kbase.Database, id core.ID) ([]*queue.Future[queue.Task], error) {
		futures := make([]*queue.Future[queue.Task], 0, len(urls))
		for _, url := range urls {
			future, err := db.AddURL(ctx, id, url)
			if err != nil {
				return futures, err
			}
			futures = append(futures, future)
		}
		return futures, nil
	})
}

func addNoteCommand(c *cli.Context) error {
	text := strings.Join(c.Args().Tail(), " ")
	if text == "" {
		data, err := io.ReadAll(c.App.Reader)
		if err != nil {
			return fmt.Errorf("failed to read note: %w", err)
		}
		text = string(data)
	}
	return ingest(c, func(ctx context.Context, db *kbase.Database, id core.ID) ([]*queue.Future[queue.Task], error) {
		future, err := db.AddNote(ctx, id, c.String("title"), text)
		if err != nil {
			return nil, err
		}
		return []*queue.Future[queue.Task]{future}, nil
	})
}

func refreshCommand(c *cli.Context) error {
	sourceID, err := strconv.ParseUint(c.Args().Get(1), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid source id %q", c.Args().Get(1))
	}

	var data []byte
	if path := c.String("file"); path != "" {
		if data, err = os.ReadFile(path); err != nil {
			return err
		}
	}

	return ingest(c, func(ctx context.Context, db *kbase.Database, id core.ID) ([]*queue.Future[queue.Task], error) {
		future, err := db.Refresh(ctx, id, core.ID(sourceID), data)
		if err != nil {
			return nil, err
		}
		return []*queue.Future[queue.Task]{future}, nil
	})
}

type submitFunc func(ctx context.Context, db *kbase.Database, id core.ID) ([]*queue.Future[queue.Task], error)

// ingest submits tasks to the collection named by the first argument and
// reports each outcome once every task has finished.
func ingest(c *cli.Context, submit submitFunc) (err error) {
	db, closeDB, err := openDatabase(c, true)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, closeDB()) }()

	ctx := c.Context
	collection, err := lookupCollection(ctx, db, c.Args().First())
	if err != nil {
		return err
	}

	futures, submitErr := submit(ctx, db, collection.Id)

	failed := 0
	for _, future := range futures {
		task, err := future.Wait(ctx)
		if err != nil {
			return err
		}
		switch task.State {
		case queue.StateDone:
			fmt.Fprintf(c.App.Writer, "%s: %s\n", task.Name, task.State)
		default:
			failed++
			if task.LastError != nil {
				fmt.Fprintf(c.App.Writer, "%s: %s (%v)\n", task.Name, task.State, task.LastError)
			} else {
				fmt.Fprintf(c.App.Writer, "%s: %s\n", task.Name, task.State)
			}
		}
	}

	if submitErr != nil {
		return fmt.Errorf("failed to submit: %w", submitErr)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d sources were not ingested", failed, len(futures))
	}
	return nil
}

func sourcesCommand(c *cli.Context) (err error) {
	db, closeDB, err := openDatabase(c, false)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, closeDB()) }()

	collection, err := lookupCollection(c.Context, db, c.Args().First())
	if err != nil {
		return err
	}
	sources, err := db.ListSources(c.Context, collection.Id)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tNAME\tSTATUS\tCHUNKS\tSIZE\tERROR")
	for _, src := range sources {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%s\n",
			src.Id, src.Kind, src.Name, src.Status, src.ChunkCount, src.Size, src.Error)
	}
	return w.Flush()
}

// Search

func searchCommand(c *cli.Context) (err error) {
	query := strings.Join(c.Args().Tail(), " ")
	format := c.String("format")
	if format != "plain" && format != "json" {
		return fmt.Errorf("invalid format %q: must be plain or json", format)
	}

	db, closeDB, err := openDatabase(c, false)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, closeDB()) }()

	collection, err := lookupCollection(c.Context, db, c.Args().First())
	if err != nil {
		return err
	}
	opts := search.TextOptions{Limit: c.Int("limit")}
	if c.IsSet("threshold") {
		threshold := float32(c.Float64("threshold"))
		opts.Threshold = &threshold
	}
	results, err := db.SearchText(c.Context, collection.Id, query, opts)
	if err != nil {
		return err
	}

	if format == "json" {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(search.NewReferences(collection, results))
	}
	if len(results) == 0 {
		fmt.Fprintln(c.App.Writer, "No results")
		return nil
	}
	fmt.Fprintln(c.App.Writer, search.FormatPlainContext(collection, results))
	return nil
}

// Reembedding

func reembedCommand(c *cli.Context) (err error) {
	cfg := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}
	if cfg.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if cfg.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if cfg.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	db, closeDB, err := openDatabase(c, false)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, closeDB()) }()

	collection, err := lookupCollection(c.Context, db, c.Args().First())
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.ErrWriter, "Collection: %s\n", collection.Name)
	fmt.Fprintf(c.App.ErrWriter, "Current model: %s\n", collection.Model)
	fmt.Fprintln(c.App.ErrWriter)

	result, err := db.Reembed(c.Context, collection.Id, c.String("model"), c.App.ErrWriter, reembed.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}

	fmt.Fprintf(c.App.Writer, "Reembedded %d documents with %s (%d dimensions) in %s\n",
		result.Documents, result.Model, result.Dimensions, result.Elapsed.Round(time.Millisecond))
	return nil
}
