package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"iter"
	"log/slog"
	"os"

	"github.com/poiesic/kbase"
	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/queue"
	"github.com/poiesic/kbase/storage"
)

var notes = []string{
	"The lighthouse beam cut through fog, guiding sailors safely into the harbor.",
	"Badger stores keys in an LSM tree and values in a separate value log.",
	"A cosine similarity of 1 means two vectors point in the same direction.",
	"The river's current carried leaves downstream like paper boats.",
	"Embedding models map text of any length to a vector of fixed size.",
	"She collected seashells along the rocky shore every morning.",
	"Chunk overlap keeps sentences that straddle a boundary searchable.",
	"The old clock chimed thirteen times in an abandoned town.",
	"Retrying a failed task waits longer after each attempt.",
	"A silver fox slipped past the fences into the twilight.",
	"Markdown headings make natural places to split a document.",
	"The train rattled through tunnels carved into stone.",
	"Prometheus scrapes metrics over HTTP at a fixed interval.",
	"They tasted fresh bread baked just before dawn.",
	"A PDF file stores text as positioned glyphs rather than paragraphs.",
	"The desert dunes shifted silently under a pale moon.",
	"Ollama serves local models over a small HTTP API.",
	"He carved a wooden boat from a single piece of oak.",
	"A workload limit stops too many large files from loading at once.",
	"The watchdog timer fell asleep.",
	"Cancelling a task that has not started removes it from the queue.",
	"Seventeen geese unanimously voted to relocate the pond.",
	"Code is split at function boundaries so each chunk stays readable.",
	"The scheduler scheduled its own retirement.",
	"Reembedding replaces every vector when a collection changes models.",
}

var (
	dbPath         = flag.String("db", "./kbase.db", "database directory")
	collectionName = flag.String("collection", "seed", "collection to fill")
	seedFileName   = flag.String("src", "", "file of seed data, one note per line")
)

func init() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
	flag.Parse()
}

// linesFromFile returns an iterator over lines in a file.
func linesFromFile(filename string) (iter.Seq[string], error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	return func(yield func(string) bool) {
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			if !yield(scanner.Text()) {
				return
			}
		}
	}, nil
}

// linesFromSlice returns an iterator over a slice of strings.
func linesFromSlice(lines []string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, line := range lines {
			if !yield(line) {
				return
			}
		}
	}
}

// ensureCollection returns the named collection, creating it if needed.
func ensureCollection(ctx context.Context, db *kbase.Database, name string) (*core.Collection, error) {
	collection, err := db.GetCollectionByName(ctx, name)
	if err == nil {
		return collection, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	return db.CreateCollection(ctx, &core.Collection{
		Name:          name,
		Description:   "Seed data",
		ChunkStrategy: core.ChunkStrategyParagraph,
	})
}

// ingestBatched submits each line as a note and waits for every batch
// before submitting the next.
func ingestBatched(ctx context.Context, db *kbase.Database, collectionID core.ID, source iter.Seq[string], batchSize int) error {
	batch := make([]*queue.Future[queue.Task], 0, batchSize)
	wait := func() error {
		for _, future := range batch {
			task, err := future.Wait(ctx)
			if err != nil {
				return err
			}
			if task.State != queue.StateDone {
				slog.Warn("note not ingested", "note", task.Name, "state", task.State, "err", task.LastError)
			}
		}
		batch = batch[:0]
		return nil
	}

	n := 0
	for line := range source {
		if line == "" {
			continue
		}
		n++
		future, err := db.AddNote(ctx, collectionID, fmt.Sprintf("seed %d", n), line)
		if err != nil {
			return err
		}
		batch = append(batch, future)
		if len(batch) == batchSize {
			if err := wait(); err != nil {
				return err
			}
		}
	}

	// Wait for any remaining notes
	return wait()
}

func main() {
	db, err := kbase.NewDatabase(*dbPath)
	if err != nil {
		panic(err)
	}
	defer db.Close()

	ctx := context.Background()
	collection, err := ensureCollection(ctx, db, *collectionName)
	if err != nil {
		panic(err)
	}

	// Determine source of seed data
	var source iter.Seq[string]
	if *seedFileName != "" {
		source, err = linesFromFile(*seedFileName)
		if err != nil {
			panic(err)
		}
	} else {
		source = linesFromSlice(notes)
	}

	// Ingest in batches of 5
	if err := ingestBatched(ctx, db, collection.Id, source, 5); err != nil {
		panic(err)
	}
}
