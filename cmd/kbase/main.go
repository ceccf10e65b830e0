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
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "kbase",
		Usage: "Knowledge base ingestion and semantic search",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML configuration file",
				EnvVars: []string{"KBASE_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory (overrides config)",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
			},
		},
		Before: setup,
		After:  teardown,
		Commands: []*cli.Command{
			{
				Name:    "collections",
				Aliases: []string{"col"},
				Usage:   "Manage collections",
				Subcommands: []*cli.Command{
					{
						Name:      "create",
						Usage:     "Create a collection",
						ArgsUsage: "<name>",
						Action:    createCollectionCommand,
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "description",
								Usage: "Collection description",
							},
							&cli.StringFlag{
								Name:  "model",
								Usage: "Embedding model (defaults to the configured model)",
							},
							&cli.IntFlag{
								Name:  "chunk-size",
								Usage: "Maximum chunk length in characters",
							},
							&cli.IntFlag{
								Name:  "chunk-overlap",
								Usage: "Characters shared by consecutive chunks",
							},
							&cli.StringFlag{
								Name:  "strategy",
								Usage: "Chunking strategy (fixed, paragraph, markdown, code)",
								Value: "fixed",
							},
							&cli.Float64Flag{
								Name:  "threshold",
								Usage: "Default minimum similarity for search",
							},
							&cli.IntFlag{
								Name:  "count",
								Usage: "Default number of search results",
							},
						},
					},
					{
						Name:   "list",
						Usage:  "List collections",
						Action: listCollectionsCommand,
					},
					{
						Name:      "delete",
						Usage:     "Delete a collection with its documents and sources",
						ArgsUsage: "<name>",
						Action:    deleteCollectionCommand,
					},
				},
			},
			{
				Name:  "add",
				Usage: "Ingest content into a collection",
				Subcommands: []*cli.Command{
					{
						Name:      "file",
						Usage:     "Ingest files",
						ArgsUsage: "<collection> <path>...",
						Action:    addFileCommand,
					},
					{
						Name:      "url",
						Usage:     "Fetch and ingest web pages",
						ArgsUsage: "<collection> <url>...",
						Action:    addURLCommand,
					},
					{
						Name:      "note",
						Usage:     "Ingest a text note (read from stdin when no text is given)",
						ArgsUsage: "<collection> [text...]",
						Action:    addNoteCommand,
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     "title",
								Aliases:  []string{"t"},
								Usage:    "Note title",
								Required: true,
							},
						},
					},
				},
			},
			{
				Name:      "refresh",
				Usage:     "Re-ingest a source, refetching URLs or rereading a file",
				ArgsUsage: "<collection> <source-id>",
				Action:    refreshCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "file",
						Usage: "Read new content from this file",
					},
				},
			},
			{
				Name:      "sources",
				Usage:     "List the sources of a collection",
				ArgsUsage: "<collection>",
				Action:    sourcesCommand,
			},
			{
				Name:      "search",
				Usage:     "Search a collection",
				ArgsUsage: "<collection> <query>...",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.Float64Flag{
						Name:  "threshold",
						Usage: "Minimum similarity (defaults to the collection's)",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of results (defaults to the collection's)",
					},
					&cli.StringFlag{
						Name:  "format",
						Usage: "Output format (plain, json)",
						Value: "plain",
					},
				},
			},
			{
				Name:      "reembed",
				Usage:     "Reembed every document of a collection",
				ArgsUsage: "<collection>",
				Action:    reembedCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "model",
						Usage: "New embedding model (defaults to the collection's)",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of documents to process in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N documents",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Initial delay between retries (exponential backoff)",
						Value: time.Second,
					},
				},
			},
		},
	}
}
