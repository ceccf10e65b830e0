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
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/poiesic/kbase"
	"github.com/poiesic/kbase/search"
)

var (
	dbPath         = flag.String("db", "./kbase.db", "database directory")
	collectionName = flag.String("collection", "seed", "collection to search")
	limit          = flag.Int("limit", 5, "maximum number of hits")
)

func init() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
	flag.Parse()
}

func main() {
	db, err := kbase.NewDatabase(*dbPath)
	if err != nil {
		panic(err)
	}
	defer db.Close()

	ctx := context.Background()
	collection, err := db.GetCollectionByName(ctx, *collectionName)
	if err != nil {
		panic(err)
	}

	query := "lighthouse"
	if flag.NArg() > 0 {
		query = strings.Join(flag.Args(), " ")
	}
	results, err := db.SearchText(ctx, collection.Id, query, search.TextOptions{Limit: *limit})
	if err != nil {
		panic(err)
	}

	fmt.Printf("Found %d hits\n", len(results))
	for i, hit := range results {
		fmt.Printf("%d: '%s' (%d)[%0.3f]\n", i, hit.Document.Content, hit.Document.Id, hit.Score)
	}
}
