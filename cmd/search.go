package cmd

import (
	"context"
	"strings"

	"github.com/flanksource/clicky"

	"github.com/webcomponents/catalog/pkg/datastore"
	"github.com/webcomponents/catalog/pkg/search"
)

type SearchOptions struct {
	Limit int      `json:"limit,omitempty"`
	Query []string `json:"query,omitempty" arg:"positional"`
}

type SearchHit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
	Rank  int64   `json:"rank"`
}

func init() {
	clicky.AddCommand(rootCmd, SearchOptions{}, func(opts SearchOptions) (any, error) {
		return runSearch(opts)
	})
}

func runSearch(opts SearchOptions) ([]SearchHit, error) {
	store, err := datastore.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	index, err := search.NewIndex(store.DB())
	if err != nil {
		return nil, err
	}

	results, err := index.Search(context.Background(), strings.Join(opts.Query, " "), opts.Limit)
	if err != nil {
		return nil, err
	}

	hits := make([]SearchHit, 0, len(results))
	for _, result := range results {
		hits = append(hits, SearchHit{ID: result.ID, Score: result.Score, Rank: result.Rank})
	}
	return hits, nil
}
