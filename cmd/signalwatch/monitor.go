package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/signalwatch/signalwatch/internal/scoring"
	"github.com/spf13/cobra"
)

// monitorCmd runs one fetch-tag-score pass and prints the result as JSON.
// With no arguments it cycles the whole watchlist through the scheduler.
func monitorCmd() *cobra.Command {
	var updateHistory bool
	var limit int

	cmd := &cobra.Command{
		Use:   "monitor [asset-code]",
		Short: "Run a one-shot monitoring pass and print the result",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")

			if len(args) == 0 {
				record := a.scheduler.RunOnce(ctx)
				return enc.Encode(record)
			}

			assetCode := args[0]
			keyword := assetCode
			for _, asset := range a.cfg.Monitor.Watchlist {
				if asset.Code == assetCode && asset.Name != "" {
					keyword = asset.Name
					break
				}
			}
			if limit <= 0 {
				limit = a.cfg.Scoring.FetchLimit
			}

			articles, meta, err := a.fetcher.FetchByKeyword(ctx, keyword, limit)
			if err != nil {
				return fmt.Errorf("failed to fetch news: %w", err)
			}

			tags := a.tagger.TagAll(ctx, articles)
			result := a.scorer.Score(ctx, assetCode, articles, tags, scoring.Options{UpdateHistory: updateHistory})

			return enc.Encode(map[string]any{
				"asset_code": assetCode,
				"fetch":      meta,
				"articles":   len(articles),
				"result":     result,
			})
		},
	}

	cmd.Flags().BoolVar(&updateHistory, "update-history", false, "record this pass in the rolling volume baseline")
	cmd.Flags().IntVar(&limit, "limit", 0, "max articles to fetch (default: scoring.fetch_limit)")
	return cmd
}
