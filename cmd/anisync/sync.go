package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kazewatari/anisync/internal/domain"
	"github.com/kazewatari/anisync/internal/syncer"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync of a season's catalog",
	Long: `Sync fetches every page of a season's catalog from the upstream API
and upserts the records into the local database. Without --season and
--year the current season is synced.

Pages already in the cache are reused; --force refetches everything.
--cleanup purges expired cache entries after a successful run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := paramsFromFlags(cmd)
		if err != nil {
			return err
		}

		p, err := buildPipeline()
		if err != nil {
			return err
		}
		defer p.close()

		run := p.orch.Run(cmd.Context(), params)

		out := struct {
			Success bool `json:"success"`
			*syncer.Run
			CacheRemoved *int `json:"cache_removed,omitempty"`
		}{Success: run.Succeeded(), Run: run}

		if cleanup, _ := cmd.Flags().GetBool("cleanup"); cleanup && run.Succeeded() {
			removed := p.orch.CleanupCache(cmd.Context())
			out.CacheRemoved = &removed
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}

		if !run.Succeeded() {
			return fmt.Errorf("sync failed: %w", run.Err)
		}
		return nil
	},
}

// paramsFromFlags resolves --season/--year, defaulting to the current
// season when both are omitted.
func paramsFromFlags(cmd *cobra.Command) (syncer.Params, error) {
	var params syncer.Params

	season, year := domain.CurrentSeason()
	if v, _ := cmd.Flags().GetString("season"); v != "" {
		parsed, err := domain.ParseSeason(v)
		if err != nil {
			return params, err
		}
		season = parsed
	}
	if v, _ := cmd.Flags().GetInt("year"); v != 0 {
		year = v
	}
	if err := domain.ValidateYear(year); err != nil {
		return params, err
	}

	params.Season = season
	params.Year = year
	params.ForceRefresh, _ = cmd.Flags().GetBool("force")
	return params, nil
}

func init() {
	syncCmd.Flags().String("season", "", "season to sync: winter, spring, summer, or fall")
	syncCmd.Flags().Int("year", 0, "year to sync")
	syncCmd.Flags().Bool("force", false, "bypass the page cache and refetch every page")
	syncCmd.Flags().Bool("cleanup", false, "purge expired cache entries after a successful run")
	rootCmd.AddCommand(syncCmd)
}
