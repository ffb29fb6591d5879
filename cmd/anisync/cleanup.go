package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Purge expired entries from the page cache",
	Long: `Cleanup scans the page cache and removes every entry whose TTL has
expired, then prints how many were removed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := buildPipeline()
		if err != nil {
			return err
		}
		defer p.close()

		removed := p.orch.CleanupCache(cmd.Context())

		enc := json.NewEncoder(os.Stdout)
		return enc.Encode(map[string]int{"removed": removed})
	},
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}
