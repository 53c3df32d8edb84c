package main

import (
	"fmt"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/stopcensus/internal/census"
)

var cachePurgeExpired bool

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the census response cache",
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete cached census responses",
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := openConfiguredCache(cmd)
		if err != nil {
			return err
		}
		defer cache.Close() //nolint:errcheck

		n, err := cache.Purge(cmd.Context(), cachePurgeExpired)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "purged %d entries\n", n)
		return nil
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache entry counts and size",
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := openConfiguredCache(cmd)
		if err != nil {
			return err
		}
		defer cache.Close() //nolint:errcheck

		s, err := cache.Stats(cmd.Context())
		if err != nil {
			return err
		}
		formatCacheStats(cmd.OutOrStdout(), cfg.Census.CachePath, s)
		return nil
	},
}

func openConfiguredCache(cmd *cobra.Command) (*census.Cache, error) {
	if cfg.Census.CachePath == "" {
		return nil, eris.New("cache: census.cache_path is not set")
	}
	ttl := time.Duration(cfg.Census.CacheTTLHours) * time.Hour
	return census.OpenCache(cmd.Context(), cfg.Census.CachePath, ttl)
}

func formatCacheStats(out io.Writer, path string, s census.CacheStats) {
	_, _ = fmt.Fprintf(out, "path:    %s\n", path)
	_, _ = fmt.Fprintf(out, "entries: %d (%d expired)\n", s.Entries, s.Expired)
	_, _ = fmt.Fprintf(out, "size:    %.1f KiB\n", float64(s.Bytes)/1024)
}

func init() {
	cachePurgeCmd.Flags().BoolVar(&cachePurgeExpired, "expired", false, "only delete expired entries")
	cacheCmd.AddCommand(cachePurgeCmd, cacheStatsCmd)
	rootCmd.AddCommand(cacheCmd)
}
