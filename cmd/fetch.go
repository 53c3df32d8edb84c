package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/stopcensus/internal/census"
)

var (
	fetchDir     string
	fetchNoCache bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download census responses into the cache",
	Long:  "Fetches the configured CensusMapper data table and boundaries, storing them in the response cache and optionally writing them to a directory.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if cfg.Census.Source != "api" {
			return eris.Errorf("fetch: census.source is %q, only the api source can be fetched", cfg.Census.Source)
		}

		req := censusRequest(cfg)
		if err := req.Validate(); err != nil {
			return err
		}

		cache, err := openCache(ctx, cfg, fetchNoCache)
		if err != nil {
			return err
		}
		if cache != nil {
			defer cache.Close() //nolint:errcheck
		}
		src := newAPISource(cfg, cache)

		if fetchDir != "" {
			if err := os.MkdirAll(fetchDir, 0o755); err != nil {
				return eris.Wrapf(err, "fetch: create %s", fetchDir)
			}
		}

		out := cmd.OutOrStdout()
		for _, kind := range census.Kinds {
			body, err := src.Raw(ctx, req, kind)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "%s: %d bytes\n", kind, len(body))

			if fetchDir == "" {
				continue
			}
			path := filepath.Join(fetchDir, kind)
			if err := os.WriteFile(path, body, 0o644); err != nil {
				return eris.Wrapf(err, "fetch: write %s", path)
			}
			_, _ = fmt.Fprintf(out, "wrote %s\n", path)
		}
		return nil
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchDir, "dir", "", "also write raw responses to this directory")
	fetchCmd.Flags().BoolVar(&fetchNoCache, "no-cache", false, "bypass the cache and do not store responses")
	rootCmd.AddCommand(fetchCmd)
}
