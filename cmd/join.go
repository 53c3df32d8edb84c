package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/stopcensus/internal/model"
	"github.com/sells-group/stopcensus/internal/pipeline"
	"github.com/sells-group/stopcensus/internal/spatial"
)

var (
	joinStops   string
	joinBackend string
	joinNonZero bool
)

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Count stops per dissemination area without writing a report",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if joinStops != "" {
			cfg.Stops.Path = joinStops
		}
		if joinBackend != "" {
			cfg.Join.Backend = joinBackend
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		src, closeSrc, err := openSource(ctx, cfg, false)
		if err != nil {
			return err
		}
		defer closeSrc()

		joiner, closeJoin, err := openJoiner(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeJoin()

		p := pipeline.New(newStopLoader(cfg), src, joiner, pipeline.Options{
			StopsPath: cfg.Stops.Path,
			Request:   censusRequest(cfg),
		})
		in, err := p.Load(ctx)
		if err != nil {
			return err
		}
		res, err := joiner.CountStops(ctx, in.Areas, in.Stops)
		if err != nil {
			return err
		}

		formatCounts(cmd.OutOrStdout(), in.Areas, res, joinNonZero)
		return nil
	},
}

// formatCounts prints one line per area, busiest first.
func formatCounts(out io.Writer, areas []model.Area, res *spatial.Result, nonZero bool) {
	sorted := make([]model.Area, len(areas))
	copy(sorted, areas)
	sort.SliceStable(sorted, func(i, j int) bool {
		ci, cj := res.Counts[sorted[i].GeoUID], res.Counts[sorted[j].GeoUID]
		if ci != cj {
			return ci > cj
		}
		return sorted[i].GeoUID < sorted[j].GeoUID
	})

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "GEO_UID\tSTOPS\tPOPULATION")
	_, _ = fmt.Fprintln(w, "-------\t-----\t----------")
	for _, a := range sorted {
		n := res.Counts[a.GeoUID]
		if nonZero && n == 0 {
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\n", a.GeoUID, n, a.Population)
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(out, "\n%d stop assignments, %d stops outside every area\n", res.Total(), res.Unmatched)
}

func init() {
	joinCmd.Flags().StringVar(&joinStops, "stops", "", "path to stops.txt or a GTFS zip (default from config)")
	joinCmd.Flags().StringVar(&joinBackend, "backend", "", "join backend: memory or postgis (default from config)")
	joinCmd.Flags().BoolVar(&joinNonZero, "non-zero", false, "only list areas with at least one stop")
	rootCmd.AddCommand(joinCmd)
}
