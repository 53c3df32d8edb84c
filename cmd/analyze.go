package main

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/stopcensus/internal/config"
	"github.com/sells-group/stopcensus/internal/pipeline"
	"github.com/sells-group/stopcensus/internal/report"
)

var (
	analyzeStops           string
	analyzeOut             string
	analyzeSource          string
	analyzeBackend         string
	analyzeNoCache         bool
	analyzeIncludeStations bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run the full stop/census analysis and write the report",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyAnalyzeFlags(cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}

		styles, err := loadStyles(cfg)
		if err != nil {
			return err
		}

		src, closeSrc, err := openSource(ctx, cfg, analyzeNoCache)
		if err != nil {
			return err
		}
		defer closeSrc()

		joiner, closeJoin, err := openJoiner(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeJoin()

		out := cmd.OutOrStdout()
		p := pipeline.New(newStopLoader(cfg), src, joiner, pipeline.Options{
			StopsPath: cfg.Stops.Path,
			Request:   censusRequest(cfg),
			OutDir:    cfg.Report.OutDir,
			Styles:    styles,
			Plot: report.PlotOptions{
				WidthIn:  cfg.Report.PlotWidthIn,
				HeightIn: cfg.Report.PlotHeightIn,
				Level:    cfg.Report.ConfidenceLevel,
			},
			Stdout: out,
		})

		res, err := p.Run(ctx)
		if err != nil {
			return eris.Wrap(err, "analyze")
		}

		formatRunSummary(out, res)
		return nil
	},
}

// applyAnalyzeFlags lets explicit flags override configuration.
func applyAnalyzeFlags(c *config.Config) {
	if analyzeStops != "" {
		c.Stops.Path = analyzeStops
	}
	if analyzeOut != "" {
		c.Report.OutDir = analyzeOut
	}
	if analyzeSource != "" {
		c.Census.Source = analyzeSource
	}
	if analyzeBackend != "" {
		c.Join.Backend = analyzeBackend
	}
	if analyzeIncludeStations {
		c.Stops.IncludeStations = true
	}
}

func formatRunSummary(out io.Writer, res *pipeline.Result) {
	_, _ = fmt.Fprintf(out, "\nrun %s: %d areas, %d stops, %d unmatched\n",
		res.RunID, len(res.Rows), len(res.Inputs.Stops), res.Join.Unmatched)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PHASE\tDURATION")
	_, _ = fmt.Fprintln(w, "-----\t--------")
	for _, ph := range res.Phases {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", ph.Name, ph.Duration.Round(time.Millisecond))
	}
	_ = w.Flush()

	for _, f := range res.Files {
		_, _ = fmt.Fprintf(out, "wrote %s\n", f)
	}
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeStops, "stops", "", "path to stops.txt or a GTFS zip (default from config)")
	analyzeCmd.Flags().StringVar(&analyzeOut, "out", "", "report output directory (default from config)")
	analyzeCmd.Flags().StringVar(&analyzeSource, "source", "", "census source: api or shapefile (default from config)")
	analyzeCmd.Flags().StringVar(&analyzeBackend, "backend", "", "join backend: memory or postgis (default from config)")
	analyzeCmd.Flags().BoolVar(&analyzeNoCache, "no-cache", false, "bypass the census response cache")
	analyzeCmd.Flags().BoolVar(&analyzeIncludeStations, "include-stations", false, "count stations and entrances as well as boarding stops")
	rootCmd.AddCommand(analyzeCmd)
}
