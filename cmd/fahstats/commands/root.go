package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"fahstats/lib/fetch"
	"fahstats/lib/restyutil"
	"fahstats/lib/telemetry"

	"github.com/spf13/cobra"
)

// defaults mirror the scheduler-friendly setup: an hourly cron entry
// with no arguments records the anonymous donator to ./fahuserdata.csv
const (
	defaultUsername   = "anonymous"
	defaultRecordFile = "fahuserdata.csv"
	defaultSource     = "http://fah-web.stanford.edu/daily_user_summary.txt.bz2"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "fahstats",
	Short: "fahstats records a Folding@Home donator's stats over time.",
	Long: `fahstats fetches the Folding@Home daily user summary and appends one
timestamped row per run to a CSV record store.

The provider asks that the summary be queried at most once per hour
(24 times a day). fahstats does not rate limit itself; schedule it
accordingly, e.g. from an hourly cron entry.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(verbose)

		t, err := telemetry.SetupFromEnv(cmd.Context(), "fahstats")
		switch {
		case err == nil:
			tel = t
			telemetry.InstrumentPerfStats(cmd.Context())
		case !os.IsNotExist(err):
			slog.Warn("failed to setup telemetry", "err", err)
		}

		if verbose {
			fetch.SetInstrumentOutput(restyutil.NewFilesystemOutput(".dev/resty/fetch"))
		}
	},
}

// zero value when no telemetry.json5 was found, Shutdown is a no-op then
var tel telemetry.Telemetry

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show debug logging output.")
}

func ExecuteContext(ctx context.Context) {
	err := rootCmd.ExecuteContext(ctx)

	// the batch span processor only exports on flush; a one-shot run
	// exits long before the export interval fires
	if shutdownErr := tel.Shutdown(context.Background()); shutdownErr != nil {
		slog.Warn("failed to shut down telemetry", "err", shutdownErr)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Config holds defaults that flags override.
type Config struct {
	Username   string `json:"username"`
	RecordFile string `json:"record_file"`
	Source     string `json:"source"`
	MirrorDb   string `json:"mirror_db"`
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
