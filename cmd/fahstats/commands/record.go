package commands

import (
	"errors"
	"log/slog"
	"os"

	"fahstats/lib/cliutil"
	"fahstats/lib/configutil"
	"fahstats/lib/extract"
	"fahstats/lib/recordstore"
	"fahstats/lib/snapshotdb"
	"fahstats/services/recorder"

	"github.com/spf13/cobra"
)

var (
	recordUsername *string
	recordFile     *string
	recordSource   *string
	recordDb       *string
)

func init() {
	recordUsername = recordCmd.Flags().String("username", "", "The donator username to get stats for.")
	recordFile = recordCmd.Flags().String("record-file", "", "Where to store the CSV of user data. Created if non-existent.")
	recordSource = recordCmd.Flags().String("source", "", "URL of the compressed daily user summary.")
	recordDb = recordCmd.Flags().String("db", "", "Optional sqlite database to mirror records into.")
	rootCmd.AddCommand(recordCmd)
}

var recordCmd = &cobra.Command{
	Use:   "record [--username <name>] [--record-file <path/to/store.csv>]",
	Short: "Fetch the daily user summary and append one stats row to the record store.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := configutil.ReadConfig[Config]("config.json5")
		if err != nil && !os.IsNotExist(err) {
			cliutil.Fatal("failed to read config", err)
		}

		username := firstOf(*recordUsername, cfg.Username, defaultUsername)
		storePath := firstOf(*recordFile, cfg.RecordFile, defaultRecordFile)
		source := firstOf(*recordSource, cfg.Source, defaultSource)

		var mirror *snapshotdb.Store
		if dbPath := firstOf(*recordDb, cfg.MirrorDb); dbPath != "" {
			store, err := snapshotdb.Open(dbPath)
			if err != nil {
				cliutil.Fatal("failed to open mirror database", err)
			}
			defer store.Close()
			mirror = &store
		}

		svc := recorder.NewService(mirror)
		record, err := svc.Run(cmd.Context(), recorder.RunRequest{
			SourceURL: source,
			Username:  username,
			StorePath: storePath,
		})
		if err != nil {
			cliutil.Fatal(failedStage(err), err)
		}

		slog.Info(
			"recorded stats",
			"username", record.Username,
			"score", record.Score,
			"workunits", record.WorkUnits,
			"team", record.Team,
			"store", storePath,
		)
	},
}

// names the pipeline stage that failed so an operator reading cron mail
// can tell "user not in today's dump" from "network down"
func failedStage(err error) string {
	switch {
	case errors.Is(err, extract.ErrDecompress),
		errors.Is(err, extract.ErrUserNotFound),
		errors.Is(err, extract.ErrMalformedLine),
		errors.Is(err, extract.ErrFieldTypeMismatch):
		return "failed to extract user stats"
	case errors.Is(err, recordstore.ErrIO):
		return "failed to append to record store"
	default:
		return "failed to fetch user summary"
	}
}
