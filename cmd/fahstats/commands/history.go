package commands

import (
	"os"
	"strconv"
	"time"

	"fahstats/lib/cliutil"
	"fahstats/lib/configutil"
	"fahstats/lib/recordstore"
	"fahstats/lib/snapshotdb"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	historyUsername *string
	historyFile     *string
	historyDb       *string
)

func init() {
	historyUsername = historyCmd.Flags().String("username", "", "Only show rows for this donator username.")
	historyFile = historyCmd.Flags().String("record-file", "", "The CSV record store to read.")
	historyDb = historyCmd.Flags().String("db", "", "Read from a sqlite mirror instead of the CSV store.")
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history [--record-file <path/to/store.csv>] [--username <name>]",
	Short: "Render the recorded stats rows as a table.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := configutil.ReadConfig[Config]("config.json5")
		if err != nil && !os.IsNotExist(err) {
			cliutil.Fatal("failed to read config", err)
		}

		username := firstOf(*historyUsername, cfg.Username)

		var records []recordstore.Record
		if dbPath := firstOf(*historyDb, cfg.MirrorDb); dbPath != "" {
			store, err := snapshotdb.Open(dbPath)
			if err != nil {
				cliutil.Fatal("failed to open mirror database", err)
			}
			defer store.Close()

			// no --username shows every donator, same as the CSV path
			if username == "" {
				records, err = store.HistoryAll(cmd.Context())
			} else {
				records, err = store.History(cmd.Context(), username)
			}
			if err != nil {
				cliutil.Fatal("failed to read mirror database", err)
			}
		} else {
			storePath := firstOf(*historyFile, cfg.RecordFile, defaultRecordFile)
			records, err = recordstore.Read(storePath)
			if err != nil {
				cliutil.Fatal("failed to read record store", err)
			}
		}

		t := newTable()
		t.AppendHeader(table.Row{"timestamp", "username", "score", "workunits", "team"})
		for _, r := range records {
			if username != "" && r.Username != username {
				continue
			}
			t.AppendRow(table.Row{
				r.Time.UTC().Format(time.RFC3339),
				r.Username,
				strconv.FormatInt(r.Score, 10),
				strconv.FormatInt(r.WorkUnits, 10),
				r.Team,
			})
		}
		t.Render()
	},
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}
