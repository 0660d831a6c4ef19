package main

import (
	"fahstats/cmd/fahstats/commands"
	"fahstats/lib/cliutil"
)

func main() {
	commands.ExecuteContext(cliutil.SignalContext())
}
