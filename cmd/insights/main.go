// Command insights is the operator CLI for the insight monitor: it runs a
// single cycle on demand and prints recorded cycles and insights.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")

	commander.Register(&runCmd{}, "monitoring")
	commander.Register(&cyclesCmd{}, "history")
	commander.Register(&insightsCmd{}, "history")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
