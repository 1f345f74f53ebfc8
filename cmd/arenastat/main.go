// Command arenastat runs an allocation workload against a configured arena and
// reports how much memory it held.
package main

import (
	"os"

	"github.com/alecthomas/kingpin/v2"
)

func main() {
	app := kingpin.New("arenastat", "Run an allocation workload against a memory arena and report its usage.")
	app.HelpFlag.Short('h')
	var cmd statCommand
	cmd.Register(app)
	kingpin.MustParse(app.Parse(os.Args[1:]))
}
