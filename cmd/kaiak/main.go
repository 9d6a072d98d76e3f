// Command kaiak is the operator-facing CLI for the kaiak host: it can
// run the host itself (serve), connect to a running host over its
// socket transport, drive generate_fix/delete_session requests, and
// manage local configuration.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

func main() {
	globals := pflag.NewFlagSet("kaiak", pflag.ContinueOnError)
	jsonOut := globals.Bool("json", false, "emit machine-readable JSON output")
	quiet := globals.Bool("quiet", false, "silence informational output")
	noColor := globals.Bool("no-color", false, "disable ANSI colors")
	globals.ParseErrorsWhitelist.UnknownFlags = true
	_ = globals.Parse(os.Args[1:])

	render := NewRenderer(*jsonOut, *quiet, *noColor)

	if len(os.Args) < 2 {
		fmt.Println(usage())
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "serve":
		err = runServe(args, render)
	case "connect":
		err = runConnect(args, render)
	case "disconnect":
		err = runDisconnect(render)
	case "generate_fix":
		err = runGenerateFix(args, render)
	case "delete_session":
		err = runDeleteSession(args, render)
	case "init":
		err = runInit(args, render)
	case "config":
		err = runConfig(args, render)
	case "version":
		err = runVersion(render)
	case "help", "-h", "--help":
		fmt.Println(usage())
		return
	default:
		fmt.Println(usage())
		os.Exit(1)
	}

	if err != nil {
		render.Error("%v", err)
		os.Exit(1)
	}
}
