// Command canopy is an external collaborator of the tree runtime: it
// is not part of the core. It builds the tree with treeconfig and drives
// it through the Manager's public API (SetRoot, Run, Stats, Stop, Done,
// Err).
package main

import (
	"flag"
	"fmt"
	"os"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "canopy: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		printUsage()
		return nil
	}

	switch os.Args[1] {
	case "-h", "--help", "help":
		printUsage()
		return nil
	case "version":
		fmt.Println(version)
		return nil
	case "run":
		fs := flag.NewFlagSet("run", flag.ExitOnError)
		return runCommand(fs, os.Args[2:])
	case "dump":
		fs := flag.NewFlagSet("dump", flag.ExitOnError)
		return dumpCommand(fs, os.Args[2:])
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", os.Args[1])
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage:
  canopy run   --descriptor tree.json [--hz 10] [--dashboard] [--snapshot-every N]
  canopy dump  --descriptor tree.json
  canopy version`)
}
