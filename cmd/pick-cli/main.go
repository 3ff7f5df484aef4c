package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cli, err := NewCLIWithDefaults()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "identity":
		err = cli.Identity(os.Args[2:])
	case "submit":
		err = cli.Submit(os.Args[2:])
	case "stats":
		err = cli.Stats()
	case "help", "-h", "--help":
		printUsage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`pick-cli - anonymous litter report tool

Usage:
  pick-cli identity new [--recover]     Create an anonymous identity
  pick-cli identity recover <phrase...> Recover an identity from its 12 words
  pick-cli submit <image> <lat> <lng> [level] [secret]
                                        Submit a geotagged photo report
  pick-cli stats                        Show ledger and registry statistics
  pick-cli help                         Show this help`)
}
