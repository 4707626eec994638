// Package main is the entry point for the filter service load test
// binary. It provides subcommands for the two interesting traffic
// shapes:
//
//   - check: sustained evaluation load across many distinct speakers
//   - flood: a few speakers hammering fast enough to trip the flood guard
//
// Usage:
//
//	loadtest <command> [options]
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

	switch os.Args[1] {
	case "check":
		runCheck(os.Args[2:])
	case "flood":
		runFlood(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: loadtest <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  check       Sustained check load — N workers submit messages and await verdicts")
	fmt.Println("  flood       Flood guard test — few speakers submit faster than the per-speaker cap")
	fmt.Println()
	fmt.Println("Run 'loadtest <command> -h' for command-specific options.")
}
