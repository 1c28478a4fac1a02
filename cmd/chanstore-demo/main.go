// ABOUTME: Entry point for the chanstore demo binary.
// ABOUTME: Drives a live Collection through a fixed set of lifecycle scenarios and narrates each step to the terminal.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"
)

func main() {
	configPath := flag.String("config", "", "path to a demo TOML config file (optional)")
	flag.Parse()

	cfg, err := loadDemoConfig(*configPath)
	if err != nil {
		color.Red("loading config: %v\n", err)
		os.Exit(1)
	}

	names := []string{cfg.Scenario.Name}
	if args := flag.Args(); len(args) > 0 {
		names = args
	}

	if err := runScenarios(context.Background(), names, cfg.Logging.Level); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
