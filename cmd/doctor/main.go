// Package main runs environment diagnostics against the resolved config.
package main

import (
	"fmt"
	"os"

	"github.com/fitconvapp/fitconv-server/internal/config"
	"github.com/fitconvapp/fitconv-server/internal/doctor"
)

func main() {
	cfg, err := config.Load(config.ParseFlags())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("fitconv doctor")
	fmt.Printf("  environment: %s\n", cfg.App.Environment)
	fmt.Println()

	checks := doctor.Run(cfg)
	doctor.Report(os.Stdout, checks)

	if !doctor.Healthy(checks) {
		os.Exit(1)
	}
	fmt.Println("\nAll checks passed.")
}
