// Package main is the orchestrator binary. It serves the article workflow
// and scrape run endpoints and offers a wait-run helper for operators.
//
// Configuration comes from an optional YAML file, a .env file and ORCH_*
// environment variables. Provider API keys are read from the environment on
// each call, so a missing key fails that call rather than startup.
//
// Run locally: go run ./cmd/orchestrator serve --config config.yaml
package main

import (
	"context"
	"os"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
