// Command reviewmesh drafts ticket feedback, answers questions and reviews
// git commits with LLM providers.
//
// Usage:
//
//	reviewmesh analyze --subject "Crash on save" --description "..."
//	reviewmesh ask "Summarize #42"
//	reviewmesh review 1a2b3c4 5d6e7f8
//	reviewmesh queue 1a2b3c4 && reviewmesh worker
//	reviewmesh serve --addr :8080
package main

import (
	"os"

	"github.com/hupe1980/reviewmesh/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
