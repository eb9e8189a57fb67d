package main

import (
	"fmt"
	"os"

	"github.com/shpitdev/orthomap/internal/cli"
	"github.com/shpitdev/orthomap/pkg/pipeline/redact"
)

func main() {
	if err := cli.RootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "orthomap: %s\n", redact.Secrets(err.Error()))
		os.Exit(1)
	}
}
