package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/shpitdev/orthomap/internal/mockensembl"
)

func main() {
	addr := defaultString("MOCK_ENSEMBL_ADDR", ":8080")
	fixtures := defaultString("MOCK_ENSEMBL_FIXTURES", "")

	fs := flag.NewFlagSet("mock-ensembl", flag.ExitOnError)
	fs.StringVar(&addr, "addr", addr, "Listen address (env: MOCK_ENSEMBL_ADDR)")
	fs.StringVar(&fixtures, "fixtures", fixtures, "YAML file of per-gene responses (env: MOCK_ENSEMBL_FIXTURES)")
	_ = fs.Parse(os.Args[1:])

	srv := mockensembl.New()
	if fixtures != "" {
		genes, err := mockensembl.LoadFixtures(fixtures)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "fixtures error: %v\n", err)
			os.Exit(2)
		}
		srv.SetAll(genes)
	}

	_, _ = fmt.Fprintf(os.Stdout, "mock-ensembl listening on %s (fixtures=%s)\n", addr, fixtures)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func defaultString(envVar string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(envVar))
	if v == "" {
		return fallback
	}
	return v
}
