// Package main is a smoke-test utility that verifies a running Workboard
// server answers its probes. It requests /health, /ready and /version and
// prints each status code and body, exiting non-zero when any probe fails.
// Set WB_SMOKE_BASE_URL to target a server other than http://localhost:8080.
package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func main() {
	base := os.Getenv("WB_SMOKE_BASE_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	base = strings.TrimRight(base, "/")

	client := &http.Client{Timeout: 10 * time.Second}
	failed := false
	for _, path := range []string{"/health", "/ready", "/version"} {
		resp, err := client.Get(base + path)
		if err != nil {
			fmt.Printf("%-9s error: %v\n", path, err)
			failed = true
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			fmt.Printf("%-9s error reading body: %v\n", path, err)
			failed = true
			continue
		}
		fmt.Printf("%-9s %d %s\n", path, resp.StatusCode, strings.TrimSpace(string(body)))
		if resp.StatusCode != http.StatusOK {
			failed = true
		}
	}

	if failed {
		os.Exit(1)
	}
}
