// Package main provides a minimal HTTP healthcheck binary for container
// probes. It requests the assessment server's /healthz endpoint and exits
// with code 0 when the server reports itself alive.
// Usage: healthcheck [http://localhost:8080/healthz]
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

const defaultURL = "http://localhost:8080/healthz"

func check(client *http.Client, url string) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	if body.Status != "alive" {
		return fmt.Errorf("server reports %q", body.Status)
	}
	return nil
}

func main() {
	url := defaultURL
	if len(os.Args) > 1 {
		url = os.Args[1]
	}

	client := &http.Client{Timeout: 5 * time.Second}
	if err := check(client, url); err != nil {
		fmt.Fprintf(os.Stderr, "healthcheck failed: %v\n", err)
		os.Exit(1)
	}
}
