// Command evoforgectl is a thin CLI wrapper around a running evoforged
// control plane: it submits a mandate file, then tails the run's event
// stream until a terminal event, printing each event in the teacher's
// terminal-styling idiom (internal/cli) and exiting with the code spec.md
// §6 assigns to the outcome.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"gopkg.in/yaml.v3"

	"github.com/evoforge/evoforge/internal/cli"
)

// Exit codes per spec.md §6.
const (
	exitOK                = 0
	exitUserError         = 1
	exitOracleUnavailable = 2
	exitSignalTerminated  = 130
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("evoforgectl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	server := fs.String("server", "http://localhost:8042", "evoforged control-plane base URL")
	mandatePath := fs.String("mandate", "", "path to a mandate file (YAML or JSON)")
	token := fs.String("token", "", "bearer token for authenticated mutating requests")
	if err := fs.Parse(args); err != nil {
		return exitUserError
	}
	if *mandatePath == "" {
		fmt.Fprintln(stderr, "evoforgectl: -mandate is required")
		return exitUserError
	}

	mandate, err := loadMandateFile(*mandatePath)
	if err != nil {
		fmt.Fprintf(stderr, "evoforgectl: %v\n", err)
		return exitUserError
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	runID, err := createRun(ctx, *server, *token, mandate)
	if err != nil {
		fmt.Fprintf(stderr, "evoforgectl: create run: %v\n", err)
		if ctx.Err() != nil {
			return exitSignalTerminated
		}
		return exitUserError
	}
	fmt.Fprintln(stdout, cli.Banner(runID, *server))

	code, err := tailEvents(ctx, *server, runID, stdout)
	if err != nil {
		if ctx.Err() != nil {
			return exitSignalTerminated
		}
		fmt.Fprintf(stderr, "evoforgectl: %v\n", err)
		return exitOracleUnavailable
	}
	return code
}

// mandateFile mirrors the server's createRunRequest body (internal/api
// /runs), loaded from YAML by default and JSON when the extension says so.
type mandateFile struct {
	Title           string   `yaml:"title" json:"title"`
	Description     string   `yaml:"description" json:"description"`
	Domain          string   `yaml:"domain" json:"domain"`
	Constraints     []string `yaml:"constraints" json:"constraints"`
	SuccessCriteria []string `yaml:"successCriteria" json:"successCriteria"`
	MaxIterations   int      `yaml:"maxIterations" json:"maxIterations"`
	MaxAgents       int      `yaml:"maxAgents" json:"maxAgents"`
}

func loadMandateFile(path string) (*mandateFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mandate file: %w", err)
	}

	var m mandateFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse mandate json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse mandate yaml: %w", err)
		}
	}
	if m.Title == "" {
		return nil, fmt.Errorf("mandate file %s: title is required", path)
	}
	return &m, nil
}

func createRun(ctx context.Context, server, token string, m *mandateFile) (string, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server+"/runs", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("server returned %d: %s", resp.StatusCode, string(raw))
	}

	var out struct {
		RunID string `json:"runId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return out.RunID, nil
}

// tailEvents streams GET /runs/{id}/events and renders each event until a
// run_completed/run_failed terminal event arrives, returning the exit code
// internal/cli.Outcome assigns to it.
func tailEvents(ctx context.Context, server, runID string, stdout io.Writer) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/runs/%s/events", server, runID), nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "text/event-stream")

	client := &http.Client{Timeout: 0}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("event stream returned %d: %s", resp.StatusCode, string(raw))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventKind string
	var dataLine string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			eventKind = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLine = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		case line == "":
			if eventKind == "" {
				continue
			}
			var fields map[string]any
			_ = json.Unmarshal([]byte(dataLine), &fields)
			var payload map[string]any
			if raw, ok := fields["data"].(map[string]any); ok {
				payload = raw
			} else {
				payload = fields
			}

			if eventKind == "run_completed" || eventKind == "run_failed" {
				line, code := cli.Outcome(eventKind, payload)
				fmt.Fprintln(stdout, line)
				return code, nil
			}
			fmt.Fprintln(stdout, cli.IterationLine(eventKind, payload))
			eventKind, dataLine = "", ""
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("event stream closed before a terminal event")
}
