// Package main implements the beacond binary: a standalone telemetry
// forwarder that reads JSON event lines from stdin, queues them in the
// durable local store, and uploads batches to the configured collector.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/beaconlabs/beacon/internal/agent"
	"github.com/beaconlabs/beacon/internal/config"
	"github.com/beaconlabs/beacon/internal/pipeline"
)

var (
	version = "dev"
	commit  = "unknown"
)

// inputLine is one stdin record. Unknown fields are ignored.
type inputLine struct {
	EventType       string                 `json:"event_type"`
	EventProperties map[string]interface{} `json:"event_properties"`
	Groups          map[string]interface{} `json:"groups"`
	Timestamp       int64                  `json:"timestamp"`
	OutOfSession    bool                   `json:"out_of_session"`
	UserProperties  map[string]interface{} `json:"user_properties"`
	UserID          string                 `json:"user_id"`
}

func main() {
	var (
		configFile  string
		apiKey      string
		dataDir     string
		showVersion bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&apiKey, "api-key", "", "Collector API key")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for the local store")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Beacond - durable telemetry forwarder\n\n")
		fmt.Fprintf(os.Stderr, "Usage: beacond [options] < events.jsonl\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  BEACON_API_KEY          Collector API key\n")
		fmt.Fprintf(os.Stderr, "  BEACON_DATA_DIR         Base directory for the local store\n")
		fmt.Fprintf(os.Stderr, "  BEACON_TRANSPORT_TYPE   Transport type (http, s3)\n")
		fmt.Fprintf(os.Stderr, "  BEACON_TRANSPORT_URL    Collector endpoint URL\n")
		fmt.Fprintf(os.Stderr, "  BEACON_S3_BUCKET        S3 bucket for bucket-drop transport\n")
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("beacond version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	// Optional .env for local development; a missing file is fine.
	if err := godotenv.Load(); err == nil {
		log.Printf("Loaded environment from .env")
	}

	cfg, err := loadConfig(configFile, apiKey, dataDir)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	client, err := agent.Initialize(cfg, agent.Options{})
	if err != nil {
		log.Fatalf("Failed to initialize collector: %v", err)
	}

	log.Printf("Starting beacond...")
	log.Printf("Data directory: %s", cfg.DataDir)
	log.Printf("Transport: %s", cfg.Transport.Type)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		readEvents(client)
	}()

	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, shutting down...", sig)
	case <-done:
		log.Printf("Input drained, shutting down...")
	}

	client.Flush()
	if err := agent.Teardown(cfg.InstanceName); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Printf("Shutdown complete")
}

func loadConfig(configFile, apiKey, dataDir string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		loaded, err := config.LoadFromFile(configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	config.LoadFromEnv(cfg)

	// Flags take precedence over file and environment.
	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	cfg.Resolve()
	return cfg, nil
}

// readEvents consumes JSON lines from stdin until EOF. Malformed lines
// are logged and skipped.
func readEvents(client *agent.Client) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var in inputLine
		if err := json.Unmarshal(raw, &in); err != nil {
			log.Printf("Skipping malformed line %d: %v", lineNo, err)
			continue
		}

		if in.UserID != "" {
			client.SetUserID(in.UserID)
		}
		if len(in.UserProperties) > 0 {
			client.SetUserProperties(in.UserProperties)
		}
		if in.EventType != "" {
			client.LogEventWith(pipeline.Submission{
				EventType:       in.EventType,
				EventProperties: in.EventProperties,
				Groups:          in.Groups,
				Timestamp:       in.Timestamp,
				OutOfSession:    in.OutOfSession,
			})
		}
	}
	if err := scanner.Err(); err != nil {
		log.Printf("Input error: %v", err)
	}
}
