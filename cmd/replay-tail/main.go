// Package main provides the replay-tail daemon.
//
// replay-tail subscribes to the NATS subject carrying live surveillance
// packets and folds them into the same flight document store the batch
// replay endpoint uses. Delivery is at-least-once; an already-applied packet
// folds to a no-op, so overlap with a batch replay window is harmless.
//
// Usage:
//
//	replay-tail [options]
//
// Options:
//
//	-db PATH          Document store path (default: flight_fusion.db, env: FUSION_DB)
//	-nats-url URL     NATS server URL (default: nats://localhost:4222, env: NATS_URL)
//	-subject SUBJ     Packet subject (default: replay.packets, env: NATS_SUBJECT)
//	-log-level LEVEL  debug|info|warn|error (default: info, env: LOG_LEVEL)
//	-log-dir DIR      Rotated log directory (env: LOG_DIR; empty logs to stdout)
//
// The daemon runs until SIGINT or SIGTERM, then reports its counters and
// exits.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"flight_fusion/internal/ingest"
	"flight_fusion/internal/logging"
	"flight_fusion/internal/storage"
)

func main() {
	dbPath := flag.String("db", envOrDefault("FUSION_DB", "flight_fusion.db"), "Document store path")
	natsURL := flag.String("nats-url", envOrDefault("NATS_URL", "nats://localhost:4222"), "NATS server URL")
	subject := flag.String("subject", envOrDefault("NATS_SUBJECT", "replay.packets"), "NATS packet subject")
	logLevel := flag.String("log-level", envOrDefault("LOG_LEVEL", "info"), "Log level (debug|info|warn|error)")
	logDir := flag.String("log-dir", envOrDefault("LOG_DIR", ""), "Rotated log directory (empty logs to stdout)")
	flag.Parse()

	log := logging.New(logging.Config{Level: *logLevel, Dir: *logDir, Name: "replay-tail"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.OpenDocStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening document store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	src, err := ingest.NewNATSSource(*natsURL, *subject)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting NATS: %v\n", err)
		os.Exit(1)
	}
	defer src.Close()

	log.Info("tailing packet subject", "url", *natsURL, "subject", *subject)

	res, err := ingest.New(store, log).Run(ctx, src)
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Tail error: %v\n", err)
		os.Exit(1)
	}

	log.Info("tail stopped",
		"packets_processed", res.PacketsProcessed,
		"packets_skipped", res.PacketsSkipped,
		"new_flights", res.NewFlights,
		"updated_flights", res.UpdatedFlights,
		"points_appended", res.PointsAppended)
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
