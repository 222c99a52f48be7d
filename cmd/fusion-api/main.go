// Package main provides the fusion-api server for flight data fusion and
// analytics.
//
// The server folds recorded surveillance packets into per-flight documents,
// mirrors predicted flight plans out of the historic planning store,
// densifies sparse predicted routes, and computes punctuality and
// trajectory-accuracy reports. Everything is served over REST from a single
// SQLite-backed document store.
//
// The replay store (ClickHouse) and the historic store (PostgreSQL) are both
// optional: without them the server still answers search, history, and
// data-management queries, and the routes that need the missing store return
// 503.
//
// Usage:
//
//	fusion-api [options]
//
// Options:
//
//	-db PATH              Document store path (default: flight_fusion.db, env: FUSION_DB)
//	-replay-host HOST     ClickHouse replay host (env: REPLAY_HOST; empty disables replay)
//	-replay-port N        ClickHouse replay port (default: 9000, env: REPLAY_PORT)
//	-replay-database DB   ClickHouse replay database (default: replay, env: REPLAY_DATABASE)
//	-replay-user USER     ClickHouse replay user (default: default, env: REPLAY_USER)
//	-replay-password PASS ClickHouse replay password (env: REPLAY_PASSWORD)
//	-historic-host HOST   PostgreSQL historic host (env: HISTORIC_HOST; empty disables sync)
//	-historic-port N      PostgreSQL historic port (default: 5432, env: HISTORIC_PORT)
//	-historic-database DB PostgreSQL historic database (default: historic, env: HISTORIC_DATABASE)
//	-historic-user USER   PostgreSQL historic user (default: historic, env: HISTORIC_USER)
//	-historic-password P  PostgreSQL historic password (env: HISTORIC_PASSWORD)
//	-port N               HTTP port (default: 8080)
//	-date YYYY-MM-DD      Default replay date when a process request names none
//	-auth                 Enable API key authentication
//	-api-keys KEYS        Comma-separated list of valid API keys
//	-log-level LEVEL      debug|info|warn|error (default: info, env: LOG_LEVEL)
//	-log-dir DIR          Rotated log directory (env: LOG_DIR; empty logs to stdout)
//
// Main endpoints:
//
//	POST /api/oracle/process
//	    Replay a recorded packet window into the flight store.
//
//	POST /api/predicted-flights/auto-sync
//	    Mirror the predicted plan for every stored real flight.
//
//	POST /api/trajectory-densification/auto-sync
//	    Densify every stored predicted route.
//
//	POST /api/punctuality/kpis
//	POST /api/trajectory-accuracy/run
//	    Compute the analysis reports.
//
//	GET  /api/flight-search/by-indicative?q=...
//	GET  /api/processing-history
//	GET  /api/health
//
// Authentication:
//
//	When -auth is enabled, requests must include an API key via:
//	  - X-API-Key header
//	  - Authorization: Bearer <key> header
//	  - ?api_key=<key> query parameter
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"flight_fusion/internal/api"
	"flight_fusion/internal/ingest"
	"flight_fusion/internal/logging"
	"flight_fusion/internal/predict"
	"flight_fusion/internal/storage"
)

func main() {
	dbPath := flag.String("db", envOrDefault("FUSION_DB", "flight_fusion.db"), "Document store path")

	// Replay store (ClickHouse) flags. An empty host disables replay.
	replayHost := flag.String("replay-host", envOrDefault("REPLAY_HOST", ""), "ClickHouse replay host")
	replayPort := flag.Int("replay-port", envOrDefaultInt("REPLAY_PORT", 9000), "ClickHouse replay port")
	replayDB := flag.String("replay-database", envOrDefault("REPLAY_DATABASE", "replay"), "ClickHouse replay database")
	replayUser := flag.String("replay-user", envOrDefault("REPLAY_USER", "default"), "ClickHouse replay user")
	replayPassword := flag.String("replay-password", envOrDefault("REPLAY_PASSWORD", ""), "ClickHouse replay password")

	// Historic store (PostgreSQL) flags. An empty host disables plan sync.
	historicHost := flag.String("historic-host", envOrDefault("HISTORIC_HOST", ""), "PostgreSQL historic host")
	historicPort := flag.Int("historic-port", envOrDefaultInt("HISTORIC_PORT", 5432), "PostgreSQL historic port")
	historicDB := flag.String("historic-database", envOrDefault("HISTORIC_DATABASE", "historic"), "PostgreSQL historic database")
	historicUser := flag.String("historic-user", envOrDefault("HISTORIC_USER", "historic"), "PostgreSQL historic user")
	historicPassword := flag.String("historic-password", envOrDefault("HISTORIC_PASSWORD", ""), "PostgreSQL historic password")

	// API server flags.
	port := flag.Int("port", envOrDefaultInt("FUSION_PORT", 8080), "HTTP port for API server")
	defaultDate := flag.String("date", envOrDefault("FUSION_DEFAULT_DATE", ""), "Default replay date (YYYY-MM-DD)")
	authEnabled := flag.Bool("auth", false, "Enable API key authentication")
	apiKeys := flag.String("api-keys", "", "Comma-separated list of valid API keys (when auth enabled)")

	logLevel := flag.String("log-level", envOrDefault("LOG_LEVEL", "info"), "Log level (debug|info|warn|error)")
	logDir := flag.String("log-dir", envOrDefault("LOG_DIR", ""), "Rotated log directory (empty logs to stdout)")

	flag.Parse()

	log := logging.New(logging.Config{Level: *logLevel, Dir: *logDir, Name: "fusion-api"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.OpenDocStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening document store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	var sources api.SourceFactory
	if *replayHost != "" {
		replay, err := storage.OpenReplay(ctx, storage.ReplayConfig{
			Host:     *replayHost,
			Port:     *replayPort,
			Database: *replayDB,
			User:     *replayUser,
			Password: *replayPassword,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening replay store: %v\n", err)
			os.Exit(1)
		}
		defer replay.Close()

		sources = func(from, until time.Time) (ingest.PacketSource, error) {
			return ingest.NewReplaySource(replay, from, until), nil
		}
		log.Info("replay store connected", "host", *replayHost, "database", *replayDB)
	}

	var plans predict.PlanSource
	if *historicHost != "" {
		historic, err := storage.OpenHistoric(ctx, storage.HistoricConfig{
			Host:     *historicHost,
			Port:     *historicPort,
			Database: *historicDB,
			User:     *historicUser,
			Password: *historicPassword,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening historic store: %v\n", err)
			os.Exit(1)
		}
		defer historic.Close()

		plans = historic
		log.Info("historic store connected", "host", *historicHost, "database", *historicDB)
	}

	// Parse API keys.
	var keys []string
	if *apiKeys != "" {
		keys = strings.Split(*apiKeys, ",")
		for i := range keys {
			keys[i] = strings.TrimSpace(keys[i])
		}
	}

	server := api.NewServer(store, sources, plans, api.Config{
		Port:        *port,
		DefaultDate: *defaultDate,
		AuthEnabled: *authEnabled,
		APIKeys:     keys,
		Logger:      log,
	})

	if err := server.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
