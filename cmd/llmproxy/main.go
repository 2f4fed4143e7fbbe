// Command llmproxy is the entry point for the LLM protocol proxy: it
// loads the route table, wires the runtime collaborators, and serves
// the HTTP front-end until an orderly shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/relaymesh/llmproxy/internal/config"
	"github.com/relaymesh/llmproxy/internal/httpapi"
	"github.com/relaymesh/llmproxy/internal/monitoring"
	"github.com/relaymesh/llmproxy/internal/proxy"
	"github.com/relaymesh/llmproxy/internal/reasoning"
	"github.com/relaymesh/llmproxy/internal/route"
	"github.com/relaymesh/llmproxy/internal/session"
	"github.com/relaymesh/llmproxy/internal/trajectory"
	"github.com/relaymesh/llmproxy/internal/trajindex"
	"github.com/relaymesh/llmproxy/internal/upstream"
)

// loadEnvFiles loads .env from standard locations, local .env taking
// precedence over the user config directory.
func loadEnvFiles() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		_ = godotenv.Load()
		return
	}

	configEnv := filepath.Join(homeDir, ".config", "llmproxy", ".env")
	if _, err := os.Stat(configEnv); err == nil {
		_ = godotenv.Load(configEnv)
	}
	_ = godotenv.Load()
}

func main() {
	loadEnvFiles()

	fs := flag.NewFlagSet("llmproxy", flag.ExitOnError)
	cfgFile := fs.String("cfg-file", "", "path to route-config YAML file")
	host := fs.String("host", "127.0.0.1", "interface to bind")
	port := fs.Int("port", 18080, "port to bind")
	logDir := fs.String("log-dir", "./trajectories", "root directory for the trajectory store")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[1:])

	setupLogging(*debug)

	if *cfgFile == "" {
		log.Fatal().Msg("--cfg-file is required")
	}

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		log.Fatal().Err(err).Str("cfg_file", *cfgFile).Msg("failed to load route config")
	}

	routes, err := cfg.BuildRouteTable()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build route table")
	}

	log.Info().
		Int("routes", len(routes.List())).
		Str("log_dir", *logDir).
		Msg("llmproxy starting")

	if err := os.MkdirAll(*logDir, 0750); err != nil {
		log.Fatal().Err(err).Str("log_dir", *logDir).Msg("failed to create log directory")
	}

	trajStore := trajectory.NewStore(*logDir)

	index, err := trajindex.Open(*logDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open trajectory index")
	}
	defer index.Close()
	trajStore.SetIndex(index)

	onRegistered := func(meta session.Meta) {
		trajStore.Append(meta.Token, "session_registered", meta)
	}

	rt := &proxy.Runtime{
		Routes:     routes,
		Sessions:   session.NewRegistry(onRegistered),
		Reasoning:  reasoning.NewCache(),
		Trajectory: trajStore,
		Upstream:   upstream.NewClient(),
		Index:      index,
	}

	if usesBedrock(routes) {
		signer := upstream.NewBedrockSigner()
		if !signer.IsConfigured() {
			log.Fatal().Msg("a bedrock route is configured but AWS credentials could not be resolved")
		}
		rt.BedrockSigner = signer
	}

	logger := monitoring.New(monitoring.LoggerConfig{Level: levelName(*debug)})
	alerts := monitoring.NewAlertManager(logger, monitoring.AlertConfig{HighLatencyThreshold: 5 * time.Second})
	tracker, err := monitoring.NewTracker(monitoring.TelemetryConfig{
		Enabled: true,
		LogPath: filepath.Join(*logDir, "requests.jsonl"),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start telemetry tracker")
	}
	defer tracker.Close()

	addr := fmt.Sprintf("%s:%d", *host, *port)
	srv := httpapi.NewServer(addr, rt, logger, alerts, tracker)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("shutdown signal received")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
	}()

	log.Info().Str("addr", addr).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && !strings.Contains(err.Error(), "Server closed") {
		log.Fatal().Err(err).Msg("server error")
	}

	log.Info().Msg("llmproxy stopped")
}

func usesBedrock(routes *route.Table) bool {
	for _, r := range routes.List() {
		if r.UpstreamProtocol == route.ProtocolBedrock {
			return true
		}
	}
	return false
}

func levelName(debug bool) string {
	if debug {
		return "debug"
	}
	return "info"
}

// setupLogging configures the global zerolog logger.
func setupLogging(debug bool) {
	level := "info"
	if debug {
		level = "debug"
	}
	monitoring.Global(monitoring.LoggerConfig{Level: level, Format: "console", Output: "stdout"})
}
