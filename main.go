package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DebugMode enables verbose logging of child process output and client
// connections
var DebugMode bool

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.BoolVar(&DebugMode, "debug", false, "enable debug logging")
	flag.Parse()

	config, err := LoadConfig(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("Config file %s not found, using defaults", *configPath)
			config = DefaultConfig()
		} else {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if err := config.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	checkDependencies(config)

	presets, err := NewPresetStore(config.Presets.File)
	if err != nil {
		log.Fatalf("Failed to load presets: %v", err)
	}

	logBuf := NewLogBuffer(config.Log.MaxLines)
	agg := NewAggregator(config)
	sup := NewSupervisor(config.Audio)
	hub := NewHub(presets)
	controller := NewController(config, sup, agg, logBuf, hub)
	hub.SetController(controller)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	StartResourceMetrics(15 * time.Second)
	StartHealthMonitor(ctx, sup)

	if config.MQTT.Enabled {
		publisher, err := NewMQTTPublisher(&config.MQTT, agg)
		if err != nil {
			log.Printf("MQTT disabled: %v", err)
		} else {
			publisher.Start(ctx)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	NewAPI(controller, agg, logBuf, presets).Register(mux)
	if config.Prometheus.Enabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	server := &http.Server{
		Addr:    config.Server.Listen,
		Handler: mux,
	}

	go func() {
		log.Printf("Listening on %s", config.Server.Listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("Shutting down")
	cancel()

	if err := controller.StopRadio(); err != nil {
		log.Printf("Error stopping radio: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown: %v", err)
	}
}

// checkDependencies verifies the external binaries at startup. The decoder
// and player are required; a missing recorder only disables recording.
func checkDependencies(config *Config) {
	if _, err := exec.LookPath(config.Decoder.Path); err != nil {
		log.Fatalf("Decoder binary %q not found in PATH", config.Decoder.Path)
	}
	if _, err := exec.LookPath(config.Player.Path); err != nil {
		log.Fatalf("Player binary %q not found in PATH", config.Player.Path)
	}
	if _, err := exec.LookPath(config.Recorder.Path); err != nil {
		log.Printf("Warning: recorder binary %q not found, recording unavailable", config.Recorder.Path)
	}
}
