//go:build !js && !wasm
// +build !js,!wasm

package main

import (
	"flag"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic"
	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/vocab"
)

var (
	port           int
	dbPath         string
	beamWidth      int
	pruneMargin    float64
	ruleName       string
	timeout        time.Duration
	allowedOrigins string
	accessLog      bool
)

func init() {
	flag.IntVar(&port, "port", 8080, "HTTP server port")
	flag.StringVar(&dbPath, "db", getEnvOrDefault("HARMONIC_DB_PATH", harmonic.DefaultDBFile), "Path to SQLite database")
	flag.IntVar(&beamWidth, "beam", 100, "Beam width")
	flag.Float64Var(&pruneMargin, "margin", 25, "Prune margin in natural log units (inf disables)")
	flag.StringVar(&ruleName, "rule", getEnvOrDefault("HARMONIC_RULE", "diatonic"), "Chord validity rule: all or diatonic")
	flag.DurationVar(&timeout, "timeout", 2*time.Minute, "Per-request annotation timeout")
	flag.StringVar(&allowedOrigins, "origins", "*", "Comma-separated list of allowed CORS origins (use * for all)")
	flag.BoolVar(&accessLog, "access-log", false, "Log every request")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	flag.Parse()

	if p, err := strconv.Atoi(os.Getenv("PORT")); err == nil && !isFlagSet("port") {
		port = p
	}

	// Parse allowed origins
	var origins []string
	if allowedOrigins == "*" {
		origins = []string{"*"}
	} else {
		origins = strings.Split(allowedOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
	}

	rule, err := vocab.RuleByName(ruleName)
	if err != nil {
		log.Fatalf("Invalid rule: %v", err)
	}

	// Create HarmonicDNA service
	service, err := harmonic.NewService(
		harmonic.WithDBPath(dbPath),
		harmonic.WithBeamWidth(beamWidth),
		harmonic.WithPruneMargin(pruneMargin),
		harmonic.WithRule(rule),
	)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}
	defer service.Close()

	// Create server configuration
	config := &ServerConfig{
		Port:           port,
		DBPath:         dbPath,
		BeamWidth:      beamWidth,
		Rule:           rule.Name(),
		Timeout:        timeout,
		AllowedOrigins: origins,
		AccessLog:      accessLog,
	}

	// Create and start server
	server := NewServer(service, config)
	if err := server.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
