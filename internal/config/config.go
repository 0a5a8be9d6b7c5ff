// Package config loads the Presenter's two required inputs (interface
// name, target network name), plus the ambient settings the reference
// Presenter needs for its audit log, PDF export, and dashboard, with
// flag-over-env-over-default precedence.
package config

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/lcalzada-xor/capwatch/internal/core/domain"
)

// Config holds the reference Presenter's full runtime configuration.
type Config struct {
	domain.Config // TargetSSID, Interface, Mode — the core's contract

	Addr        string // dashboard HTTP listen address
	DBPath      string // audit log sqlite path
	ReportDir   string // PDF session reports
	Debug       bool
	CollectorBin string // path to the cmd/capwatch-collector binary
}

// Load parses command-line flags and environment variables. Flags take
// precedence over environment variables, which take precedence over
// defaults.
func Load() *Config {
	cfg := &Config{}

	iface := getEnv("CAPWATCH_INTERFACE", "wlan0")
	ssid := getEnv("CAPWATCH_SSID", "")
	mode := getEnv("CAPWATCH_MODE", "auto")
	cfg.Addr = getEnv("CAPWATCH_ADDR", ":8080")
	cfg.DBPath = getEnv("CAPWATCH_DB", defaultDBPath())
	cfg.ReportDir = getEnv("CAPWATCH_REPORT_DIR", ".")
	cfg.Debug = getEnvBool("CAPWATCH_DEBUG", false)
	cfg.CollectorBin = getEnv("CAPWATCH_COLLECTOR_BIN", "capwatch-collector")

	flag.StringVar(&iface, "i", iface, "wireless interface to place into monitor mode")
	flag.StringVar(&ssid, "ssid", ssid, "target network name to track")
	flag.StringVar(&mode, "mode", mode, "connection mode: auto or manual (reserved band, unused by the core)")
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "dashboard HTTP listen address")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "path to the session audit sqlite database")
	flag.StringVar(&cfg.ReportDir, "report-dir", cfg.ReportDir, "directory for end-of-session PDF reports")
	flag.BoolVar(&cfg.Debug, "debug", cfg.Debug, "enable verbose debug logging")
	flag.StringVar(&cfg.CollectorBin, "collector-bin", cfg.CollectorBin, "path to the capwatch-collector binary")

	flag.Parse()

	cfg.Interface = iface
	cfg.TargetSSID = ssid
	cfg.Mode = parseMode(mode)

	return cfg
}

func parseMode(s string) domain.ConnMode {
	if s == "manual" {
		return domain.ModeManual
	}
	return domain.ModeAuto
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// defaultDBPath stores the audit database under ~/.capwatch.
func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		log.Printf("config: could not resolve home directory, using current dir: %v", err)
		return "capwatch.db"
	}

	dir := filepath.Join(home, ".capwatch")
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Printf("config: could not create %s, using current dir: %v", dir, err)
		return "capwatch.db"
	}
	return filepath.Join(dir, "capwatch.db")
}
