// Package config loads runtime configuration: connection settings from SAKD_*
// environment variables, and the collaborating services' endpoints from an
// optional TOML file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	DatabaseURL string // SAKD_DATABASE_URL (required)
	NATSURL     string // SAKD_NATS_URL (optional, empty = no intake/notifications)

	// Sweep settings
	SweepInterval time.Duration // SAKD_SWEEP_INTERVAL (default 1m; 0 = disabled)

	// Archive settings
	ArkivInterval   time.Duration // SAKD_ARKIV_INTERVAL (default 10m; 0 = disabled)
	ArkivS3Bucket   string        // SAKD_ARKIV_S3_BUCKET (enables S3 when set)
	ArkivS3Endpoint string        // SAKD_ARKIV_S3_ENDPOINT (custom endpoint for MinIO)
	ArkivS3Region   string        // SAKD_ARKIV_S3_REGION (default "eu-north-1")
	ArkivS3Key      string        // SAKD_ARKIV_S3_KEY (default "sakd/hendelser.jsonl")

	// Collaborating services, from SAKD_KLIENTER_FIL (TOML, optional).
	Klienter Klienter
}

// Klient is one collaborating service endpoint.
type Klient struct {
	URL   string `toml:"url"`
	Token string `toml:"token"`
}

// Klienter holds the endpoints of the collaborating services. A zero-value
// entry disables that collaborator.
type Klienter struct {
	Oppgaver   Klient `toml:"oppgaver"`
	Dokumenter Klient `toml:"dokumenter"`
	Personer   Klient `toml:"personer"`
	Simulering Klient `toml:"simulering"`
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:     os.Getenv("SAKD_DATABASE_URL"),
		NATSURL:         os.Getenv("SAKD_NATS_URL"),
		ArkivS3Bucket:   os.Getenv("SAKD_ARKIV_S3_BUCKET"),
		ArkivS3Endpoint: os.Getenv("SAKD_ARKIV_S3_ENDPOINT"),
		ArkivS3Region:   envOrDefault("SAKD_ARKIV_S3_REGION", "eu-north-1"),
		ArkivS3Key:      envOrDefault("SAKD_ARKIV_S3_KEY", "sakd/hendelser.jsonl"),
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("SAKD_DATABASE_URL is required")
	}

	var err error
	if c.SweepInterval, err = durationEnv("SAKD_SWEEP_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if c.ArkivInterval, err = durationEnv("SAKD_ARKIV_INTERVAL", 10*time.Minute); err != nil {
		return nil, err
	}

	if fil := os.Getenv("SAKD_KLIENTER_FIL"); fil != "" {
		if _, err := toml.DecodeFile(fil, &c.Klienter); err != nil {
			return nil, fmt.Errorf("SAKD_KLIENTER_FIL: %w", err)
		}
	}

	return c, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
