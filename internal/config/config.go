package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration, loaded once at process start
type Config struct {
	Port string

	RedisHost     string
	RedisPort     string
	RedisPassword string

	// AccessCodes is the closed allow-list for the submit endpoint
	AccessCodes map[string]struct{}

	// SharedDataDir is the volume mount visible to the gateway, the workers
	// and every analyzer service at identical paths
	SharedDataDir string

	SeparatorURL string
	AlignerURL   string
	F0URL        string
	RMSURL       string
	DrumURL      string

	// JobTimeout is the per-job budget. The gateway records it on the job at
	// enqueue; the worker enforces it as a per-job context deadline.
	JobTimeout time.Duration

	// WorkerCount is the number of concurrent pipeline workers per process
	WorkerCount int

	LogLevel string
	LogFile  string
}

// Load reads configuration from the environment
func Load() *Config {
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		SharedDataDir: getEnv("SHARED_DATA_DIR", "/shared-data"),
		SeparatorURL:  getEnv("SEPARATOR_URL", "http://separator-service:22227"),
		AlignerURL:    getEnv("ALIGNER_URL", "http://aligner-service:24725"),
		F0URL:         getEnv("F0_URL", "http://f0-service:20006"),
		RMSURL:        getEnv("RMS_URL", "http://rms-service:39574"),
		DrumURL:       getEnv("DRUM_URL", "http://drum-service:31600"),
		JobTimeout:    time.Duration(getEnvInt("JOB_TIMEOUT_SECONDS", 5000)) * time.Second,
		WorkerCount:   getEnvInt("WORKER_COUNT", 1),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", "server.log"),
	}

	cfg.AccessCodes = parseAccessCodes(os.Getenv("ACCESS_CODES"))

	return cfg
}

// AudioDir is where persisted input audio lives until the client deletes it
func (c *Config) AudioDir() string {
	return c.SharedDataDir + "/audio"
}

// LyricsDir holds persisted lyrics until the cleanup job removes them
func (c *Config) LyricsDir() string {
	return c.SharedDataDir + "/lyrics"
}

// HasAccessCode reports whether code is in the allow-list
func (c *Config) HasAccessCode(code string) bool {
	_, ok := c.AccessCodes[code]
	return ok
}

// parseAccessCodes splits a comma-separated allow-list into a set.
// Whitespace around entries is ignored; empty entries are dropped.
func parseAccessCodes(raw string) map[string]struct{} {
	codes := make(map[string]struct{})
	for _, code := range strings.Split(raw, ",") {
		code = strings.TrimSpace(code)
		if code != "" {
			codes[code] = struct{}{}
		}
	}
	return codes
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
