package utils

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const DEFAULT_DATA_DIR = "data"

// GetEnv returns the value of key or def when it is not set.
func GetEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// GetEnvInt returns the integer value of key or def when it is not set or invalid.
func GetEnvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		fmt.Printf("%s environment variable is not a valid integer, using default: %d\n", key, def)
		return def
	}
	return n
}

// GetEnvBool returns the boolean value of key or def when it is not set or invalid.
func GetEnvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := ParseBool(v)
	if err != nil {
		fmt.Printf("%s environment variable is not a valid boolean, using default: %t\n", key, def)
		return def
	}
	return b
}

// GetEnvDuration parses key as a duration ("3s") or as milliseconds ("3000").
func GetEnvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	fmt.Printf("%s environment variable is not a valid duration, using default: %s\n", key, def)
	return def
}

// BuildDataDir returns DATA_DIR or DEFAULT_DATA_DIR, creating it when missing.
func BuildDataDir() (string, error) {
	dataDir := GetEnv("DATA_DIR", DEFAULT_DATA_DIR)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("error creating data dir %s: %w", dataDir, err)
	}
	return dataDir, nil
}
