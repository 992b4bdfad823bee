package config

import (
	"crypto/rand"
	"encoding/base64"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort    string
	DBPath        string
	FallbackDir   string
	ProbeTimeout  time.Duration
	AdminUsername string
	AdminPassword string
	SessionSecret string
}

func Load() *Config {
	// Optional .env for local development; real deployments set the
	// environment directly.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Config: could not load .env: %v", err)
	}

	return &Config{
		ServerPort:    getEnv("QUIZADMIN_ADDR", ":8080"),
		DBPath:        getEnv("QUIZADMIN_DB_PATH", "./quizadmin.db"),
		FallbackDir:   getEnv("QUIZADMIN_FALLBACK_DIR", "./fallback_data"),
		ProbeTimeout:  getDuration("QUIZADMIN_PROBE_TIMEOUT", 3*time.Second),
		AdminUsername: getEnv("QUIZADMIN_ADMIN_USER", "admin"),
		AdminPassword: getEnv("QUIZADMIN_ADMIN_PASSWORD", "change-me-now1"),
		SessionSecret: getEnv("QUIZADMIN_SESSION_SECRET", generateSessionSecret()),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Config: invalid duration %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return d
}

// generateSessionSecret makes an ephemeral secret when none is
// configured. Sessions then do not survive restarts, which is acceptable
// for a single-operator back office.
func generateSessionSecret() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		log.Fatal("Failed to generate session secret:", err)
	}
	return base64.StdEncoding.EncodeToString(bytes)
}
