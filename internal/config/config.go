package config

import (
	"log"
	"os"
)

type Config struct {
	HTTPPort         string
	DatabaseDSN      string
	JWTSecret        string
	CORSOrigins      string
	PublicBaseURL    string // base for unit claim URLs printed into manifests
	ArtifactPath     string // directory rendered visual codes are saved to
	RenderServiceURL string // external code renderer; empty disables generation
}

func Load() *Config {
	cfg := &Config{
		HTTPPort:         getEnv("HTTP_PORT", "8080"),
		DatabaseDSN:      getEnv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=qrtrace port=5432 sslmode=disable"),
		JWTSecret:        getEnv("JWT_SECRET", ""),
		CORSOrigins:      getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
		PublicBaseURL:    getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		ArtifactPath:     getEnv("ARTIFACT_PATH", "./qr-artifacts"),
		RenderServiceURL: getEnv("RENDER_SERVICE_URL", ""),
	}

	if cfg.JWTSecret == "" {
		log.Fatal("[FATAL] JWT_SECRET is not set; it is required.")
	}
	if len(cfg.JWTSecret) < 32 {
		log.Fatal("[FATAL] JWT_SECRET must be at least 32 characters.")
	}
	if cfg.DatabaseDSN == "host=localhost user=postgres password=postgres dbname=qrtrace port=5432 sslmode=disable" {
		log.Println("[WARN] DATABASE_DSN is the development default; set your own Postgres DSN for production.")
	}
	if cfg.RenderServiceURL == "" {
		log.Println("[WARN] RENDER_SERVICE_URL is not set; visual-code generation is disabled, artifacts stay pending.")
	}

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
