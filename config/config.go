package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"codraft/pkg/logger"

	"github.com/joho/godotenv"
)

// Client holds everything the client binary needs to reach the backend.
type Client struct {
	BackendURL        string
	WSURL             string
	AccessToken       string
	HeartbeatInterval time.Duration
}

const defaultHeartbeat = 10 * time.Second

// Load reads the client configuration from the environment. A .env file is
// loaded first when present; real environment variables win over it.
func Load() Client {
	if err := godotenv.Load(); err != nil {
		logger.Sugar.Info("No .env file found, using environment variables from OS")
	}

	cfg := Client{
		BackendURL:        strings.TrimSpace(os.Getenv("BACKEND_URL")),
		WSURL:             strings.TrimSpace(os.Getenv("WS_URL")),
		AccessToken:       strings.TrimSpace(os.Getenv("ACCESS_TOKEN")),
		HeartbeatInterval: defaultHeartbeat,
	}

	if cfg.BackendURL == "" {
		cfg.BackendURL = "http://localhost:8080"
	}
	if cfg.WSURL == "" {
		cfg.WSURL = "ws://localhost:8080/ws"
	}

	if raw := strings.TrimSpace(os.Getenv("HEARTBEAT_INTERVAL_MS")); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms <= 0 {
			logger.Sugar.Warnf("Invalid HEARTBEAT_INTERVAL_MS %q, keeping default", raw)
		} else {
			cfg.HeartbeatInterval = time.Duration(ms) * time.Millisecond
		}
	}

	return cfg
}
