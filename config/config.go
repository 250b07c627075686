package config

import (
	"os"
	"strconv"
	"time"

	"github.com/fiware/message-backplane/logging"
)

var logger = logging.Log()

const (
	defaultServerPort         = 8080
	defaultMaxChannelMessages = 50
	defaultCleanupInterval    = 120 * time.Second
	defaultTokenTTL           = 3600 * time.Second
	defaultCacheWindowSize    = 500
)

type Config interface {
	ServerPort() int
	// Global ceiling for the live per-channel message count.
	MaxChannelMessages() int
	CleanupInterval() time.Duration
	TokenTTL() time.Duration
	CacheWindowSize() int
	AdminJwtSecret() string
}

type EnvConfig struct{}

func (EnvConfig) ServerPort() int {
	return positiveIntFromEnv("SERVER_PORT", defaultServerPort)
}

func (EnvConfig) MaxChannelMessages() int {
	return positiveIntFromEnv("MAX_CHANNEL_MESSAGES", defaultMaxChannelMessages)
}

func (EnvConfig) CleanupInterval() time.Duration {
	seconds := positiveIntFromEnv("CLEANUP_INTERVAL_SECONDS", int(defaultCleanupInterval/time.Second))
	return time.Duration(seconds) * time.Second
}

func (EnvConfig) TokenTTL() time.Duration {
	seconds := positiveIntFromEnv("TOKEN_TTL_SECONDS", int(defaultTokenTTL/time.Second))
	return time.Duration(seconds) * time.Second
}

func (EnvConfig) CacheWindowSize() int {
	return positiveIntFromEnv("CACHE_WINDOW_SIZE", defaultCacheWindowSize)
}

func (EnvConfig) AdminJwtSecret() string {
	secret := os.Getenv("ADMIN_JWT_SECRET")
	if secret == "" {
		logger.Warn("No admin jwt secret configured, the provisioning api will not be protected.")
	}
	return secret
}

func positiveIntFromEnv(envVar string, defaultValue int) int {
	envValue := os.Getenv(envVar)
	if envValue == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(envValue)
	if err != nil || value <= 0 {
		logger.Warnf("Invalid %s configured: %s. Will use default %d.", envVar, envValue, defaultValue)
		return defaultValue
	}
	return value
}
