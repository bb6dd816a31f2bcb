package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
// Values come from environment variables (optionally via a .env file);
// every field has a workable default except credentials.
type Config struct {
	// Catalog sync
	GraphEndpoint     string // websocket endpoint of the catalog graph service
	SyncPageSize      int    // page size for cursor-paginated catalog requests
	AppVersion        int    // version stamped onto a completed full load
	MinCatalogVersion int    // full loads completed below this version force a wipe

	// Content directory
	FeaturedSettingIdentifier string   // well-known identifier of the featured-items setting row
	LiveChannelIdentifier     string   // well-known identifier of the live channel
	LatestBroadcastCount      int      // size of the "latest broadcasts" window
	ProgramPriority           []string // program identifiers pinned to the top of the program list, in order

	// Stream resolution
	LiveStreamBase    string // base URL for live AAC channel streams
	StreamOverrideURL string // when set, replaces the live channel stream entirely
	CDNBase           string // base URL for VOD files and HLS folders

	// Media vault (optional, presigns direct-file URLs when configured)
	VaultEndpoint  string
	VaultAccessKey string
	VaultSecretKey string
	VaultBucket    string
	VaultRegion    string
	VaultUseSSL    bool

	// Member auth
	TokenEndpoint string
	RefreshToken  string

	// HTTP facade
	HTTPAddr string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Logging
	LogLevel string
	LogPath  string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvList gets a comma-separated environment variable as a string slice.
func getEnvList(key string) []string {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}
	return fromEnv()
}

// Reload re-reads the .env file, overriding values already in the
// environment. Used by the file watcher for hot reload.
func Reload() *Config {
	if err := godotenv.Overload(); err != nil {
		log.Println("Config reload: no .env file, keeping current environment.")
	}
	return fromEnv()
}

func fromEnv() *Config {
	return &Config{
		GraphEndpoint:     getEnv("GRAPH_ENDPOINT", "wss://graph.aurafm.app/ws"),
		SyncPageSize:      getEnvInt("SYNC_PAGE_SIZE", 100),
		AppVersion:        getEnvInt("APP_VERSION", 1),
		MinCatalogVersion: getEnvInt("MIN_CATALOG_VERSION", 1),

		FeaturedSettingIdentifier: getEnv("FEATURED_SETTING_IDENTIFIER", "featured"),
		LiveChannelIdentifier:     getEnv("LIVE_CHANNEL_IDENTIFIER", "live"),
		LatestBroadcastCount:      getEnvInt("LATEST_BROADCAST_COUNT", 10),
		ProgramPriority:           getEnvList("PROGRAM_PRIORITY"),

		LiveStreamBase:    getEnv("LIVE_STREAM_BASE", "https://stream.aurafm.app"),
		StreamOverrideURL: os.Getenv("STREAM_OVERRIDE_URL"),
		CDNBase:           getEnv("CDN_BASE", "https://cdn.aurafm.app"),

		VaultEndpoint:  os.Getenv("VAULT_ENDPOINT"),
		VaultAccessKey: os.Getenv("VAULT_ACCESS_KEY"),
		VaultSecretKey: os.Getenv("VAULT_SECRET_KEY"),
		VaultBucket:    getEnv("VAULT_BUCKET", "aurafm-media"),
		VaultRegion:    getEnv("VAULT_REGION", ""),
		VaultUseSSL:    getEnvBool("VAULT_USE_SSL", true),

		TokenEndpoint: getEnv("TOKEN_ENDPOINT", "https://auth.aurafm.app/oauth/token"),
		RefreshToken:  os.Getenv("REFRESH_TOKEN"),

		HTTPAddr: getEnv("HTTP_ADDR", ":8090"),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnv("DB_NAME", "aurafm"),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogPath:  getEnv("LOG_PATH", ""),
	}
}
