package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	WhatsApp WhatsAppConfig
	CRM      CRMConfig
	Cleanup  CleanupConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	StaticDir       string
}

type DatabaseConfig struct {
	Driver string
	DSN    string
}

type WhatsAppConfig struct {
	SessionRoot    string
	DefaultCountry string
	QRTerminal     bool
	SendTimeout    time.Duration
	MaxMediaSize   int64
}

type CRMConfig struct {
	BaseURL string
	Timeout time.Duration
}

type CleanupConfig struct {
	Delay      time.Duration
	MaxRetries int
}

func Load() (*Config, error) {
	// .env é opcional, igual ao dotenv
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "4000"),
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getDurationEnv("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			StaticDir:       getEnv("STATIC_DIR", "public"),
		},
		Database: DatabaseConfig{
			Driver: getEnv("DB_DRIVER", "sqlite3"),
			DSN:    getEnv("DB_DSN", "file:whatsapp-bridge.db?_foreign_keys=on"),
		},
		WhatsApp: WhatsAppConfig{
			SessionRoot:    getEnv("WHATSAPP_SESSION_ROOT", "./whatsapp-sessions"),
			DefaultCountry: getEnv("WHATSAPP_DEFAULT_COUNTRY", ""),
			QRTerminal:     getBoolEnv("WHATSAPP_QR_TERMINAL", false),
			SendTimeout:    getDurationEnv("WHATSAPP_SEND_TIMEOUT", 30*time.Second),
			MaxMediaSize:   getInt64Env("WHATSAPP_MAX_MEDIA_SIZE", 25<<20), // 25MB
		},
		CRM: CRMConfig{
			BaseURL: getEnv("CRM_BASE_URL", "https://app.crm-messaging.cloud"),
			Timeout: getDurationEnv("CRM_TIMEOUT", 30*time.Second),
		},
		Cleanup: CleanupConfig{
			Delay:      getDurationEnv("CLEANUP_DELAY", 500*time.Millisecond),
			MaxRetries: getIntEnv("CLEANUP_MAX_RETRIES", 10),
		},
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
