package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName                 string
	AppEnv                  string
	AppPort                 string
	PublicBaseURL           string
	DatabaseURL             string
	RedisURL                string
	NATSURL                 string
	JWTSecret               string
	CronSecret              string
	CloudinaryCloudName     string
	CloudinaryAPIKey        string
	CloudinaryAPISecret     string
	CloudinaryRootFolder    string
	SendgridAPIKey          string
	SendgridFromName        string
	SendgridFromEmail       string
	DeliveryMaxAttachmentMB int
	DeliveryLockTTL         time.Duration
	EventSubjectPrefix      string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("CLASSDESK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "ClassDesk API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("public.base_url", "http://localhost:8080")
	v.SetDefault("cloudinary.root_folder", "classdesk")
	v.SetDefault("sendgrid.from_name", "ClassDesk")
	v.SetDefault("delivery.max_attachment_mb", 20)
	v.SetDefault("delivery.lock_ttl", "10m")
	v.SetDefault("events.subject_prefix", "classdesk")

	lockTTLString := v.GetString("delivery.lock_ttl")
	if lockTTLString == "" {
		lockTTLString = "10m"
	}

	lockTTL, err := time.ParseDuration(lockTTLString)
	if err != nil {
		return Config{}, fmt.Errorf("invalid delivery lock ttl: %w", err)
	}

	cfg := Config{
		AppName:                 v.GetString("app.name"),
		AppEnv:                  v.GetString("app.env"),
		AppPort:                 v.GetString("app.port"),
		PublicBaseURL:           strings.TrimRight(v.GetString("public.base_url"), "/"),
		DatabaseURL:             v.GetString("database.url"),
		RedisURL:                v.GetString("redis.url"),
		NATSURL:                 v.GetString("nats.url"),
		JWTSecret:               v.GetString("jwt.secret"),
		CronSecret:              v.GetString("cron.secret"),
		CloudinaryCloudName:     v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:        v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:     v.GetString("cloudinary.api_secret"),
		CloudinaryRootFolder:    v.GetString("cloudinary.root_folder"),
		SendgridAPIKey:          v.GetString("sendgrid.api_key"),
		SendgridFromName:        v.GetString("sendgrid.from_name"),
		SendgridFromEmail:       v.GetString("sendgrid.from_email"),
		DeliveryMaxAttachmentMB: v.GetInt("delivery.max_attachment_mb"),
		DeliveryLockTTL:         lockTTL,
		EventSubjectPrefix:      v.GetString("events.subject_prefix"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.CronSecret == "" {
		return Config{}, fmt.Errorf("cron secret must be provided")
	}

	if cfg.DeliveryMaxAttachmentMB <= 0 {
		cfg.DeliveryMaxAttachmentMB = 20
	}

	return cfg, nil
}
