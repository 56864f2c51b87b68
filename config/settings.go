package config

import (
	"os"
	"strings"
	"time"
)

type DatabaseSettings struct {
	Driver   string
	User     string
	Password string
	Host     string
	Port     string
	Name     string
	SSLMode  string
}

type Settings struct {
	Port               string
	Env                string
	Database           DatabaseSettings
	RedisAddress       string
	AssessmentApiUrl   string
	PlanApiUrl         string
	PlatformApiUrl     string
	DownstreamTimeout  time.Duration
	HistoryTimezone    string
	PubSubTopic        string
	SkipMigrations     bool
	CorsAllowedOrigins []string
}

// LoadSettings reads the process configuration from the environment (.env is
// loaded by this package's init).
func LoadSettings() Settings {
	port := os.Getenv("PORT")
	if port == "" {
		port = os.Getenv("API_PORT")
	}
	if port == "" {
		port = "8080"
	}

	driver := strings.ToLower(strings.TrimSpace(os.Getenv("DB_DRIVER")))
	if driver == "" {
		driver = DriverMySQL
	}
	sslMode := os.Getenv("DB_SSLMODE")
	if sslMode == "" {
		sslMode = "disable"
	}

	timezone := os.Getenv("HISTORY_TIMEZONE")
	if timezone == "" {
		timezone = "Europe/London"
	}

	var origins []string
	for _, o := range strings.Split(os.Getenv("CORS_ALLOWED_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	return Settings{
		Port: port,
		Env:  os.Getenv("GO_ENV"),
		Database: DatabaseSettings{
			Driver:   driver,
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			Host:     os.Getenv("DB_HOST"),
			Port:     os.Getenv("DB_PORT"),
			Name:     os.Getenv("DB_NAME"),
			SSLMode:  sslMode,
		},
		RedisAddress:       os.Getenv("REDIS_ADDRESS"),
		AssessmentApiUrl:   os.Getenv("ASSESSMENT_API_URL"),
		PlanApiUrl:         os.Getenv("PLAN_API_URL"),
		PlatformApiUrl:     os.Getenv("PLATFORM_API_URL"),
		DownstreamTimeout:  time.Duration(intFromEnv("DOWNSTREAM_TIMEOUT_SECONDS", 30)) * time.Second,
		HistoryTimezone:    timezone,
		PubSubTopic:        os.Getenv("PUBSUB_TOPIC"),
		SkipMigrations:     boolFromEnv("SKIP_MIGRATIONS", false),
		CorsAllowedOrigins: origins,
	}
}

// HistoryLocation resolves HISTORY_TIMEZONE, falling back to UTC when the
// zone database does not know it.
func (s Settings) HistoryLocation() *time.Location {
	loc, err := time.LoadLocation(s.HistoryTimezone)
	if err != nil {
		GetLogger().WithField("timezone", s.HistoryTimezone).Warn("unknown HISTORY_TIMEZONE; using UTC")
		return time.UTC
	}
	return loc
}
