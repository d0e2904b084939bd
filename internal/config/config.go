package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort string

	CronSpec       string
	CacheTTL       time.Duration
	RetentionDays  int
	FetchTimeout   time.Duration
	SourceTimeout  time.Duration
	RefreshTimeout time.Duration

	DetailConcurrency int
	SourceMaxArticles int

	DisplayTimezone string
	WebRoot         string
	TopicsFile      string

	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	SMTPFrom string
	SMTPTo   []string
}

func Load() *Config {
	// A .env file in the working directory is honored when present.
	_ = godotenv.Load()

	cfg := &Config{
		AppPort:           getEnv("APP_PORT", "8000"),
		CronSpec:          getEnv("CRON_SPEC", "*/15 * * * *"),
		CacheTTL:          time.Duration(getEnvInt("CACHE_TTL_MINUTES", 15)) * time.Minute,
		RetentionDays:     getEnvInt("RETENTION_DAYS", 7),
		FetchTimeout:      time.Duration(getEnvInt("FETCH_TIMEOUT_SECONDS", 12)) * time.Second,
		SourceTimeout:     time.Duration(getEnvInt("SOURCE_TIMEOUT_SECONDS", 60)) * time.Second,
		RefreshTimeout:    time.Duration(getEnvInt("REFRESH_TIMEOUT_SECONDS", 120)) * time.Second,
		DetailConcurrency: getEnvInt("DETAIL_CONCURRENCY", 4),
		SourceMaxArticles: getEnvInt("SOURCE_MAX_ARTICLES", 12),
		DisplayTimezone:   getEnv("DISPLAY_TIMEZONE", "America/Sao_Paulo"),
		WebRoot:           getEnv("WEB_ROOT", ""),
		TopicsFile:        getEnv("TOPICS_FILE", ""),
		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPPort:          getEnvInt("SMTP_PORT", 587),
		SMTPUser:          getEnv("SMTP_USER", ""),
		SMTPPass:          getEnv("SMTP_PASS", ""),
		SMTPFrom:          getEnv("SMTP_FROM", ""),
		SMTPTo:            getEnvList("SMTP_TO"),
	}

	log.Printf("config loaded: port=%s cron=%q ttl=%s retention=%dd tz=%s",
		cfg.AppPort, cfg.CronSpec, cfg.CacheTTL, cfg.RetentionDays, cfg.DisplayTimezone)
	return cfg
}

// Location resolves the display timezone, falling back to UTC when the
// zone database does not know it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DisplayTimezone)
	if err != nil {
		log.Printf("config: unknown timezone %q, using UTC", c.DisplayTimezone)
		return time.UTC
	}
	return loc
}

// MailConfigured reports whether the digest sender has enough settings to
// deliver anything.
func (c *Config) MailConfigured() bool {
	return c.SMTPHost != "" && c.SMTPFrom != "" && len(c.SMTPTo) > 0
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("config: invalid %s=%q, using %d", key, v, def)
		return def
	}
	return n
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
