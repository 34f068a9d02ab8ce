// Package config builds the runtime configuration of the service from the
// process environment (optionally seeded from a .env file).
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable of the server and the tools in cmd/.
type Config struct {
	Server    ServerConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Telegram  TelegramConfig
	Matching  MatchingConfig
	Presence  PresenceConfig
	WebRTC    WebRTCConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Addr         string
	Env          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// PublicURL is the base URL cmd/probe talks to.
	PublicURL string
}

type PostgresConfig struct {
	DSN string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
	Expiry time.Duration
	Issuer string
}

type TelegramConfig struct {
	BotToken string
}

// MatchingConfig tunes the matchmaker and the chat relay.
type MatchingConfig struct {
	SearchTimeout     time.Duration
	SweepInterval     time.Duration
	TypingQuietPeriod time.Duration
}

type PresenceConfig struct {
	TTL time.Duration
}

type WebRTCConfig struct {
	ICEServers []string
}

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// Load reads .env (if present) and returns the configuration with defaults
// applied for everything that is not set.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Addr:         getEnv("HTTP_ADDR", ":8080"),
			Env:          getEnv("APP_ENV", "development"),
			ReadTimeout:  getDuration("HTTP_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDuration("HTTP_WRITE_TIMEOUT", 10*time.Second),
			PublicURL:    getEnv("PUBLIC_URL", "http://localhost:8080"),
		},
		Postgres: PostgresConfig{
			DSN: getEnv("POSTGRES_DSN", "host=localhost user=user password=password dbname=randomchat port=5432 sslmode=disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "change-me-in-production"),
			Expiry: getDuration("JWT_EXPIRY", 72*time.Hour),
			Issuer: getEnv("JWT_ISSUER", "randomchat-service"),
		},
		Telegram: TelegramConfig{
			BotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		},
		Matching: MatchingConfig{
			SearchTimeout:     getDuration("SEARCH_TIMEOUT", DefaultSearchTimeout),
			SweepInterval:     getDuration("MATCH_SWEEP_INTERVAL", DefaultSweepInterval),
			TypingQuietPeriod: getDuration("TYPING_QUIET_PERIOD", DefaultTypingQuietPeriod),
		},
		Presence: PresenceConfig{
			TTL: getDuration("PRESENCE_TTL", DefaultPresenceTTL),
		},
		WebRTC: WebRTCConfig{
			ICEServers: getList("ICE_SERVERS", DefaultICEServers),
		},
		RateLimit: RateLimitConfig{
			Requests: getInt("RATE_LIMIT_REQUESTS", 120),
			Window:   getDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
	}
}

// IsProduction reports whether the service runs with APP_ENV=production.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// getDuration accepts Go duration strings ("1.5s") or plain milliseconds.
func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}

func getList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return append([]string(nil), def...)
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
