package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full process configuration, read once at startup.
type Config struct {
	Server    Server
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Registry  RegistryConfig
	LLM       LLMConfig
	Episode   EpisodeConfig
	Documents DocumentsConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr           string
	Environment    string
	LogLevel       string
	JWTSigningKey  string
	JWTIssuer      string
	JWTAudience    string
	AuthDisabled   bool
	RequestTimeout time.Duration
	// SeedFile lists legal entities to create at startup. Entities are
	// owned by another system; this exists for local runs.
	SeedFile string
}

func (s Server) IsProduction() bool {
	return s.Environment == "production"
}

type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// RegistryConfig holds the external authority endpoints. Every lookup is
// bounded by CallTimeout and cached for CacheTTL.
type RegistryConfig struct {
	CallTimeout time.Duration
	CacheTTL    time.Duration
	KVKBaseURL  string
	KVKAPIKey   string
	GLEIFURL    string
	VIESURL     string
	PeppolURL   string
}

type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// EpisodeConfig bounds background verification episodes.
type EpisodeConfig struct {
	Timeout        time.Duration
	StaleThreshold time.Duration
}

type DocumentsConfig struct {
	Dir string
}

// Registry call timeouts outside this window are clamped.
const (
	minCallTimeout = 10 * time.Second
	maxCallTimeout = 15 * time.Second
)

// FromEnv builds a Config from environment variables so main stays lean.
// A .env file in the working directory is loaded first when present; real
// environment variables win over it.
func FromEnv() (Config, error) {
	_ = godotenv.Load()

	callTimeout, err := durationEnv("REGISTRY_CALL_TIMEOUT", 12*time.Second)
	if err != nil {
		return Config{}, err
	}
	callTimeout = min(max(callTimeout, minCallTimeout), maxCallTimeout)

	cacheTTL, err := durationEnv("REGISTRY_CACHE_TTL", 15*time.Minute)
	if err != nil {
		return Config{}, err
	}
	episodeTimeout, err := durationEnv("EPISODE_TIMEOUT", 2*time.Minute)
	if err != nil {
		return Config{}, err
	}
	staleThreshold, err := durationEnv("EPISODE_STALE_THRESHOLD", 10*time.Minute)
	if err != nil {
		return Config{}, err
	}
	requestTimeout, err := durationEnv("REQUEST_TIMEOUT", 60*time.Second)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server: Server{
			Addr:           stringEnv("KYB_ADDR", ":8080"),
			Environment:    stringEnv("ENVIRONMENT", "development"),
			LogLevel:       stringEnv("LOG_LEVEL", "info"),
			JWTSigningKey:  stringEnv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			JWTIssuer:      stringEnv("JWT_ISSUER", "kyb"),
			JWTAudience:    stringEnv("JWT_AUDIENCE", "kyb-api"),
			AuthDisabled:   os.Getenv("AUTH_DISABLED") == "true",
			RequestTimeout: requestTimeout,
			SeedFile:       os.Getenv("KYB_SEED_FILE"),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: intEnv("DATABASE_MAX_OPEN_CONNS", 20),
			MaxIdleConns: intEnv("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     intEnv("REDIS_POOL_SIZE", 10),
			MinIdleConns: intEnv("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:    splitList(os.Getenv("KAFKA_BROKERS")),
			AuditTopic: stringEnv("KAFKA_AUDIT_TOPIC", "kyb.audit"),
		},
		Registry: RegistryConfig{
			CallTimeout: callTimeout,
			CacheTTL:    cacheTTL,
			KVKBaseURL:  stringEnv("KVK_BASE_URL", "https://api.kvk.nl/api"),
			KVKAPIKey:   os.Getenv("KVK_API_KEY"),
			GLEIFURL:    stringEnv("GLEIF_BASE_URL", "https://api.gleif.org"),
			VIESURL:     stringEnv("VIES_BASE_URL", "https://ec.europa.eu/taxation_customs/vies"),
			PeppolURL:   stringEnv("PEPPOL_DIRECTORY_URL", "https://directory.peppol.eu"),
		},
		LLM: LLMConfig{
			APIKey:  os.Getenv("LLM_API_KEY"),
			BaseURL: os.Getenv("LLM_BASE_URL"),
			Model:   stringEnv("LLM_MODEL", "gpt-4o-mini"),
		},
		Episode: EpisodeConfig{
			Timeout:        episodeTimeout,
			StaleThreshold: staleThreshold,
		},
		Documents: DocumentsConfig{
			Dir: os.Getenv("DOCUMENT_DIR"),
		},
	}
	return cfg, nil
}

func stringEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
