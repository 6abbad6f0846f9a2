package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type DatabaseCfg struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type LLMCfg struct {
	Provider    string
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

type CatalogCfg struct {
	Source string
	File   string
	Watch  bool
}

type CatalogSyncCfg struct {
	Enabled bool
	Topic   string
	Brokers string
	GroupID string
}

type Config struct {
	Addr             string
	LogLevel         string
	LogConsole       bool
	LogSampleN       int
	Database         DatabaseCfg
	LLM              LLMCfg
	RedisAddr        string
	IntentCache      bool
	IntentCacheTTL   time.Duration
	Catalog          CatalogCfg
	CatalogSync      CatalogSyncCfg
	TargetLayer      string
	NativeSRID       int
	H3Res            int
	MetricsEnabled   bool
	MetricsAddr      string
	MetricsPath      string
	ShutdownTimeout  time.Duration
	LayerBoundsLimit int
}

func FromEnv() Config {
	res := getint("H3_RES", 9)
	if res < 0 {
		res = 0
	}
	if res > 15 {
		res = 15
	}

	provider := strings.ToLower(getenv("LLM_PROVIDER", "openai"))
	apiKey := os.Getenv("LLM_API_KEY")
	if apiKey == "" {
		switch provider {
		case "gemini":
			apiKey = os.Getenv("GEMINI_API_KEY")
		default:
			apiKey = os.Getenv("GROQ_API_KEY")
		}
	}
	model := "llama3-8b-8192"
	if provider == "gemini" {
		model = "gemini-2.5-flash"
	}

	return Config{
		Addr:       getenv("ADDR", ":8090"),
		LogLevel:   getenv("LOG_LEVEL", "info"),
		LogConsole: getbool("LOG_CONSOLE", false),
		LogSampleN: getint("LOG_SAMPLE_N", 0),
		Database: DatabaseCfg{
			URL:             getenv("DATABASE_URL", PostgresDSNFromEnv()),
			MaxOpenConns:    getint("PG_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getint("PG_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getduration("PG_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		LLM: LLMCfg{
			Provider:    provider,
			APIKey:      apiKey,
			BaseURL:     strings.TrimRight(getenv("LLM_BASE_URL", "https://api.groq.com/openai/v1"), "/"),
			Model:       getenv("LLM_MODEL", model),
			Temperature: getfloat("LLM_TEMPERATURE", 0.1),
			Timeout:     getduration("LLM_TIMEOUT", 30*time.Second),
		},
		RedisAddr:      getenv("REDIS_ADDR", "localhost:6379"),
		IntentCache:    getbool("INTENT_CACHE_ENABLED", false),
		IntentCacheTTL: getduration("INTENT_CACHE_TTL", 10*time.Minute),
		Catalog: CatalogCfg{
			Source: strings.ToLower(getenv("LAYER_CATALOG_SOURCE", "static")),
			File:   getenv("LAYER_CATALOG_FILE", "layers.yaml"),
			Watch:  getbool("LAYER_CATALOG_WATCH", false),
		},
		CatalogSync: CatalogSyncCfg{
			Enabled: getbool("CATALOG_SYNC_ENABLED", false),
			Topic:   getenv("KAFKA_TOPIC", "layer-catalog"),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			GroupID: getenv("KAFKA_GROUP_ID", "geoquery-catalog"),
		},
		TargetLayer:      getenv("TARGET_LAYER", "parcels"),
		NativeSRID:       getint("NATIVE_SRID", 2180),
		H3Res:            res,
		MetricsEnabled:   getbool("METRICS_ENABLED", false),
		MetricsAddr:      getenv("METRICS_ADDR", ":9090"),
		MetricsPath:      getenv("METRICS_PATH", "/metrics"),
		ShutdownTimeout:  getduration("SHUTDOWN_TIMEOUT", 10*time.Second),
		LayerBoundsLimit: getint("LAYER_BOUNDS_CONCURRENCY", 4),
	}
}

// PostgresDSNFromEnv assembles a postgres:// URL from PG_* variables.
func PostgresDSNFromEnv() string {
	host := getenv("PG_HOST", "localhost")
	port := getint("PG_PORT", 5432)
	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", host, port),
		Path:   "/" + getenv("PG_DATABASE", "gis"),
	}
	user := getenv("PG_USER", "postgres")
	if pw := os.Getenv("PG_PASSWORD"); pw != "" {
		u.User = url.UserPassword(user, pw)
	} else {
		u.User = url.User(user)
	}
	q := url.Values{}
	q.Set("sslmode", getenv("PG_SSLMODE", "disable"))
	u.RawQuery = q.Encode()
	return u.String()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
