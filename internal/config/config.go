package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

type Config struct {
	HTTPAddr     string
	LogLevel     slog.Level
	JWTSecret    string
	JWTUser      string
	JWTPassword  string
	TLSCertFile  string
	TLSKeyFile   string
	CORSOrigins  []string
	HTTPTimeout  time.Duration
	CacheTTL     time.Duration
	WatchEvery   time.Duration
	AmadeusURL   string
	AmadeusID    string
	AmadeusKey   string
	MaxResults   int
	Keywords     []string
	PageLimit    int
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPTimeout  time.Duration
}

// Load reads defaults, an optional config file and the environment, in that
// order of precedence (env wins).
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("http_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("auth_user", "demo")
	v.SetDefault("auth_pass", "demo123")
	v.SetDefault("cors_allowed_origins", "")
	v.SetDefault("http_timeout", "15s")
	v.SetDefault("cache_ttl", "30s")
	v.SetDefault("watch_interval", "30s")

	v.SetDefault("amadeus_url", "https://test.api.amadeus.com")
	v.SetDefault("search_max_results", 5)
	v.SetDefault("destination_keywords", "A")
	v.SetDefault("destination_page_limit", 100)

	v.SetDefault("smtp_port", 587)
	v.SetDefault("smtp_timeout", "15s")

	if path := os.Getenv("BOOKER_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/booker")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if os.Getenv("BOOKER_CONFIG") != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config")
		}
		slog.Debug("no config file found, using defaults + env vars", "error", err)
	}

	v.AutomaticEnv()

	httpTimeout, err := time.ParseDuration(v.GetString("http_timeout"))
	if err != nil {
		return nil, errors.Wrap(err, "bad http_timeout")
	}
	cacheTTL, err := time.ParseDuration(v.GetString("cache_ttl"))
	if err != nil {
		return nil, errors.Wrap(err, "bad cache_ttl")
	}
	watchEvery, err := time.ParseDuration(v.GetString("watch_interval"))
	if err != nil {
		return nil, errors.Wrap(err, "bad watch_interval")
	}
	if watchEvery <= 0 {
		return nil, errors.Newf("bad watch_interval: %s must be positive", watchEvery)
	}

	smtpTimeout, err := time.ParseDuration(v.GetString("smtp_timeout"))
	if err != nil {
		return nil, errors.Wrap(err, "bad smtp_timeout")
	}
	if smtpTimeout <= 0 {
		return nil, errors.Newf("bad smtp_timeout: %s must be positive", smtpTimeout)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(v.GetString("log_level"))); err != nil {
		return nil, errors.Wrap(err, "bad log_level")
	}

	maxResults := v.GetInt("search_max_results")
	if maxResults <= 0 {
		return nil, errors.Newf("bad search_max_results: %d", maxResults)
	}
	pageLimit := v.GetInt("destination_page_limit")
	if pageLimit <= 0 {
		return nil, errors.Newf("bad destination_page_limit: %d", pageLimit)
	}

	return &Config{
		HTTPAddr:     v.GetString("http_addr"),
		LogLevel:     level,
		JWTSecret:    v.GetString("jwt_secret"),
		JWTUser:      v.GetString("auth_user"),
		JWTPassword:  v.GetString("auth_pass"),
		TLSCertFile:  v.GetString("tls_cert_file"),
		TLSKeyFile:   v.GetString("tls_key_file"),
		CORSOrigins:  stringList(v, "cors_allowed_origins"),
		HTTPTimeout:  httpTimeout,
		CacheTTL:     cacheTTL,
		WatchEvery:   watchEvery,
		AmadeusURL:   strings.TrimRight(v.GetString("amadeus_url"), "/"),
		AmadeusID:    v.GetString("amadeus_clientid"),
		AmadeusKey:   v.GetString("amadeus_clientsecret"),
		MaxResults:   maxResults,
		Keywords:     stringList(v, "destination_keywords"),
		PageLimit:    pageLimit,
		SMTPHost:     v.GetString("smtp_host"),
		SMTPPort:     v.GetInt("smtp_port"),
		SMTPUsername: v.GetString("smtp_username"),
		SMTPPassword: v.GetString("smtp_password"),
		SMTPFrom:     v.GetString("smtp_from"),
		SMTPTimeout:  smtpTimeout,
	}, nil
}

// stringList accepts a YAML list from a file or "A,B , C" from env.
func stringList(v *viper.Viper, key string) []string {
	var parts []string
	switch raw := v.Get(key).(type) {
	case string:
		parts = strings.Split(raw, ",")
	default:
		parts = v.GetStringSlice(key)
	}
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
