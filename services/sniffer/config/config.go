package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/02loveslollipop/localizador-sniffer/services/sniffer/internal/decoder"
	"github.com/02loveslollipop/localizador-sniffer/services/sniffer/internal/router"
)

// Mode selects the single active sink.
type Mode string

const (
	ModePersistent Mode = "persistent"
	ModeWindowed   Mode = "windowed"
)

// Config holds environment-driven settings for the sniffer.
type Config struct {
	Mode    Mode
	Profile decoder.Profile

	UDPHost    string
	UDPPort    int
	MaxPayload int
	HTTPPort   int

	WindowCapacity int
	Routes         *router.Table
	CSVDeviceID    int

	DatabaseURL       string
	StatementTimeout  time.Duration
	ReconnectInterval time.Duration
	DefaultLimit      int

	RedisAddr string
	RedisDB   int
	RedisTTL  time.Duration

	LogLevel string
	PageName string
}

// Load reads configuration from the environment (optionally a .env file),
// then applies command-line overrides from args.
func Load(args []string) (Config, error) {
	flags := pflag.NewFlagSet("sniffer", pflag.ContinueOnError)
	envFile := flags.String("env-file", ".env", "dotenv file to load before reading the environment")
	mode := flags.String("mode", "", "sink mode: persistent or windowed")
	profile := flags.String("profile", "", "decoder profile: device, csv or generic")
	udpPort := flags.Int("udp-port", 0, "UDP listening port")
	httpPort := flags.Int("http-port", 0, "HTTP listening port")
	if err := flags.Parse(args); err != nil {
		return Config{}, err
	}

	_ = godotenv.Load(*envFile) // ignore missing file

	cfg := Config{
		Mode:              ModePersistent,
		UDPHost:           "0.0.0.0",
		UDPPort:           7000,
		MaxPayload:        1024,
		HTTPPort:          8080,
		WindowCapacity:    100,
		CSVDeviceID:       1,
		StatementTimeout:  5 * time.Second,
		ReconnectInterval: 5 * time.Second,
		DefaultLimit:      500,
		RedisTTL:          24 * time.Hour,
		LogLevel:          "info",
		PageName:          "Localizador",
	}

	if v := env("SNIFFER_MODE"); v != "" {
		cfg.Mode = Mode(strings.ToLower(v))
	}
	if *mode != "" {
		cfg.Mode = Mode(strings.ToLower(*mode))
	}
	if cfg.Mode != ModePersistent && cfg.Mode != ModeWindowed {
		return cfg, fmt.Errorf("invalid SNIFFER_MODE: %s", cfg.Mode)
	}

	profileStr := env("SNIFFER_PROFILE")
	if *profile != "" {
		profileStr = *profile
	}
	switch {
	case profileStr != "":
		p, err := decoder.ParseProfile(profileStr)
		if err != nil {
			return cfg, fmt.Errorf("invalid SNIFFER_PROFILE: %w", err)
		}
		cfg.Profile = p
	case cfg.Mode == ModeWindowed:
		cfg.Profile = decoder.ProfileGeneric
	default:
		cfg.Profile = decoder.ProfileDevice
	}

	if v := env("UDP_HOST"); v != "" {
		cfg.UDPHost = v
	}

	var err error
	if cfg.UDPPort, err = portVar("UDP_PORT", cfg.UDPPort); err != nil {
		return cfg, err
	}
	if *udpPort > 0 {
		cfg.UDPPort = *udpPort
	}

	if env("HTTP_PORT") != "" {
		cfg.HTTPPort, err = portVar("HTTP_PORT", cfg.HTTPPort)
	} else {
		cfg.HTTPPort, err = portVar("PORT", cfg.HTTPPort)
	}
	if err != nil {
		return cfg, err
	}
	if *httpPort > 0 {
		cfg.HTTPPort = *httpPort
	}

	if cfg.MaxPayload, err = positiveVar("UDP_MAX_PAYLOAD", cfg.MaxPayload); err != nil {
		return cfg, err
	}
	if cfg.WindowCapacity, err = positiveVar("WINDOW_CAPACITY", cfg.WindowCapacity); err != nil {
		return cfg, err
	}
	if cfg.CSVDeviceID, err = intVar("CSV_DEVICE_ID", cfg.CSVDeviceID); err != nil {
		return cfg, err
	}
	if cfg.DefaultLimit, err = positiveVar("API_DEFAULT_LIMIT", cfg.DefaultLimit); err != nil {
		return cfg, err
	}
	if cfg.StatementTimeout, err = durationVar("DB_STATEMENT_TIMEOUT", cfg.StatementTimeout); err != nil {
		return cfg, err
	}
	if cfg.ReconnectInterval, err = durationVar("DB_RECONNECT_INTERVAL", cfg.ReconnectInterval); err != nil {
		return cfg, err
	}

	routes := router.DefaultRoutes
	if v := env("ROUTES"); v != "" {
		routes = v
	}
	if cfg.Routes, err = router.Parse(routes); err != nil {
		return cfg, fmt.Errorf("invalid ROUTES: %w", err)
	}

	cfg.RedisAddr = env("REDIS_ADDR")
	if cfg.RedisDB, err = intVar("REDIS_DB", cfg.RedisDB); err != nil {
		return cfg, err
	}
	if cfg.RedisTTL, err = durationVar("REDIS_TTL", cfg.RedisTTL); err != nil {
		return cfg, err
	}

	if v := env("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := env("PAGE_NAME"); v != "" {
		cfg.PageName = v
	}

	cfg.DatabaseURL = databaseURL()

	if cfg.Mode == ModePersistent {
		if cfg.Profile == decoder.ProfileGeneric {
			return cfg, errors.New("generic profile is only available in windowed mode")
		}
		if cfg.DatabaseURL == "" {
			return cfg, errors.New("DATABASE_URL or DB_HOST, DB_USER and DB_NAME are required in persistent mode")
		}
	}

	return cfg, nil
}

// ListenAddr returns the host:port string for the HTTP server.
func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// databaseURL prefers DATABASE_URL and otherwise assembles one from DB_*.
func databaseURL() string {
	if v := env("DATABASE_URL"); v != "" {
		return v
	}
	host, user, name := env("DB_HOST"), env("DB_USER"), env("DB_NAME")
	if host == "" || user == "" || name == "" {
		return ""
	}
	port := env("DB_PORT")
	if port == "" {
		port = "5432"
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(user, os.Getenv("DB_PASS")),
		Host:   host + ":" + port,
		Path:   "/" + name,
	}
	return u.String()
}

func intVar(key string, def int) (int, error) {
	s := env(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func positiveVar(key string, def int) (int, error) {
	n, err := intVar(key, def)
	if err != nil {
		return def, err
	}
	if n <= 0 {
		return def, fmt.Errorf("invalid %s: must be positive, got %d", key, n)
	}
	return n, nil
}

func portVar(key string, def int) (int, error) {
	n, err := positiveVar(key, def)
	if err != nil {
		return def, err
	}
	if n > 65535 {
		return def, fmt.Errorf("invalid %s: %d is not a port", key, n)
	}
	return n, nil
}

func durationVar(key string, def time.Duration) (time.Duration, error) {
	s := env(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return def, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}
