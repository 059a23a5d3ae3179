// Package config provides application configuration management with support for command-line flags, environment variables, .env files and an optional YAML file.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	App    AppConfig
	Logger LoggerConfig
	Data   DataConfig
	Meme   MemeConfig
	Fetch  FetchConfig
	Bot    BotConfig
	Server ServerConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// DataConfig holds on-disk locations.
type DataConfig struct {
	BasePath string
	// DBPath is the SQLite meme database. Fixed for the process lifetime.
	DBPath string
}

// MemeConfig holds meme library behaviour.
type MemeConfig struct {
	DuplicateThreshold int  // Max Hamming distance for "same image" (default: 3)
	MaxDimension       int  // Longest side stored images are shrunk to (default: 512)
	PrefixIndex        bool // Serve trigger lookups from the in-memory name index (default: true)
	ReindexOnStart     bool // Resize and rehash stored images before serving (default: false)

	// Per-context cooldown for fetching memes. Zero RPS disables it.
	CooldownRPS   float64
	CooldownBurst int
}

// FetchConfig holds outbound image download configuration.
type FetchConfig struct {
	Timeout   time.Duration // Per-download timeout (default: 10s)
	MaxBytes  int64         // Largest accepted body (default: 20 MiB)
	HostRPS   float64       // Per-host request rate, zero disables (default: 2)
	HostBurst int           // Per-host burst (default: 4)
	CacheTTL  time.Duration // Download cache lifetime, zero disables (default: 10m)
	CachePath string        // Badger directory (default: {data}/cache/fetch)
}

// BotConfig holds chat-side settings.
type BotConfig struct {
	Superusers []string // User ids allowed to run sync
	SelfID     string   // The bot's own user id
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host               string        // Listen host (default: loopback without API_TOKEN, all interfaces with it)
	Port               string        // Server port (default: 8080)
	ReadTimeout        time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout       time.Duration // HTTP write timeout (default: 15s)
	IdleTimeout        time.Duration // HTTP idle timeout (default: 60s)
	APIToken           string        // Optional bearer token for the admin API
	CORSAllowedOrigins []string      // Default: *
	RateLimitRPS       float64       // Per-client request rate on /api/v1, zero disables (default: 20)
	RateLimitBurst     int           // Per-client burst (default: 40)
}

// ListenAddr returns the address to listen on. Without a token the events
// endpoint trusts the caller's user id, so an unset host stays on loopback.
func (c ServerConfig) ListenAddr() string {
	host := c.Host
	if host == "" && c.APIToken == "" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, c.Port)
}

// IsSuperuser reports whether userID may run privileged commands.
func (c BotConfig) IsSuperuser(userID string) bool {
	for _, su := range c.Superusers {
		if su == userID {
			return true
		}
	}
	return false
}

// LoadConfig loads configuration from the process arguments.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}

// Load loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. YAML file named by -config or CONFIG_FILE.
// 5. Default values (lowest priority).
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("feiju", flag.ContinueOnError)

	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := fs.String("data-path", "", "Base path for data storage")
	dbPath := fs.String("db-path", "", "Path to the meme database (default: {data}/memes.db)")
	configFile := fs.String("config", "", "Path to a YAML config file")
	envFile := fs.String("env-file", ".env", "Path to .env file")

	// Meme flags
	threshold := fs.String("duplicate-threshold", "", "Max hash distance treated as duplicate (default: 3)")
	maxDimension := fs.String("max-dimension", "", "Longest side of stored images (default: 512)")
	prefixIndex := fs.String("prefix-index", "", "Use the in-memory name index (default: true)")
	reindexOnStart := fs.String("reindex-on-start", "", "Resize and rehash stored images at startup (default: false)")

	// Fetch flags
	fetchTimeout := fs.String("fetch-timeout", "", "Image download timeout (default: 10s)")
	fetchCacheTTL := fs.String("fetch-cache-ttl", "", "Download cache lifetime, 0 disables (default: 10m)")

	// Server flags
	serverHost := fs.String("host", "", "Listen host (default: 127.0.0.1 unless API_TOKEN is set)")
	serverPort := fs.String("port", "", "Server port (default: 8080)")
	readTimeout := fs.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := fs.String("write-timeout", "", "HTTP write timeout (default: 15s)")
	idleTimeout := fs.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	l := &loader{}
	if path := getConfigValue(*configFile, "CONFIG_FILE", ""); path != "" {
		file, err := loadYAMLFile(path)
		if err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		l.file = file
	}

	cfg := &Config{
		App: AppConfig{
			Environment: l.str(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: l.str(*logLevel, "LOG_LEVEL", "info"),
		},
		Data: DataConfig{
			BasePath: l.str(*dataPath, "DATA_PATH", ""),
			DBPath:   l.str(*dbPath, "MEME_DB_PATH", ""),
		},
		Meme: MemeConfig{
			DuplicateThreshold: l.integer(*threshold, "MEME_DUPLICATE_THRESHOLD", 3),
			MaxDimension:       l.integer(*maxDimension, "MEME_MAX_DIMENSION", 512),
			PrefixIndex:        l.boolean(*prefixIndex, "MEME_PREFIX_INDEX", true),
			ReindexOnStart:     l.boolean(*reindexOnStart, "MEME_REINDEX_ON_START", false),
			CooldownRPS:        l.float("", "MEME_GET_COOLDOWN_RPS", 0),
			CooldownBurst:      l.integer("", "MEME_GET_COOLDOWN_BURST", 3),
		},
		Fetch: FetchConfig{
			Timeout:   l.duration(*fetchTimeout, "FETCH_TIMEOUT", 10*time.Second),
			MaxBytes:  int64(l.integer("", "FETCH_MAX_BYTES", 20<<20)),
			HostRPS:   l.float("", "FETCH_HOST_RPS", 2),
			HostBurst: l.integer("", "FETCH_HOST_BURST", 4),
			CacheTTL:  l.duration(*fetchCacheTTL, "FETCH_CACHE_TTL", 10*time.Minute),
			CachePath: l.str("", "FETCH_CACHE_PATH", ""),
		},
		Bot: BotConfig{
			Superusers: l.list("", "SUPERUSERS"),
			SelfID:     l.str("", "BOT_SELF_ID", ""),
		},
		Server: ServerConfig{
			Host:               l.str(*serverHost, "SERVER_HOST", ""),
			Port:               l.str(*serverPort, "SERVER_PORT", "8080"),
			ReadTimeout:        l.duration(*readTimeout, "SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:       l.duration(*writeTimeout, "SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:        l.duration(*idleTimeout, "SERVER_IDLE_TIMEOUT", 60*time.Second),
			APIToken:           l.str("", "API_TOKEN", ""),
			CORSAllowedOrigins: l.list("", "CORS_ALLOWED_ORIGINS"),
			RateLimitRPS:       l.float("", "SERVER_RATE_LIMIT_RPS", 20),
			RateLimitBurst:     l.integer("", "SERVER_RATE_LIMIT_BURST", 40),
		},
	}
	if len(cfg.Server.CORSAllowedOrigins) == 0 {
		cfg.Server.CORSAllowedOrigins = []string{"*"}
	}

	if err := errors.Join(l.errs...); err != nil {
		return nil, err
	}

	// Expand data paths ({data}/memes.db and {data}/cache/fetch by default).
	if err := cfg.expandDataPaths(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Data.BasePath == "" {
		return errors.New("data base path cannot be empty after expansion")
	}
	if c.Data.DBPath == "" {
		return errors.New("meme database path cannot be empty after expansion")
	}

	if c.Meme.DuplicateThreshold < 0 || c.Meme.DuplicateThreshold > 64 {
		return fmt.Errorf("invalid duplicate threshold: %d (must be between 0 and 64)", c.Meme.DuplicateThreshold)
	}
	if c.Meme.MaxDimension <= 0 {
		return fmt.Errorf("invalid max dimension: %d (must be positive)", c.Meme.MaxDimension)
	}
	if c.Meme.CooldownRPS < 0 {
		return fmt.Errorf("invalid cooldown rate: %v (must not be negative)", c.Meme.CooldownRPS)
	}
	if c.Meme.CooldownRPS > 0 && c.Meme.CooldownBurst < 1 {
		return fmt.Errorf("invalid cooldown burst: %d (must be at least 1)", c.Meme.CooldownBurst)
	}

	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("invalid fetch timeout: %s (must be positive)", c.Fetch.Timeout)
	}
	if c.Fetch.MaxBytes <= 0 {
		return fmt.Errorf("invalid fetch max bytes: %d (must be positive)", c.Fetch.MaxBytes)
	}
	if c.Fetch.HostRPS < 0 {
		return fmt.Errorf("invalid fetch host rate: %v (must not be negative)", c.Fetch.HostRPS)
	}
	if c.Fetch.HostRPS > 0 && c.Fetch.HostBurst < 1 {
		return fmt.Errorf("invalid fetch host burst: %d (must be at least 1)", c.Fetch.HostBurst)
	}
	if c.Fetch.CacheTTL < 0 {
		return fmt.Errorf("invalid fetch cache ttl: %s (must not be negative)", c.Fetch.CacheTTL)
	}

	if c.Server.RateLimitRPS < 0 {
		return fmt.Errorf("invalid server rate limit: %v (must not be negative)", c.Server.RateLimitRPS)
	}
	if c.Server.RateLimitRPS > 0 && c.Server.RateLimitBurst < 1 {
		return fmt.Errorf("invalid server rate limit burst: %d (must be at least 1)", c.Server.RateLimitBurst)
	}

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	// Expand tilde.
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	// Make absolute if needed.
	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandDataPaths resolves the base path and the paths derived from it.
func (c *Config) expandDataPaths() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	base, err := expandPath(c.Data.BasePath, filepath.Join(homeDir, ".feiju"))
	if err != nil {
		return err
	}
	c.Data.BasePath = base

	db, err := expandPath(c.Data.DBPath, filepath.Join(base, "memes.db"))
	if err != nil {
		return err
	}
	c.Data.DBPath = db

	cache, err := expandPath(c.Fetch.CachePath, filepath.Join(base, "cache", "fetch"))
	if err != nil {
		return err
	}
	c.Fetch.CachePath = cache
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	// Priority 1: Command-line flag.
	if flagValue != "" {
		return flagValue
	}

	// Priority 2: Environment variable.
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}

	// Priority 3: Default value.
	return defaultValue
}

// loader layers the YAML file under flags and the environment and collects
// parse errors so one bad value does not hide the rest.
type loader struct {
	file map[string]string
	errs []error
}

func (l *loader) raw(flagValue, key string) string {
	return getConfigValue(flagValue, key, l.file[key])
}

func (l *loader) str(flagValue, key, defaultValue string) string {
	if v := l.raw(flagValue, key); v != "" {
		return v
	}
	return defaultValue
}

// boolean accepts "true", "1", "yes" (case-insensitive) as true; anything else is false.
func (l *loader) boolean(flagValue, key string, defaultValue bool) bool {
	v := strings.ToLower(l.raw(flagValue, key))
	if v == "" {
		return defaultValue
	}
	return v == "true" || v == "1" || v == "yes"
}

func (l *loader) integer(flagValue, key string, defaultValue int) int {
	v := l.raw(flagValue, key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("invalid %s %q: %w", key, v, err))
		return defaultValue
	}
	return n
}

func (l *loader) float(flagValue, key string, defaultValue float64) float64 {
	v := l.raw(flagValue, key)
	if v == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("invalid %s %q: %w", key, v, err))
		return defaultValue
	}
	return f
}

func (l *loader) duration(flagValue, key string, defaultValue time.Duration) time.Duration {
	v := l.raw(flagValue, key)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("invalid %s %q: %w", key, v, err))
		return defaultValue
	}
	return d
}

// list splits a comma separated value, dropping empty items.
func (l *loader) list(flagValue, key string) []string {
	var out []string
	for _, item := range strings.Split(l.raw(flagValue, key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// loadYAMLFile reads a flat YAML mapping of setting names to values.
// Keys use the environment variable names in either case; sequences are
// joined with commas.
func loadYAMLFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return nil, err
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	out := make(map[string]string, len(doc))
	for key, value := range doc {
		key = strings.ToUpper(strings.TrimSpace(key))
		switch v := value.(type) {
		case nil:
			continue
		case []any:
			items := make([]string, 0, len(v))
			for _, item := range v {
				items = append(items, fmt.Sprint(item))
			}
			out[key] = strings.Join(items, ",")
		case map[string]any:
			return nil, fmt.Errorf("setting %s: nested mappings are not supported", key)
		default:
			out[key] = fmt.Sprint(v)
		}
	}
	return out, nil
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments.
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=value.
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		// Only set if not already set (env vars take precedence over .env file).
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
