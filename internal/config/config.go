// Package config loads the relay settings from the environment, an optional
// .env file and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/molpadia/molparelay/internal/logging"
)

const (
	defaultPort          = 3001
	defaultStagingDir    = "uploads"
	defaultArchiveRegion = "auto"
	defaultStreamAPIURL  = "https://api.cloudflare.com/client/v4"
	defaultStreamTimeout = 30 * time.Second
)

// Config holds the runtime settings of the relay.
//
// Archive and Stream credentials are not validated here. A missing value
// surfaces as an authentication failure on the first call that needs it.
type Config struct {
	Port       int
	StagingDir string
	CertFile   string
	KeyFile    string

	ArchiveAccountID       string
	ArchiveAccessKeyID     string
	ArchiveSecretAccessKey string
	ArchiveBucket          string
	ArchivePublicDomain    string
	ArchiveEndpoint        string
	ArchiveRegion          string
	ArchiveTimeout         time.Duration

	StreamAccountID         string
	StreamAPIToken          string
	StreamAPIURL            string
	StreamRequireSignedURLs bool
	StreamTimeout           time.Duration

	MaxUploadSize  int64
	AllowedOrigins []string

	LogLevel  slog.Level
	LogFormat string
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string { return ":" + strconv.Itoa(c.Port) }

// TLS reports whether the server listens with a certificate.
func (c *Config) TLS() bool { return c.CertFile != "" && c.KeyFile != "" }

// ArchiveEndpointURL is the S3 endpoint of the archive. Without an explicit
// override it is the R2 endpoint of the archive account.
func (c *Config) ArchiveEndpointURL() string {
	if c.ArchiveEndpoint != "" {
		return c.ArchiveEndpoint
	}
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", c.ArchiveAccountID)
}

// Load reads .env from the working directory when present, then builds the
// configuration from the environment and the given command-line arguments.
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("cannot load .env file: %w", err)
	}
	return parse(args)
}

func parse(args []string) (*Config, error) {
	cfg := &Config{}

	port, err := envInt("PORT", defaultPort)
	if err != nil {
		return nil, err
	}
	account := env("CLOUDFLARE_ACCOUNT_ID", "")

	cfg.ArchiveAccountID = env("R2_ACCOUNT_ID", account)
	cfg.ArchiveAccessKeyID = env("R2_ACCESS_KEY_ID", "")
	cfg.ArchiveSecretAccessKey = env("R2_SECRET_ACCESS_KEY", "")
	cfg.ArchiveBucket = env("R2_BUCKET_NAME", "")
	cfg.ArchivePublicDomain = env("R2_PUBLIC_DOMAIN", "")
	cfg.ArchiveEndpoint = env("R2_ENDPOINT", "")
	cfg.ArchiveRegion = env("R2_REGION", defaultArchiveRegion)
	if cfg.ArchiveTimeout, err = envDuration("ARCHIVE_TIMEOUT", 0); err != nil {
		return nil, err
	}

	cfg.StreamAccountID = env("STREAM_ACCOUNT_ID", account)
	cfg.StreamAPIToken = env("CLOUDFLARE_API_TOKEN", "")
	cfg.StreamAPIURL = strings.TrimRight(env("STREAM_API_URL", defaultStreamAPIURL), "/")
	if cfg.StreamRequireSignedURLs, err = envBool("STREAM_REQUIRE_SIGNED_URLS", false); err != nil {
		return nil, err
	}
	if cfg.StreamTimeout, err = envDuration("STREAM_TIMEOUT", defaultStreamTimeout); err != nil {
		return nil, err
	}

	maxUpload, err := envInt("MAX_UPLOAD_SIZE", 0)
	if err != nil {
		return nil, err
	}
	cfg.MaxUploadSize = int64(maxUpload)
	cfg.AllowedOrigins = splitList(env("CORS_ALLOWED_ORIGINS", "*"))

	flags := flag.NewFlagSet("molparelay", flag.ContinueOnError)
	flags.IntVar(&cfg.Port, "port", port, "port of the web server")
	flags.StringVar(&cfg.StagingDir, "staging-dir", env("STAGING_DIR", defaultStagingDir), "directory holding uploads until they are archived")
	flags.StringVar(&cfg.CertFile, "cert", env("CERT_FILE", ""), "path of TLS certificate file")
	flags.StringVar(&cfg.KeyFile, "key", env("CERT_KEY", ""), "path of TLS private key file")
	logLevel := flags.String("log-level", env("LOG_LEVEL", "info"), "log level: debug, info, warn or error")
	flags.StringVar(&cfg.LogFormat, "log-format", env("LOG_FORMAT", "text"), "log format: text or json")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port %d out of range", cfg.Port)
	}
	if (cfg.CertFile == "") != (cfg.KeyFile == "") {
		return nil, errors.New("TLS needs both a certificate and a key")
	}
	if cfg.MaxUploadSize < 0 {
		return nil, errors.New("MAX_UPLOAD_SIZE must not be negative")
	}
	if cfg.LogLevel, err = logging.ParseLevel(*logLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Get the value of environment variables.
func env(key string, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func envInt(key string, def int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return def, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envBool(key string, def bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

// Durations accept Go syntax ("90s") or a plain number of seconds.
func envDuration(key string, def time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return def, nil
	}
	var d time.Duration
	if n, err := strconv.Atoi(val); err == nil {
		d = time.Duration(n) * time.Second
	} else if d, err = time.ParseDuration(val); err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: negative duration", key)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
