package configuration

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/iota-uz/utils/fs"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/orgchart/pkg/logging"
)

const Production = "production"

var singleton = sync.OnceValue(func() *Configuration {
	c := &Configuration{}
	if err := c.load([]string{".env", ".env.local"}); err != nil {
		panic(err)
	}
	return c
})

// LoadEnv loads the env files that exist, looking in the working directory
// first and then in the nearest directory containing go.mod.
func LoadEnv(envFiles []string) (int, error) {
	existing := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if fs.FileExists(file) {
			existing = append(existing, file)
		}
	}
	if len(existing) == 0 {
		if root, ok := moduleRoot(); ok {
			for _, file := range envFiles {
				p := filepath.Join(root, file)
				if fs.FileExists(p) {
					existing = append(existing, p)
				}
			}
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

func moduleRoot() (string, bool) {
	dir, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for {
		if fs.FileExists(filepath.Join(dir, "go.mod")) {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"orgchart"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

type OpenTelemetryOptions struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	TempoURL    string `env:"OTEL_TEMPO_URL" envDefault:"localhost:4318"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"orgchart"`
}

type PrometheusOptions struct {
	Enabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"false"`
	Path    string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/debug/prometheus"`
}

type RateLimitOptions struct {
	Enabled   bool   `env:"RATE_LIMIT_ENABLED" envDefault:"false"`
	GlobalRPS int    `env:"RATE_LIMIT_GLOBAL_RPS" envDefault:"1000"`
	Storage   string `env:"RATE_LIMIT_STORAGE" envDefault:"memory"` // memory or redis
	RedisURL  string `env:"RATE_LIMIT_REDIS_URL"`
}

func (r *RateLimitOptions) Validate() error {
	if r.GlobalRPS < 0 {
		return fmt.Errorf("rate limit GlobalRPS must be non-negative, got %d", r.GlobalRPS)
	}
	switch r.Storage {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("invalid RATE_LIMIT_STORAGE=%q (expected memory|redis)", r.Storage)
	}
	return nil
}

type OrgOptions struct {
	// major turns "1.0" into "2.0"; minor turns it into "1.1".
	VersionBump      string        `env:"ORG_VERSION_BUMP" envDefault:"major"`
	ImportMaxBytes   int64         `env:"ORG_IMPORT_MAX_BYTES" envDefault:"10485760"`
	ImportExtensions string        `env:"ORG_IMPORT_EXTENSIONS" envDefault:".xlsx,.xls,.csv,.json"`
	ImportPolicyPath string        `env:"ORG_IMPORT_POLICY_PATH" envDefault:""`
	CacheBackend     string        `env:"ORG_CACHE_BACKEND" envDefault:"memory"`
	CacheTTL         time.Duration `env:"ORG_CACHE_TTL" envDefault:"5m"`
	TxRetries        int           `env:"ORG_TX_RETRIES" envDefault:"3"`

	// memory keeps everything in process; useful for demos and tests.
	Storage     string `env:"ORG_STORAGE" envDefault:"postgres"`
	AutoMigrate bool   `env:"ORG_AUTO_MIGRATE" envDefault:"false"`
}

// Extensions returns the normalized import extension allow-list.
func (o *OrgOptions) Extensions() []string {
	var out []string
	for _, part := range strings.Split(o.ImportExtensions, ",") {
		ext := strings.ToLower(strings.TrimSpace(part))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}

type Configuration struct {
	Database      DatabaseOptions
	OpenTelemetry OpenTelemetryOptions
	Prometheus    PrometheusOptions
	Org           OrgOptions
	RateLimit     RateLimitOptions

	RedisURL         string `env:"REDIS_URL" envDefault:"localhost:6379"`
	ServerPort       int    `env:"PORT" envDefault:"3200"`
	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	SocketAddress    string `env:"-"`
	MaxUploadSize    int64  `env:"MAX_UPLOAD_SIZE" envDefault:"33554432"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"error"`

	// Requests without this header get a generated uuid.
	RequestIDHeader string `env:"REQUEST_ID_HEADER" envDefault:"X-Request-ID"`

	// Comma separated; empty disables CORS handling.
	CorsOrigins string `env:"CORS_ORIGINS" envDefault:"http://localhost:3000"`

	logger *logrus.Logger
}

// AllowedOrigins splits CorsOrigins.
func (c *Configuration) AllowedOrigins() []string {
	var out []string
	for _, part := range strings.Split(c.CorsOrigins, ",") {
		if o := strings.TrimSpace(part); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch c.LogLevel {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}

func Use() *Configuration {
	return singleton()
}

// Load parses the environment into a fresh Configuration without touching
// the process singleton.
func Load(envFiles ...string) (*Configuration, error) {
	c := &Configuration{}
	if err := c.load(envFiles); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 && len(envFiles) > 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := env.Parse(c); err != nil {
		return err
	}
	if err := c.validateOrg(); err != nil {
		return err
	}
	if err := c.RateLimit.Validate(); err != nil {
		return err
	}
	if c.RateLimit.RedisURL == "" {
		c.RateLimit.RedisURL = c.RedisURL
	}

	c.logger = logging.ConsoleLogger(c.LogrusLogLevel())
	c.Database.Opts = c.Database.ConnectionString()
	if c.GoAppEnvironment == Production {
		c.SocketAddress = fmt.Sprintf(":%d", c.ServerPort)
	} else {
		c.SocketAddress = fmt.Sprintf("localhost:%d", c.ServerPort)
	}
	return nil
}

func (c *Configuration) validateOrg() error {
	bump := strings.ToLower(strings.TrimSpace(c.Org.VersionBump))
	if bump == "" {
		bump = "major"
	}
	switch bump {
	case "major", "minor":
	default:
		return fmt.Errorf("invalid ORG_VERSION_BUMP=%q (expected major|minor)", c.Org.VersionBump)
	}
	c.Org.VersionBump = bump

	backend := strings.ToLower(strings.TrimSpace(c.Org.CacheBackend))
	if backend == "" {
		backend = "none"
	}
	switch backend {
	case "none", "memory", "redis":
	default:
		return fmt.Errorf("invalid ORG_CACHE_BACKEND=%q (expected none|memory|redis)", c.Org.CacheBackend)
	}
	c.Org.CacheBackend = backend

	storage := strings.ToLower(strings.TrimSpace(c.Org.Storage))
	switch storage {
	case "", "postgres":
		storage = "postgres"
	case "memory":
	default:
		return fmt.Errorf("invalid ORG_STORAGE=%q (expected postgres|memory)", c.Org.Storage)
	}
	c.Org.Storage = storage

	if c.Org.ImportMaxBytes <= 0 {
		return fmt.Errorf("ORG_IMPORT_MAX_BYTES must be positive, got %d", c.Org.ImportMaxBytes)
	}
	if len(c.Org.Extensions()) == 0 {
		return fmt.Errorf("ORG_IMPORT_EXTENSIONS must list at least one extension")
	}
	if c.Org.TxRetries < 0 {
		return fmt.Errorf("ORG_TX_RETRIES must be non-negative, got %d", c.Org.TxRetries)
	}
	return nil
}
