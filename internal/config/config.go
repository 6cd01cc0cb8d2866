package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates all runtime settings required by the application.
type Config struct {
	AppName       string
	Environment   string
	HTTP          HTTPConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Buffer        BufferConfig
	Context       ContextConfig
	Logger        LoggerConfig
	Migrations    MigrationsConfig
	Collaborators CollaboratorsConfig
	Finance       FinanceConfig
	Recurrence    RecurrenceConfig
	BoardCacheTTL time.Duration
}

type HTTPConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	URL             string
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	MaxConnLifetime time.Duration
	SSLMode         string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type BufferConfig struct {
	Path         string
	SyncInterval time.Duration
	MaxRetry     int
	Retention    time.Duration
}

type ContextConfig struct {
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

type LoggerConfig struct {
	Level    string
	Encoding string
}

type MigrationsConfig struct {
	Enabled bool
	Path    string
}

// CollaboratorsConfig points at the external services the engine consults.
type CollaboratorsConfig struct {
	EmployeeDirectoryURL string
	TimeEntryURL         string
	ContractURL          string
	ApartmentURL         string
	ServiceURL           string
	InvoiceURL           string
	LookupTimeout        time.Duration
}

// FinanceConfig tunes the ad hoc pricing rollup.
type FinanceConfig struct {
	ServiceFee float64
	Currency   string
}

// RecurrenceConfig controls the template scheduler.
type RecurrenceConfig struct {
	Enabled      bool
	PollInterval time.Duration
}

// Load reads configuration from environment variables (optionally .env)
// and applies sane defaults so the service can boot in any environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		AppName:     getString("APP_NAME", "fieldops-backend"),
		Environment: getString("APP_ENV", "development"),
		HTTP: HTTPConfig{
			Host:         getString("SERVER_HOST", "0.0.0.0"),
			Port:         getString("SERVER_PORT", "8080"),
			ReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			Host:            getString("DB_HOST", "localhost"),
			Port:            getString("DB_PORT", "5432"),
			Name:            getString("DB_NAME", "fieldops_db"),
			User:            getString("DB_USER", "fieldops_user"),
			Password:        os.Getenv("DB_PASSWORD"),
			MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 10),
			MaxConnLifetime: getDuration("DB_CONN_LIFETIME", time.Hour),
			SSLMode:         getString("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			URL:      getString("REDIS_URL", "redis://localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret: os.Getenv("JWT_SECRET"),
			Issuer: getString("JWT_ISSUER", "fieldops-backend"),
		},
		Buffer: BufferConfig{
			Path:         getString("BOLTDB_PATH", "./data/commands.db"),
			SyncInterval: getDuration("SYNC_INTERVAL_SECONDS", 30*time.Second),
			MaxRetry:     getInt("MAX_RETRY_ATTEMPTS", 3),
			Retention:    getDuration("BUFFER_RETENTION", 24*time.Hour),
		},
		Context: ContextConfig{
			RequestTimeout:  getDuration("REQUEST_TIMEOUT_SECONDS", 5*time.Second),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT_SECONDS", 15*time.Second),
		},
		Logger: LoggerConfig{
			Level:    getString("LOG_LEVEL", "info"),
			Encoding: getString("LOG_ENCODING", "json"),
		},
		Migrations: MigrationsConfig{
			Enabled: getBool("RUN_MIGRATIONS", true),
			Path:    getString("MIGRATIONS_PATH", "./assets/migrations"),
		},
		Collaborators: CollaboratorsConfig{
			EmployeeDirectoryURL: getString("EMPLOYEE_DIRECTORY_URL", "http://localhost:8091"),
			TimeEntryURL:         getString("TIME_ENTRY_URL", "http://localhost:8092"),
			ContractURL:          getString("CONTRACT_URL", "http://localhost:8093"),
			ApartmentURL:         getString("APARTMENT_URL", "http://localhost:8094"),
			ServiceURL:           getString("SERVICE_URL", "http://localhost:8094"),
			InvoiceURL:           getString("INVOICE_URL", "http://localhost:8095"),
			LookupTimeout:        getDuration("LOOKUP_TIMEOUT", 3*time.Second),
		},
		Finance: FinanceConfig{
			ServiceFee: getFloat("FINANCE_SERVICE_FEE", 49.0),
			Currency:   getString("FINANCE_CURRENCY", "EUR"),
		},
		Recurrence: RecurrenceConfig{
			Enabled:      getBool("RECURRENCE_ENABLED", true),
			PollInterval: getDuration("RECURRENCE_POLL_INTERVAL", time.Minute),
		},
		BoardCacheTTL: getDuration("BOARD_CACHE_TTL", 15*time.Second),
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = buildPostgresURL(cfg)
	}

	return cfg, nil
}

// MustLoad panics if configuration cannot be loaded.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func buildPostgresURL(cfg *Config) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)
}

func getString(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

// Address returns the HTTP listen address for the fasthttp server.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%s", c.HTTP.Host, c.HTTP.Port)
}
