package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Hardware     HardwareConfig
	Cron         CronConfig
	Metrics      MetricsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Hardware.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"HACKPORTAL_APP_ENV" required:"true"`
	LogLevel     string `envconfig:"HACKPORTAL_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"HACKPORTAL_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"HACKPORTAL_SERVICE_KIND" default:"cron-worker"`
}

type DBConfig struct {
	DSN    string `envconfig:"HACKPORTAL_DB_DSN"`
	Driver string `envconfig:"HACKPORTAL_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"HACKPORTAL_DB_HOST"`
	LegacyPort     int    `envconfig:"HACKPORTAL_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"HACKPORTAL_DB_USER"`
	LegacyPassword string `envconfig:"HACKPORTAL_DB_PASSWORD"`
	LegacyName     string `envconfig:"HACKPORTAL_DB_NAME"`
	LegacySSLMode  string `envconfig:"HACKPORTAL_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"HACKPORTAL_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"HACKPORTAL_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"HACKPORTAL_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"HACKPORTAL_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"HACKPORTAL_DB_SLOW_QUERY" default:"200ms"`
}

// IsSQLite reports whether the configured driver is the embedded SQLite one.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"HACKPORTAL_REDIS_URL"`
	Address      string        `envconfig:"HACKPORTAL_REDIS_ADDR"`
	Password     string        `envconfig:"HACKPORTAL_REDIS_PASSWORD"`
	DB           int           `envconfig:"HACKPORTAL_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"HACKPORTAL_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"HACKPORTAL_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"HACKPORTAL_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"HACKPORTAL_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"HACKPORTAL_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether enough settings exist to dial Redis.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

type FeatureFlagsConfig struct {
	AutoMigrate       bool `envconfig:"HACKPORTAL_AUTO_MIGRATE" default:"false"`
	HardwareBroadcast bool `envconfig:"HACKPORTAL_HARDWARE_BROADCAST" default:"true"`
}

// HardwareConfig tunes the reservation engine.
type HardwareConfig struct {
	ReservationTTL time.Duration `envconfig:"HACKPORTAL_HARDWARE_RESERVATION_TTL" default:"30m"`
	TokenBytes     int           `envconfig:"HACKPORTAL_HARDWARE_TOKEN_BYTES" default:"32"`
	TokenAttempts  int           `envconfig:"HACKPORTAL_HARDWARE_TOKEN_ATTEMPTS" default:"3"`
	UpdatesChannel string        `envconfig:"HACKPORTAL_HARDWARE_UPDATES_CHANNEL" default:"hp:hardware:updates"`
}

// MinTokenBytes is the smallest token entropy accepted for reservation tokens.
const MinTokenBytes = 16

func (h HardwareConfig) validate() error {
	if h.ReservationTTL <= 0 {
		return fmt.Errorf("%s must be positive", EnvReservationTTL)
	}
	if h.TokenBytes < MinTokenBytes {
		return fmt.Errorf("%s must be at least %d", EnvTokenBytes, MinTokenBytes)
	}
	return nil
}

type CronConfig struct {
	Interval time.Duration `envconfig:"HACKPORTAL_CRON_INTERVAL" default:"5m"`
	LockTTL  time.Duration `envconfig:"HACKPORTAL_CRON_LOCK_TTL" default:"4m"`
}

type MetricsConfig struct {
	Addr string `envconfig:"HACKPORTAL_METRICS_ADDR" default:":9090"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required for the sqlite driver", EnvDBDSN)
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
