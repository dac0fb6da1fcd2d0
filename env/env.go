// Package env loads the service configuration from the environment, after
// merging an optional .env file.
package env

import (
	"errors"
	"fmt"
	"time"

	goenv "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

const (
	StoreBadger   = "badger"
	StorePostgres = "postgres"

	LockLocal = "local"
	LockRedis = "redis"

	LiveHub  = "hub"
	LiveNSQ  = "nsq"
	LiveNATS = "nats"
)

type Config struct {
	AppPort  string `env:"APP_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=INFO"`
	// HS256_SECRET signs the access tokens issued by the account service.
	HS256Secret string `env:"HS256_SECRET,required=true"`

	StoreDriver string `env:"STORE_DRIVER,default=badger"`
	DBConn      string `env:"DB_CONN"`
	BadgerPath  string `env:"BADGER_PATH"`

	LockDriver    string        `env:"LOCK_DRIVER,default=local"`
	RedisAddr     string        `env:"REDIS_ADDR,default=localhost:6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	LockTTL       time.Duration `env:"LOCK_TTL,default=10s"`

	LiveDriver     string `env:"LIVE_DRIVER,default=hub"`
	NSQDTCPAddr    string `env:"NSQD_TCP_ADDR,default=localhost:4150"`
	NSQLookupdAddr string `env:"NSQLOOKUPD_ADDR"`
	NATSURL        string `env:"NATS_URL,default=nats://localhost:4222"`

	ExpoAccessToken   string        `env:"EXPO_ACCESS_TOKEN"`
	NotifyTimeout     time.Duration `env:"NOTIFY_TIMEOUT,default=5s"`
	NotifyParallelism int           `env:"NOTIFY_PARALLELISM,default=16"`
	SystemContact     string        `env:"SYSTEM_CONTACT,default=system@groupchat.local"`

	GroupQuota       int           `env:"GROUP_QUOTA,default=5"`
	GroupQuotaWindow time.Duration `env:"GROUP_QUOTA_WINDOW,default=24h"`
	PasswordHashCost int           `env:"PASSWORD_HASH_COST,default=10"`
	ReaperInterval   time.Duration `env:"REAPER_INTERVAL,default=10m"`
}

// Load reads .env when present, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if _, err := goenv.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.HS256Secret == "" {
		errs = append(errs, errors.New("HS256_SECRET is required"))
	}
	switch c.StoreDriver {
	case StoreBadger:
	case StorePostgres:
		if c.DBConn == "" {
			errs = append(errs, errors.New("DB_CONN is required with STORE_DRIVER=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	switch c.LockDriver {
	case LockLocal, LockRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown LOCK_DRIVER %q", c.LockDriver))
	}
	switch c.LiveDriver {
	case LiveHub, LiveNSQ, LiveNATS:
	default:
		errs = append(errs, fmt.Errorf("unknown LIVE_DRIVER %q", c.LiveDriver))
	}
	if c.NotifyParallelism <= 0 {
		errs = append(errs, errors.New("NOTIFY_PARALLELISM must be positive"))
	}
	if c.GroupQuota <= 0 {
		errs = append(errs, errors.New("GROUP_QUOTA must be positive"))
	}
	return errors.Join(errs...)
}
