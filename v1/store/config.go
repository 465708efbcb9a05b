package store

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Environment variables read by RedisOptionsFromEnv.
const (
	EnvRedisHost     = "RACE_BLOCK_REDIS_HOST"
	EnvRedisPort     = "RACE_BLOCK_REDIS_PORT"
	EnvRedisPassword = "RACE_BLOCK_REDIS_PASSWORD"
	EnvRedisDB       = "RACE_BLOCK_REDIS_DB"
	EnvRedisTimeout  = "RACE_BLOCK_REDIS_TIMEOUT"
)

const (
	defaultRedisHost   = "localhost"
	defaultRedisPort   = 6379
	defaultDialTimeout = time.Second
)

// RedisOptions configures the connection to Redis.
type RedisOptions struct {
	// Addr is a host:port pair. When set it takes precedence over Host and Port.
	Addr     string
	Host     string
	Port     int
	Password string
	DB       int
	// DialTimeout bounds connecting as well as each read and write.
	DialTimeout time.Duration
}

func (o RedisOptions) address() string {
	if o.Addr != "" {
		return o.Addr
	}
	host := o.Host
	if host == "" {
		host = defaultRedisHost
	}
	port := o.Port
	if port == 0 {
		port = defaultRedisPort
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func (o RedisOptions) clientOptions() *redis.Options {
	timeout := o.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	return &redis.Options{
		Addr:         o.address(),
		Password:     o.Password,
		DB:           o.DB,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}
}

// RedisOptionsFromEnv builds RedisOptions from the RACE_BLOCK_REDIS_*
// environment variables. Unset variables keep their defaults.
func RedisOptionsFromEnv() (RedisOptions, error) {
	opts := RedisOptions{
		Host:        defaultRedisHost,
		Port:        defaultRedisPort,
		DialTimeout: defaultDialTimeout,
	}
	if v, ok := os.LookupEnv(EnvRedisHost); ok && v != "" {
		opts.Host = v
	}
	if v, ok := os.LookupEnv(EnvRedisPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return RedisOptions{}, fmt.Errorf("invalid %s %q", EnvRedisPort, v)
		}
		opts.Port = port
	}
	if v, ok := os.LookupEnv(EnvRedisPassword); ok {
		opts.Password = v
	}
	if v, ok := os.LookupEnv(EnvRedisDB); ok && v != "" {
		db, err := strconv.Atoi(v)
		if err != nil || db < 0 {
			return RedisOptions{}, fmt.Errorf("invalid %s %q", EnvRedisDB, v)
		}
		opts.DB = db
	}
	if v, ok := os.LookupEnv(EnvRedisTimeout); ok && v != "" {
		d, err := parseTimeout(v)
		if err != nil {
			return RedisOptions{}, fmt.Errorf("invalid %s %q: %w", EnvRedisTimeout, v, err)
		}
		opts.DialTimeout = d
	}
	return opts, nil
}

// parseTimeout accepts a Go duration ("1500ms") or a number of seconds ("1.5").
func parseTimeout(v string) (time.Duration, error) {
	if d, err := time.ParseDuration(v); err == nil {
		if d <= 0 {
			return 0, fmt.Errorf("timeout must be positive")
		}
		return d, nil
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	if secs <= 0 {
		return 0, fmt.Errorf("timeout must be positive")
	}
	return time.Duration(secs * float64(time.Second)), nil
}
