package conf

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	zconf "github.com/yola1107/puppeteer/library/log/zap/conf"
)

const Name = "puppeteer"
const Version = "v0.1.0"

// 环境变量覆盖
const (
	EnvRelayEndpoint = "PUPPETEER_RELAY_ENDPOINT"
	EnvTokenFile     = "PUPPETEER_TOKEN_FILE"
	EnvLogLevel      = "PUPPETEER_LOG_LEVEL"
	EnvRedisAddr     = "PUPPETEER_REDIS_ADDR"
)

const (
	StoreFile  = "file"
	StoreRedis = "redis"
)

type Bootstrap struct {
	Relay *Relay        `yaml:"relay"`
	Core  *Core         `yaml:"core"`
	Data  *Data         `yaml:"data"`
	Log   *zconf.Logger `yaml:"log"`
}

type Relay struct {
	Endpoint           string        `yaml:"endpoint"`
	Path               string        `yaml:"path"`
	TokenFile          string        `yaml:"token_file"`
	CookieName         string        `yaml:"cookie_name"`
	DisableCompression bool          `yaml:"disable_compression"`
	HandshakeTimeout   time.Duration `yaml:"handshake_timeout"`
	RetryWindow        time.Duration `yaml:"retry_window"`
	WatchInterval      time.Duration `yaml:"watch_interval"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	ReadDeadline       time.Duration `yaml:"read_deadline"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	ReadLimit          int64         `yaml:"read_limit"`
}

type Core struct {
	QueueCapacity int           `yaml:"queue_capacity"`
	DispatchIdle  time.Duration `yaml:"dispatch_idle"`
	DecayInterval time.Duration `yaml:"decay_interval"`
	CallbackPool  int           `yaml:"callback_pool"`
	WorkerIdle    time.Duration `yaml:"worker_idle"`
	WorkerTTL     time.Duration `yaml:"worker_ttl"`
	WorkerQueue   int           `yaml:"worker_queue"`
	GridSize      int           `yaml:"grid_size"`
}

type Data struct {
	Store string `yaml:"store"`
	File  string `yaml:"file"`
	Redis *Redis `yaml:"redis"`
}

type Redis struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Key          string        `yaml:"key"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Default returns the built in configuration.
func Default() *Bootstrap {
	return &Bootstrap{
		Relay: &Relay{
			Endpoint:         "wss://relay.puppeteer.local",
			Path:             "/connect",
			TokenFile:        "./puppeteer.token",
			CookieName:       "token",
			HandshakeTimeout: 10 * time.Second,
			RetryWindow:      10 * time.Second,
			WatchInterval:    7500 * time.Millisecond,
			PingInterval:     15 * time.Second,
			ReadDeadline:     60 * time.Second,
			WriteTimeout:     10 * time.Second,
			ReadLimit:        1 << 20,
		},
		Core: &Core{
			QueueCapacity: 200,
			DispatchIdle:  10 * time.Millisecond,
			DecayInterval: 500 * time.Millisecond,
			CallbackPool:  4,
			WorkerIdle:    50 * time.Millisecond,
			WorkerTTL:     time.Minute,
			WorkerQueue:   1024,
			GridSize:      9,
		},
		Data: &Data{
			Store: StoreFile,
			File:  "./data/assignments.yaml",
			Redis: &Redis{
				Addr:         "127.0.0.1:6379",
				Key:          "puppeteer:assignments",
				DialTimeout:  time.Second,
				ReadTimeout:  time.Second,
				WriteTimeout: time.Second,
			},
		},
		Log: zconf.DefaultConfig(zconf.WithAppName(Name)),
	}
}

// Load reads path (optional), fills gaps from Default, then applies env overrides.
func Load(path string) (*Bootstrap, error) {
	bc := &Bootstrap{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, bc); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	if err := mergo.Merge(bc, Default()); err != nil {
		return nil, fmt.Errorf("merging defaults: %w", err)
	}

	applyEnvOverrides(bc)

	if err := bc.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return bc, nil
}

func applyEnvOverrides(bc *Bootstrap) {
	if v := os.Getenv(EnvRelayEndpoint); v != "" {
		bc.Relay.Endpoint = v
	}
	if v := os.Getenv(EnvTokenFile); v != "" {
		bc.Relay.TokenFile = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		bc.Log.Level = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		bc.Data.Store = StoreRedis
		bc.Data.Redis.Addr = v
	}
}

func (bc *Bootstrap) Validate() error {
	var errs []string

	if bc.Relay.Endpoint == "" {
		errs = append(errs, "relay.endpoint is required")
	}
	if bc.Relay.TokenFile == "" {
		errs = append(errs, fmt.Sprintf("relay.token_file is required (set %s)", EnvTokenFile))
	}
	if bc.Relay.RetryWindow < time.Second {
		errs = append(errs, "relay.retry_window must be at least 1s")
	}
	if bc.Core.QueueCapacity < 4 {
		errs = append(errs, "core.queue_capacity must be at least 4")
	}
	if bc.Core.GridSize%2 == 0 {
		errs = append(errs, "core.grid_size must be odd")
	}
	switch bc.Data.Store {
	case StoreFile:
		if bc.Data.File == "" {
			errs = append(errs, "data.file is required for the file store")
		}
	case StoreRedis:
		if bc.Data.Redis.Addr == "" {
			errs = append(errs, "data.redis.addr is required for the redis store")
		}
	default:
		errs = append(errs, fmt.Sprintf("data.store %q must be %q or %q", bc.Data.Store, StoreFile, StoreRedis))
	}

	if len(errs) > 0 {
		return errors.New("configuration errors: " + strings.Join(errs, "; "))
	}
	return nil
}
