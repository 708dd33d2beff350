package conf

type Mode int32

const (
	MODE_DEV  Mode = 0
	MODE_PROD Mode = 1
)

type Logger struct {
	Mode       Mode     `yaml:"mode"`
	AppName    string   `yaml:"app_name"`
	Level      string   `yaml:"level"`
	Directory  string   `yaml:"directory"`
	FormatJson bool     `yaml:"format_json"`
	ErrorFile  bool     `yaml:"error_file"`
	Sensitive  []string `yaml:"sensitive"`
	Rotate     *Rotate  `yaml:"rotate"`
}

type Rotate struct {
	MaxSizeMB  int32 `yaml:"max_size_mb"`
	MaxBackups int32 `yaml:"max_backups"`
	MaxAgeDays int32 `yaml:"max_age_days"`
	Compress   bool  `yaml:"compress"`
	LocalTime  bool  `yaml:"local_time"`
}

func DefaultConfig(opts ...Option) *Logger {
	c := &Logger{
		Mode:       MODE_DEV,
		AppName:    "puppeteer",
		Level:      "debug",
		Directory:  "./logs",
		FormatJson: false,
		ErrorFile:  false,
		Sensitive:  []string{"token", "cookie"},
		Rotate: &Rotate{
			MaxSizeMB:  100,
			MaxBackups: 7,
			MaxAgeDays: 7,
			Compress:   true,
			LocalTime:  true,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type Option func(*Logger)

func WithAppName(appName string) Option {
	return func(c *Logger) { c.AppName = appName }
}

func WithProduction() Option {
	return func(c *Logger) {
		c.Mode = MODE_PROD
		c.Level = "info"
	}
}

func WithLevel(level string) Option {
	return func(c *Logger) { c.Level = level }
}

func WithDirectory(dir string) Option {
	return func(c *Logger) { c.Directory = dir }
}

func WithFormatJson(enabled bool) Option {
	return func(c *Logger) { c.FormatJson = enabled }
}

func WithErrorFile(enabled bool) Option {
	return func(c *Logger) { c.ErrorFile = enabled }
}

func WithSensitive(keys []string) Option {
	return func(c *Logger) { c.Sensitive = keys }
}

func WithMaxSizeMB(size int32) Option {
	return func(c *Logger) { c.Rotate.MaxSizeMB = size }
}

func WithMaxBackups(count int32) Option {
	return func(c *Logger) { c.Rotate.MaxBackups = count }
}
