package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Config struct {
	App struct {
		Env       string
		Timezone  string
		LogFormat string `mapstructure:"log_format"`
	} `mapstructure:"app"`

	Telegram struct {
		Token       string
		AdminChatID int64 `mapstructure:"admin_chat_id"`
		PollTimeout int   `mapstructure:"poll_timeout"`
	} `mapstructure:"telegram"`

	HTTP struct {
		Addr string
	} `mapstructure:"http"`

	Postgres struct {
		DSN         string
		MaxConns    int32         `mapstructure:"max_conns"`
		LockTimeout time.Duration `mapstructure:"lock_timeout"`
	} `mapstructure:"postgres"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`

	Redis struct {
		Addr     string
		Password string
		DB       int           `mapstructure:"db"`
		LockTTL  time.Duration `mapstructure:"lock_ttl"`
	} `mapstructure:"redis"`

	Tracking struct {
		DefaultAllocation int           `mapstructure:"default_allocation"`
		MaxRetries        uint64        `mapstructure:"max_retries"`
		RetryBase         time.Duration `mapstructure:"retry_base"`
	} `mapstructure:"tracking"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "prod")
	v.SetDefault("app.timezone", "UTC")
	v.SetDefault("app.log_format", "json")
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.admin_chat_id", 0)
	v.SetDefault("telegram.poll_timeout", 30)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.lock_timeout", "3s")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", "10s")
	// стандартная ёмкость ячейки — столько кладём, если оператор не указал количество
	v.SetDefault("tracking.default_allocation", 200)
	v.SetDefault("tracking.max_retries", 3)
	v.SetDefault("tracking.retry_base", "50ms")
}

func Load(path string) (Config, error) {
	// .env не обязателен
	_ = gotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	// APP_POSTGRES_DSN перекрывает postgres.dsn и т.д.
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if err := v.ReadInConfig(); err != nil {
		return c, err
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	if err := c.validate(); err != nil {
		return c, err
	}
	return c, nil
}

func (c Config) validate() error {
	if c.Postgres.DSN == "" {
		return fmt.Errorf("config: postgres.dsn is required")
	}
	if c.Tracking.DefaultAllocation <= 0 {
		return fmt.Errorf("config: tracking.default_allocation must be > 0, got %d", c.Tracking.DefaultAllocation)
	}
	return nil
}
