package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the daemon configuration. Values come from an optional
// rewind.yaml and from REWIND_* environment variables (REWIND_PAYMENT_DSN,
// REWIND_MAIL_API_KEY, ...), environment winning.
type Config struct {
	HTTPAddr string `mapstructure:"http_addr"`
	Workers  int    `mapstructure:"workers"`

	Store struct {
		// Driver selects the history store: memory, sqlite, redis or mongo.
		Driver     string `mapstructure:"driver"`
		SQLitePath string `mapstructure:"sqlite_path"`
		RedisAddr  string `mapstructure:"redis_addr"`
		MongoURI   string `mapstructure:"mongo_uri"`
		MongoDB    string `mapstructure:"mongo_db"`
	} `mapstructure:"store"`

	Payment struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"payment"`

	Queue struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"queue"`

	Mail struct {
		Endpoint   string `mapstructure:"endpoint"`
		APIKey     string `mapstructure:"api_key"`
		Sender     string `mapstructure:"sender"`
		SenderName string `mapstructure:"sender_name"`
	} `mapstructure:"mail"`
}

// Load reads configuration and validates it. A missing required option is a
// startup-fatal configuration error, never a per-request one.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("http_addr", ":8080")
	v.SetDefault("workers", 4)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "rewind.db")
	v.SetDefault("store.mongo_db", "rewind")
	v.SetDefault("mail.endpoint", "https://api.sendgrid.com/v3/mail/send")
	v.SetDefault("mail.sender_name", "Order Desk")

	// Unmarshal only sees keys viper already knows about, so every
	// env-settable key needs at least an empty default.
	v.SetDefault("store.redis_addr", "")
	v.SetDefault("store.mongo_uri", "")
	v.SetDefault("payment.dsn", "")
	v.SetDefault("queue.url", "")
	v.SetDefault("mail.api_key", "")
	v.SetDefault("mail.sender", "")

	v.SetEnvPrefix("REWIND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("rewind")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			// The file is optional; environment alone is a valid setup.
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.Payment.DSN == "" {
		missing = append(missing, "payment.dsn (REWIND_PAYMENT_DSN)")
	}
	if c.Queue.URL == "" {
		missing = append(missing, "queue.url (REWIND_QUEUE_URL)")
	}
	if c.Mail.APIKey == "" {
		missing = append(missing, "mail.api_key (REWIND_MAIL_API_KEY)")
	}
	if c.Mail.Sender == "" {
		missing = append(missing, "mail.sender (REWIND_MAIL_SENDER)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	switch c.Store.Driver {
	case "memory", "sqlite":
	case "redis":
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("store.driver=redis requires store.redis_addr")
		}
	case "mongo":
		if c.Store.MongoURI == "" {
			return fmt.Errorf("store.driver=mongo requires store.mongo_uri")
		}
	default:
		return fmt.Errorf("unknown store.driver %q (memory|sqlite|redis|mongo)", c.Store.Driver)
	}
	return nil
}
