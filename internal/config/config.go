package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Ledger LedgerConfig `mapstructure:"ledger"`
	Node   NodeConfig   `mapstructure:"node"`
	API    APIConfig    `mapstructure:"api"`
	Alerts AlertsConfig `mapstructure:"alerts"`
}

type LedgerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Database     string `mapstructure:"database"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	PollInterval string `mapstructure:"poll_interval"`
}

type NodeConfig struct {
	ID      string `mapstructure:"id"`
	DataDir string `mapstructure:"data_dir"`
}

type APIConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

type AlertsConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	SlackWebhook string `mapstructure:"slack_webhook"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if expanded := os.ExpandEnv(val); expanded != val {
			v.Set(key, expanded)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Ledger.Host == "" {
		return fmt.Errorf("ledger.host is required")
	}
	if c.Ledger.Database == "" {
		return fmt.Errorf("ledger.database is required")
	}
	if c.Ledger.User == "" {
		return fmt.Errorf("ledger.user is required")
	}
	if c.Node.ID == "" {
		return fmt.Errorf("node.id is required")
	}
	if c.Node.DataDir == "" {
		return fmt.Errorf("node.data_dir is required")
	}

	if c.Ledger.PollInterval == "" {
		c.Ledger.PollInterval = "3s"
	}
	if _, err := time.ParseDuration(c.Ledger.PollInterval); err != nil {
		return fmt.Errorf("invalid ledger.poll_interval: %w", err)
	}

	if c.API.ListenAddr == "" {
		c.API.ListenAddr = "127.0.0.1:8080"
	}

	return nil
}

func (l *LedgerConfig) PollDuration() time.Duration {
	d, err := time.ParseDuration(l.PollInterval)
	if err != nil {
		return 3 * time.Second
	}
	return d
}

func (l *LedgerConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		l.Host, l.Port, l.Database, l.User, l.Password)
}
