// Package config загружает настройки replica и datagate: значения по умолчанию,
// необязательный файл и переменные окружения с префиксом DOCSYNC_.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// EnvPrefix префикс переменных окружения
const EnvPrefix = "DOCSYNC"

// Config полная конфигурация
type Config struct {
	Replica ReplicaConfig `mapstructure:"replica"`
	Gate    GateConfig    `mapstructure:"gate"`
	Log     LogConfig     `mapstructure:"log"`
}

// ReplicaConfig настройки локальной реплики
type ReplicaConfig struct {
	DBPath           string        `mapstructure:"db_path"`
	ServerURL        string        `mapstructure:"server_url"`
	Collection       string        `mapstructure:"collection"`
	NodeID           string        `mapstructure:"node_id"`
	Token            string        `mapstructure:"token"`
	PushInterval     time.Duration `mapstructure:"push_interval"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
	RetryTimeout     time.Duration `mapstructure:"retry_timeout"`
	MaxRetryInterval time.Duration `mapstructure:"max_retry_interval"`
	DialTimeout      time.Duration `mapstructure:"dial_timeout"`
	BatchSize        int           `mapstructure:"batch_size"`
}

// GateConfig настройки DataGate
type GateConfig struct {
	ListenAddr       string        `mapstructure:"listen_addr"`
	DBPath           string        `mapstructure:"db_path"`
	JWTSecret        string        `mapstructure:"jwt_secret"`
	TokenTTL         time.Duration `mapstructure:"token_ttl"`
	ConnectWindow    time.Duration `mapstructure:"connect_window"`
	ReceiptRetention time.Duration `mapstructure:"receipt_retention"` // сколько хранить квитанции для идемпотентности
	PruneInterval    time.Duration `mapstructure:"prune_interval"`
	ConnectRate      int           `mapstructure:"connect_rate"` // подключений реплики за ConnectWindow
}

// LogConfig настройки логирования
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load читает конфигурацию. Пустой path означает работу без файла;
// отсутствующий файл по явному пути считается ошибкой.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.Replica.NodeID == "" {
		cfg.Replica.NodeID = DefaultNodeID(cfg.Replica.DBPath)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Реплика
	v.SetDefault("replica.db_path", "docsync-replica.db")
	v.SetDefault("replica.server_url", "http://localhost:8080")
	v.SetDefault("replica.collection", "default")
	v.SetDefault("replica.node_id", "")
	v.SetDefault("replica.token", "")
	v.SetDefault("replica.push_interval", time.Second)
	v.SetDefault("replica.sweep_interval", 5*time.Second)
	v.SetDefault("replica.retry_timeout", 30*time.Second)
	v.SetDefault("replica.max_retry_interval", 5*time.Minute)
	v.SetDefault("replica.dial_timeout", 30*time.Second)
	v.SetDefault("replica.batch_size", 100)

	// DataGate
	v.SetDefault("gate.listen_addr", ":8080")
	v.SetDefault("gate.db_path", "docsync-gate.db")
	v.SetDefault("gate.jwt_secret", "")
	v.SetDefault("gate.token_ttl", 24*time.Hour)
	v.SetDefault("gate.connect_rate", 30)
	v.SetDefault("gate.connect_window", time.Minute)
	v.SetDefault("gate.receipt_retention", 7*24*time.Hour)
	v.SetDefault("gate.prune_interval", time.Hour)

	v.SetDefault("log.level", "info")
}

// Validate проверяет значения, без которых репликация не работает
func (c *Config) Validate() error {
	var errs []error

	if c.Replica.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("replica.batch_size must be positive, got %d", c.Replica.BatchSize))
	}
	if c.Replica.RetryTimeout <= 0 {
		errs = append(errs, fmt.Errorf("replica.retry_timeout must be positive, got %s", c.Replica.RetryTimeout))
	}
	if c.Replica.MaxRetryInterval < c.Replica.RetryTimeout {
		errs = append(errs, fmt.Errorf("replica.max_retry_interval %s is less than retry_timeout %s",
			c.Replica.MaxRetryInterval, c.Replica.RetryTimeout))
	}
	if c.Replica.PushInterval <= 0 || c.Replica.SweepInterval <= 0 {
		errs = append(errs, errors.New("replica push and sweep intervals must be positive"))
	}
	if c.Replica.Collection == "" {
		errs = append(errs, errors.New("replica.collection is required"))
	}

	return errors.Join(errs...)
}

// ValidateGate проверяет настройки DataGate
func (c *Config) ValidateGate() error {
	var errs []error

	if c.Gate.JWTSecret == "" {
		errs = append(errs, errors.New("gate.jwt_secret is required"))
	}
	if c.Gate.TokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("gate.token_ttl must be positive, got %s", c.Gate.TokenTTL))
	}
	if c.Gate.ConnectRate <= 0 || c.Gate.ConnectWindow <= 0 {
		errs = append(errs, errors.New("gate connect rate and window must be positive"))
	}
	if c.Gate.ReceiptRetention <= 0 || c.Gate.PruneInterval <= 0 {
		errs = append(errs, errors.New("gate receipt retention and prune interval must be positive"))
	}

	return errors.Join(errs...)
}

// DefaultNodeID стабильный идентификатор узла для базы по пути dbPath на этом хосте
func DefaultNodeID(dbPath string) string {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	if abs, err := filepath.Abs(dbPath); err == nil {
		dbPath = abs
	}

	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(host+":"+dbPath)).String()
}

// ParseLevel переводит log.level в slog.Level; неизвестные значения дают info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
