package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config представляет конфигурацию приложения
type Config struct {
	Server struct {
		Port            int           `mapstructure:"port"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"server"`
	DB struct {
		Driver          string        `mapstructure:"driver"` // postgres или mysql
		Host            string        `mapstructure:"host"`
		Port            int           `mapstructure:"port"`
		User            string        `mapstructure:"user"`
		Password        string        `mapstructure:"password"`
		DBName          string        `mapstructure:"name"`
		SSLMode         string        `mapstructure:"sslmode"`
		MaxOpenConns    int           `mapstructure:"max_open_conns"`
		MaxIdleConns    int           `mapstructure:"max_idle_conns"`
		ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
		Migrate         bool          `mapstructure:"migrate"`
	} `mapstructure:"db"`
	JWT struct {
		SecretKey string `mapstructure:"secret_key"`
		ExpiresIn int    `mapstructure:"expires_in"` // в часах
	} `mapstructure:"jwt"`
	SMTP struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
		From     string `mapstructure:"from"`
	} `mapstructure:"smtp"`
	Log struct {
		Dir   string `mapstructure:"dir"`
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
	RateLimit struct {
		Requests int           `mapstructure:"requests"`
		Window   time.Duration `mapstructure:"window"`
	} `mapstructure:"rate_limit"`
	CORS struct {
		AllowedOrigin string `mapstructure:"allowed_origin"`
	} `mapstructure:"cors"`
}

// PlaceholderJWTSecret значение по умолчанию, с которым сервер не запускается
const PlaceholderJWTSecret = "your-secret-key-here"

// NewConfig создает новый экземпляр конфигурации.
// Порядок приоритета: переменные окружения, config.yaml, значения по умолчанию.
func NewConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// SERVER_PORT -> server.port, JWT_SECRET_KEY -> jwt.secret_key и т.д.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("ошибка разбора конфигурации: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults задает значения по умолчанию для всех известных ключей
func setDefaults(v *viper.Viper) {
	// Настройки сервера
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	// Настройки базы данных
	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "postgres")
	v.SetDefault("db.name", "banco_munay")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open_conns", 100)
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.conn_max_lifetime", time.Hour)
	v.SetDefault("db.migrate", true)

	// Настройки JWT
	v.SetDefault("jwt.secret_key", PlaceholderJWTSecret)
	v.SetDefault("jwt.expires_in", 24)

	// Настройки SMTP (пустой host отключает уведомления)
	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")

	// Логирование
	v.SetDefault("log.dir", "")
	v.SetDefault("log.level", "error")

	v.SetDefault("rate_limit.requests", 100)
	v.SetDefault("rate_limit.window", time.Minute)
	v.SetDefault("cors.allowed_origin", "*")
}

// validate проверяет согласованность конфигурации
func (c *Config) validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("неверный порт сервера: %d", c.Server.Port)
	}
	switch c.DB.Driver {
	case "postgres", "mysql":
	default:
		return fmt.Errorf("неподдерживаемый драйвер базы данных: %q", c.DB.Driver)
	}
	if c.JWT.SecretKey == "" {
		return errors.New("JWT_SECRET_KEY не может быть пустым")
	}
	if c.JWT.SecretKey == PlaceholderJWTSecret {
		return errors.New("JWT_SECRET_KEY не задан: значение по умолчанию использовать нельзя")
	}
	if c.JWT.ExpiresIn <= 0 {
		return fmt.Errorf("неверное время жизни JWT: %d", c.JWT.ExpiresIn)
	}
	return nil
}

// TokenTTL возвращает время жизни токена доступа
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.JWT.ExpiresIn) * time.Hour
}
