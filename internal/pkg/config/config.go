// Package config предоставляет управление конфигурацией приложения
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// DefaultFile это файл конфигурации, который читается, если путь не задан явно.
const DefaultFile = "config.yml"

// Reconnect содержит политику переподключения после обрыва соединения
type Reconnect struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
}

// Gateway содержит конфигурацию шлюза чата
type Gateway struct {
	URL              string        `yaml:"url"`
	RoomType         string        `yaml:"room_type"`
	HistoryPageSize  int           `yaml:"history_page_size"`
	TokenTimeout     time.Duration `yaml:"token_timeout"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	Reconnect        Reconnect     `yaml:"reconnect"`
}

// Backend содержит конфигурацию REST API бэкенда
type Backend struct {
	URL      string        `yaml:"url"`
	APIToken string        `yaml:"api_token"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Operator идентифицирует оператора консоли
type Operator struct {
	OrganizationID string `yaml:"organization_id"`
	VenueID        string `yaml:"venue_id"`
}

// Images содержит конфигурацию хранилища изображений
type Images struct {
	BaseURL string `yaml:"base_url"`
}

// Translation содержит конфигурацию перевода
type Translation struct {
	TargetLanguage  string        `yaml:"target_language"`
	CacheFlag       bool          `yaml:"cache_flag"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// Send содержит ограничение частоты отправки сообщений
type Send struct {
	Rate  float64 `yaml:"rate"` // сообщений в секунду, 0 - без ограничений
	Burst int     `yaml:"burst"`
}

// Status содержит конфигурацию HTTP-сервера состояния
type Status struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Logging содержит конфигурацию логирования
type Logging struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Config содержит конфигурацию приложения
type Config struct {
	Gateway     Gateway     `yaml:"gateway"`
	Backend     Backend     `yaml:"backend"`
	Operator    Operator    `yaml:"operator"`
	Images      Images      `yaml:"images"`
	Translation Translation `yaml:"translation"`
	Send        Send        `yaml:"send"`
	Status      Status      `yaml:"status"`
	Logging     Logging     `yaml:"logging"`
}

// LoadConfig загружает конфигурацию: значения по умолчанию, затем YAML-файл,
// затем .env и переменные окружения. Пустой path означает DefaultFile,
// отсутствие которого не считается ошибкой.
func LoadConfig(path string) (*Config, error) {
	// .env необязателен
	_ = godotenv.Load()

	cfg := defaultConfig()
	optional := path == ""
	if optional {
		path = DefaultFile
	}
	if err := loadFromYAML(path, cfg); err != nil {
		if !(optional && errors.Is(err, os.ErrNotExist)) {
			return nil, err
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Gateway: Gateway{
			RoomType:         DefaultRoomType,
			HistoryPageSize:  DefaultHistoryPageSize,
			TokenTimeout:     DefaultTokenTimeout,
			HandshakeTimeout: DefaultHandshakeTimeout,
			WriteTimeout:     DefaultWriteTimeout,
			Reconnect: Reconnect{
				MaxAttempts:     DefaultReconnectAttempts,
				InitialInterval: DefaultReconnectInitialInterval,
				MaxInterval:     DefaultReconnectMaxInterval,
			},
		},
		Backend: Backend{
			Timeout: DefaultBackendTimeout,
		},
		Translation: Translation{
			TargetLanguage:  DefaultTargetLanguage,
			CacheFlag:       true,
			CacheTTL:        DefaultCacheTTL,
			CleanupInterval: DefaultCleanupInterval,
		},
		Send: Send{
			Rate:  DefaultSendRate,
			Burst: DefaultSendBurst,
		},
		Status: Status{
			Host:            DefaultStatusHost,
			Port:            DefaultStatusPort,
			ReadTimeout:     DefaultReadTimeout,
			IdleTimeout:     DefaultIdleTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Logging: Logging{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// loadFromYAML накладывает значения из YAML-файла поверх cfg
func loadFromYAML(filename string, cfg *Config) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("не удалось прочитать файл конфигурации %s: %w", filename, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("не удалось разобрать YAML конфигурацию: %w", err)
	}

	return nil
}

// applyEnv переопределяет адреса, секреты и уровень логирования из окружения
func applyEnv(cfg *Config) {
	cfg.Gateway.URL = getEnv("CHAT_GATEWAY_URL", cfg.Gateway.URL)
	cfg.Backend.URL = getEnv("CHAT_BACKEND_URL", cfg.Backend.URL)
	cfg.Backend.APIToken = getEnv("CHAT_BACKEND_TOKEN", cfg.Backend.APIToken)
	cfg.Operator.OrganizationID = getEnv("CHAT_ORGANIZATION_ID", cfg.Operator.OrganizationID)
	cfg.Operator.VenueID = getEnv("CHAT_VENUE_ID", cfg.Operator.VenueID)
	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
}

// StatusAddress возвращает адрес сервера состояния в формате "host:port"
func (c *Config) StatusAddress() string {
	return fmt.Sprintf("%s:%d", c.Status.Host, c.Status.Port)
}

// Validate проверяет, являются ли значения конфигурации допустимыми
func (c *Config) Validate() error {
	if err := validateURL("gateway.url", c.Gateway.URL, "ws", "wss"); err != nil {
		return err
	}
	if err := validateURL("backend.url", c.Backend.URL, "http", "https"); err != nil {
		return err
	}
	if c.Images.BaseURL != "" {
		if err := validateURL("images.base_url", c.Images.BaseURL, "http", "https"); err != nil {
			return err
		}
	}

	if c.Operator.OrganizationID == "" || c.Operator.VenueID == "" {
		return fmt.Errorf("operator.organization_id и operator.venue_id должны быть заданы")
	}
	if c.Gateway.RoomType == "" {
		return fmt.Errorf("gateway.room_type не может быть пустым")
	}
	if c.Gateway.HistoryPageSize <= 0 {
		return fmt.Errorf("gateway.history_page_size должно быть положительным")
	}
	if c.Gateway.TokenTimeout <= 0 || c.Gateway.HandshakeTimeout <= 0 || c.Gateway.WriteTimeout <= 0 {
		return fmt.Errorf("таймауты gateway должны быть положительными")
	}

	r := c.Gateway.Reconnect
	if r.MaxAttempts < 0 {
		return fmt.Errorf("gateway.reconnect.max_attempts должно быть неотрицательным (0 - без переподключения)")
	}
	if r.MaxAttempts > 0 && (r.InitialInterval <= 0 || r.MaxInterval < r.InitialInterval) {
		return fmt.Errorf("gateway.reconnect: нужен initial_interval > 0 и max_interval >= initial_interval")
	}

	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend.timeout должно быть положительным")
	}
	if c.Translation.TargetLanguage == "" {
		return fmt.Errorf("translation.target_language не может быть пустым")
	}
	if c.Translation.CacheFlag && (c.Translation.CacheTTL <= 0 || c.Translation.CleanupInterval <= 0) {
		return fmt.Errorf("translation.cache_ttl и translation.cleanup_interval должны быть положительными")
	}

	if c.Send.Rate < 0 {
		return fmt.Errorf("send.rate должно быть неотрицательным (0 - без ограничений)")
	}
	if c.Send.Rate > 0 && c.Send.Burst <= 0 {
		return fmt.Errorf("send.burst должно быть положительным")
	}

	if c.Status.Enabled {
		if c.Status.Port <= 0 || c.Status.Port > 65535 {
			return fmt.Errorf("status.port должен быть действительным номером порта (1-65535)")
		}
		if c.Status.ShutdownTimeout <= 0 {
			return fmt.Errorf("status.shutdown_timeout должно быть положительным")
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level должен быть одним из: debug, info, warn, error")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format должен быть text или json")
	}

	return nil
}

func validateURL(field, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s не может быть пустым", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	for _, s := range schemes {
		if strings.EqualFold(u.Scheme, s) && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s: ожидается схема %s и хост", field, strings.Join(schemes, "/"))
}

// getEnv извлекает значение переменной окружения или возвращает значение по умолчанию, если она не установлена
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
