package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullYAML = `
gateway:
  url: "wss://chat.example.com/ws"
  room_type: "live"
  history_page_size: 50
  token_timeout: 5s
  handshake_timeout: 20s
  write_timeout: 3s
  reconnect:
    max_attempts: 3
    initial_interval: 500ms
    max_interval: 10s
backend:
  url: "https://admin.example.com"
  api_token: "yaml-secret"
  timeout: 15s
operator:
  organization_id: "org"
  venue_id: "v1"
images:
  base_url: "https://cdn.example.com/chat"
translation:
  target_language: "ko"
  cache_flag: false
  cache_ttl: 1h
send:
  rate: 1.5
  burst: 3
status:
  enabled: true
  host: "0.0.0.0"
  port: 9000
  shutdown_timeout: 2s
logging:
  level: "debug"
  format: "json"
`

// partialYAML задает только обязательные поля; остальное берется из значений по умолчанию.
const partialYAML = `
gateway:
  url: "ws://localhost:8081/ws"
backend:
  url: "http://localhost:8080"
operator:
  organization_id: "org"
  venue_id: "v1"
`

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	err := os.WriteFile(path, []byte(content), 0644)
	require.NoError(t, err)
	return path
}

func TestLoadFromYAML(t *testing.T) {
	t.Run("Полная конфигурация", func(t *testing.T) {
		cfg := defaultConfig()
		err := loadFromYAML(createTempConfigFile(t, fullYAML), cfg)
		require.NoError(t, err)

		assert.Equal(t, "wss://chat.example.com/ws", cfg.Gateway.URL)
		assert.Equal(t, 50, cfg.Gateway.HistoryPageSize)
		assert.Equal(t, 5*time.Second, cfg.Gateway.TokenTimeout)
		assert.Equal(t, 20*time.Second, cfg.Gateway.HandshakeTimeout)
		assert.Equal(t, 3*time.Second, cfg.Gateway.WriteTimeout)
		assert.Equal(t, Reconnect{MaxAttempts: 3, InitialInterval: 500 * time.Millisecond, MaxInterval: 10 * time.Second}, cfg.Gateway.Reconnect)
		assert.Equal(t, "yaml-secret", cfg.Backend.APIToken)
		assert.Equal(t, Operator{OrganizationID: "org", VenueID: "v1"}, cfg.Operator)
		assert.Equal(t, "ko", cfg.Translation.TargetLanguage)
		assert.False(t, cfg.Translation.CacheFlag)
		assert.Equal(t, time.Hour, cfg.Translation.CacheTTL)
		assert.Equal(t, DefaultCleanupInterval, cfg.Translation.CleanupInterval)
		assert.Equal(t, 1.5, cfg.Send.Rate)
		assert.Equal(t, "0.0.0.0:9000", cfg.StatusAddress())
		assert.Equal(t, "json", cfg.Logging.Format)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("Значения по умолчанию сохраняются", func(t *testing.T) {
		cfg := defaultConfig()
		require.NoError(t, loadFromYAML(createTempConfigFile(t, partialYAML), cfg))

		assert.Equal(t, DefaultHistoryPageSize, cfg.Gateway.HistoryPageSize)
		assert.Equal(t, DefaultRoomType, cfg.Gateway.RoomType)
		assert.Zero(t, cfg.Gateway.Reconnect.MaxAttempts)
		assert.True(t, cfg.Translation.CacheFlag)
		assert.False(t, cfg.Status.Enabled)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("Файл не найден", func(t *testing.T) {
		err := loadFromYAML("non_existent_file.yml", defaultConfig())
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("Некорректный YAML", func(t *testing.T) {
		err := loadFromYAML(createTempConfigFile(t, "invalid yaml: {"), defaultConfig())
		assert.Error(t, err)
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("Переменные окружения переопределяют файл", func(t *testing.T) {
		t.Setenv("CHAT_GATEWAY_URL", "wss://override/ws")
		t.Setenv("CHAT_BACKEND_TOKEN", "env-secret")
		t.Setenv("CHAT_VENUE_ID", "v9")
		t.Setenv("LOG_LEVEL", "warn")

		cfg, err := LoadConfig(createTempConfigFile(t, fullYAML))
		require.NoError(t, err)

		assert.Equal(t, "wss://override/ws", cfg.Gateway.URL)
		assert.Equal(t, "env-secret", cfg.Backend.APIToken)
		assert.Equal(t, "v9", cfg.Operator.VenueID)
		assert.Equal(t, "org", cfg.Operator.OrganizationID)
		assert.Equal(t, "warn", cfg.Logging.Level)
	})

	t.Run("Явно указанный файл обязателен", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
		assert.Error(t, err)
	})

	t.Run("Без файла используются окружение и значения по умолчанию", func(t *testing.T) {
		// t.Chdir requires Go 1.24; equivalent for the Go 1.21 toolchain.
		wd, err := os.Getwd()
		require.NoError(t, err)
		require.NoError(t, os.Chdir(t.TempDir()))
		t.Cleanup(func() { _ = os.Chdir(wd) })
		t.Setenv("CHAT_GATEWAY_URL", "ws://gw/ws")
		t.Setenv("CHAT_BACKEND_URL", "http://backend")
		t.Setenv("CHAT_ORGANIZATION_ID", "org")
		t.Setenv("CHAT_VENUE_ID", "v1")

		cfg, err := LoadConfig("")
		require.NoError(t, err)
		assert.Equal(t, "ws://gw/ws", cfg.Gateway.URL)
		assert.NoError(t, cfg.Validate())
	})
}

func TestValidate(t *testing.T) {
	validConfig := func(t *testing.T) *Config {
		cfg := defaultConfig()
		require.NoError(t, loadFromYAML(createTempConfigFile(t, fullYAML), cfg))
		return cfg
	}

	testCases := []struct {
		name    string
		mutator func(*Config)
		wantErr bool
	}{
		{"Корректная конфигурация", func(c *Config) {}, false},
		{"Нет адреса шлюза", func(c *Config) { c.Gateway.URL = "" }, true},
		{"Шлюз по http", func(c *Config) { c.Gateway.URL = "http://chat.example.com" }, true},
		{"Бэкенд по ws", func(c *Config) { c.Backend.URL = "ws://admin" }, true},
		{"Некорректный адрес изображений", func(c *Config) { c.Images.BaseURL = "cdn" }, true},
		{"Пустой адрес изображений допустим", func(c *Config) { c.Images.BaseURL = "" }, false},
		{"Нет площадки", func(c *Config) { c.Operator.VenueID = "" }, true},
		{"Нулевой размер страницы", func(c *Config) { c.Gateway.HistoryPageSize = 0 }, true},
		{"Нулевой таймаут рукопожатия", func(c *Config) { c.Gateway.HandshakeTimeout = 0 }, true},
		{"Отрицательные попытки", func(c *Config) { c.Gateway.Reconnect.MaxAttempts = -1 }, true},
		{"Интервалы переподключения перепутаны", func(c *Config) { c.Gateway.Reconnect.MaxInterval = time.Millisecond }, true},
		{"Без переподключения интервалы не важны", func(c *Config) {
			c.Gateway.Reconnect = Reconnect{}
		}, false},
		{"Нет языка перевода", func(c *Config) { c.Translation.TargetLanguage = "" }, true},
		{"Нулевой TTL кэша", func(c *Config) { c.Translation.CacheFlag = true; c.Translation.CacheTTL = 0 }, true},
		{"Отрицательная частота", func(c *Config) { c.Send.Rate = -1 }, true},
		{"Нулевой burst", func(c *Config) { c.Send.Burst = 0 }, true},
		{"Без ограничения burst не важен", func(c *Config) { c.Send.Rate = 0; c.Send.Burst = 0 }, false},
		{"Некорректный порт", func(c *Config) { c.Status.Port = 0 }, true},
		{"Порт не проверяется без сервера", func(c *Config) { c.Status.Enabled = false; c.Status.Port = 0 }, false},
		{"Некорректный уровень логирования", func(c *Config) { c.Logging.Level = "wrong" }, true},
		{"Некорректный формат логов", func(c *Config) { c.Logging.Format = "xml" }, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig(t)
			tc.mutator(cfg)
			err := cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
