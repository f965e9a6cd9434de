package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации сервера
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Network   NetworkConfig   `yaml:"network"`
	Logging   LoggingConfig   `yaml:"logging"`
	World     WorldConfig     `yaml:"world"`
	Storage   StorageConfig   `yaml:"storage"`
	Redis     RedisConfig     `yaml:"redis"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Brand       string `yaml:"brand"`
	MaxPlayers  int32  `yaml:"max_players"`
	Hardcore    bool   `yaml:"hardcore"`
	AdminPort   int    `yaml:"admin_port"`
	MetricsPort int    `yaml:"metrics_port"` // 0 - /metrics на admin-порту
	// Секрет токенов операторов (base64, >= 32 байт); пусто - POST admin API открыты
	AdminSecret   string        `yaml:"admin_secret"`
	AdminTokenTTL time.Duration `yaml:"admin_token_ttl"`
}

// NetworkConfig игровой порт протокола 763
type NetworkConfig struct {
	Listen            string        `yaml:"listen"`
	MOTD              string        `yaml:"motd"`
	GameMode          uint8         `yaml:"game_mode"` // 0 survival .. 3 spectator
	KeepAliveInterval time.Duration `yaml:"keep_alive_interval"`
	Timeout           time.Duration `yaml:"timeout"`
	JoinTimeout       time.Duration `yaml:"join_timeout"`
}

type LoggingConfig struct {
	Dir          string            `yaml:"dir"`
	ConsoleLevel string            `yaml:"console_level"`
	FileLevel    string            `yaml:"file_level"`
	Components   map[string]string `yaml:"components"` // world: trace, network: debug
}

type WorldConfig struct {
	Name               string        `yaml:"name"`
	Seed               int64         `yaml:"seed"`
	MinY               int           `yaml:"min_y"`
	Height             int           `yaml:"height"`
	Generator          string        `yaml:"generator"`   // terrain | flat
	FlatLayers         string        `yaml:"flat_layers"` // "bedrock,dirt*2,grass_block"
	ViewDistance       int32         `yaml:"view_distance"`
	ViewShape          string        `yaml:"view_shape"` // square | circle
	SimulationDistance int32         `yaml:"simulation_distance"`
	PreloadRadius      int32         `yaml:"preload_radius"`
	UnloadGrace        time.Duration `yaml:"unload_grace"`
	TickRate           int           `yaml:"tick_rate"`
	LoadRetries        uint64        `yaml:"load_retries"`
	LoadTimeout        time.Duration `yaml:"load_timeout"`
	ChunkSendRate      float64       `yaml:"chunk_send_rate"`
	ChunkSendBurst     int           `yaml:"chunk_send_burst"`
	Autosave           time.Duration `yaml:"autosave"` // 0 - позиции пишутся только при выходе
}

type StorageConfig struct {
	Path        string `yaml:"path"`
	InMemory    bool   `yaml:"in_memory"`
	Compression string `yaml:"compression"`
	Positions   string `yaml:"positions"` // memory | redis | mysql
	MySQLDSN    string `yaml:"mysql_dsn"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type EventBusConfig struct {
	Backend   string `yaml:"backend"` // memory | nats | none
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
}

type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Default конфигурация без файла
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Brand:         "Graphite",
			MaxPlayers:    20,
			AdminTokenTTL: 24 * time.Hour,
		},
		Network: NetworkConfig{
			Listen:            ":25565",
			MOTD:              "A Graphite server",
			GameMode:          1,
			KeepAliveInterval: 10 * time.Second,
			Timeout:           30 * time.Second,
			JoinTimeout:       10 * time.Second,
		},
		Logging: LoggingConfig{ConsoleLevel: "info", FileLevel: "debug"},
		World: WorldConfig{
			Name:               "minecraft:overworld",
			MinY:               -64,
			Height:             384,
			Generator:          "terrain",
			FlatLayers:         "bedrock,dirt*2,grass_block",
			ViewDistance:       8,
			ViewShape:          "square",
			SimulationDistance: 8,
			PreloadRadius:      2,
			TickRate:           20,
			LoadRetries:        3,
			LoadTimeout:        10 * time.Second,
			ChunkSendRate:      200,
			Autosave:           5 * time.Minute,
		},
		Storage: StorageConfig{
			Path:        "data/chunks",
			Compression: "default",
			Positions:   "memory",
		},
		Redis:     RedisConfig{Addr: "localhost:6379", KeyPrefix: "graphite:pos:"},
		EventBus:  EventBusConfig{Backend: "memory", URL: "nats://127.0.0.1:4222", Stream: "GRAPHITE", Retention: 24},
		Telemetry: TelemetryConfig{ServiceName: "graphite", SampleRatio: 1},
	}
}

// GetAdminPort возвращает порт admin API с поддержкой fallback значений
func (s *ServerConfig) GetAdminPort() int {
	return getPortWithEnvFallback(s.AdminPort, "GRAPHITE_ADMIN_PORT", 8088)
}

// GetMetricsPort возвращает порт метрик; 0 - метрики на admin-порту
func (s *ServerConfig) GetMetricsPort() int {
	return getPortWithEnvFallback(s.MetricsPort, "GRAPHITE_METRICS_PORT", 0)
}

// GetAdminSecret секрет из конфигурации или GRAPHITE_ADMIN_SECRET
func (s *ServerConfig) GetAdminSecret() string {
	if s.AdminSecret != "" {
		return s.AdminSecret
	}
	return os.Getenv("GRAPHITE_ADMIN_SECRET")
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	return defaultPort
}

// Load читает YAML поверх значений по умолчанию.
// Если path == "", берётся GRAPHITE_CONFIG; без него возвращается Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("GRAPHITE_CONFIG")
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate проверяет значения, которые нельзя исправить молча
func (c *Config) Validate() error {
	w := c.World
	switch {
	case w.Name == "":
		return fmt.Errorf("world.name is empty")
	case w.Height <= 0 || w.Height%16 != 0 || w.MinY%16 != 0:
		return fmt.Errorf("world: min_y %d and height %d must be multiples of 16", w.MinY, w.Height)
	case w.ViewDistance < 2 || w.ViewDistance > 32:
		return fmt.Errorf("world.view_distance %d outside 2..32", w.ViewDistance)
	case w.ViewShape != "square" && w.ViewShape != "circle":
		return fmt.Errorf("world.view_shape %q: want square or circle", w.ViewShape)
	case w.Generator != "terrain" && w.Generator != "flat":
		return fmt.Errorf("world.generator %q: want terrain or flat", w.Generator)
	case w.PreloadRadius < 0:
		return fmt.Errorf("world.preload_radius %d is negative", w.PreloadRadius)
	}
	if c.Network.GameMode > 3 {
		return fmt.Errorf("network.game_mode %d outside 0..3", c.Network.GameMode)
	}
	switch c.Storage.Positions {
	case "memory", "redis", "mysql":
	default:
		return fmt.Errorf("storage.positions %q: want memory, redis or mysql", c.Storage.Positions)
	}
	if c.Storage.Positions == "mysql" && c.Storage.MySQLDSN == "" {
		return fmt.Errorf("storage.mysql_dsn is required for mysql positions")
	}
	if r := c.Telemetry.SampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("telemetry.sample_ratio %g outside 0..1", r)
	}
	switch c.EventBus.Backend {
	case "memory", "nats", "none":
	default:
		return fmt.Errorf("eventbus.backend %q: want memory, nats or none", c.EventBus.Backend)
	}
	return nil
}
