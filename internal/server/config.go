package server

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/shaunagostinho/gaugedash/internal/button"
	"github.com/shaunagostinho/gaugedash/internal/layout"
	"github.com/shaunagostinho/gaugedash/internal/tft"
)

const DefaultConfigPath = "/etc/gaugedash/config.yaml"

// Config holds the application configuration. The screen layout and the
// persisted mode flags live in the settings store, not here.
type Config struct {
	mu sync.RWMutex

	ECU     ECUConfig     `yaml:"ecu" json:"ecu"`
	Display DisplayConfig `yaml:"display" json:"display"`
	Button  button.Config `yaml:"button" json:"button"`
	Storage StorageConfig `yaml:"storage" json:"storage"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Server  ServerConfig  `yaml:"server" json:"server"`

	path string // file path for save/load
}

type ECUConfig struct {
	// Transport overrides the persisted transport mode: "can", "serial",
	// "demo", or "" to use the stored mode.
	Transport    string `yaml:"transport" json:"transport"`
	CANInterface string `yaml:"can_interface" json:"canInterface"`
	PortPath     string `yaml:"port_path" json:"portPath"` // e.g. /dev/ttySpeeduino
	BaudRate     int    `yaml:"baud_rate" json:"baudRate"`
	CanID        int    `yaml:"can_id" json:"canId"`
	TimeoutMs    int    `yaml:"timeout_ms" json:"timeoutMs"`
}

type DisplayConfig struct {
	Preset string     `yaml:"preset" json:"preset"` // seed layout for blank storage
	FPS    int        `yaml:"fps" json:"fps"`
	Splash bool       `yaml:"splash" json:"splash"`
	Panel  tft.Config `yaml:"panel" json:"panel"`
}

type StorageConfig struct {
	Path string `yaml:"path" json:"path"`
}

type LoggingConfig struct {
	Level string `yaml:"level" json:"level"` // logrus level name
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listenAddr"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ECU: ECUConfig{
			CANInterface: "can0",
			PortPath:     "/dev/ttySpeeduino",
			BaudRate:     115200,
			CanID:        0,
			TimeoutMs:    50,
		},
		Display: DisplayConfig{
			Preset: layout.PresetCluster9,
			FPS:    100,
			Splash: true,
			Panel:  tft.DefaultConfig(),
		},
		Button: button.DefaultConfig(),
		Storage: StorageConfig{
			Path: "/var/lib/gaugedash/eeprom.bin",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Server: ServerConfig{
			ListenAddr: ":80",
		},
	}
}

// LoadConfig reads config from a YAML file, then applies .env and environment
// variable overrides. Falls back to defaults if YAML not found.
func LoadConfig(path string) *Config {
	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		log.Infof("[config] no config at %s, using defaults", path)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Warnf("[config] error parsing %s: %v, using defaults", path, err)
		cfg = DefaultConfig()
		cfg.path = path
	} else {
		log.Infof("[config] loaded from %s", path)
	}

	envPaths := []string{
		filepath.Join(filepath.Dir(path), ".env"),
		".env",
	}
	for _, ep := range envPaths {
		loadEnvFile(ep)
	}

	cfg.applyEnvOverrides()
	return cfg
}

// loadEnvFile reads a simple KEY=VALUE .env file and sets os env vars.
func loadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	log.Infof("[config] loading .env from %s", path)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.Trim(strings.TrimSpace(val), `"'`)
		// real env takes precedence
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

// applyEnvOverrides reads environment variables and overrides config values.
// Supported: ECU_TRANSPORT, CAN_IFACE, ECU_PORT, ECU_BAUD, LAYOUT_PRESET,
// STORAGE_PATH, LOG_LEVEL, LISTEN_ADDR
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ECU_TRANSPORT"); v != "" {
		c.ECU.Transport = v
	}
	if v := os.Getenv("CAN_IFACE"); v != "" {
		c.ECU.CANInterface = v
	}
	if v := os.Getenv("ECU_PORT"); v != "" {
		c.ECU.PortPath = v
	}
	if v := os.Getenv("ECU_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ECU.BaudRate = n
		}
	}
	if v := os.Getenv("LAYOUT_PRESET"); v != "" {
		c.Display.Preset = v
	}
	if v := os.Getenv("STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
}

// Save writes the config to its YAML file.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.path == "" {
		c.path = DefaultConfigPath
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}
	return errors.Wrap(os.WriteFile(c.path, data, 0644), "write config")
}

// ToJSON serializes config for the API.
func (c *Config) ToJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(c)
}

// UpdateFromJSON applies a partial JSON config update by deep-merging
// incoming fields into the existing config. Fields not present in the
// incoming JSON are preserved.
func (c *Config) UpdateFromJSON(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	currentBytes, err := json.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "marshal current config")
	}
	var base map[string]interface{}
	if err := json.Unmarshal(currentBytes, &base); err != nil {
		return errors.Wrap(err, "unmarshal current config")
	}

	var patch map[string]interface{}
	if err := json.Unmarshal(data, &patch); err != nil {
		return errors.Wrap(err, "unmarshal patch")
	}

	deepMerge(base, patch)

	merged, err := json.Marshal(base)
	if err != nil {
		return errors.Wrap(err, "marshal merged config")
	}
	return json.Unmarshal(merged, c)
}

// deepMerge recursively merges src into dst. For nested maps, values are
// merged rather than replaced. For all other types, src overwrites dst.
func deepMerge(dst, src map[string]interface{}) {
	for key, srcVal := range src {
		if srcMap, ok := srcVal.(map[string]interface{}); ok {
			if dstMap, ok := dst[key].(map[string]interface{}); ok {
				deepMerge(dstMap, srcMap)
				continue
			}
		}
		dst[key] = srcVal
	}
}
