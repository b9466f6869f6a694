package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v2"
)

const DefaultConfigPath = "dsumotion.toml"

// File is the on-disk layout: the DSU snapshot plus settings for the sinks.
type File struct {
	DSU        Config         `toml:"dsu" yaml:"dsu"`
	Foxglove   FoxgloveConfig `toml:"foxglove" yaml:"foxglove"`
	MQTT       MQTTConfig     `toml:"mqtt" yaml:"mqtt"`
	Log        LogConfig      `toml:"log" yaml:"log"`
	configPath string         `toml:"-" yaml:"-"`
}

type FoxgloveConfig struct {
	Enabled     bool   `toml:"enabled" yaml:"enabled"`
	WSAddr      string `toml:"ws_addr" yaml:"ws_addr"`
	ParentFrame string `toml:"parent_frame" yaml:"parent_frame"`
	FrameID     string `toml:"frame_id" yaml:"frame_id"`
}

type MQTTConfig struct {
	Enabled     bool   `toml:"enabled" yaml:"enabled"`
	URL         string `toml:"url" yaml:"url"`
	ClientID    string `toml:"client_id" yaml:"client_id"`
	Username    string `toml:"username" yaml:"username"`
	Password    string `toml:"password" yaml:"password"`
	TopicPrefix string `toml:"topic_prefix" yaml:"topic_prefix"`
	QoS         int    `toml:"qos" yaml:"qos"`
}

type LogConfig struct {
	Level   string `toml:"level" yaml:"level"`
	JSONL   string `toml:"jsonl" yaml:"jsonl"`
	Samples bool   `toml:"samples" yaml:"samples"`
}

func DefaultFile() File {
	return File{
		DSU: Default(),
		Foxglove: FoxgloveConfig{
			Enabled:     false,
			WSAddr:      "127.0.0.1:8765",
			ParentFrame: "world",
			FrameID:     "pad",
		},
		MQTT: MQTTConfig{
			Enabled:     false,
			URL:         "tcp://127.0.0.1:1883",
			ClientID:    "dsumotion",
			TopicPrefix: "dsumotion",
			QoS:         0,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func Load(path string) (File, error) {
	f, exists, err := LoadOrDefault(path)
	if err != nil {
		return File{}, err
	}
	if !exists {
		return File{}, os.ErrNotExist
	}
	return f, nil
}

// LoadOrDefault reads path and fills anything it leaves out from DefaultFile.
// A missing file yields the defaults and exists=false.
func LoadOrDefault(path string) (File, bool, error) {
	f := DefaultFile()
	f.configPath = path

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			f.normalize()
			return f, false, nil
		}
		return File{}, false, fmt.Errorf("read config: %w", err)
	}

	if err := unmarshal(path, data, &f); err != nil {
		return File{}, true, fmt.Errorf("parse config: %w", err)
	}
	f.configPath = path
	f.normalize()

	if err := f.Validate(); err != nil {
		return File{}, true, err
	}
	return f, true, nil
}

func (f *File) Save(path string) error {
	f.normalize()
	if err := f.Validate(); err != nil {
		return err
	}

	data, err := marshal(path, f)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	f.configPath = path
	return nil
}

func (f *File) ConfigPath() string {
	return f.configPath
}

func (f *File) Validate() error {
	if err := f.DSU.Validate(); err != nil {
		return err
	}
	if f.MQTT.QoS < 0 || f.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos out of range: %d", f.MQTT.QoS)
	}
	if f.MQTT.Enabled && f.MQTT.URL == "" {
		return fmt.Errorf("mqtt.url is empty")
	}
	switch strings.ToLower(f.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error: %q", f.Log.Level)
	}
	return nil
}

func (f *File) normalize() {
	def := DefaultFile()

	if f.Foxglove.WSAddr == "" {
		f.Foxglove.WSAddr = def.Foxglove.WSAddr
	}
	if f.Foxglove.ParentFrame == "" {
		f.Foxglove.ParentFrame = def.Foxglove.ParentFrame
	}
	if f.Foxglove.FrameID == "" {
		f.Foxglove.FrameID = def.Foxglove.FrameID
	}
	if f.MQTT.URL == "" {
		f.MQTT.URL = def.MQTT.URL
	}
	if f.MQTT.ClientID == "" {
		f.MQTT.ClientID = def.MQTT.ClientID
	}
	if f.MQTT.TopicPrefix == "" {
		f.MQTT.TopicPrefix = def.MQTT.TopicPrefix
	}
	f.MQTT.TopicPrefix = strings.TrimRight(f.MQTT.TopicPrefix, "/")
	if f.Log.Level == "" {
		f.Log.Level = def.Log.Level
	}
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

func unmarshal(path string, data []byte, f *File) error {
	if isYAML(path) {
		return yaml.Unmarshal(data, f)
	}
	return toml.Unmarshal(data, f)
}

func marshal(path string, f *File) ([]byte, error) {
	if isYAML(path) {
		return yaml.Marshal(f)
	}
	return toml.Marshal(f)
}
