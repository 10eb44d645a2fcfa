package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Decoder    DecoderConfig    `yaml:"decoder"`
	Player     PlayerConfig     `yaml:"player"`
	Recorder   RecorderConfig   `yaml:"recorder"`
	Tuner      TunerConfig      `yaml:"tuner"`
	Audio      AudioConfig      `yaml:"audio"`
	Recording  RecordingConfig  `yaml:"recording"`
	Location   LocationConfig   `yaml:"location"`
	History    HistoryConfig    `yaml:"history"`
	BER        BERConfig        `yaml:"ber"`
	Log        LogConfig        `yaml:"log"`
	Presets    PresetsConfig    `yaml:"presets"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Prometheus PrometheusConfig `yaml:"prometheus"`
}

// ServerConfig contains HTTP/WebSocket server settings
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// DecoderConfig locates the external HD Radio decoder binary
type DecoderConfig struct {
	Path      string   `yaml:"path"`       // nrsc5 binary (name or absolute path)
	ExtraArgs []string `yaml:"extra_args"` // appended to every invocation
}

// PlayerConfig locates the audio player binary
type PlayerConfig struct {
	Path string `yaml:"path"` // ffplay binary
}

// RecorderConfig locates the recording encoder binary
type RecorderConfig struct {
	Path string `yaml:"path"` // ffmpeg binary
}

// TunerConfig holds the default remote rtl_tcp tuner, if any
type TunerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// AudioConfig sizes the audio fan-out pipeline
type AudioConfig struct {
	ChunkSize            int `yaml:"chunk_size"`
	PlayerBufferChunks   int `yaml:"player_buffer_chunks"`
	RecorderBufferChunks int `yaml:"recorder_buffer_chunks"`
}

// RecordingConfig contains recording output settings
type RecordingConfig struct {
	Directory string `yaml:"directory"`
}

// LocationConfig holds the operator's position for station distance/bearing.
// Lat/lon/altitude are optional; the distance display is disabled without
// them. Altitude is always meters regardless of display units.
type LocationConfig struct {
	Lat      *float64 `yaml:"lat"`
	Lon      *float64 `yaml:"lon"`
	Altitude *float64 `yaml:"altitude"`
	Units    string   `yaml:"units"` // metric | imperial

	units Units // parsed (internal use)
}

// HistoryConfig bounds the play history
type HistoryConfig struct {
	MaxEntries int `yaml:"max_entries"`
}

// BERConfig sizes the bit-error-rate display window
type BERConfig struct {
	Window int `yaml:"window"`
}

// LogConfig bounds the retained decoder log
type LogConfig struct {
	MaxLines int `yaml:"max_lines"`
}

// PresetsConfig locates the preset persistence file
type PresetsConfig struct {
	File string `yaml:"file"`
}

// MQTTConfig contains telemetry publishing settings
type MQTTConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Broker          string `yaml:"broker"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	TopicPrefix     string `yaml:"topic_prefix"`
	PublishInterval int    `yaml:"publish_interval"` // seconds, for metric payloads
}

// PrometheusConfig toggles the /metrics endpoint
type PrometheusConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoadConfig reads, defaults and parses config.yaml
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	units, err := ParseUnits(config.Location.Units)
	if err != nil {
		return nil, err
	}
	config.Location.units = units

	return &config, nil
}

// DefaultConfig returns a config with all defaults applied, used when no
// config file is present
func DefaultConfig() *Config {
	config := &Config{}
	config.applyDefaults()
	config.Location.units = UnitsMetric
	return config
}

func (c *Config) applyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = ":8089"
	}
	if c.Decoder.Path == "" {
		c.Decoder.Path = "nrsc5"
	}
	if c.Player.Path == "" {
		c.Player.Path = "ffplay"
	}
	if c.Recorder.Path == "" {
		c.Recorder.Path = "ffmpeg"
	}
	if c.Audio.ChunkSize == 0 {
		c.Audio.ChunkSize = 4096
	}
	if c.Audio.PlayerBufferChunks == 0 {
		c.Audio.PlayerBufferChunks = 32
	}
	if c.Audio.RecorderBufferChunks == 0 {
		c.Audio.RecorderBufferChunks = 256
	}
	if c.Recording.Directory == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.Recording.Directory = home
		} else {
			c.Recording.Directory = "."
		}
	}
	if c.History.MaxEntries == 0 {
		c.History.MaxEntries = 500
	}
	if c.BER.Window == 0 {
		c.BER.Window = 300
	}
	if c.Log.MaxLines == 0 {
		c.Log.MaxLines = 10000
	}
	if c.Presets.File == "" {
		c.Presets.File = "presets.json"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "hdradio"
	}
	if c.MQTT.PublishInterval == 0 {
		c.MQTT.PublishInterval = 30
	}
}

// Validate checks the configuration for values that cannot work
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	if c.Audio.ChunkSize < 256 {
		return fmt.Errorf("audio.chunk_size must be at least 256")
	}
	if c.Audio.PlayerBufferChunks < 1 || c.Audio.RecorderBufferChunks < 1 {
		return fmt.Errorf("audio buffer sizes must be at least 1 chunk")
	}
	if c.History.MaxEntries < 1 {
		return fmt.Errorf("history.max_entries must be at least 1")
	}
	if c.BER.Window < 10 {
		return fmt.Errorf("ber.window must be at least 10")
	}
	if c.Tuner.Port < 0 || c.Tuner.Port > 65535 {
		return fmt.Errorf("tuner.port must be 0-65535")
	}
	if (c.Location.Lat == nil) != (c.Location.Lon == nil) {
		return fmt.Errorf("location.lat and location.lon must be set together")
	}
	if c.Location.Lat != nil && !validCoordinate(*c.Location.Lat, *c.Location.Lon) {
		return fmt.Errorf("location.lat/lon out of range")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	return nil
}
