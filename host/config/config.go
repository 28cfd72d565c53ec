// Package config loads the YAML configuration of txtlink tools and turns
// it into session options.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"txtlink/host/serial"
	"txtlink/host/txt"
	"txtlink/protocol"
	"txtlink/sensor/apds9960"
)

// Config is the file layout. Durations are written like "10ms".
type Config struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Fallback     string `yaml:"fallback"`
	UseExtension bool   `yaml:"use_extension"`

	UpdateInterval time.Duration `yaml:"update_interval"`
	Timeout        time.Duration `yaml:"timeout"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`
	KeepAliveIdle  time.Duration `yaml:"keepalive_idle"`

	Serial  serial.Config `yaml:"serial"`
	Camera  Camera        `yaml:"camera"`
	Gesture Gesture       `yaml:"gesture"`
	Log     Log           `yaml:"log"`
}

type Camera struct {
	Width     int32 `yaml:"width"`
	Height    int32 `yaml:"height"`
	Framerate int32 `yaml:"fps"`
	// Powerline is 0 for auto, 1 for 50Hz, 2 for 60Hz
	Powerline int32 `yaml:"powerline"`
}

// Protocol returns the stream format requested from the controller
func (c Camera) Protocol() protocol.CameraConfig {
	return protocol.CameraConfig{
		Width:     c.Width,
		Height:    c.Height,
		Framerate: c.Framerate,
		Powerline: c.Powerline,
	}
}

type Gesture struct {
	apds9960.DecoderConfig `yaml:",inline"`
	Poll                   time.Duration `yaml:"poll"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// Default returns the configuration used when no file is given
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads and validates the file at path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, fills unset fields with defaults and validates the result
func Parse(data []byte) (*Config, error) {
	c := &Config{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = txt.HostAuto
	}
	if c.Port == 0 {
		c.Port = protocol.DefaultPort
	}
	if c.UpdateInterval == 0 {
		c.UpdateInterval = txt.DefaultUpdateInterval
	}
	if c.Timeout == 0 {
		c.Timeout = txt.DefaultTimeout
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = txt.DefaultProbeTimeout
	}
	if c.KeepAliveIdle == 0 {
		c.KeepAliveIdle = txt.DefaultKeepAliveIdle
	}

	def := serial.DefaultConfig("")
	if c.Serial.Device == "" {
		c.Serial.Device = def.Device
	}
	if c.Serial.Baud == 0 {
		c.Serial.Baud = def.Baud
	}
	if c.Serial.ReadTimeout == 0 {
		c.Serial.ReadTimeout = def.ReadTimeout
	}

	cam := protocol.DefaultCameraConfig()
	if c.Camera.Width == 0 {
		c.Camera.Width = cam.Width
	}
	if c.Camera.Height == 0 {
		c.Camera.Height = cam.Height
	}
	if c.Camera.Framerate == 0 {
		c.Camera.Framerate = cam.Framerate
	}

	g := apds9960.DefaultDecoderConfig()
	if c.Gesture.Threshold == 0 {
		c.Gesture.Threshold = g.Threshold
	}
	if c.Gesture.Accumulated == 0 {
		c.Gesture.Accumulated = g.Accumulated
	}
	if c.Gesture.Instantaneous == 0 {
		c.Gesture.Instantaneous = g.Instantaneous
	}
	if c.Gesture.NearCount == 0 {
		c.Gesture.NearCount = g.NearCount
	}
	if c.Gesture.FarCount == 0 {
		c.Gesture.FarCount = g.FarCount
	}
	if c.Gesture.Poll == 0 {
		c.Gesture.Poll = apds9960.DefaultPollInterval
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate rejects values no session could run with
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port+protocol.RegisterPortOffset > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	for name, d := range map[string]time.Duration{
		"update_interval": c.UpdateInterval,
		"timeout":         c.Timeout,
		"probe_timeout":   c.ProbeTimeout,
		"keepalive_idle":  c.KeepAliveIdle,
		"gesture.poll":    c.Gesture.Poll,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if c.Camera.Powerline < 0 || c.Camera.Powerline > 2 {
		return fmt.Errorf("camera powerline %d: want 0, 1 or 2", c.Camera.Powerline)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log format %q: want text or json", c.Log.Format)
	}
	return nil
}

// ConfigureLogger applies the log level and format to l
func (c *Config) ConfigureLogger(l *logrus.Logger) error {
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	l.SetLevel(level)
	if c.Log.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

// SessionOptions converts the configuration into session options. The
// callbacks and environment seams are left to the caller.
func (c *Config) SessionOptions(log *logrus.Entry, reg prometheus.Registerer) txt.Options {
	sc := c.Serial
	return txt.Options{
		Host:           c.Host,
		Port:           c.Port,
		Fallback:       c.Fallback,
		UseExtension:   c.UseExtension,
		UpdateInterval: c.UpdateInterval,
		Timeout:        c.Timeout,
		ProbeTimeout:   c.ProbeTimeout,
		KeepAliveIdle:  c.KeepAliveIdle,
		Serial:         &sc,
		Logger:         log,
		Registerer:     reg,
	}
}
