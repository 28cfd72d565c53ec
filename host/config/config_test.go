package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txtlink/host/serial"
	"txtlink/host/txt"
	"txtlink/protocol"
	"txtlink/sensor/apds9960"
)

func TestDefault(t *testing.T) {
	c := Default()

	assert.Equal(t, txt.HostAuto, c.Host)
	assert.Equal(t, 65000, c.Port)
	assert.Equal(t, 10*time.Millisecond, c.UpdateInterval)
	assert.Equal(t, 5*time.Second, c.Timeout)
	assert.Equal(t, 500*time.Millisecond, c.ProbeTimeout)
	assert.Equal(t, time.Second, c.KeepAliveIdle)
	assert.Equal(t, *serial.DefaultConfig(""), c.Serial)
	assert.Equal(t, protocol.DefaultCameraConfig(), c.Camera.Protocol())
	assert.Equal(t, apds9960.DefaultDecoderConfig(), c.Gesture.DecoderConfig)
	assert.Equal(t, 30*time.Millisecond, c.Gesture.Poll)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, "text", c.Log.Format)
	assert.NoError(t, c.Validate())
}

func TestParse(t *testing.T) {
	c, err := Parse([]byte(`
host: 192.168.8.2
use_extension: true
update_interval: 20ms
serial:
  device: /dev/ttyUSB0
camera:
  width: 640
  height: 480
  powerline: 1
gesture:
  threshold: 25
  poll: 50ms
log:
  level: debug
  format: json
`))
	require.NoError(t, err)

	assert.Equal(t, "192.168.8.2", c.Host)
	assert.True(t, c.UseExtension)
	assert.Equal(t, 20*time.Millisecond, c.UpdateInterval)
	assert.Equal(t, 5*time.Second, c.Timeout)
	assert.Equal(t, "/dev/ttyUSB0", c.Serial.Device)
	assert.Equal(t, serial.DefaultBaud, c.Serial.Baud)
	assert.Equal(t, protocol.CameraConfig{Width: 640, Height: 480, Framerate: 15, Powerline: 1}, c.Camera.Protocol())
	assert.Equal(t, 25, c.Gesture.Threshold)
	assert.Equal(t, 15, c.Gesture.Accumulated)
	assert.Equal(t, 50*time.Millisecond, c.Gesture.Poll)
	assert.Equal(t, "json", c.Log.Format)
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"syntax", "host: [unterminated"},
		{"port", "port: 65534"},
		{"negative timeout", "timeout: -1s"},
		{"powerline", "camera: {powerline: 3}"},
		{"level", "log: {level: chatty}"},
		{"format", "log: {format: xml}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "txtlink.yaml")
	require.NoError(t, os.WriteFile(path, []byte("host: direct\n"), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, txt.HostDirect, c.Host)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfigureLogger(t *testing.T) {
	c := Default()
	c.Log = Log{Level: "warn", Format: "json"}

	l := logrus.New()
	require.NoError(t, c.ConfigureLogger(l))
	assert.Equal(t, logrus.WarnLevel, l.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, l.Formatter)
}

func TestSessionOptions(t *testing.T) {
	c := Default()
	c.Host = "10.0.0.7"
	c.Fallback = "10.0.0.8"
	c.Serial.Device = "/dev/ttyS1"

	log := logrus.NewEntry(logrus.New())
	reg := prometheus.NewRegistry()
	opts := c.SessionOptions(log, reg)

	assert.Equal(t, "10.0.0.7", opts.Host)
	assert.Equal(t, "10.0.0.8", opts.Fallback)
	assert.Equal(t, c.Port, opts.Port)
	assert.Equal(t, c.KeepAliveIdle, opts.KeepAliveIdle)
	assert.Same(t, log, opts.Logger)
	assert.Equal(t, reg, opts.Registerer)
	require.NotNil(t, opts.Serial)
	assert.Equal(t, "/dev/ttyS1", opts.Serial.Device)

	// the options copy the serial settings
	c.Serial.Device = "/dev/ttyS2"
	assert.Equal(t, "/dev/ttyS1", opts.Serial.Device)

	s, err := txt.New(opts)
	require.NoError(t, err)
	assert.Equal(t, txt.StateOffline, s.State())
	require.NoError(t, s.Close())
}
