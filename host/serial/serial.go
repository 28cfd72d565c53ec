// Package serial provides the serial line used to reach the motor shield
// in direct mode.
package serial

import (
	"errors"
	"io"
)

// ErrTimeout is returned by Read when no byte arrived within the read timeout
var ErrTimeout = errors.New("serial read timeout")

// Port is an open shield line. Tests substitute in-memory pipes.
type Port interface {
	io.ReadWriteCloser
	// Flush drops stale input
	Flush() error
}

// Config selects and sets up the shield line
type Config struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
	// ReadTimeout is in milliseconds; 0 blocks
	ReadTimeout int `yaml:"read_timeout_ms"`
}

// Motor shield line settings on the TXT
const (
	DefaultDevice      = "/dev/ttyO2"
	DefaultBaud        = 230000
	DefaultReadTimeout = 1000
)

// DefaultConfig returns the motor shield configuration for device
func DefaultConfig(device string) *Config {
	if device == "" {
		device = DefaultDevice
	}
	return &Config{
		Device:      device,
		Baud:        DefaultBaud,
		ReadTimeout: DefaultReadTimeout,
	}
}
