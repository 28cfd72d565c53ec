package serial

import (
	"fmt"
	"time"

	"github.com/tarm/serial"
)

// shieldPort is the motor shield line: 8 data bits, no parity, one stop bit
type shieldPort struct {
	*serial.Port
	device string
}

// Open opens cfg.Device with the shield framing. Reads give up after
// cfg.ReadTimeout milliseconds with ErrTimeout.
func Open(cfg *Config) (Port, error) {
	if cfg == nil {
		return nil, fmt.Errorf("open serial: no configuration")
	}
	if cfg.Baud <= 0 {
		return nil, fmt.Errorf("open serial %s: invalid baud rate %d", cfg.Device, cfg.Baud)
	}

	p, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: time.Duration(cfg.ReadTimeout) * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", cfg.Device, err)
	}
	return &shieldPort{Port: p, device: cfg.Device}, nil
}

// Read reports an expired read timeout as ErrTimeout. The driver returns
// an empty read instead, which would look like a short frame.
func (p *shieldPort) Read(b []byte) (int, error) {
	n, err := p.Port.Read(b)
	if n == 0 && err == nil && len(b) > 0 {
		return 0, fmt.Errorf("%s: %w", p.device, ErrTimeout)
	}
	return n, err
}

// Flush discards bytes received but not yet read
func (p *shieldPort) Flush() error {
	return p.Port.Flush()
}
