package serial

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("")
	assert.Equal(t, DefaultDevice, cfg.Device)
	assert.Equal(t, 230000, cfg.Baud)
	assert.Equal(t, 1000, cfg.ReadTimeout)

	assert.Equal(t, "/dev/ttyUSB0", DefaultConfig("/dev/ttyUSB0").Device)
}

func TestOpenNilConfig(t *testing.T) {
	_, err := Open(nil)
	assert.Error(t, err)
}

func TestOpenMissingDevice(t *testing.T) {
	_, err := Open(&Config{Device: "/dev/does-not-exist-txtlink", Baud: DefaultBaud})
	assert.Error(t, err)
}

func TestOpenInvalidBaud(t *testing.T) {
	_, err := Open(&Config{Device: DefaultDevice})
	assert.ErrorContains(t, err, "invalid baud rate")
}
