// Package apds9960 drives the APDS-9960 proximity, light, color and
// gesture sensor attached to the TXT's register channel.
package apds9960

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"tinygo.org/x/drivers"
	reg "tinygo.org/x/drivers/apds9960"

	"txtlink/protocol"
)

// Address is the fixed bus address of the chip
const Address = reg.ADPS9960_ADDRESS

// ChipID is the content of the ID register
const ChipID = 0xAB

// Feature bits of the ENABLE register
type Feature uint8

const (
	FeaturePower              Feature = 0x01
	FeatureALS                Feature = 0x02
	FeatureProximity          Feature = 0x04
	FeatureWait               Feature = 0x08
	FeatureALSInterrupt       Feature = 0x10
	FeatureProximityInterrupt Feature = 0x20
	FeatureGesture            Feature = 0x40
)

// GSTATUS bits
const gestureValid = 0x01

// CONTROL register fields
const (
	controlLDrive = 0xC0
	controlPGain  = 0x0C
	controlAGain  = 0x03
)

// Device is an owned handle on one chip. It holds no state besides the bus,
// so several handles may coexist for different sessions.
type Device struct {
	bus  drivers.I2C
	addr uint16
	log  *logrus.Entry
}

// New creates a handle using bus for register access. A nil log uses the
// standard logger.
func New(bus drivers.I2C, log *logrus.Entry) *Device {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Device{
		bus:  bus,
		addr: Address,
		log:  log.WithField("component", "apds9960"),
	}
}

// defaults is the register sequence written by Reset
var defaults = []struct {
	reg uint8
	val uint8
}{
	{reg.APDS9960_ENABLE_REG, 0x00},
	{reg.APDS9960_ATIME_REG, 219},
	{reg.APDS9960_WTIME_REG, 246},
	{reg.APDS9960_PPULSE_REG, 0x87},
	{reg.APDS9960_CONFIG1_REG, 0x60},
	{reg.APDS9960_CONTROL_REG, 0x09},
	{reg.APDS9960_PILT_REG, 0},
	{reg.APDS9960_PIHT_REG, 50},
	{reg.APDS9960_AILTIL_REG, 0xFF},
	{reg.APDS9960_AIHTL_REG, 0},
	{reg.APDS9960_CONFIG2_REG, 0x01},
	{reg.APDS9960_CONFIG3_REG, 0},
	{reg.APDS9960_GPENTH_REG, 40},
	{reg.APDS9960_GEXTH_REG, 30},
	{reg.APDS9960_GCONF1_REG, 0x40},
	{reg.APDS9960_GCONF2_REG, 0x41},
	{reg.APDS9960_GPULSE_REG, 0xC9},
	{reg.APDS9960_GCONF3_REG, 0},
}

// Reset checks the chip identity and loads the default configuration
func (d *Device) Reset() error {
	id, err := d.ReadReg(reg.APDS9960_ID_REG)
	if err != nil {
		return err
	}
	if id != ChipID {
		return protocol.Errorf(protocol.ClassConfiguration, "apds9960 reset", "id 0x%02X, want 0x%02X: %w", id, ChipID, protocol.ErrDeviceNotFound)
	}
	for _, r := range defaults {
		if err := d.WriteReg(r.reg, r.val); err != nil {
			return err
		}
	}
	d.log.Debug("chip reset")
	return nil
}

// Read fills buf starting at register r
func (d *Device) Read(r uint8, buf []byte) error {
	if err := d.bus.Tx(d.addr, []byte{r}, buf); err != nil {
		return fmt.Errorf("failed to read register 0x%02X: %w", r, err)
	}
	return nil
}

// ReadReg reads one register
func (d *Device) ReadReg(r uint8) (uint8, error) {
	var b [1]byte
	err := d.Read(r, b[:])
	return b[0], err
}

// ReadReg16 reads a little endian 16 bit register pair
func (d *Device) ReadReg16(r uint8) (uint16, error) {
	var b [2]byte
	if err := d.Read(r, b[:]); err != nil {
		return 0, err
	}
	return uint16(b[0]) | uint16(b[1])<<8, nil
}

// WriteReg writes one register
func (d *Device) WriteReg(r, v uint8) error {
	if err := d.bus.Tx(d.addr, []byte{r, v}, nil); err != nil {
		return fmt.Errorf("failed to write register 0x%02X: %w", r, err)
	}
	return nil
}

// SetBits replaces the bits selected by mask in register r with value.
// Nothing is written when the field already holds value.
func (d *Device) SetBits(r, mask, value uint8) error {
	cur, err := d.ReadReg(r)
	if err != nil {
		return err
	}
	next := cur&^mask | value&mask
	if next == cur {
		return nil
	}
	return d.WriteReg(r, next)
}

// Enable sets the feature bits in ENABLE
func (d *Device) Enable(f Feature) error {
	return d.SetBits(reg.APDS9960_ENABLE_REG, uint8(f), uint8(f))
}

// Disable clears the feature bits in ENABLE
func (d *Device) Disable(f Feature) error {
	return d.SetBits(reg.APDS9960_ENABLE_REG, uint8(f), 0)
}

// Enabled returns the feature bits currently set
func (d *Device) Enabled() (Feature, error) {
	v, err := d.ReadReg(reg.APDS9960_ENABLE_REG)
	return Feature(v), err
}
