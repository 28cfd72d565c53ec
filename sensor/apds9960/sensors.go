package apds9960

import (
	"context"
	"time"

	reg "tinygo.org/x/drivers/apds9960"
)

// ProximitySensor reports how close an object is
type ProximitySensor interface {
	On() error
	Off() error
	Distance() (uint8, error)
}

// LightSensor reports the ambient brightness
type LightSensor interface {
	On() error
	Off() error
	Brightness() (uint16, error)
}

// ColorSensor reports the raw color channels
type ColorSensor interface {
	On() error
	Off() error
	RGB() (r, g, b uint16, err error)
}

// GestureSensor captures hand gestures
type GestureSensor interface {
	On() error
	Off() error
	Read(ctx context.Context) (Gesture, error)
}

// DefaultPollInterval is the pause between FIFO polls during a capture
const DefaultPollInterval = 30 * time.Millisecond

// fifoRecord is the size of one up/down/left/right sample in the FIFO
const fifoRecord = 4

// Proximity uses the proximity engine of the chip
type Proximity struct {
	dev *Device
}

// NewProximity returns a proximity sensor on dev
func NewProximity(dev *Device) *Proximity {
	return &Proximity{dev: dev}
}

// On powers the proximity engine at maximum LED drive and 4x gain
func (p *Proximity) On() error {
	if err := p.dev.Enable(FeaturePower | FeatureProximity); err != nil {
		return err
	}
	return p.dev.SetBits(reg.APDS9960_CONTROL_REG, controlLDrive|controlPGain, 0x0C)
}

func (p *Proximity) Off() error {
	return p.dev.Disable(FeatureProximity)
}

// Distance returns the raw proximity count. Larger values are closer.
func (p *Proximity) Distance() (uint8, error) {
	return p.dev.ReadReg(reg.APDS9960_PDATA_REG)
}

// Light uses the clear channel of the color engine
type Light struct {
	dev *Device
}

func NewLight(dev *Device) *Light {
	return &Light{dev: dev}
}

func (l *Light) On() error {
	return l.dev.Enable(FeaturePower | FeatureALS)
}

func (l *Light) Off() error {
	return l.dev.Disable(FeatureALS)
}

// Brightness returns the clear channel count
func (l *Light) Brightness() (uint16, error) {
	return l.dev.ReadReg16(reg.APDS9960_CDATAL_REG)
}

// Color reads the red, green and blue channels
type Color struct {
	dev *Device
}

func NewColor(dev *Device) *Color {
	return &Color{dev: dev}
}

// On powers the color engine with a 200 ms integration time and 4x gain
func (c *Color) On() error {
	if err := c.dev.Enable(FeaturePower | FeatureALS); err != nil {
		return err
	}
	if err := c.dev.WriteReg(reg.APDS9960_ATIME_REG, 0xB6); err != nil {
		return err
	}
	return c.dev.SetBits(reg.APDS9960_CONTROL_REG, controlAGain, 0x01)
}

func (c *Color) Off() error {
	return c.dev.Disable(FeatureALS)
}

func (c *Color) Red() (uint16, error) {
	return c.dev.ReadReg16(reg.APDS9960_RDATAL_REG)
}

func (c *Color) Green() (uint16, error) {
	return c.dev.ReadReg16(reg.APDS9960_GDATAL_REG)
}

func (c *Color) Blue() (uint16, error) {
	return c.dev.ReadReg16(reg.APDS9960_BDATAL_REG)
}

// RGB reads all three channels in one transfer
func (c *Color) RGB() (r, g, b uint16, err error) {
	var buf [6]byte
	if err = c.dev.Read(reg.APDS9960_RDATAL_REG, buf[:]); err != nil {
		return 0, 0, 0, err
	}
	r = uint16(buf[0]) | uint16(buf[1])<<8
	g = uint16(buf[2]) | uint16(buf[3])<<8
	b = uint16(buf[4]) | uint16(buf[5])<<8
	return r, g, b, nil
}

// GestureCapture drains the gesture FIFO into a Decoder
type GestureCapture struct {
	dev     *Device
	decoder *Decoder
	poll    time.Duration
}

// gestureSetup is written by GestureCapture.On before the engine is enabled
var gestureSetup = []struct {
	reg uint8
	val uint8
}{
	{reg.APDS9960_GCONF1_REG, 0x40},
	{reg.APDS9960_GCONF2_REG, 0x67},
	{reg.APDS9960_GCONF3_REG, 0x00},
	{reg.APDS9960_GCONF4_REG, 0x03},
	{reg.APDS9960_GPENTH_REG, 0x32},
	{reg.APDS9960_CONFIG2_REG, 0x01},
	{reg.APDS9960_GEXTH_REG, 0x00},
	{reg.APDS9960_WTIME_REG, 0x00},
}

// NewGestureCapture returns a gesture sensor on dev. A zero poll uses
// DefaultPollInterval.
func NewGestureCapture(dev *Device, cfg DecoderConfig, poll time.Duration) *GestureCapture {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &GestureCapture{
		dev:     dev,
		decoder: NewDecoder(cfg, dev.log),
		poll:    poll,
	}
}

func (g *GestureCapture) On() error {
	for _, r := range gestureSetup {
		if err := g.dev.WriteReg(r.reg, r.val); err != nil {
			return err
		}
	}
	return g.dev.Enable(FeaturePower | FeatureProximity | FeatureWait | FeatureGesture)
}

func (g *GestureCapture) Off() error {
	g.decoder.Reset()
	return g.dev.Disable(FeatureGesture)
}

// Decoder exposes the state machine behind Read
func (g *GestureCapture) Decoder() *Decoder {
	return g.decoder
}

// Read returns GestureNone at once when no capture is in progress.
// Otherwise it polls the FIFO until the chip clears its valid flag and
// returns the classification.
func (g *GestureCapture) Read(ctx context.Context) (Gesture, error) {
	status, err := g.dev.ReadReg(reg.APDS9960_GSTATUS_REG)
	if err != nil {
		return GestureNone, err
	}
	if status&gestureValid == 0 {
		return GestureNone, nil
	}

	buf := make([]byte, ringSize*fifoRecord)
	for {
		if status&gestureValid == 0 {
			return g.decoder.Finish(), nil
		}

		level, err := g.dev.ReadReg(reg.APDS9960_GFLVL_REG)
		if err != nil {
			g.decoder.Reset()
			return GestureNone, err
		}
		if level > 0 {
			n := min(int(level), ringSize) * fifoRecord
			if err := g.dev.Read(reg.APDS9960_GFIFO_U_REG, buf[:n]); err != nil {
				g.decoder.Reset()
				return GestureNone, err
			}
			g.decoder.ProcessBatch(buf[:n])
		}

		select {
		case <-ctx.Done():
			g.decoder.Reset()
			return GestureNone, ctx.Err()
		case <-time.After(g.poll):
		}

		if status, err = g.dev.ReadReg(reg.APDS9960_GSTATUS_REG); err != nil {
			g.decoder.Reset()
			return GestureNone, err
		}
	}
}
