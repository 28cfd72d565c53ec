package apds9960

import (
	"github.com/sirupsen/logrus"
	reg "tinygo.org/x/drivers/apds9960"
)

// Gesture is a classified hand motion
type Gesture int

const (
	GestureNone  Gesture = reg.GESTURE_NONE
	GestureUp    Gesture = reg.GESTURE_UP
	GestureDown  Gesture = reg.GESTURE_DOWN
	GestureLeft  Gesture = reg.GESTURE_LEFT
	GestureRight Gesture = reg.GESTURE_RIGHT
	GestureNear  Gesture = iota
	GestureFar
	// GestureUnresolved marks sample patterns with no defined classification
	GestureUnresolved
)

func (g Gesture) String() string {
	switch g {
	case GestureNone:
		return "none"
	case GestureUp:
		return "up"
	case GestureDown:
		return "down"
	case GestureLeft:
		return "left"
	case GestureRight:
		return "right"
	case GestureNear:
		return "near"
	case GestureFar:
		return "far"
	case GestureUnresolved:
		return "unresolved"
	default:
		return "unknown"
	}
}

// DecoderState is the phase of a gesture capture
type DecoderState int

const (
	StateIdle DecoderState = iota
	StateCollecting
	StateDeciding
)

func (s DecoderState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCollecting:
		return "collecting"
	case StateDeciding:
		return "deciding"
	default:
		return "unknown"
	}
}

const ringSize = 32

// DecoderConfig tunes the gesture classification
type DecoderConfig struct {
	// Threshold is the count all four channels must exceed for a sample to qualify
	Threshold int `yaml:"threshold"`
	// Accumulated is the ratio delta summed over polls that activates an axis
	Accumulated int `yaml:"accumulated"`
	// Instantaneous bounds the per poll delta counted toward near and far
	Instantaneous int `yaml:"instantaneous"`
	// NearCount and FarCount are the poll counts that decide near or far
	NearCount int `yaml:"near_count"`
	FarCount  int `yaml:"far_count"`
}

// DefaultDecoderConfig returns the standard tuning
func DefaultDecoderConfig() DecoderConfig {
	return DecoderConfig{
		Threshold:     10,
		Accumulated:   15,
		Instantaneous: 50,
		NearCount:     10,
		FarCount:      2,
	}
}

// Decoder turns batches of photodiode samples into gestures
type Decoder struct {
	cfg DecoderConfig
	log *logrus.Entry

	up, down, left, right [ringSize]uint8
	index                 int
	total                 int

	udDelta, lrDelta    int
	udCount, lrCount    int
	nearCount, farCount int
	proximity           Gesture
	state               DecoderState
	motion              Gesture
}

// NewDecoder creates a decoder. Zero fields of cfg take their defaults.
func NewDecoder(cfg DecoderConfig, log *logrus.Entry) *Decoder {
	def := DefaultDecoderConfig()
	if cfg.Threshold == 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Accumulated == 0 {
		cfg.Accumulated = def.Accumulated
	}
	if cfg.Instantaneous == 0 {
		cfg.Instantaneous = def.Instantaneous
	}
	if cfg.NearCount == 0 {
		cfg.NearCount = def.NearCount
	}
	if cfg.FarCount == 0 {
		cfg.FarCount = def.FarCount
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Decoder{cfg: cfg, log: log.WithField("component", "gesture")}
}

// State returns the current capture phase
func (d *Decoder) State() DecoderState {
	return d.state
}

// Push appends one sample to the ring
func (d *Decoder) Push(u, dn, l, r uint8) {
	d.up[d.index] = u
	d.down[d.index] = dn
	d.left[d.index] = l
	d.right[d.index] = r
	d.index = (d.index + 1) % ringSize
	d.total++
	d.state = StateCollecting
}

// ProcessBatch pushes the 4 byte FIFO records in data (up, down, left,
// right), evaluates them and starts a new batch. It reports whether the
// batch decided near or far.
func (d *Decoder) ProcessBatch(data []byte) bool {
	for i := 0; i+4 <= len(data); i += 4 {
		d.Push(data[i], data[i+1], data[i+2], data[i+3])
	}
	decided := d.process()
	d.decode()
	d.index, d.total = 0, 0
	return decided
}

// Finish ends a capture once the chip drops its valid flag and returns
// the classification. The decoder is reset afterwards.
func (d *Decoder) Finish() Gesture {
	d.state = StateDeciding
	d.decode()
	m := d.motion
	d.Reset()
	return m
}

// Reset clears all samples and accumulated state
func (d *Decoder) Reset() {
	d.index, d.total = 0, 0
	d.udDelta, d.lrDelta = 0, 0
	d.udCount, d.lrCount = 0, 0
	d.nearCount, d.farCount = 0, 0
	d.proximity = GestureNone
	d.motion = GestureNone
	d.state = StateIdle
}

// sample returns the i-th oldest sample of the ring
func (d *Decoder) sample(i int) (u, dn, l, r int) {
	start := 0
	if d.total > ringSize {
		start = d.index
	}
	k := (start + i) % ringSize
	return int(d.up[k]), int(d.down[k]), int(d.left[k]), int(d.right[k])
}

func (d *Decoder) qualifies(i int) bool {
	u, dn, l, r := d.sample(i)
	t := d.cfg.Threshold
	return u > t && dn > t && l > t && r > t
}

func ratios(u, dn, l, r int) (ud, lr int, ok bool) {
	if u+dn == 0 || l+r == 0 {
		return 0, 0, false
	}
	return (u - dn) * 100 / (u + dn), (l - r) * 100 / (l + r), true
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func (d *Decoder) axis(acc int) int {
	switch {
	case acc >= d.cfg.Accumulated:
		return 1
	case acc <= -d.cfg.Accumulated:
		return -1
	}
	return 0
}

// process evaluates the current batch and reports whether a near or far
// decision was reached
func (d *Decoder) process() bool {
	if d.total <= 4 {
		return false
	}
	n := min(d.total, ringSize)

	first := -1
	for i := 0; i < n; i++ {
		if d.qualifies(i) {
			first = i
			break
		}
	}
	if first < 0 {
		return false
	}
	var lu, ld, ll, lr int
	for i := n - 1; i > 0; i-- {
		if d.qualifies(i) {
			lu, ld, ll, lr = d.sample(i)
			break
		}
	}

	udFirst, lrFirst, okFirst := ratios(d.sample(first))
	udLast, lrLast, okLast := ratios(lu, ld, ll, lr)
	if !okFirst || !okLast {
		d.log.Debug("zero ratio denominator, batch skipped")
		return false
	}

	udDelta := udLast - udFirst
	lrDelta := lrLast - lrFirst
	d.udDelta += udDelta
	d.lrDelta += lrDelta
	d.udCount = d.axis(d.udDelta)
	d.lrCount = d.axis(d.lrDelta)

	d.log.WithFields(logrus.Fields{
		"ud_delta": d.udDelta,
		"lr_delta": d.lrDelta,
		"ud_count": d.udCount,
		"lr_count": d.lrCount,
	}).Debug("batch processed")

	small := abs(udDelta) < d.cfg.Instantaneous && abs(lrDelta) < d.cfg.Instantaneous
	still := udDelta == 0 && lrDelta == 0

	if d.udCount == 0 && d.lrCount == 0 {
		if !small {
			return false
		}
		if still {
			d.nearCount++
		} else {
			d.farCount++
		}
		if d.nearCount >= d.cfg.NearCount && d.farCount >= d.cfg.FarCount {
			switch {
			case still:
				d.proximity = GestureNear
			case udDelta != 0 && lrDelta != 0:
				d.proximity = GestureFar
			default:
				d.log.WithFields(logrus.Fields{
					"ud_delta": udDelta,
					"lr_delta": lrDelta,
				}).Warn("near/far pattern with a single moving axis")
				d.proximity = GestureUnresolved
			}
			return true
		}
		return false
	}

	if small {
		if still {
			d.nearCount++
		}
		if d.nearCount >= d.cfg.NearCount {
			d.udCount, d.lrCount = 0, 0
			d.udDelta, d.lrDelta = 0, 0
		}
	}
	return false
}

// decode maps the axis counts to a motion. The previous motion is kept
// when neither axis is active.
func (d *Decoder) decode() {
	if d.proximity != GestureNone {
		d.motion = d.proximity
		return
	}

	dominantUD := abs(d.udDelta) > abs(d.lrDelta)
	pick := func(ud, lr Gesture) Gesture {
		if dominantUD {
			return ud
		}
		return lr
	}

	switch [2]int{d.udCount, d.lrCount} {
	case [2]int{-1, 0}:
		d.motion = GestureUp
	case [2]int{1, 0}:
		d.motion = GestureDown
	case [2]int{0, 1}:
		d.motion = GestureRight
	case [2]int{0, -1}:
		d.motion = GestureLeft
	case [2]int{-1, 1}:
		d.motion = pick(GestureUp, GestureRight)
	case [2]int{1, -1}:
		d.motion = pick(GestureDown, GestureLeft)
	case [2]int{1, 1}:
		d.motion = pick(GestureDown, GestureRight)
	case [2]int{-1, -1}:
		d.log.WithFields(logrus.Fields{
			"ud_delta": d.udDelta,
			"lr_delta": d.lrDelta,
		}).Warn("both axes active toward up and left")
		d.motion = GestureUnresolved
	}
}
