package txt

import (
	"encoding/binary"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"txtlink/protocol"
)

// JoystickDevice is the Linux joystick node of a paired Bluetooth remote
const JoystickDevice = "/dev/input/js0"

// Linux joystick event records: u32 time, s16 value, u8 type, u8 number
const (
	joystickEventSize = 8
	joystickEventAxis = 0x02
)

// Axis names a Bluetooth remote axis by event number
type Axis int

const (
	AxisLeftLR Axis = iota
	AxisLeftUD
	AxisRightLR
	AxisRightUD
	numAxes
)

// Stick selects the left or right stick of a remote
type Stick int

const (
	StickLeft Stick = iota
	StickRight
)

// Button selects a remote button. Left is labelled ON, right OFF.
type Button int

const (
	ButtonLeft Button = iota
	ButtonRight
)

// joystick holds the Bluetooth axes. mu guards axes only; ctl
// serializes start and stop.
type joystick struct {
	ctl     sync.Mutex
	r       io.Closer
	done    chan struct{}
	running atomic.Bool

	mu   sync.Mutex
	axes [numAxes]int16
}

// OpenBTJoystick starts reading JoystickDevice
func (s *Session) OpenBTJoystick() error {
	f, err := os.Open(JoystickDevice)
	if err != nil {
		return protocol.Wrap(protocol.ClassTransport, "open joystick", err)
	}
	s.StartBTJoystick(f)
	return nil
}

// StartBTJoystick reads joystick events from r until it fails or
// StopBTJoystick closes it. It does nothing while a reader runs.
func (s *Session) StartBTJoystick(r io.ReadCloser) {
	j := &s.joystick
	j.ctl.Lock()
	defer j.ctl.Unlock()

	if j.done != nil {
		select {
		case <-j.done:
		default:
			r.Close()
			return
		}
	}
	j.r = r
	j.done = make(chan struct{})
	j.running.Store(true)
	go s.joystickLoop(r, j.done)
}

// StopBTJoystick closes the event source and waits for the reader
func (s *Session) StopBTJoystick() {
	j := &s.joystick
	j.ctl.Lock()
	defer j.ctl.Unlock()

	if j.done == nil {
		return
	}
	j.r.Close()
	<-j.done
	j.r, j.done = nil, nil
}

// BTJoystickConnected reports whether the event reader is running
func (s *Session) BTJoystickConnected() bool {
	return s.joystick.running.Load()
}

func (s *Session) joystickLoop(r io.Reader, done chan struct{}) {
	defer close(done)
	defer s.joystick.running.Store(false)

	var ev [joystickEventSize]byte
	for {
		if _, err := io.ReadFull(r, ev[:]); err != nil {
			s.log.WithField("component", "joystick").WithError(err).Debug("joystick closed")
			return
		}
		value := int16(binary.LittleEndian.Uint16(ev[4:]))
		typ, num := ev[6], int(ev[7])
		if typ&joystickEventAxis == 0 || num >= int(numAxes) {
			continue
		}
		s.joystick.mu.Lock()
		s.joystick.axes[num] = value
		s.joystick.mu.Unlock()
	}
}

// BTAxis returns axis a normalized to -1..1 with up positive
func (s *Session) BTAxis(a Axis) float64 {
	s.joystick.mu.Lock()
	v := s.joystick.axes[a]
	s.joystick.mu.Unlock()
	return normalizeBT(a, v)
}

// normalizeBT scales a raw axis value. The device reports -32767..32512
// with down positive on the vertical axes.
func normalizeBT(a Axis, v int16) float64 {
	f := float64(v)
	if a == AxisLeftUD || a == AxisRightUD {
		if v <= 0 {
			return f / -32767
		}
		return f / -32512
	}
	if v < 0 {
		return f / 32767
	}
	return f / 32512
}

// normalizeIR scales an IR axis value of -15..15
func normalizeIR(v int8) float64 {
	return float64(v) / 15
}

// Joystick reads one stick of an IR remote slot or of the Bluetooth remote
type Joystick struct {
	s      *Session
	stick  Stick
	remote int
	bt     bool
}

// IRJoystick returns stick of IR remote slot remote (0 = any remote)
func (s *Session) IRJoystick(stick Stick, remote int) *Joystick {
	return &Joystick{s: s, stick: stick, remote: remote}
}

// BTJoystick returns stick of the Bluetooth remote
func (s *Session) BTJoystick(stick Stick) *Joystick {
	return &Joystick{s: s, stick: stick, bt: true}
}

// LeftRight returns the horizontal deflection in -1..1
func (j *Joystick) LeftRight() float64 {
	if j.bt {
		if j.stick == StickLeft {
			return j.s.BTAxis(AxisLeftLR)
		}
		return j.s.BTAxis(AxisRightLR)
	}
	r := j.s.IR(j.remote)
	if j.stick == StickLeft {
		return normalizeIR(r.LeftLR)
	}
	return normalizeIR(r.RightLR)
}

// UpDown returns the vertical deflection in -1..1
func (j *Joystick) UpDown() float64 {
	if j.bt {
		if j.stick == StickLeft {
			return j.s.BTAxis(AxisLeftUD)
		}
		return j.s.BTAxis(AxisRightUD)
	}
	r := j.s.IR(j.remote)
	if j.stick == StickLeft {
		return normalizeIR(r.LeftUD)
	}
	return normalizeIR(r.RightUD)
}

// ButtonPressed reports whether b is held on IR remote slot remote
func (s *Session) ButtonPressed(b Button, remote int) bool {
	buttons := s.IR(remote).Buttons
	if b == ButtonLeft {
		return buttons&0x01 != 0
	}
	return buttons&0x02 != 0
}

// DipSwitch returns the address switch setting of IR remote slot remote
func (s *Session) DipSwitch(remote int) uint8 {
	return s.IR(remote).Dip
}
