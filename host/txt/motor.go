package txt

import (
	"context"

	"txtlink/protocol"
)

// Motor speed range accepted by SetSpeed
const (
	MaxSpeed = 8
	MinSpeed = -MaxSpeed
)

// MaxLevel is the largest duty of a single output
const MaxLevel = 512

// MotorDuty maps a speed of -8..8 onto the duty of the active channel.
// Speed 0 yields duty 0; the sign selects the channel, not the duty.
func MotorDuty(speed int) int16 {
	speed = max(MinSpeed, min(MaxSpeed, speed))
	if speed < 0 {
		speed = -speed
	}
	if speed == 0 {
		return 0
	}
	return int16(292*speed/8 + 220)
}

func (s *Session) checkUnit(op string, unit int) error {
	if unit < 0 || unit >= s.frame.units {
		return protocol.Errorf(protocol.ClassConfiguration, op, "unit %d of %d: %w", unit, s.frame.units, protocol.ErrNotSupported)
	}
	return nil
}

// configureOutputs switches output pair of unit to mode and transmits the
// configuration, optionally waiting until it is in effect
func (s *Session) configureOutputs(ctx context.Context, pair, unit int, mode uint8, wait bool) error {
	s.Sync(func(f *Frame) {
		cfg := f.Config(unit)
		cfg.Motor[pair] = mode
		f.SetConfig(unit, cfg.Motor, cfg.Input)
	})
	if err := s.UpdateConfig(ctx, unit); err != nil {
		return err
	}
	if wait && s.Online() {
		return s.UpdateWait(ctx)
	}
	return nil
}

// Motor drives a motor on an output pair, optionally with an encoder on
// the counter of the same number
type Motor struct {
	s      *Session
	output int
	unit   int
}

// Motor switches output pair output (1-4) of unit to motor mode and
// returns it stopped
func (s *Session) Motor(ctx context.Context, output, unit int, wait bool) (*Motor, error) {
	if output < 1 || output > protocol.NumMotors {
		return nil, protocol.Errorf(protocol.ClassConfiguration, "motor", "output M%d: %w", output, protocol.ErrNotSupported)
	}
	if err := s.checkUnit("motor", unit); err != nil {
		return nil, err
	}
	if err := s.configureOutputs(ctx, output-1, unit, protocol.OutputMotor, wait); err != nil {
		return nil, err
	}
	m := &Motor{s: s, output: output, unit: unit}
	m.Stop()
	return m, nil
}

func (m *Motor) idx() int {
	return m.output - 1
}

// SetSpeed runs the motor at speed -8..8; negative speeds reverse
func (m *Motor) SetSpeed(speed int) {
	m.s.Sync(func(f *Frame) { m.setSpeed(f, speed) })
}

func (m *Motor) setSpeed(f *Frame, speed int) {
	duty := MotorDuty(speed)
	fwd, rev := 2*m.idx(), 2*m.idx()+1
	if speed < 0 {
		fwd, rev = rev, fwd
	}
	f.SetPwm(fwd, duty, m.unit)
	f.SetPwm(rev, 0, m.unit)
}

// SetDistance stops the motor after distance counter steps. With syncTo
// both motors get the distance and follow each other's encoder.
func (m *Motor) SetDistance(distance int16, syncTo *Motor) {
	m.s.Sync(func(f *Frame) { m.setDistance(f, distance, syncTo) })
}

func (m *Motor) setDistance(f *Frame, distance int16, syncTo *Motor) {
	if syncTo == nil {
		f.SetMotorDistance(m.idx(), distance, m.unit)
		f.SetMotorSyncMaster(m.idx(), 0, m.unit)
		f.IncrMotorCmdID(m.idx(), m.unit)
		return
	}
	f.SetMotorDistance(m.idx(), distance, m.unit)
	f.SetMotorDistance(syncTo.idx(), distance, syncTo.unit)
	f.SetMotorSyncMaster(m.idx(), int16(4*syncTo.unit+syncTo.output), m.unit)
	f.SetMotorSyncMaster(syncTo.idx(), int16(4*m.unit+m.output), syncTo.unit)
	f.IncrMotorCmdID(m.idx(), m.unit)
	f.IncrMotorCmdID(syncTo.idx(), syncTo.unit)
}

// Finished reports whether the controller completed the last distance command
func (m *Motor) Finished() bool {
	return read(m.s, func(f *Frame) bool {
		return f.MotorCmdID(m.idx(), m.unit) == f.CurrentMotorCmdID(m.idx(), m.unit)
	})
}

// CurrentDistance returns the encoder steps since the last distance command
func (m *Motor) CurrentDistance() int16 {
	return m.s.CurrentCounterValue(m.idx(), m.unit)
}

// Stop sets speed and distance to 0 in one round
func (m *Motor) Stop() {
	m.s.Sync(func(f *Frame) {
		m.setSpeed(f, 0)
		m.setDistance(f, 0, nil)
	})
}

// Output drives a single output such as a lamp
type Output struct {
	s    *Session
	num  int
	unit int
}

// Output switches the pair holding output num (1-8) of unit to single
// output mode and returns it off
func (s *Session) Output(ctx context.Context, num, unit int, wait bool) (*Output, error) {
	if num < 1 || num > protocol.NumOutputs {
		return nil, protocol.Errorf(protocol.ClassConfiguration, "output", "output O%d: %w", num, protocol.ErrNotSupported)
	}
	if err := s.checkUnit("output", unit); err != nil {
		return nil, err
	}
	if err := s.configureOutputs(ctx, (num-1)/2, unit, protocol.OutputSingle, wait); err != nil {
		return nil, err
	}
	o := &Output{s: s, num: num, unit: unit}
	o.SetLevel(0)
	return o, nil
}

// SetLevel sets the duty, clamped to 0..MaxLevel
func (o *Output) SetLevel(level int16) {
	o.s.SetPwm(o.num-1, max(0, min(MaxLevel, level)), o.unit)
}

func (o *Output) Level() int16 {
	return o.s.Pwm(o.num-1, o.unit)
}
