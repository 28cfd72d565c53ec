// Package txt drives a fischertechnik TXT controller over its network
// protocol or, on the controller itself, directly over the motor shield
package txt

import (
	"context"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/cskr/pubsub"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"txtlink/protocol"
)

// State is the lifecycle state of a Session
type State int32

const (
	StateOffline State = iota
	StateOnline
)

func (s State) String() string {
	if s == StateOnline {
		return "online"
	}
	return "offline"
}

// Pubsub topics
const (
	// TopicIO carries one *Snapshot per exchange round
	TopicIO = "io"
	// TopicCamera carries one protocol.CameraFrame per received frame
	TopicCamera = "camera"
)

const brokerCapacity = 16

// connection is the control link established by Connect
type connection struct {
	direct  bool
	host    string
	status  protocol.Status
	control *protocol.Transport
}

// period is one Online phase. Its goroutines share an errgroup whose
// first error takes the session offline.
type period struct {
	cancel context.CancelFunc
	fail   chan error
	done   chan struct{}
}

// Session is one client of a TXT controller
type Session struct {
	opts    Options
	id      string
	log     *logrus.Entry
	metrics *sessionMetrics
	broker  *pubsub.PubSub

	frame *Frame

	// lifecycle serializes Connect, StartOnline, StopOnline and Close
	lifecycle sync.Mutex
	closed    atomic.Bool
	started   atomic.Bool

	state    atomic.Int32
	conn     atomic.Pointer[connection]
	online   atomic.Pointer[period]
	register atomic.Pointer[RegisterChannel]

	camera   camera
	joystick joystick
}

// New creates an offline session. Nothing is dialed before Connect.
func New(opts Options) (*Session, error) {
	opts.applyDefaults()

	metrics, err := newSessionMetrics(opts.Registerer)
	if err != nil {
		return nil, err
	}

	units := 1
	if opts.UseExtension {
		units = protocol.MaxUnits
	}

	id := uuid.NewString()
	return &Session{
		opts:    opts,
		id:      id,
		log:     opts.Logger.WithFields(logrus.Fields{"component": "txt", "session": id}),
		metrics: metrics,
		broker:  pubsub.New(brokerCapacity),
		frame:   newFrame(units),
	}, nil
}

// ID identifies the session in logs
func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) Online() bool {
	return s.State() == StateOnline
}

// Direct reports whether the session drives the motor shield directly
func (s *Session) Direct() bool {
	c := s.conn.Load()
	return c != nil && c.direct
}

// Status returns the identity reported during the handshake
func (s *Session) Status() protocol.Status {
	if c := s.conn.Load(); c != nil {
		return c.status
	}
	return protocol.Status{}
}

// Host returns the controller address or, in direct mode, the shield device
func (s *Session) Host() string {
	if c := s.conn.Load(); c != nil {
		return c.host
	}
	return ""
}

// Units is 2 with an extension and 1 otherwise
func (s *Session) Units() int {
	return s.frame.units
}

// Connect resolves the controller, performs the handshake, zeroes all
// outputs and goes online
func (s *Session) Connect(ctx context.Context) error {
	if err := s.connect(ctx); err != nil {
		return err
	}
	return s.StartOnline(ctx)
}

func (s *Session) connect(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.closed.Load() {
		return protocol.Wrap(protocol.ClassTransport, "connect", protocol.ErrClosed)
	}
	if s.conn.Load() != nil {
		return nil
	}

	ep, err := s.resolve(ctx)
	if err != nil {
		return err
	}

	var c *connection
	if ep.direct {
		c, err = s.openDirect()
	} else {
		c, err = s.openNetwork(ctx, ep.host)
	}
	if err != nil {
		return err
	}
	s.conn.Store(c)
	s.StopAll()

	s.log.WithFields(logrus.Fields{
		"host":     c.host,
		"device":   c.status.Name,
		"firmware": c.status.Firmware(),
		"direct":   c.direct,
	}).Info("connected")
	return nil
}

func (s *Session) openNetwork(ctx context.Context, host string) (*connection, error) {
	dctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	nc, err := s.opts.Dial(dctx, "tcp", s.controlAddr(host))
	if err != nil {
		return nil, protocol.Wrap(protocol.ClassTransport, "connect", err)
	}
	tr := protocol.NewTransport(nc, s.opts.Timeout)

	status, err := handshake(ctx, tr)
	if err != nil {
		tr.Close()
		return nil, err
	}
	return &connection{host: host, status: status, control: tr}, nil
}

func (s *Session) openDirect() (*connection, error) {
	if s.opts.UseExtension {
		return nil, protocol.Errorf(protocol.ClassConfiguration, "connect",
			"extension in direct mode: %w", protocol.ErrNotSupported)
	}

	port, err := s.opts.OpenSerial(s.opts.Serial)
	if err != nil {
		return nil, protocol.Wrap(protocol.ClassTransport, "open shield", err)
	}
	if err := port.Flush(); err != nil {
		port.Close()
		return nil, protocol.Wrap(protocol.ClassTransport, "open shield", err)
	}
	if s.opts.SoundLink != nil {
		if err := resetSound(s.opts.SoundLink); err != nil {
			s.log.WithError(err).Warn("sound processor not ready")
		}
	}

	return &connection{
		direct:  true,
		host:    s.opts.Serial.Device,
		status:  protocol.Status{Name: protocol.DirectDeviceName, Version: protocol.DirectVersion},
		control: protocol.NewTransport(port, s.opts.Timeout),
	}, nil
}

func handshake(ctx context.Context, tr *protocol.Transport) (protocol.Status, error) {
	resp, err := tr.Exchange(ctx, protocol.EncodeID(protocol.IDQueryStatus), protocol.ReadFixed(protocol.StatusResponseSize))
	if err != nil {
		return protocol.Status{}, err
	}
	status, err := protocol.DecodeStatus(resp)
	if err != nil {
		return protocol.Status{}, err
	}
	if status.Version < protocol.MinFirmwareVersion {
		return status, protocol.Errorf(protocol.ClassConfiguration, "handshake",
			"firmware %s: %w", status.Firmware(), protocol.ErrUnsupportedFirmware)
	}
	return status, nil
}

// Handshake queries the controller identity again. In direct mode the
// fixed shield identity is returned.
func (s *Session) Handshake(ctx context.Context) (protocol.Status, error) {
	c := s.conn.Load()
	if c == nil {
		return protocol.Status{}, protocol.Wrap(protocol.ClassTransport, "handshake", protocol.ErrOffline)
	}
	if c.direct {
		return c.status, nil
	}
	return handshake(ctx, c.control)
}

// StartOnline starts the session on the controller, transmits the
// configuration and spawns the exchange loop and keep-alive. It does
// nothing when already online.
func (s *Session) StartOnline(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.closed.Load() {
		return protocol.Wrap(protocol.ClassTransport, "start online", protocol.ErrClosed)
	}
	if s.Online() {
		return nil
	}
	c := s.conn.Load()
	if c == nil {
		return protocol.Errorf(protocol.ClassTransport, "start online", "not connected: %w", protocol.ErrOffline)
	}
	// a failed period still has to be released
	if prev := s.online.Swap(nil); prev != nil {
		<-prev.done
	}

	if !c.direct {
		resp, err := c.control.Exchange(ctx, protocol.EncodeStartOnline(), protocol.ReadFixed(protocol.IDFrameSize))
		if err != nil {
			return err
		}
		if err := protocol.CheckAck("start online", resp, protocol.AckStartOnline); err != nil {
			return err
		}
		for unit := 0; unit < s.frame.units; unit++ {
			if err := s.sendConfig(ctx, c, unit); err != nil {
				return err
			}
		}
	}

	pctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(pctx)
	p := &period{cancel: cancel, fail: make(chan error, 1), done: make(chan struct{})}

	s.started.Store(true)
	s.state.Store(int32(StateOnline))
	s.online.Store(p)

	ex := s.newExchanger(c)
	g.Go(func() error { return s.exchangeLoop(gctx, ex) })
	if !c.direct {
		g.Go(func() error { return s.keepAlive(gctx, c.control) })
	}
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-p.fail:
			return err
		}
	})
	go s.watch(p, g, c)

	if !c.direct {
		s.openRegister(ctx, c)
	}

	s.log.WithField("interval", s.opts.UpdateInterval).Info("online")
	return nil
}

// watch waits for the goroutines of p. An error takes the session offline
// and closes the control link.
func (s *Session) watch(p *period, g *errgroup.Group, c *connection) {
	err := g.Wait()
	p.cancel()
	if err == nil {
		close(p.done)
		return
	}

	s.state.Store(int32(StateOffline))
	s.metrics.recordError(protocol.Classify(err).String())
	s.log.WithError(err).Error("session offline")
	s.closeRegister()
	if s.conn.CompareAndSwap(c, nil) {
		c.control.Close()
	}
	close(p.done)

	if s.opts.OnError != nil {
		s.opts.OnError(err)
	}
}

// fail ends the current online period with err
func (s *Session) fail(err error) {
	if p := s.online.Load(); p != nil {
		select {
		case p.fail <- err:
		default:
		}
	}
}

// StopOnline stops the background loops and ends the session on the
// controller. The control link stays open for StartOnline. It does
// nothing when already offline.
func (s *Session) StopOnline(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	return s.stopOnline(ctx)
}

func (s *Session) stopOnline(ctx context.Context) error {
	p := s.online.Swap(nil)
	if p == nil {
		return nil
	}
	p.cancel()
	<-p.done
	s.closeRegister()

	if State(s.state.Swap(int32(StateOffline))) != StateOnline {
		return nil // already failed
	}
	s.log.Info("offline")

	c := s.conn.Load()
	if c == nil || c.direct {
		return nil
	}
	resp, err := c.control.Exchange(ctx, protocol.EncodeID(protocol.IDStopOnline), protocol.ReadFixed(protocol.IDFrameSize))
	if err != nil {
		return err
	}
	return protocol.CheckAck("stop online", resp, protocol.AckStopOnline)
}

// Close stops all channels and closes the control link. A closed session
// cannot be reconnected.
func (s *Session) Close() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.closed.Swap(true) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.Timeout)
	defer cancel()

	s.StopBTJoystick()
	err := s.StopCamera(ctx)
	if serr := s.stopOnline(ctx); err == nil {
		err = serr
	}
	if c := s.conn.Swap(nil); c != nil {
		if cerr := c.control.Close(); err == nil {
			err = cerr
		}
	}
	s.broker.Shutdown()

	s.log.Info("closed")
	return err
}

// SetConfig stages the output modes (protocol.OutputMotor or
// protocol.OutputSingle per motor pair) and input modes of unit
func (s *Session) SetConfig(unit int, motors [protocol.NumMotors]uint8, inputs [protocol.NumInputs]protocol.InputConfig) {
	s.Sync(func(f *Frame) { f.SetConfig(unit, motors, inputs) })
}

func (s *Session) Config(unit int) protocol.UnitConfig {
	return read(s, func(f *Frame) protocol.UnitConfig { return f.Config(unit) })
}

// UpdateConfig transmits the staged configuration of unit. Before the
// first StartOnline it only stages, since going online transmits every
// unit. A rejected configuration takes the session offline.
func (s *Session) UpdateConfig(ctx context.Context, unit int) error {
	c := s.conn.Load()
	if !s.Online() || c == nil {
		if !s.started.Load() {
			return nil
		}
		return protocol.Wrap(protocol.ClassTransport, "update config", protocol.ErrOffline)
	}

	if c.direct {
		// picked up by the next shield round
		s.Sync(func(f *Frame) { f.configID[unit]++ })
		return nil
	}

	if err := s.sendConfig(ctx, c, unit); err != nil {
		if ctx.Err() == nil {
			s.fail(err)
		}
		return err
	}
	return nil
}

func (s *Session) sendConfig(ctx context.Context, c *connection, unit int) error {
	var (
		id  int16
		cfg protocol.UnitConfig
	)
	s.Sync(func(f *Frame) {
		f.configID[unit]++
		id, cfg = f.configID[unit], f.config[unit]
	})

	resp, err := c.control.Exchange(ctx, protocol.EncodeConfig(id, unit, cfg), protocol.ReadFixed(protocol.IDFrameSize))
	if err != nil {
		return err
	}
	if err := protocol.CheckAck("update config", resp, protocol.AckUpdateConfig); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"unit": unit, "config_id": id}).Debug("configuration sent")
	return nil
}

// UpdateWait blocks until an exchange round that started after the call
// has completed
func (s *Session) UpdateWait(ctx context.Context) error {
	// the round in flight may have been built before the call
	return s.waitRounds(ctx, 2)
}

func (s *Session) waitRounds(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		p := s.online.Load()
		if p == nil || !s.Online() {
			return protocol.Wrap(protocol.ClassTransport, "update wait", protocol.ErrOffline)
		}
		ch := read(s, func(f *Frame) chan struct{} { return f.roundDone })
		select {
		case <-ch:
		case <-p.done:
			return protocol.Wrap(protocol.ClassTransport, "update wait", protocol.ErrOffline)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribe returns a channel receiving the messages of topics, TopicIO
// when none are given. Receivers that fall behind miss messages.
func (s *Session) Subscribe(topics ...string) chan interface{} {
	if len(topics) == 0 {
		topics = []string{TopicIO}
	}
	return s.broker.Sub(topics...)
}

// Unsubscribe detaches ch from all topics and closes it
func (s *Session) Unsubscribe(ch chan interface{}) {
	if s.closed.Load() {
		return
	}
	s.broker.Unsub(ch)
}

func (s *Session) openRegister(ctx context.Context, c *connection) {
	dctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	addr := net.JoinHostPort(c.host, strconv.Itoa(s.opts.Port+protocol.RegisterPortOffset))
	nc, err := s.opts.Dial(dctx, "tcp", addr)
	if err != nil {
		s.log.WithError(err).Warn("register channel unavailable")
		return
	}
	s.register.Store(newRegisterChannel(s, protocol.NewTransport(nc, s.opts.Timeout)))
}

func (s *Session) closeRegister() {
	if r := s.register.Swap(nil); r != nil {
		r.tr.Close()
	}
}

// Registers returns the register channel of the current online period
func (s *Session) Registers() (*RegisterChannel, error) {
	if s.Direct() {
		return nil, protocol.Errorf(protocol.ClassConfiguration, "registers", "direct mode: %w", protocol.ErrNotSupported)
	}
	r := s.register.Load()
	if r == nil || !s.Online() {
		return nil, protocol.Wrap(protocol.ClassTransport, "registers", protocol.ErrOffline)
	}
	return r, nil
}
