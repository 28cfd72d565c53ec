package txt

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"txtlink/protocol"
)

// ErrNoFrame is returned by CameraFrame when no complete frame arrived in time
var ErrNoFrame = errors.New("no camera frame available")

// Camera timing
const (
	cameraRetryDelay   = 20 * time.Millisecond
	cameraConnectTries = 150
	cameraPollDelay    = 10 * time.Millisecond
	cameraPolls        = 20
)

// camera is the state of the camera channel. mu guards the latest frame
// only; ctl serializes start and stop.
type camera struct {
	ctl    sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	online atomic.Bool

	mu    sync.Mutex
	frame *protocol.CameraFrame
}

// StartCamera asks the controller to stream JPEG frames and connects the
// camera channel in the background. It does nothing while streaming.
func (s *Session) StartCamera(ctx context.Context, cfg protocol.CameraConfig) error {
	cam := &s.camera
	cam.ctl.Lock()
	defer cam.ctl.Unlock()

	c := s.conn.Load()
	if c == nil || !s.Online() {
		return protocol.Wrap(protocol.ClassTransport, "start camera", protocol.ErrOffline)
	}
	if c.direct {
		return protocol.Errorf(protocol.ClassConfiguration, "start camera", "direct mode: %w", protocol.ErrNotSupported)
	}
	if cam.done != nil {
		select {
		case <-cam.done:
			cam.cancel() // stream broke, start over
		default:
			return nil
		}
	}

	resp, err := c.control.Exchange(ctx, protocol.EncodeStartCamera(cfg), protocol.ReadFixed(protocol.IDFrameSize))
	if err != nil {
		return err
	}
	if err := protocol.CheckAck("start camera", resp, protocol.AckStartCamera); err != nil {
		return err
	}

	cctx, cancel := context.WithCancel(context.Background())
	cam.cancel = cancel
	cam.done = make(chan struct{})
	cam.mu.Lock()
	cam.frame = nil
	cam.mu.Unlock()

	addr := net.JoinHostPort(c.host, strconv.Itoa(s.opts.Port+protocol.CameraPortOffset))
	go s.cameraLoop(cctx, addr, cam.done)

	s.log.WithFields(logrus.Fields{
		"width":  cfg.Width,
		"height": cfg.Height,
		"fps":    cfg.Framerate,
	}).Info("camera started")
	return nil
}

// StopCamera ends the camera channel and tells the controller to stop
// streaming. It does nothing when the camera is not running.
func (s *Session) StopCamera(ctx context.Context) error {
	cam := &s.camera
	cam.ctl.Lock()
	defer cam.ctl.Unlock()

	if cam.done == nil {
		return nil
	}
	cam.cancel()
	<-cam.done
	cam.cancel, cam.done = nil, nil

	c := s.conn.Load()
	if c == nil || !s.Online() {
		return nil
	}
	resp, err := c.control.Exchange(ctx, protocol.EncodeID(protocol.IDStopCamera), protocol.ReadFixed(protocol.IDFrameSize))
	if err != nil {
		return err
	}
	return protocol.CheckAck("stop camera", resp, protocol.AckStopCamera)
}

// CameraOnline reports whether the camera channel is connected
func (s *Session) CameraOnline() bool {
	return s.camera.online.Load()
}

// CameraFrame returns the latest complete frame and forgets it, polling
// briefly when none is pending
func (s *Session) CameraFrame(ctx context.Context) (protocol.CameraFrame, error) {
	cam := &s.camera
	for i := 0; i < cameraPolls; i++ {
		cam.mu.Lock()
		f := cam.frame
		cam.frame = nil
		cam.mu.Unlock()
		if f != nil {
			return *f, nil
		}

		select {
		case <-ctx.Done():
			return protocol.CameraFrame{}, ctx.Err()
		case <-time.After(cameraPollDelay):
		}
	}
	return protocol.CameraFrame{}, ErrNoFrame
}

func (s *Session) dialCamera(ctx context.Context, addr string) (net.Conn, error) {
	var lastErr error
	for i := 0; i < cameraConnectTries; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cameraRetryDelay):
		}

		dctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		conn, err := s.opts.Dial(dctx, "tcp", addr)
		cancel()
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	return nil, protocol.Wrap(protocol.ClassTransport, "camera connect", lastErr)
}

// cameraLoop receives frames until ctx ends or the stream breaks. Each
// complete frame is acknowledged so the controller sends the next one.
func (s *Session) cameraLoop(ctx context.Context, addr string, done chan struct{}) {
	defer close(done)
	log := s.log.WithField("component", "camera")

	conn, err := s.dialCamera(ctx, addr)
	if err != nil {
		if ctx.Err() == nil {
			log.WithError(err).Warn("camera not connected")
		}
		return
	}
	defer conn.Close()

	s.camera.online.Store(true)
	defer s.camera.online.Store(false)

	// closing the socket releases a blocked read
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	asm := protocol.NewFrameAssembler()
	head := make([]byte, protocol.CameraHeaderSize)
	chunk := make([]byte, protocol.CameraChunkLimit)
	lost := func(err error) {
		if ctx.Err() == nil {
			log.WithError(err).Warn("connection to camera lost")
		}
	}

	for {
		conn.SetDeadline(time.Now().Add(s.opts.Timeout))
		if _, err := io.ReadFull(conn, head); err != nil {
			lost(err)
			return
		}
		h, err := protocol.DecodeCameraHeader(head)
		if err != nil {
			if !errors.Is(err, protocol.ErrProtocolMismatch) {
				lost(err)
				return
			}
			log.WithError(err).Warn("unexpected frame header")
		}

		asm.Begin(h)
		for !asm.Complete() {
			n, err := conn.Read(chunk[:asm.NextRead()])
			if n > 0 {
				asm.Write(chunk[:n])
				continue
			}
			if err == nil {
				err = io.ErrUnexpectedEOF
			}
			lost(err)
			return
		}

		frame := asm.Frame()
		s.camera.mu.Lock()
		s.camera.frame = &frame
		s.camera.mu.Unlock()
		s.metrics.recordFrame()
		s.broker.TryPub(frame, TopicCamera)

		if _, err := conn.Write(protocol.EncodeID(protocol.AckCameraFrame)); err != nil {
			lost(err)
			return
		}
	}
}
