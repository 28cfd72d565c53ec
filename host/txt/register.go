package txt

import (
	"context"

	"github.com/sirupsen/logrus"
	"tinygo.org/x/drivers"

	"txtlink/protocol"
)

// RegisterChannel reads and writes registers of devices on the
// controller's I2C bus. Failures are returned per call and reported to
// Options.OnError; they never take the session offline.
type RegisterChannel struct {
	s   *Session
	tr  *protocol.Transport
	log *logrus.Entry
}

var _ drivers.I2C = (*RegisterChannel)(nil)

func newRegisterChannel(s *Session, tr *protocol.Transport) *RegisterChannel {
	return &RegisterChannel{
		s:   s,
		tr:  tr,
		log: s.log.WithField("component", "register"),
	}
}

func (r *RegisterChannel) check(op string) error {
	if !r.s.Online() {
		return protocol.Wrap(protocol.ClassTransport, op, protocol.ErrOffline)
	}
	return nil
}

func (r *RegisterChannel) failed(op string, err error) error {
	r.s.metrics.recordRegisterError(op)
	r.log.WithError(err).Warnf("register %s failed", op)
	if r.s.opts.OnError != nil {
		r.s.opts.OnError(err)
	}
	return err
}

// ReadRegister reads n bytes of device starting at reg
func (r *RegisterChannel) ReadRegister(ctx context.Context, device uint32, reg uint16, n int) ([]byte, error) {
	if err := r.check("register read"); err != nil {
		return nil, err
	}
	resp, err := r.tr.Exchange(ctx, protocol.EncodeRegisterRead(device, reg, uint16(n)),
		protocol.ReadFixed(protocol.RegisterReadResponseHead+n))
	if err != nil {
		return nil, r.failed("read", err)
	}
	data, err := protocol.DecodeRegisterRead(resp, n)
	if err != nil {
		return nil, r.failed("read", err)
	}
	return data, nil
}

// WriteRegister writes one byte to reg of device
func (r *RegisterChannel) WriteRegister(ctx context.Context, device uint32, reg uint32, value byte) error {
	return r.write(ctx, protocol.EncodeRegisterWrite(device, reg, value))
}

// WriteBytes sends data to device unchanged. Most devices expect the
// register address as the first byte.
func (r *RegisterChannel) WriteBytes(ctx context.Context, device uint32, data []byte) error {
	return r.write(ctx, protocol.EncodeRegisterBytes(device, data))
}

func (r *RegisterChannel) write(ctx context.Context, req []byte) error {
	if err := r.check("register write"); err != nil {
		return err
	}
	resp, err := r.tr.Exchange(ctx, req, protocol.ReadFixed(protocol.RegisterWriteResponseSize))
	if err != nil {
		return r.failed("write", err)
	}
	if err := protocol.CheckRegisterWrite(resp); err != nil {
		return r.failed("write", err)
	}
	return nil
}

// Tx implements drivers.I2C. A one byte write followed by a read reads
// registers; a write without read writes the register named by w[0].
func (r *RegisterChannel) Tx(addr uint16, w, rd []byte) error {
	ctx := context.Background() // bounded by the transport timeout
	device := uint32(addr)

	switch {
	case len(w) == 1 && len(rd) > 0:
		data, err := r.ReadRegister(ctx, device, uint16(w[0]), len(rd))
		if err != nil {
			return err
		}
		copy(rd, data)
		return nil
	case len(w) == 2 && len(rd) == 0:
		return r.WriteRegister(ctx, device, uint32(w[0]), w[1])
	case len(w) > 2 && len(rd) == 0:
		return r.WriteBytes(ctx, device, w)
	}
	return protocol.Errorf(protocol.ClassConfiguration, "register tx",
		"%d byte write with %d byte read: %w", len(w), len(rd), protocol.ErrNotSupported)
}
