package protocol

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// ResponseReader reads exactly one response frame from the stream
type ResponseReader func(r io.Reader) ([]byte, error)

// ReadFixed reads a response of exactly n bytes
func ReadFixed(n int) ResponseReader {
	return func(r io.Reader) ([]byte, error) {
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		return buf, nil
	}
}

// ReadCompressed reads a compressed exchange frame: the fixed header and
// then the payload size it announces
func ReadCompressed(r io.Reader) ([]byte, error) {
	head := make([]byte, CompressedHeader)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, err
	}
	size := le.Uint32(head[4:])
	if size > maxCompressedPayload {
		return nil, fmt.Errorf("payload of %d bytes: %w", size, ErrFrameDecode)
	}
	buf := make([]byte, CompressedHeader+int(size))
	copy(buf, head)
	if _, err := io.ReadFull(r, buf[CompressedHeader:]); err != nil {
		return nil, err
	}
	return buf, nil
}

// maxCompressedPayload bounds a response of ResponseWords literal words
const maxCompressedPayload = ResponseWords*18/8 + 1

type deadliner interface {
	SetDeadline(t time.Time) error
}

type result struct {
	data []byte
	err  error
}

type transaction struct {
	req  []byte
	read ResponseReader
	done chan result
}

// Transport serializes request/response transactions on one stream. A
// single goroutine owns the stream so concurrent callers never interleave
// their frames.
type Transport struct {
	conn    io.ReadWriteCloser
	timeout time.Duration

	requests chan *transaction

	// Unix nanoseconds of the last completed transaction
	lastExchange atomic.Int64

	closeOnce sync.Once
	closeErr  error

	stopChan chan struct{}
	doneChan chan struct{}
}

// NewTransport starts a transport over conn. When conn supports deadlines
// every transaction is bounded by timeout.
func NewTransport(conn io.ReadWriteCloser, timeout time.Duration) *Transport {
	t := &Transport{
		conn:     conn,
		timeout:  timeout,
		requests: make(chan *transaction),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
	t.lastExchange.Store(time.Now().UnixNano())

	go t.loop()

	return t
}

// Exchange sends req and waits for the response read by read. A nil read
// sends without waiting for an answer.
func (t *Transport) Exchange(ctx context.Context, req []byte, read ResponseReader) ([]byte, error) {
	tx := &transaction{req: req, read: read, done: make(chan result, 1)}

	select {
	case t.requests <- tx:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.stopChan:
		return nil, ErrClosed
	}

	// In-flight I/O is bounded by the deadline, not by ctx
	r := <-tx.done
	return r.data, r.err
}

// Send writes req without expecting a response
func (t *Transport) Send(ctx context.Context, req []byte) error {
	_, err := t.Exchange(ctx, req, nil)
	return err
}

// LastExchange returns when the last transaction completed
func (t *Transport) LastExchange() time.Time {
	return time.Unix(0, t.lastExchange.Load())
}

func (t *Transport) loop() {
	defer close(t.doneChan)

	for {
		select {
		case <-t.stopChan:
			return
		case tx := <-t.requests:
			data, err := t.roundTrip(tx)
			tx.done <- result{data: data, err: err}
		}
	}
}

func (t *Transport) roundTrip(tx *transaction) ([]byte, error) {
	if d, ok := t.conn.(deadliner); ok && t.timeout > 0 {
		if err := d.SetDeadline(time.Now().Add(t.timeout)); err != nil {
			return nil, Wrap(ClassTransport, "set deadline", err)
		}
	}

	n, err := t.conn.Write(tx.req)
	if err != nil {
		return nil, Wrap(ClassTransport, "write", err)
	}
	if n != len(tx.req) {
		return nil, Errorf(ClassTransport, "write", "incomplete write: %d/%d bytes", n, len(tx.req))
	}

	var data []byte
	if tx.read != nil {
		data, err = tx.read(t.conn)
		if err != nil {
			class := ClassTransport
			if Classify(err) == ClassProtocol {
				class = ClassProtocol
			}
			return nil, Wrap(class, "read", err)
		}
	}

	t.lastExchange.Store(time.Now().UnixNano())
	return data, nil
}

// Close stops the transport and closes the stream. Blocked I/O is
// released by closing the stream.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		close(t.stopChan)
		t.closeErr = t.conn.Close()
		<-t.doneChan
	})
	return t.closeErr
}
