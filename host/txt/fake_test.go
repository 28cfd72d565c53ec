package txt

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"txtlink/protocol"
)

const fakePort = 65000

type fakeConfig struct {
	id   int16
	unit int
	cfg  protocol.UnitConfig
}

// fakeController serves the control, camera and register channels over
// in-memory pipes handed out by its dial method
type fakeController struct {
	mu sync.Mutex

	status protocol.Status
	inputs [protocol.MaxUnits]protocol.UnitInputs
	ir     [26]byte
	regs   [256]byte
	frames [][]byte

	simple     []protocol.UnitOutputs
	compressed [][protocol.MaxUnits]protocol.UnitOutputs
	configs    []fakeConfig
	dials      []string

	starts, stops, queries, cameraStops int

	badStatus, badConfig, badRegister, dropExchange bool
}

func newFakeController() *fakeController {
	return &fakeController{status: protocol.Status{Name: "TXT-fake", Version: 0x04060600}}
}

func (fc *fakeController) set(fn func(fc *fakeController)) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fn(fc)
}

func (fc *fakeController) dial(_ context.Context, _, addr string) (net.Conn, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	port, _ := strconv.Atoi(portStr)
	fc.set(func(fc *fakeController) { fc.dials = append(fc.dials, addr) })

	client, server := net.Pipe()
	switch port - fakePort {
	case 0:
		go fc.serveControl(server)
	case protocol.CameraPortOffset:
		go fc.serveCamera(server)
	case protocol.RegisterPortOffset:
		go fc.serveRegister(server)
	default:
		client.Close()
		server.Close()
		return nil, fmt.Errorf("connection refused: %s", addr)
	}
	return client, nil
}

func readRest(conn net.Conn, head []byte, total int) ([]byte, error) {
	buf := make([]byte, total)
	copy(buf, head)
	_, err := io.ReadFull(conn, buf[len(head):])
	return buf, err
}

func (fc *fakeController) serveControl(conn net.Conn) {
	defer conn.Close()

	reqDec := protocol.NewDeltaDecoder(protocol.RequestWords, 0)
	respEnc := protocol.NewDeltaEncoder(protocol.ResponseWords)
	id := make([]byte, 4)

	for {
		if _, err := io.ReadFull(conn, id); err != nil {
			return
		}

		var resp []byte
		switch binary.LittleEndian.Uint32(id) {
		case protocol.IDQueryStatus:
			fc.mu.Lock()
			fc.queries++
			resp = protocol.EncodeStatus(fc.status)
			if fc.badStatus {
				copy(resp, protocol.EncodeID(protocol.AckStopOnline))
			}
			fc.mu.Unlock()

		case protocol.IDStartOnline:
			if _, err := readRest(conn, id, protocol.StartOnlineFrameSize); err != nil {
				return
			}
			fc.set(func(fc *fakeController) { fc.starts++ })
			resp = protocol.EncodeID(protocol.AckStartOnline)

		case protocol.IDStopOnline:
			fc.set(func(fc *fakeController) { fc.stops++ })
			resp = protocol.EncodeID(protocol.AckStopOnline)

		case protocol.IDUpdateConfig:
			req, err := readRest(conn, id, protocol.ConfigFrameSize)
			if err != nil {
				return
			}
			cid, unit, cfg, err := protocol.DecodeConfig(req)
			if err != nil {
				return
			}
			fc.mu.Lock()
			fc.configs = append(fc.configs, fakeConfig{id: cid, unit: unit, cfg: cfg})
			resp = protocol.EncodeID(protocol.AckUpdateConfig)
			if fc.badConfig {
				resp = protocol.EncodeID(protocol.AckStartOnline)
			}
			fc.mu.Unlock()

		case protocol.IDExchangeData:
			req, err := readRest(conn, id, protocol.SimpleRequestSize)
			if err != nil {
				return
			}
			out, err := protocol.DecodeSimpleRequest(req)
			if err != nil {
				return
			}
			fc.mu.Lock()
			if fc.dropExchange {
				fc.mu.Unlock()
				return
			}
			fc.simple = append(fc.simple, out)
			resp = protocol.EncodeSimpleResponse(&fc.inputs[protocol.UnitMaster], fc.ir)
			fc.mu.Unlock()

		case protocol.IDExchangeDataCmpr:
			head, err := readRest(conn, id, protocol.CompressedHeader)
			if err != nil {
				return
			}
			req, err := readRest(conn, head, protocol.CompressedHeader+int(binary.LittleEndian.Uint32(head[4:])))
			if err != nil {
				return
			}
			h, payload, err := protocol.DecodeCompressed(req, protocol.IDExchangeDataCmpr)
			if err != nil {
				return
			}
			words, _, err := reqDec.Decode(h.CRC, payload)
			if err != nil {
				return
			}
			fc.mu.Lock()
			fc.compressed = append(fc.compressed, protocol.OutputsFromRequestWords(words))
			rw := protocol.ResponseWordsOf(&fc.inputs)
			fc.mu.Unlock()
			p, crc, err := respEnc.Encode(rw)
			if err != nil {
				return
			}
			resp = protocol.EncodeCompressed(protocol.AckExchangeDataCmpr, crc, p)

		case protocol.IDStartCamera:
			if _, err := readRest(conn, id, protocol.StartCameraFrameSize); err != nil {
				return
			}
			resp = protocol.EncodeID(protocol.AckStartCamera)

		case protocol.IDStopCamera:
			fc.set(func(fc *fakeController) { fc.cameraStops++ })
			resp = protocol.EncodeID(protocol.AckStopCamera)

		default:
			return
		}

		if _, err := conn.Write(resp); err != nil {
			return
		}
	}
}

func (fc *fakeController) serveRegister(conn net.Conn) {
	defer conn.Close()

	for {
		head := make([]byte, protocol.RegisterBytesHeaderSize)
		if _, err := io.ReadFull(conn, head); err != nil {
			return
		}
		total := protocol.RegisterBytesHeaderSize + int(binary.BigEndian.Uint32(head[9:]))
		switch head[4] {
		case protocol.RegisterCmdRead:
			total = protocol.RegisterReadRequestSize
		case protocol.RegisterCmdWrite:
			total = protocol.RegisterWriteRequestSize
		}
		full, err := readRest(conn, head, total)
		if err != nil {
			return
		}
		req, err := protocol.DecodeRegisterRequest(full)
		if err != nil {
			return
		}

		fc.mu.Lock()
		var resp []byte
		switch {
		case req.Cmd == protocol.RegisterCmdRead && len(full) == protocol.RegisterReadRequestSize:
			data := append([]byte(nil), fc.regs[req.Reg:int(req.Reg)+req.Count]...)
			resp = protocol.EncodeRegisterReadResponse(data)
		case req.Cmd == protocol.RegisterCmdWrite && len(full) == protocol.RegisterWriteRequestSize:
			fc.regs[req.Reg] = req.Data[0]
			resp = protocol.EncodeRegisterWriteResponse()
		default:
			copy(fc.regs[req.Data[0]:], req.Data[1:])
			resp = protocol.EncodeRegisterWriteResponse()
		}
		if fc.badRegister {
			resp[0] ^= 0xFF
		}
		fc.mu.Unlock()

		if _, err := conn.Write(resp); err != nil {
			return
		}
	}
}

func (fc *fakeController) serveCamera(conn net.Conn) {
	defer conn.Close()

	fc.mu.Lock()
	frames := fc.frames
	fc.mu.Unlock()

	ack := make([]byte, 4)
	for _, f := range frames {
		h := protocol.CameraHeader{
			ID:             protocol.IDCameraFrame,
			FramesReady:    1,
			Width:          320,
			Height:         240,
			SizeRaw:        int32(len(f)),
			SizeCompressed: int32(len(f)),
		}
		if _, err := conn.Write(protocol.EncodeCameraHeader(h)); err != nil {
			return
		}
		if _, err := conn.Write(f); err != nil {
			return
		}
		if _, err := io.ReadFull(conn, ack); err != nil {
			return
		}
		if binary.LittleEndian.Uint32(ack) != protocol.AckCameraFrame {
			return
		}
	}
	io.Copy(io.Discard, conn)
}

func (fc *fakeController) lastSimple() protocol.UnitOutputs {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if len(fc.simple) == 0 {
		return protocol.UnitOutputs{}
	}
	return fc.simple[len(fc.simple)-1]
}

func (fc *fakeController) counts() (starts, stops, queries int) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.starts, fc.stops, fc.queries
}

// errorSink collects OnError reports
type errorSink chan error

func (e errorSink) report(err error) {
	select {
	case e <- err:
	default:
	}
}

func (e errorSink) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-e:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("no error reported")
		return nil
	}
}

func newTestSession(t *testing.T, fc *fakeController, mod func(o *Options)) (*Session, *logtest.Hook) {
	t.Helper()
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	opts := Options{
		Host:           "10.0.0.2",
		Port:           fakePort,
		UpdateInterval: 2 * time.Millisecond,
		Timeout:        time.Second,
		Logger:         logrus.NewEntry(logger),
		Dial:           fc.dial,
	}
	if mod != nil {
		mod(&opts)
	}
	s, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, hook
}
