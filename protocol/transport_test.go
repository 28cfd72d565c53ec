package protocol

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoPeer answers every 4 byte request with its bytes reversed
func echoPeer(t *testing.T, conn net.Conn) {
	t.Helper()
	go func() {
		buf := make([]byte, 4)
		for {
			if _, err := io.ReadFull(conn, buf); err != nil {
				return
			}
			resp := []byte{buf[3], buf[2], buf[1], buf[0]}
			if _, err := conn.Write(resp); err != nil {
				return
			}
		}
	}()
}

func TestTransportExchange(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	echoPeer(t, server)

	tr := NewTransport(client, time.Second)
	defer tr.Close()

	resp, err := tr.Exchange(context.Background(), []byte{1, 2, 3, 4}, ReadFixed(4))
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 3, 2, 1}, resp)
}

func TestTransportSerializesCallers(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	echoPeer(t, server)

	tr := NewTransport(client, time.Second)
	defer tr.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(v byte) {
			defer wg.Done()
			resp, err := tr.Exchange(context.Background(), []byte{v, 0, 0, v + 1}, ReadFixed(4))
			assert.NoError(t, err)
			assert.Equal(t, []byte{v + 1, 0, 0, v}, resp)
		}(byte(i * 2))
	}
	wg.Wait()
}

func TestTransportTimeout(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	// peer reads but never answers
	go io.Copy(io.Discard, server)

	tr := NewTransport(client, 50*time.Millisecond)
	defer tr.Close()

	_, err := tr.Exchange(context.Background(), []byte{1, 2, 3, 4}, ReadFixed(4))
	require.Error(t, err)
	assert.Equal(t, ClassTransport, Classify(err))
	assert.True(t, IsFatal(err))
}

func TestTransportClose(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	tr := NewTransport(client, time.Second)
	require.NoError(t, tr.Close())
	// second close is a no-op
	require.NoError(t, tr.Close())

	_, err := tr.Exchange(context.Background(), []byte{1}, nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestTransportCanceledContext(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	tr := NewTransport(client, time.Second)
	defer tr.Close()

	// occupy the loop with a transaction the peer never answers
	go tr.Exchange(context.Background(), []byte{1}, ReadFixed(4))
	go io.Copy(io.Discard, server)
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tr.Exchange(ctx, []byte{2}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadCompressed(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	go func() {
		buf := make([]byte, 1)
		io.ReadFull(server, buf)
		server.Write(EncodeCompressed(AckExchangeDataCmpr, 7, []byte{1, 2, 3}))
	}()

	tr := NewTransport(client, time.Second)
	defer tr.Close()

	resp, err := tr.Exchange(context.Background(), []byte{0}, ReadCompressed)
	require.NoError(t, err)
	h, payload, err := DecodeCompressed(resp, AckExchangeDataCmpr)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), h.CRC)
	assert.Equal(t, []byte{1, 2, 3}, payload)
}
