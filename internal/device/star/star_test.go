package star

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thereceipt/thermal-bridge/internal/device"
	"github.com/thereceipt/thermal-bridge/internal/transport"
)

// fakeConn answers every status request with the next queued block.
type fakeConn struct {
	mu      sync.Mutex
	written []byte
	blocks  [][]byte
	pending []byte
}

func (c *fakeConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, p...)
	if bytes.Equal(p, statusRequest) && len(c.blocks) > 0 {
		c.pending = append(c.pending, c.blocks[0]...)
		c.blocks = c.blocks[1:]
	}
	return len(p), nil
}

func (c *fakeConn) ReadTimeout(p []byte, d time.Duration) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		return 0, transport.ErrTimeout
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *fakeConn) Close() error { return nil }

var (
	asbOK         = []byte{0x23, 0x86, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	asbCoverOpen  = []byte{0x23, 0xA6, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	asbPaperEmpty = []byte{0x23, 0x86, 0x00, 0x00, 0x08, 0x00, 0x00, 0x00, 0x00}
)

func openPort(t *testing.T, conn *fakeConn, settings string) (*Port, chan device.Event) {
	t.Helper()
	port, err := New(Config{
		PortName:     "TCP:192.168.1.30",
		PortSettings: settings,
		Dial: func(ctx context.Context, addr transport.Address) (transport.Conn, error) {
			assert.Equal(t, "192.168.1.30", addr.Host)
			return conn, nil
		},
	})
	require.NoError(t, err)

	events := make(chan device.Event, 8)
	port.SetListener(func(ev device.Event) { events <- ev })
	require.NoError(t, port.Connect(context.Background()))
	require.Equal(t, device.EventConnected, (<-events).Kind)
	return port, events
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus(asbOK)
	require.NoError(t, err)
	assert.True(t, st.OK())

	st, _ = ParseStatus(asbCoverOpen)
	assert.True(t, st.CoverOpen)

	st, _ = ParseStatus(asbPaperEmpty)
	assert.True(t, st.PaperEmpty)

	st, _ = ParseStatus([]byte{0x23, 0x8E, 0x00, 0x00, 0x00})
	assert.True(t, st.Offline)

	st, _ = ParseStatus([]byte{0x23, 0x86, 0x28, 0x00, 0x00})
	assert.True(t, st.PaperJam)
	assert.True(t, st.Unrecoverable)

	_, err = ParseStatus([]byte{0x23})
	assert.Error(t, err)
}

func TestStatusLength(t *testing.T) {
	assert.Equal(t, 9, statusLength(0x23))
	assert.Equal(t, 7, statusLength(0x0F))
}

func TestCheckedBlockReportsStatus(t *testing.T) {
	conn := &fakeConn{blocks: [][]byte{asbOK, asbPaperEmpty}}
	port, events := openPort(t, conn, "")

	require.NoError(t, port.Write([]byte("job")))
	ev := <-events
	assert.Equal(t, device.EventStatus, ev.Kind)
	assert.True(t, ev.Status.PaperEmpty)
	assert.Contains(t, string(conn.written), "job")
}

func TestCheckedBlockRefusesFaultedPrinter(t *testing.T) {
	conn := &fakeConn{blocks: [][]byte{asbCoverOpen}}
	port, events := openPort(t, conn, "")

	require.NoError(t, port.Write([]byte("job")))
	ev := <-events
	assert.True(t, ev.Status.CoverOpen)
	assert.NotContains(t, string(conn.written), "job")
}

func TestCheckedBlockNoReplyIsPowerOff(t *testing.T) {
	port, events := openPort(t, &fakeConn{}, "")

	require.NoError(t, port.Write([]byte("job")))
	ev := <-events
	assert.Equal(t, device.EventError, ev.Kind)
	assert.Equal(t, CodePowerOff, device.Code(ev.Err))
	assert.Contains(t, ev.Err.Error(), MessagePowerOff)
}

func TestEscPosModeSkipsStatus(t *testing.T) {
	conn := &fakeConn{}
	port, events := openPort(t, conn, "escpos")

	require.NoError(t, port.Write([]byte("job")))
	ev := <-events
	assert.Equal(t, device.EventStatus, ev.Kind)
	assert.True(t, ev.Status.OK())
	assert.Equal(t, []byte("job"), conn.written)
}

func TestNewSerialPath(t *testing.T) {
	var got transport.Address
	port, err := New(Config{
		PortName:   "BT:TSP100",
		SerialPath: "/dev/rfcomm0",
		Dial: func(ctx context.Context, addr transport.Address) (transport.Conn, error) {
			got = addr
			return &fakeConn{}, nil
		},
	})
	require.NoError(t, err)

	events := make(chan device.Event, 1)
	port.SetListener(func(ev device.Event) { events <- ev })
	require.NoError(t, port.Connect(context.Background()))
	<-events
	assert.Equal(t, "/dev/rfcomm0", got.Path)
}

func TestNewInvalidPort(t *testing.T) {
	_, err := New(Config{PortName: "BT:TSP100"})
	assert.Equal(t, CodeInvalidPort, device.Code(err))
}

func TestMapDialError(t *testing.T) {
	err := mapDialError(context.DeadlineExceeded)
	assert.Equal(t, CodePowerOff, device.Code(err))
	assert.Contains(t, err.Error(), MessagePowerOff)
}

func TestProbeParse(t *testing.T) {
	p := Probe(0)
	assert.Equal(t, ProbePort, p.Port)
	assert.True(t, bytes.HasPrefix(p.Payload, []byte("STR_BCAST")))

	reply := make([]byte, 16)
	copy(reply, "STR_BCAST")
	reply = append(reply, []byte("RS1.0.0\x00\x00TSP143IIILAN\x00\x00")...)

	f, ok, done := p.Parse("192.168.1.30", reply)
	require.True(t, ok)
	assert.False(t, done)
	assert.Equal(t, "TSP143IIILAN", f.Model)

	_, ok, _ = p.Parse("192.168.1.31", []byte("EPSONq"))
	assert.False(t, ok)
}
