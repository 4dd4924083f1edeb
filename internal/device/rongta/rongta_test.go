package rongta

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thereceipt/thermal-bridge/internal/device"
	"github.com/thereceipt/thermal-bridge/internal/transport"
)

type fakeConn struct {
	mu      sync.Mutex
	written []byte
	gate    chan struct{}
	fail    error
	closed  bool
}

func (c *fakeConn) Write(p []byte) (int, error) {
	if c.gate != nil {
		<-c.gate
	}
	if c.fail != nil {
		return 0, c.fail
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, p...)
	return len(p), nil
}

func (c *fakeConn) ReadTimeout([]byte, time.Duration) (int, error) { return 0, transport.ErrTimeout }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func dialer(conn *fakeConn) device.DialFunc {
	return func(context.Context, transport.Address) (transport.Conn, error) { return conn, nil }
}

func connect(t *testing.T, p *Port) chan device.Event {
	t.Helper()
	events := make(chan device.Event, 8)
	p.SetListener(func(ev device.Event) { events <- ev })
	require.NoError(t, p.Connect(context.Background()))
	require.Equal(t, device.EventConnected, (<-events).Kind)
	return events
}

func TestBusyWhileWriting(t *testing.T) {
	conn := &fakeConn{gate: make(chan struct{})}
	p := New(Config{Addr: transport.Address{Kind: transport.TCP, Host: "10.0.0.7", Port: 9100}, Dial: dialer(conn)})
	connect(t, p)

	data := make([]byte, 5000)
	require.NoError(t, p.Write(data))
	assert.True(t, p.Busy())
	assert.ErrorIs(t, p.Disconnect(), device.ErrProcessing)

	close(conn.gate)
	assert.Eventually(t, func() bool { return !p.Busy() }, time.Second, 5*time.Millisecond)
	assert.Len(t, conn.written, 5000)

	require.NoError(t, p.Disconnect())
	assert.True(t, conn.closed)
}

func TestWriteFailure(t *testing.T) {
	conn := &fakeConn{fail: errors.New("broken pipe")}
	p := New(Config{Dial: dialer(conn)})
	events := connect(t, p)

	require.NoError(t, p.Write([]byte{1, 2, 3}))
	ev := <-events
	assert.Equal(t, device.EventError, ev.Kind)
	assert.Equal(t, CodeWrite, device.Code(ev.Err))
}

func TestWriteFailureReportedBeforeIdle(t *testing.T) {
	for i := 0; i < 50; i++ {
		conn := &fakeConn{fail: errors.New("broken pipe")}
		p := New(Config{Dial: dialer(conn)})
		events := connect(t, p)

		require.NoError(t, p.Write([]byte{1, 2, 3}))
		require.Eventually(t, func() bool { return !p.Busy() }, time.Second, time.Microsecond)

		select {
		case ev := <-events:
			assert.Equal(t, device.EventError, ev.Kind)
		default:
			t.Fatalf("run %d: port went idle before reporting the write error", i)
		}
	}
}

func TestConfigureDisconnectsFirst(t *testing.T) {
	first := &fakeConn{}
	p := New(Config{Dial: dialer(first)})
	connect(t, p)

	second := &fakeConn{}
	require.NoError(t, p.Configure(Config{Dial: dialer(second)}))
	assert.True(t, first.closed)
	assert.False(t, p.Connected())
}

func TestConnectFailure(t *testing.T) {
	p := New(Config{Dial: func(context.Context, transport.Address) (transport.Conn, error) {
		return nil, errors.New("no route to host")
	}})
	events := make(chan device.Event, 1)
	p.SetListener(func(ev device.Event) { events <- ev })
	require.NoError(t, p.Connect(context.Background()))

	ev := <-events
	assert.Equal(t, device.EventError, ev.Kind)
	assert.Equal(t, CodeConnect, device.Code(ev.Err))
}

func TestProbeParse(t *testing.T) {
	p := Probe(0)
	assert.Equal(t, 1460, p.Port)

	f, ok, _ := p.Parse("192.168.101.87", []byte("RP330\x00 MAC:00-11-22"))
	require.True(t, ok)
	assert.Equal(t, "RP330 MAC:00-11-22", f.Model)

	_, ok, _ = p.Parse("192.168.101.2", []byte("MP4200FIND"))
	assert.False(t, ok)
}
