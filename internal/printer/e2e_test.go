package printer

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

// printerConn is a transport connection that behaves like a printer: it
// answers Epson DLE EOT and Star ESC ACK SOH status requests.
type printerConn struct {
	mu      sync.Mutex
	written bytes.Buffer
	pending []byte
	closed  bool

	epson map[byte]byte
	star  [][]byte
}

func (c *printerConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written.Write(p)

	switch {
	case len(p) == 3 && p[0] == 0x10 && p[1] == 0x04:
		if r, ok := c.epson[p[2]]; ok {
			c.pending = append(c.pending, r)
		}
	case bytes.Equal(p, []byte{0x1B, 0x06, 0x01}):
		if len(c.star) > 0 {
			c.pending = append(c.pending, c.star[0]...)
			if len(c.star) > 1 {
				c.star = c.star[1:]
			}
		}
	}
	return len(p), nil
}

func (c *printerConn) ReadTimeout(p []byte, d time.Duration) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		return 0, transport.ErrTimeout
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *printerConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *printerConn) Written() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.written.Bytes()...)
}

type dialRecorder struct {
	mu    sync.Mutex
	conn  *printerConn
	addrs []transport.Address
	err   error
}

func (d *dialRecorder) Dial(_ context.Context, addr transport.Address) (transport.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addrs = append(d.addrs, addr)
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

func (d *dialRecorder) Addrs() []transport.Address {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]transport.Address(nil), d.addrs...)
}

var epsonOK = map[byte]byte{1: 0x16, 2: 0x12, 3: 0x12, 4: 0x12}

func TestEndToEndEpson(t *testing.T) {
	dial := &dialRecorder{conn: &printerConn{epson: epsonOK}}
	drivers := NewDrivers(DriverOptions{Dial: dial.Dial})
	s := NewSession(drivers[Epson], fastOptions())

	res, err := s.PrintImageErr(context.Background(), pngBase64(t, 200, 80), testDevice())
	require.NoError(t, err)
	assert.Equal(t, Success, res)

	written := dial.conn.Written()
	assert.True(t, bytes.HasPrefix(written, []byte{0x1B, '@'}))
	assert.True(t, bytes.Contains(written, []byte{0x1D, 'v', '0'}), "raster image sent")
	assert.True(t, bytes.Contains(written, []byte{0x10, 0x04, 0x04}), "status queried")

	require.Len(t, dial.Addrs(), 1)
	assert.Equal(t, transport.Address{Kind: transport.TCP, Host: "192.168.0.20", Port: 9100}, dial.Addrs()[0])
	assert.True(t, dial.conn.closed)
}

func TestEndToEndEpsonOffline(t *testing.T) {
	dial := &dialRecorder{conn: &printerConn{epson: map[byte]byte{1: 0x1E, 2: 0x12, 3: 0x12, 4: 0x12}}}
	s := NewSession(NewDrivers(DriverOptions{Dial: dial.Dial})[Epson], fastOptions())

	res := s.PrintImage(context.Background(), pngBase64(t, 32, 32), testDevice())
	assert.Equal(t, ErrorOffline, res)
}

func TestEndToEndEpsonUnreachable(t *testing.T) {
	dial := &dialRecorder{err: context.DeadlineExceeded}
	s := NewSession(NewDrivers(DriverOptions{Dial: dial.Dial})[Epson], fastOptions())

	res := s.PrintImage(context.Background(), pngBase64(t, 32, 32), testDevice())
	assert.Equal(t, ErrorOffline, res)
}

func TestEndToEndStar(t *testing.T) {
	asbOK := []byte{0x23, 0x86, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	asbPaperEmpty := []byte{0x23, 0x86, 0x00, 0x00, 0x08, 0x00, 0x00, 0x00, 0x00}

	dial := &dialRecorder{conn: &printerConn{star: [][]byte{asbOK, asbPaperEmpty}}}
	s := NewSession(NewDrivers(DriverOptions{Dial: dial.Dial})[Star], fastOptions())
	d := StarDevice{Connection: Network, ModelName: "TSP100", PortName: "TCP:192.168.1.20"}

	res := s.PrintImage(context.Background(), pngBase64(t, 64, 32), d)
	assert.Equal(t, ErrorPaperEmpty, res)

	written := dial.conn.Written()
	assert.True(t, bytes.Contains(written, []byte{0x1B, '*', 'r', 'A'}), "TSP100 prints in raster mode")
}

func TestEndToEndStarBluetoothUsesMAC(t *testing.T) {
	asbOK := []byte{0x23, 0x86, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	dial := &dialRecorder{conn: &printerConn{star: [][]byte{asbOK}}}
	s := NewSession(NewDrivers(DriverOptions{Dial: dial.Dial})[Star], fastOptions())

	d := StarDevice{Connection: Bluetooth, PortName: "BT:TSP100", MACAddress: "00:11:62:aa:bb:cc"}
	res := s.PrintImage(context.Background(), pngBase64(t, 64, 32), d)
	assert.Equal(t, Success, res)

	require.Len(t, dial.Addrs(), 1)
	assert.Equal(t, "00:11:62:AA:BB:CC", dial.Addrs()[0].MAC)
}

func TestEndToEndRongtaReusesPort(t *testing.T) {
	dial := &dialRecorder{conn: &printerConn{}}
	s := NewSession(NewDrivers(DriverOptions{Dial: dial.Dial, RongtaPaperWidth: 384})[Rongta], fastOptions())

	first := NewRongtaDevice(RongtaNetwork{IPAddress: "10.0.0.7", Port: 9100})
	res, err := s.PrintImageErr(context.Background(), pngBase64(t, 600, 40), first)
	require.NoError(t, err)
	assert.Equal(t, Success, res)

	port := s.port
	second := NewRongtaDevice(RongtaNetwork{IPAddress: "10.0.0.8", Port: 9101})
	res = s.PrintImage(context.Background(), pngBase64(t, 16, 16), second)
	assert.Equal(t, Success, res)
	assert.Same(t, port, s.port, "rongta port is reconfigured, not replaced")

	addrs := dial.Addrs()
	require.Len(t, addrs, 2)
	assert.Equal(t, "10.0.0.8", addrs[1].Host)
	assert.Equal(t, 9101, addrs[1].Port)
}

func TestEndToEndUSBPermissionDenied(t *testing.T) {
	dial := &dialRecorder{conn: &printerConn{}}
	broker := &denyBroker{}
	s := NewSession(NewDrivers(DriverOptions{Dial: dial.Dial, Permissions: broker})[Rongta], fastOptions())

	res := s.PrintImage(context.Background(), pngBase64(t, 16, 16), NewRongtaDevice(RongtaUSB{VendorID: 0x0FE6, ProductID: 0x811E}))
	assert.Equal(t, ErrorPermission, res)
	assert.Empty(t, dial.Addrs())
	assert.Equal(t, 1, broker.unregistered)
}

// denyBroker refuses every request.
type denyBroker struct {
	receiver     func(string, bool)
	unregistered int
}

func (b *denyBroker) HasPermission(string) bool { return false }

func (b *denyBroker) Register(fn func(string, bool)) func() {
	b.receiver = fn
	return func() { b.unregistered++ }
}

func (b *denyBroker) RequestPermission(id string) error {
	go b.receiver(id, false)
	return nil
}

var _ device.PermissionBroker = (*denyBroker)(nil)
