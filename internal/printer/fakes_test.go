package printer

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/thereceipt/thermal-bridge/internal/capability"
	"github.com/thereceipt/thermal-bridge/internal/device"
)

// fakePort is an instrumented device.Port. Events are emitted from their own
// goroutines, like a real port.
type fakePort struct {
	mu          sync.Mutex
	listener    device.Listener
	connected   bool
	busyUntil   time.Time
	connects    int
	writes      [][]byte
	disconnects int
	busyPolls   int

	// active counts jobs between Connect and a successful Disconnect.
	active    int
	maxActive int

	// connectErr is emitted as EventError instead of EventConnected.
	connectErr error
	// silent never answers Connect.
	silent bool
	// writeErr is returned by Write.
	writeErr error
	// lateWriteErr is emitted as EventError from inside Write, before the
	// port goes idle.
	lateWriteErr error
	// processing is how many Disconnect calls fail with ErrProcessing.
	processing int
	// complete is emitted after a write; nil emits nothing.
	complete *device.Event
	// completeDelay delays the completion event.
	completeDelay time.Duration
	// busyFor keeps Busy true after a write.
	busyFor time.Duration
}

func (p *fakePort) SetListener(fn device.Listener) {
	p.mu.Lock()
	p.listener = fn
	p.mu.Unlock()
}

func (p *fakePort) Listener() device.Listener {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.listener
}

func (p *fakePort) emit(ev device.Event) {
	p.mu.Lock()
	fn := p.listener
	p.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func (p *fakePort) Connect(ctx context.Context) error {
	p.mu.Lock()
	p.connects++
	p.active++
	if p.active > p.maxActive {
		p.maxActive = p.active
	}
	err, silent := p.connectErr, p.silent
	if err == nil && !silent {
		p.connected = true
	}
	p.mu.Unlock()

	if silent {
		return nil
	}
	go func() {
		if err != nil {
			p.emit(device.Event{Kind: device.EventError, Err: err})
			return
		}
		p.emit(device.Event{Kind: device.EventConnected})
	}()
	return nil
}

func (p *fakePort) Write(data []byte) error {
	p.mu.Lock()
	if p.writeErr != nil {
		p.mu.Unlock()
		return p.writeErr
	}
	p.writes = append(p.writes, data)
	p.busyUntil = time.Now().Add(p.busyFor)
	complete, delay, lateErr := p.complete, p.completeDelay, p.lateWriteErr
	p.mu.Unlock()

	if lateErr != nil {
		p.emit(device.Event{Kind: device.EventError, Err: lateErr})
	}

	if complete != nil {
		go func() {
			time.Sleep(delay)
			p.emit(*complete)
		}()
	}
	return nil
}

func (p *fakePort) Busy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.busyPolls++
	return time.Now().Before(p.busyUntil)
}

func (p *fakePort) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *fakePort) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnects++
	if p.processing > 0 {
		p.processing--
		return device.ErrProcessing
	}
	if p.active > 0 {
		p.active--
	}
	p.connected = false
	return nil
}

func (p *fakePort) stats() (connects, writes, disconnects, maxActive int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connects, len(p.writes), p.disconnects, p.maxActive
}

// fakeDriver hands out one fakePort.
type fakeDriver struct {
	manufacturer Manufacturer
	mode         CompletionMode
	port         *fakePort
	profileErr   error
	openErr      error

	mu    sync.Mutex
	opens int
}

func newFakeDriver(mode CompletionMode, port *fakePort) *fakeDriver {
	return &fakeDriver{manufacturer: Epson, mode: mode, port: port}
}

func (d *fakeDriver) Manufacturer() Manufacturer { return d.manufacturer }
func (d *fakeDriver) Completion() CompletionMode { return d.mode }

func (d *fakeDriver) Profile(Descriptor) (capability.Profile, error) {
	if d.profileErr != nil {
		return capability.Profile{}, d.profileErr
	}
	return capability.Profile{Key: "FAKE", Title: "Fake", Dialect: capability.DialectEscPos, PaperWidthDots: 576}, nil
}

func (d *fakeDriver) Open(context.Context, Descriptor, device.Port) (device.Port, error) {
	d.mu.Lock()
	d.opens++
	d.mu.Unlock()
	if d.openErr != nil {
		return nil, d.openErr
	}
	return d.port, nil
}

func (d *fakeDriver) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

func (d *fakeDriver) MapError(err error) error {
	if device.Code(err) == "OFFLINE" {
		return fmt.Errorf("%w: %w", ErrOffline, err)
	}
	return fmt.Errorf("%w: %w", ErrConnection, err)
}

func fastOptions() SessionOptions {
	return SessionOptions{
		ConnectTimeout:     time.Second,
		CompletionTimeout:  time.Second,
		PollInitialDelay:   5 * time.Millisecond,
		PollInterval:       5 * time.Millisecond,
		DisconnectAttempts: 5,
		DisconnectDelay:    time.Millisecond,
	}
}

func testDevice() EpsonDevice {
	return EpsonDevice{Connection: Network, Target: "TCP:192.168.0.20", DeviceName: "TM-T88VI", Supported: true}
}

func pngBase64(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
			if (x/4+y/4)%2 == 0 {
				c = color.NRGBA{A: 255}
			}
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func completeWith(kind device.EventKind, status device.Status) *device.Event {
	return &device.Event{Kind: kind, Status: status}
}
