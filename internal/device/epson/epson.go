// Package epson drives Epson TM printers over ESC/POS, reading status back
// with DLE EOT after every job.
package epson

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/thereceipt/thermal-bridge/internal/device"
	"github.com/thereceipt/thermal-bridge/internal/transport"
)

const name = "epson"

// Error codes reported in device.Error.
const (
	CodeConnect  = "ERR_CONNECT"
	CodeTimeout  = "ERR_TIMEOUT"
	CodeNotFound = "ERR_NOT_FOUND"
	CodeIllegal  = "ERR_ILLEGAL"
	CodeFailure  = "ERR_FAILURE"
)

const (
	writeChunk    = 4096
	statusTimeout = 2 * time.Second
)

// Config selects the printer to open.
type Config struct {
	// Target is the Epson target string, e.g. "TCP:192.168.0.20" or
	// "BT:00:01:90:AA:BB:CC".
	Target string
	Dial   device.DialFunc
}

// Port is an Epson printer connection.
type Port struct {
	link device.Link
}

// New creates a port for cfg. The target is parsed here; nothing is opened.
func New(cfg Config) (*Port, error) {
	addr, err := transport.ParseTarget(cfg.Target, transport.DefaultRawPort)
	if err != nil {
		return nil, &device.Error{Vendor: name, Code: CodeIllegal, Err: err}
	}
	p := &Port{}
	p.link.Addr = addr
	p.link.Dial = cfg.Dial
	return p, nil
}

func (p *Port) SetListener(fn device.Listener) { p.link.SetListener(fn) }

func (p *Port) Connect(ctx context.Context) error {
	if p.link.Connected() {
		go p.link.Emit(device.Event{Kind: device.EventConnected})
		return nil
	}
	p.link.Open(ctx, mapDialError)
	return nil
}

// Write sends data and then queries the printer status. The result arrives
// as EventWriteComplete.
func (p *Port) Write(data []byte) error {
	conn, err := p.link.BeginWrite()
	if err != nil {
		return &device.Error{Vendor: name, Code: CodeIllegal, Err: err}
	}

	go func() {
		if err := device.WriteAll(conn, data, writeChunk); err != nil {
			p.link.EndWrite()
			p.link.Emit(device.Event{Kind: device.EventError, Err: &device.Error{Vendor: name, Code: CodeFailure, Err: err}})
			return
		}
		status := QueryStatus(conn)
		p.link.EndWrite()
		p.link.Emit(device.Event{Kind: device.EventWriteComplete, Status: status})
	}()
	return nil
}

func (p *Port) Busy() bool      { return p.link.Busy() }
func (p *Port) Connected() bool { return p.link.Connected() }

// Disconnect closes the port. While a job is flushing it returns
// device.ErrProcessing.
func (p *Port) Disconnect() error { return p.link.Close() }

func mapDialError(err error) error {
	code := CodeConnect
	var nerr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &nerr) && nerr.Timeout():
		code = CodeTimeout
	case errors.Is(err, transport.ErrInvalidTarget):
		code = CodeIllegal
	case isNotFound(err):
		code = CodeNotFound
	}
	return &device.Error{Vendor: name, Code: code, Err: err}
}

func isNotFound(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) && dnsErr.IsNotFound
}
