// Package star drives Star Micronics printers. Jobs are sent as a checked
// block: the automatic status is read back once the job has printed and is
// reported as EventStatus.
package star

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/thereceipt/thermal-bridge/internal/device"
	"github.com/thereceipt/thermal-bridge/internal/transport"
)

const name = "star"

// Error codes reported in device.Error.
const (
	CodeCommunication = "COMMUNICATION"
	CodePowerOff      = "POWER_OFF"
	CodeInvalidPort   = "INVALID_PORT"
	CodeInUse         = "IN_USE"
)

// MessagePowerOff is the message of a printer that cannot be reached.
const MessagePowerOff = "Printer is power off."

const (
	writeChunk    = 1024
	statusTimeout = 10 * time.Second
)

// Config selects the printer to open.
type Config struct {
	// PortName is "TCP:ip[:port]", "BT:mac" or "USB:serial".
	PortName string
	// PortSettings are the model's port settings, e.g. "Portable;l".
	PortSettings string
	// SerialPath opens a Bluetooth printer through its bound serial port.
	SerialPath string
	Dial       device.DialFunc
}

// Port is a Star printer connection.
type Port struct {
	link device.Link
	// asb reports whether the model returns automatic status.
	asb bool
}

// New creates a port for cfg without opening it.
func New(cfg Config) (*Port, error) {
	addr, err := transport.ParseTarget(cfg.PortName, transport.DefaultRawPort)
	if err != nil && cfg.SerialPath == "" {
		return nil, &device.Error{Vendor: name, Code: CodeInvalidPort, Err: err}
	}
	if cfg.SerialPath != "" {
		addr = transport.Address{Kind: transport.Bluetooth, Path: cfg.SerialPath}
	}

	p := &Port{asb: !strings.Contains(strings.ToLower(cfg.PortSettings), "escpos")}
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

// Write sends data inside a checked block and reports the status read at
// its end as EventStatus.
func (p *Port) Write(data []byte) error {
	conn, err := p.link.BeginWrite()
	if err != nil {
		code := CodeCommunication
		if errors.Is(err, device.ErrProcessing) {
			code = CodeInUse
		}
		return &device.Error{Vendor: name, Code: code, Err: err}
	}

	go func() {
		status, err := p.checkedBlock(conn, data)
		p.link.EndWrite()
		if err != nil {
			p.link.Emit(device.Event{Kind: device.EventError, Err: err})
			return
		}
		p.link.Emit(device.Event{Kind: device.EventStatus, Status: status})
	}()
	return nil
}

// checkedBlock refuses to print on a faulted printer, sends data and waits
// for the status after printing.
func (p *Port) checkedBlock(conn transport.Conn, data []byte) (device.Status, error) {
	if p.asb {
		before, err := readStatus(conn, time.Second)
		if err == nil && !before.OK() {
			return before, nil
		}
	}

	if err := device.WriteAll(conn, data, writeChunk); err != nil {
		return device.Status{}, &device.Error{Vendor: name, Code: CodeCommunication, Err: err}
	}

	if !p.asb {
		return device.Status{}, nil
	}
	after, err := readStatus(conn, statusTimeout)
	if errors.Is(err, transport.ErrTimeout) {
		return device.Status{}, &device.Error{Vendor: name, Code: CodePowerOff, Message: MessagePowerOff}
	}
	if err != nil {
		return device.Status{}, &device.Error{Vendor: name, Code: CodeCommunication, Err: err}
	}
	return after, nil
}

func (p *Port) Busy() bool      { return p.link.Busy() }
func (p *Port) Connected() bool { return p.link.Connected() }

// Disconnect closes the port, or returns device.ErrProcessing while a
// checked block is still running.
func (p *Port) Disconnect() error { return p.link.Close() }

func mapDialError(err error) error {
	var nerr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &nerr) && nerr.Timeout():
		return &device.Error{Vendor: name, Code: CodePowerOff, Message: MessagePowerOff, Err: err}
	case errors.Is(err, transport.ErrInvalidTarget):
		return &device.Error{Vendor: name, Code: CodeInvalidPort, Err: err}
	default:
		return &device.Error{Vendor: name, Code: CodeCommunication, Err: err}
	}
}
