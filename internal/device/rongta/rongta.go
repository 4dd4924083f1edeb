// Package rongta drives Rongta ESC/POS printers. The SDK reports no job
// completion; callers poll Busy until the data has been sent.
package rongta

import (
	"context"
	"errors"
	"fmt"

	"github.com/thereceipt/thermal-bridge/internal/device"
	"github.com/thereceipt/thermal-bridge/internal/transport"
)

const name = "rongta"

// Error codes reported in device.Error.
const (
	CodeConnect = "CONNECT_FAILED"
	CodeWrite   = "WRITE_FAILED"
	CodeState   = "BAD_STATE"
)

const writeChunk = 2048

// Config selects the printer to open.
type Config struct {
	Addr transport.Address
	Dial device.DialFunc
}

// Port is a Rongta printer connection.
type Port struct {
	link device.Link
}

// New creates a port for cfg without opening it.
func New(cfg Config) *Port {
	p := &Port{}
	p.Configure(cfg)
	return p
}

// Configure points the port at a new printer. An open connection to the
// previous printer is closed first.
func (p *Port) Configure(cfg Config) error {
	if p.link.Connected() {
		if err := p.link.Close(); err != nil {
			return &device.Error{Vendor: name, Code: CodeState, Err: err}
		}
	}
	p.link.Addr = cfg.Addr
	p.link.Dial = cfg.Dial
	return nil
}

func (p *Port) SetListener(fn device.Listener) { p.link.SetListener(fn) }

func (p *Port) Connect(ctx context.Context) error {
	if p.link.Connected() {
		go p.link.Emit(device.Event{Kind: device.EventConnected})
		return nil
	}
	p.link.Open(ctx, func(err error) error {
		return &device.Error{Vendor: name, Code: CodeConnect, Message: fmt.Sprintf("connect to %s", p.link.Addr), Err: err}
	})
	return nil
}

// Write starts sending data in the background. Busy stays true until it has
// all been written. A write failure is emitted as EventError before Busy
// turns false.
func (p *Port) Write(data []byte) error {
	conn, err := p.link.BeginWrite()
	if err != nil {
		return &device.Error{Vendor: name, Code: CodeState, Err: err}
	}

	go func() {
		defer p.link.EndWrite()
		if err := device.WriteAll(conn, data, writeChunk); err != nil {
			p.link.Emit(device.Event{Kind: device.EventError, Err: &device.Error{Vendor: name, Code: CodeWrite, Err: err}})
		}
	}()
	return nil
}

func (p *Port) Busy() bool      { return p.link.Busy() }
func (p *Port) Connected() bool { return p.link.Connected() }

func (p *Port) Disconnect() error {
	err := p.link.Close()
	if errors.Is(err, device.ErrProcessing) {
		return err
	}
	if err != nil {
		return &device.Error{Vendor: name, Code: CodeState, Err: err}
	}
	return nil
}
