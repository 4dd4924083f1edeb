// Package device defines the callback driven port contract every printer
// manufacturer driver implements, and the pieces they share.
package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrProcessing is returned by Disconnect while the port is still flushing
// a job. The caller may retry.
var ErrProcessing = errors.New("device: port is processing")

// ErrNotConnected is returned by Write on a closed port.
var ErrNotConnected = errors.New("device: not connected")

// EventKind tells what happened on a port.
type EventKind int

const (
	EventConnected EventKind = iota + 1
	EventDisconnected
	// EventWriteComplete carries the status read after the data was sent.
	EventWriteComplete
	// EventStatus carries a status report.
	EventStatus
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventWriteComplete:
		return "write_complete"
	case EventStatus:
		return "status"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is delivered to a port's Listener on a goroutine owned by the port.
type Event struct {
	Kind   EventKind
	Status Status
	Err    error
}

// Listener receives port events.
type Listener func(Event)

// Status is a printer's reported condition.
type Status struct {
	CoverOpen     bool
	PaperEmpty    bool
	PaperJam      bool
	Offline       bool
	Unrecoverable bool
}

// OK reports whether no fault is set.
func (s Status) OK() bool {
	return s == Status{}
}

func (s Status) String() string {
	if s.OK() {
		return "ok"
	}
	var parts []string
	if s.CoverOpen {
		parts = append(parts, "cover open")
	}
	if s.PaperEmpty {
		parts = append(parts, "paper empty")
	}
	if s.PaperJam {
		parts = append(parts, "paper jam")
	}
	if s.Offline {
		parts = append(parts, "offline")
	}
	if s.Unrecoverable {
		parts = append(parts, "unrecoverable error")
	}
	return strings.Join(parts, ", ")
}

// Port is a vendor's connection to one printer. Connect, Write and the
// completion of a job are reported asynchronously through the listener.
type Port interface {
	SetListener(Listener)
	// Connect starts connecting; EventConnected or EventError follows.
	Connect(ctx context.Context) error
	// Write starts sending data; the vendor's completion event follows.
	Write(data []byte) error
	// Busy reports whether previously written data is still being sent.
	Busy() bool
	Connected() bool
	Disconnect() error
}

// Error is a vendor reported failure with the vendor's own code.
type Error struct {
	Vendor  string
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		return fmt.Sprintf("%s: %s", e.Vendor, e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", e.Vendor, e.Code, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Code returns the vendor code of err, or "" when err is not an *Error.
func Code(err error) string {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}
