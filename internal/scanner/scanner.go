// Package scanner discovers printers on Bluetooth, the local network and
// USB. Scanners know nothing about vendors beyond the probes they are given;
// interpreting what they find is left to the printer finders.
package scanner

import (
	"context"
	"sync"
)

// Transport is the link a device was found on.
type Transport string

const (
	Bluetooth Transport = "bluetooth"
	Network   Transport = "network"
	USB       Transport = "usb"
)

// Found is one device seen by a scanner.
type Found struct {
	Transport Transport

	// Name is the advertised or product name, when known.
	Name  string
	Alias string
	// Address is the Bluetooth MAC or the IP address.
	Address string
	Port    int
	MAC     string
	Bonded  bool

	// Path is set for Bluetooth printers reachable through a bound serial port.
	Path string

	VendorID     uint16
	ProductID    uint16
	SerialNumber string
	Manufacturer string

	// Model is what a vendor probe reported, if anything.
	Model string
}

// Scanner runs one finite discovery pass, calling emit for every device.
// Scan returns when the pass is complete or ctx is done. Calling Scan again
// starts a new pass.
type Scanner interface {
	Scan(ctx context.Context, emit func(Found)) error
}

// Func adapts a function to the Scanner interface.
type Func func(ctx context.Context, emit func(Found)) error

func (f Func) Scan(ctx context.Context, emit func(Found)) error { return f(ctx, emit) }

// Collect runs s and returns everything it emitted, together with the scan
// error. Devices emitted before a failure are kept.
func Collect(ctx context.Context, s Scanner) ([]Found, error) {
	var (
		mu  sync.Mutex
		out []Found
	)
	err := s.Scan(ctx, func(f Found) {
		mu.Lock()
		out = append(out, f)
		mu.Unlock()
	})
	return out, err
}
