// Package transport opens byte-stream connections to printers over TCP,
// USB, Bluetooth RFCOMM and serial ports.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrTimeout is returned by ReadTimeout when the printer sent nothing.
	ErrTimeout = errors.New("transport: read timeout")
	// ErrNotSupported is returned for transports this platform cannot open.
	ErrNotSupported = errors.New("transport: not supported on this platform")
	// ErrInvalidTarget is returned for unparseable target strings.
	ErrInvalidTarget = errors.New("transport: invalid target")
)

// Kind identifies the link a connection runs over.
type Kind int

const (
	TCP Kind = iota
	USB
	Bluetooth
	Serial
)

func (k Kind) String() string {
	switch k {
	case TCP:
		return "tcp"
	case USB:
		return "usb"
	case Bluetooth:
		return "bluetooth"
	case Serial:
		return "serial"
	default:
		return "unknown"
	}
}

// DefaultRawPort is the raw printing port most network printers listen on.
const DefaultRawPort = 9100

// Address locates a printer on one transport. Only the fields of Kind are
// meaningful.
type Address struct {
	Kind Kind

	Host string
	Port int

	VendorID  uint16
	ProductID uint16
	// SerialNumber selects a USB printer when no VID:PID is known.
	SerialNumber string

	MAC     string
	Channel uint8

	Path string
	Baud int
}

func (a Address) String() string {
	switch a.Kind {
	case TCP:
		return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
	case USB:
		if a.SerialNumber != "" {
			return "usb:" + a.SerialNumber
		}
		return fmt.Sprintf("usb:%04X:%04X", a.VendorID, a.ProductID)
	case Bluetooth:
		return "bt:" + a.MAC
	case Serial:
		return a.Path
	default:
		return "?"
	}
}

// Conn is an open connection to a printer.
type Conn interface {
	Write(p []byte) (int, error)
	// ReadTimeout reads what the printer sends back within d. It returns
	// ErrTimeout when nothing arrived.
	ReadTimeout(p []byte, d time.Duration) (int, error)
	Close() error
}

// Dialer opens connections. The zero value dials real devices.
type Dialer struct {
	// DialTimeout bounds TCP connects. Zero means five seconds.
	DialTimeout time.Duration
}

// Dial opens a connection to addr.
func (d Dialer) Dial(ctx context.Context, addr Address) (Conn, error) {
	switch addr.Kind {
	case TCP:
		timeout := d.DialTimeout
		if timeout == 0 {
			timeout = 5 * time.Second
		}
		return dialTCP(ctx, addr.Host, addr.Port, timeout)
	case USB:
		return openUSB(addr)
	case Bluetooth:
		if addr.Path != "" {
			return openSerial(addr.Path, addr.Baud)
		}
		return dialRFCOMM(ctx, addr.MAC, addr.Channel)
	case Serial:
		return openSerial(addr.Path, addr.Baud)
	default:
		return nil, fmt.Errorf("%w: kind %d", ErrInvalidTarget, addr.Kind)
	}
}

// ParseTarget parses the "TYPE:identity" targets used by printer vendors:
// "TCP:host[:port]", "BT:mac", "USB:VID:PID", "USB:serial" and
// "SERIAL:path". TCP targets without a port use defaultPort.
func ParseTarget(target string, defaultPort int) (Address, error) {
	kind, rest, ok := strings.Cut(strings.TrimSpace(target), ":")
	if !ok || rest == "" {
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidTarget, target)
	}

	switch strings.ToUpper(kind) {
	case "TCP", "TCPS":
		host, port := rest, defaultPort
		if h, p, err := net.SplitHostPort(rest); err == nil {
			n, err := strconv.Atoi(p)
			if err != nil || n < 1 || n > 65535 {
				return Address{}, fmt.Errorf("%w: port %q", ErrInvalidTarget, p)
			}
			host, port = h, n
		}
		if port == 0 {
			port = DefaultRawPort
		}
		return Address{Kind: TCP, Host: host, Port: port}, nil

	case "BT", "BLE":
		if !IsMAC(rest) {
			return Address{}, fmt.Errorf("%w: bluetooth address %q", ErrInvalidTarget, rest)
		}
		return Address{Kind: Bluetooth, MAC: strings.ToUpper(rest), Channel: 1}, nil

	case "USB":
		if v, p, ok := strings.Cut(rest, ":"); ok && len(v) == 4 && len(p) == 4 {
			vid, err1 := strconv.ParseUint(v, 16, 16)
			pid, err2 := strconv.ParseUint(p, 16, 16)
			if err1 == nil && err2 == nil {
				return Address{Kind: USB, VendorID: uint16(vid), ProductID: uint16(pid)}, nil
			}
		}
		return Address{Kind: USB, SerialNumber: rest}, nil

	case "SERIAL":
		return Address{Kind: Serial, Path: rest}, nil

	default:
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidTarget, target)
	}
}

// IsMAC reports whether s looks like a colon separated 48-bit address.
func IsMAC(s string) bool {
	_, err := net.ParseMAC(s)
	return err == nil && len(s) == 17
}
