package epson

import (
	"github.com/thereceipt/thermal-bridge/internal/device"
	"github.com/thereceipt/thermal-bridge/internal/transport"
)

// DLE EOT n real-time status requests.
const (
	statusPrinter = 1
	statusOffline = 2
	statusError   = 3
	statusPaper   = 4
)

// QueryStatus asks for the four real-time status bytes. A printer that does
// not answer is reported with no faults, since write-only links such as
// some USB adapters never reply.
func QueryStatus(conn transport.Conn) device.Status {
	var b [5]byte
	for _, n := range []byte{statusPrinter, statusOffline, statusError, statusPaper} {
		if _, err := conn.Write([]byte{0x10, 0x04, n}); err != nil {
			return device.Status{Offline: true}
		}
		buf := make([]byte, 1)
		if k, err := conn.ReadTimeout(buf, statusTimeout); err != nil || k == 0 {
			return device.Status{}
		}
		b[n] = buf[0]
	}
	return ParseStatus(b[statusPrinter], b[statusOffline], b[statusError], b[statusPaper])
}

// ParseStatus decodes the DLE EOT 1..4 replies.
func ParseStatus(printer, offline, errCause, paper byte) device.Status {
	return device.Status{
		Offline:       printer&0x08 != 0,
		CoverOpen:     offline&0x04 != 0,
		PaperEmpty:    offline&0x20 != 0 || paper&0x60 == 0x60,
		PaperJam:      errCause&0x08 != 0,
		Unrecoverable: errCause&0x20 != 0,
	}
}
