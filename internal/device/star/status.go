package star

import (
	"fmt"
	"time"

	"github.com/thereceipt/thermal-bridge/internal/device"
	"github.com/thereceipt/thermal-bridge/internal/transport"
)

// statusRequest asks for the automatic status (ESC ACK SOH).
var statusRequest = []byte{0x1B, 0x06, 0x01}

// readStatus requests and reads one automatic status block. The first byte
// encodes the block length.
func readStatus(conn transport.Conn, timeout time.Duration) (device.Status, error) {
	if _, err := conn.Write(statusRequest); err != nil {
		return device.Status{}, err
	}

	deadline := time.Now().Add(timeout)
	var buf []byte
	chunk := make([]byte, 64)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return device.Status{}, transport.ErrTimeout
		}
		n, err := conn.ReadTimeout(chunk, remaining)
		if err != nil {
			return device.Status{}, err
		}
		buf = append(buf, chunk[:n]...)
		if len(buf) > 0 && len(buf) >= statusLength(buf[0]) {
			return ParseStatus(buf)
		}
	}
}

// statusLength decodes the block length from the header byte: bits 1-3
// and bit 5 hold the length.
func statusLength(header byte) int {
	n := int((header>>1)&0x07) | int((header>>2)&0x08)
	if n < 7 {
		n = 7
	}
	return n
}

// ParseStatus decodes an automatic status block.
func ParseStatus(asb []byte) (device.Status, error) {
	if len(asb) < 5 {
		return device.Status{}, fmt.Errorf("star: status block too short (%d bytes)", len(asb))
	}
	return device.Status{
		Offline:       asb[1]&0x08 != 0,
		CoverOpen:     asb[1]&0x20 != 0,
		PaperJam:      asb[2]&0x08 != 0 || asb[3]&0x08 != 0,
		Unrecoverable: asb[2]&0x20 != 0,
		PaperEmpty:    asb[4]&0x08 != 0,
	}, nil
}
