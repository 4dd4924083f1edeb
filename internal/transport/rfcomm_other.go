//go:build !linux

package transport

import (
	"context"
	"fmt"
)

// dialRFCOMM needs raw Bluetooth sockets, which only Linux exposes. Other
// platforms reach SPP printers through their bound serial port instead.
func dialRFCOMM(_ context.Context, mac string, _ uint8) (Conn, error) {
	return nil, fmt.Errorf("%w: rfcomm to %s", ErrNotSupported, mac)
}
