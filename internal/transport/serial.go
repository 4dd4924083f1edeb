package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tarm/serial"
)

// DefaultBaud is the baud rate used when none is configured.
const DefaultBaud = 9600

type serialConn struct {
	port *serial.Port
	mu   sync.Mutex
}

// openSerial opens a serial port. Bluetooth SPP printers bound to
// /dev/rfcomm* or /dev/cu.*Bluetooth* are opened this way too.
func openSerial(device string, baud int) (Conn, error) {
	if baud == 0 {
		baud = DefaultBaud
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        device,
		Baud:        baud,
		ReadTimeout: 500 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}

	return &serialConn{port: port}, nil
}

func (c *serialConn) Write(data []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.port.Write(data)
}

// ReadTimeout polls the port until data arrives or d elapses. The port
// itself times out every 500ms.
func (c *serialConn) ReadTimeout(p []byte, d time.Duration) (int, error) {
	deadline := time.Now().Add(d)
	for {
		n, err := c.port.Read(p)
		if n > 0 {
			return n, nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		if time.Now().After(deadline) {
			return 0, ErrTimeout
		}
	}
}

func (c *serialConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.port.Close()
}
