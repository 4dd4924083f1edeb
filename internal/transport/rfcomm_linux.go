//go:build linux

package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

type rfcommConn struct {
	fd int
	mu sync.Mutex
}

// dialRFCOMM connects a Bluetooth SPP socket. Printers listen on channel 1
// unless configured otherwise.
func dialRFCOMM(ctx context.Context, mac string, channel uint8) (Conn, error) {
	hw, err := net.ParseMAC(mac)
	if err != nil || len(hw) != 6 {
		return nil, fmt.Errorf("%w: bluetooth address %q", ErrInvalidTarget, mac)
	}
	if channel == 0 {
		channel = 1
	}

	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM, unix.BTPROTO_RFCOMM)
	if err != nil {
		return nil, fmt.Errorf("failed to open rfcomm socket: %w", err)
	}

	// bdaddr_t is little endian.
	sa := &unix.SockaddrRFCOMM{Channel: channel}
	for i := 0; i < 6; i++ {
		sa.Addr[i] = hw[5-i]
	}

	done := make(chan error, 1)
	go func() { done <- unix.Connect(fd, sa) }()

	select {
	case err := <-done:
		if err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("failed to connect to bluetooth printer %s: %w", mac, err)
		}
		return &rfcommConn{fd: fd}, nil
	case <-ctx.Done():
		// Shutting down the socket aborts the pending connect.
		unix.Shutdown(fd, unix.SHUT_RDWR)
		<-done
		unix.Close(fd)
		return nil, ctx.Err()
	}
}

func (c *rfcommConn) Write(data []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	written := 0
	for written < len(data) {
		n, err := unix.Write(c.fd, data[written:])
		if err != nil {
			return written, err
		}
		written += n
	}
	return written, nil
}

func (c *rfcommConn) ReadTimeout(p []byte, d time.Duration) (int, error) {
	tv := unix.NsecToTimeval(d.Nanoseconds())
	if err := unix.SetsockoptTimeval(c.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return 0, err
	}
	n, err := unix.Read(c.fd, p)
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		return 0, ErrTimeout
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (c *rfcommConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return unix.Close(c.fd)
}
