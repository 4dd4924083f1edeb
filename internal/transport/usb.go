package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/gousb"
)

type usbConn struct {
	ctx    *gousb.Context
	device *gousb.Device
	config *gousb.Config
	iface  *gousb.Interface
	out    *gousb.OutEndpoint
	in     *gousb.InEndpoint // nil for write-only printers
	mu     sync.Mutex

	// closeDefault releases an interface claimed through DefaultInterface.
	closeDefault func()
}

// openUSB opens a USB printer by VID:PID or by serial number.
// Fails when libusb is unavailable.
func openUSB(addr Address) (Conn, error) {
	ctx := gousb.NewContext()

	dev, err := findUSB(ctx, addr)
	if err != nil {
		ctx.Close()
		return nil, err
	}

	conn, err := claim(dev)
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, err
	}
	conn.ctx = ctx
	return conn, nil
}

func findUSB(ctx *gousb.Context, addr Address) (*gousb.Device, error) {
	if addr.SerialNumber == "" {
		dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(addr.VendorID), gousb.ID(addr.ProductID))
		if err != nil {
			return nil, fmt.Errorf("failed to open USB device: %w", err)
		}
		if dev == nil {
			return nil, fmt.Errorf("device not found: %04X:%04X", addr.VendorID, addr.ProductID)
		}
		return dev, nil
	}

	devs, err := ctx.OpenDevices(serialCandidate(addr))
	var found *gousb.Device
	for _, d := range devs {
		if found == nil {
			if sn, snErr := d.SerialNumber(); snErr == nil && sn == addr.SerialNumber {
				found = d
				continue
			}
		}
		d.Close()
	}
	if found != nil {
		return found, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open USB devices: %w", err)
	}
	return nil, fmt.Errorf("device not found: serial %s", addr.SerialNumber)
}

// serialCandidate selects the devices whose serial number is read when
// looking one up by serial. Scanners also report allow-listed devices that
// are not of the printer class, so the class is not checked here.
func serialCandidate(addr Address) func(*gousb.DeviceDesc) bool {
	return func(desc *gousb.DeviceDesc) bool {
		if addr.VendorID != 0 && uint16(desc.Vendor) != addr.VendorID {
			return false
		}
		if addr.ProductID != 0 && uint16(desc.Product) != addr.ProductID {
			return false
		}
		return true
	}
}

// IsPrinterDevice reports whether the device or any of its interfaces is of
// the printer class.
func IsPrinterDevice(desc *gousb.DeviceDesc) bool {
	if desc.Class == gousb.ClassPrinter {
		return true
	}
	for _, cfg := range desc.Configs {
		for _, iface := range cfg.Interfaces {
			for _, alt := range iface.AltSettings {
				if alt.Class == gousb.ClassPrinter {
					return true
				}
			}
		}
	}
	return false
}

// claim finds an interface with a bulk OUT endpoint. The default interface
// works for most printers; otherwise the active configuration and then
// every configuration is tried.
func claim(dev *gousb.Device) (*usbConn, error) {
	iface, done, err := dev.DefaultInterface()
	if err != nil {
		dev.SetAutoDetach(true)
		iface, done, err = dev.DefaultInterface()
	}
	if err == nil {
		if conn := endpoints(iface); conn != nil {
			conn.device = dev
			// done closes both the interface and the default config.
			conn.iface = nil
			conn.closeDefault = done
			return conn, nil
		}
		done()
	}

	var lastErr error
	if active, err := dev.ActiveConfigNum(); err == nil && active > 0 {
		conn, err := claimConfig(dev, active)
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}

	for num := range dev.Desc.Configs {
		conn, err := claimConfig(dev, num)
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return nil, fmt.Errorf("failed to connect to USB printer: %w", lastErr)
	}
	return nil, fmt.Errorf("no suitable interface/endpoint found for USB printer %s", dev.Desc.Vendor)
}

func claimConfig(dev *gousb.Device, num int) (*usbConn, error) {
	cfg, err := dev.Config(num)
	if err != nil {
		return nil, fmt.Errorf("failed to set config %d: %w", num, err)
	}

	lastErr := fmt.Errorf("config %d has no OUT endpoint", num)
	for _, ifaceDesc := range dev.Desc.Configs[num].Interfaces {
		iface, err := cfg.Interface(ifaceDesc.Number, 0)
		if err != nil {
			// Some devices need a moment after the kernel driver detaches.
			time.Sleep(100 * time.Millisecond)
			iface, err = cfg.Interface(ifaceDesc.Number, 0)
			if err != nil {
				lastErr = fmt.Errorf("failed to claim interface %d: %w", ifaceDesc.Number, err)
				continue
			}
		}

		if conn := endpoints(iface); conn != nil {
			conn.device = dev
			conn.config = cfg
			return conn, nil
		}
		iface.Close()
	}

	cfg.Close()
	return nil, lastErr
}

func endpoints(iface *gousb.Interface) *usbConn {
	conn := &usbConn{iface: iface}
	for _, ep := range iface.Setting.Endpoints {
		switch {
		case ep.Direction == gousb.EndpointDirectionOut && conn.out == nil:
			if out, err := iface.OutEndpoint(ep.Number); err == nil {
				conn.out = out
			}
		case ep.Direction == gousb.EndpointDirectionIn && conn.in == nil:
			if in, err := iface.InEndpoint(ep.Number); err == nil {
				conn.in = in
			}
		}
	}
	if conn.out == nil {
		return nil
	}
	return conn
}

func (c *usbConn) Write(data []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.out.Write(data)
}

func (c *usbConn) ReadTimeout(p []byte, d time.Duration) (int, error) {
	if c.in == nil {
		return 0, ErrTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	n, err := c.in.ReadContext(ctx, p)
	if n == 0 && (ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded)) {
		return 0, ErrTimeout
	}
	return n, err
}

func (c *usbConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closeDefault != nil {
		c.closeDefault()
	}
	if c.iface != nil {
		c.iface.Close()
	}
	if c.config != nil {
		c.config.Close()
	}
	if c.device != nil {
		c.device.Close()
	}
	if c.ctx != nil {
		c.ctx.Close()
	}
	return nil
}
