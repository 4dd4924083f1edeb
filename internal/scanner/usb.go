package scanner

import (
	"context"
	"fmt"

	"github.com/google/gousb"
	"go.uber.org/zap"

	"github.com/thereceipt/thermal-bridge/internal/transport"
)

// USBID is a vendor and product id pair.
type USBID struct {
	Vendor  uint16
	Product uint16
}

// USBScanner enumerates attached USB printers: devices of the printer class
// plus anything on the allow list.
type USBScanner struct {
	AllowList []USBID
	Logger    *zap.Logger
}

// Scan implements Scanner. It fails when libusb is unavailable.
func (s *USBScanner) Scan(ctx context.Context, emit func(Found)) error {
	usb := gousb.NewContext()
	defer usb.Close()

	devices, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return s.accept(desc)
	})
	// OpenDevices reports per-device open failures but still returns the
	// devices it could open.
	defer func() {
		for _, dev := range devices {
			dev.Close()
		}
	}()
	if err != nil && len(devices) == 0 {
		return fmt.Errorf("failed to enumerate USB devices: %w", err)
	}
	if err != nil && s.Logger != nil {
		s.Logger.Debug("some USB devices could not be opened", zap.Error(err))
	}

	for _, dev := range devices {
		if err := ctx.Err(); err != nil {
			return err
		}

		manufacturer, _ := dev.Manufacturer()
		product, _ := dev.Product()
		serial, _ := dev.SerialNumber()

		emit(Found{
			Transport:    USB,
			Name:         product,
			Manufacturer: manufacturer,
			VendorID:     uint16(dev.Desc.Vendor),
			ProductID:    uint16(dev.Desc.Product),
			SerialNumber: serial,
			Address:      fmt.Sprintf("%04X:%04X", uint16(dev.Desc.Vendor), uint16(dev.Desc.Product)),
		})
	}

	return nil
}

func (s *USBScanner) accept(desc *gousb.DeviceDesc) bool {
	if transport.IsPrinterDevice(desc) {
		return true
	}
	return s.allowed(uint16(desc.Vendor), uint16(desc.Product))
}

func (s *USBScanner) allowed(vid, pid uint16) bool {
	for _, id := range s.AllowList {
		if id.Vendor == vid && id.Product == pid {
			return true
		}
	}
	return false
}
