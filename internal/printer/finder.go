package printer

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/thereceipt/thermal-bridge/internal/capability"
	"github.com/thereceipt/thermal-bridge/internal/device/rongta"
	"github.com/thereceipt/thermal-bridge/internal/logger"
	"github.com/thereceipt/thermal-bridge/internal/scanner"
	"github.com/thereceipt/thermal-bridge/internal/transport"
)

// USB vendor ids of the manufacturers' own interfaces.
const (
	epsonVendorID uint16 = 0x04B8
	starVendorID  uint16 = 0x0519
)

// starOUI is the MAC prefix of Star Micronics Bluetooth modules.
const starOUI = "00:11:62"

// Finder lists one manufacturer's printers on one connection type.
type Finder interface {
	Manufacturer() Manufacturer
	// Search runs one discovery pass. Scanner failures are logged and yield
	// no devices; the result never holds two descriptors with the same ID.
	Search(ctx context.Context, t ConnectionType) []Descriptor
}

// Scanners are the transport scanners a finder reads from. A nil scanner
// finds nothing.
type Scanners struct {
	Bluetooth scanner.Scanner
	Network   scanner.Scanner
	USB       scanner.Scanner
}

func (s Scanners) pick(t ConnectionType) scanner.Scanner {
	switch t {
	case Bluetooth:
		return s.Bluetooth
	case Network:
		return s.Network
	case USB:
		return s.USB
	}
	return nil
}

// SearchAll searches every type concurrently and merges the results. A
// failing transport does not affect the others.
func SearchAll(ctx context.Context, f Finder, types ...ConnectionType) []Descriptor {
	if len(types) == 0 {
		types = []ConnectionType{Bluetooth, Network, USB}
	}

	var (
		mu      sync.Mutex
		results = make([][]Descriptor, len(types))
	)
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range types {
		i, t := i, t
		g.Go(func() error {
			found := f.Search(gctx, t)
			mu.Lock()
			results[i] = found
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	var merged []Descriptor
	for _, r := range results {
		merged = append(merged, r...)
	}
	return dedupe(merged)
}

func dedupe(in []Descriptor) []Descriptor {
	seen := make(map[string]bool, len(in))
	out := make([]Descriptor, 0, len(in))
	for _, d := range in {
		if seen[d.ID()] {
			continue
		}
		seen[d.ID()] = true
		out = append(out, d)
	}
	return out
}

// collect runs s and logs a failure, keeping whatever was found first.
func collect(ctx context.Context, s scanner.Scanner, log *zap.Logger, t ConnectionType) []scanner.Found {
	if s == nil {
		return nil
	}
	found, err := scanner.Collect(ctx, s)
	if err != nil {
		log.Warn("Discovery failed", zap.String("connection", string(t)), zap.Int("partial", len(found)), zap.Error(err))
	}
	return found
}

// supportInfo marks model as supported when table resolves it.
func supportInfo(table *capability.Table, model string) (bool, string) {
	if strings.TrimSpace(model) == "" {
		return false, "Unable to identify printer model"
	}
	if table.Supports(model) {
		return true, ""
	}
	return false, fmt.Sprintf("Printer model '%s' is not supported. Supported models: %s",
		model, strings.Join(table.Titles(), ", "))
}

func usbTarget(f scanner.Found) string {
	if f.SerialNumber != "" {
		return "USB:" + f.SerialNumber
	}
	return fmt.Sprintf("USB:%04X:%04X", f.VendorID, f.ProductID)
}

func btName(f scanner.Found) string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

// EpsonFinder finds Epson TM printers.
type EpsonFinder struct {
	Scanners Scanners
	Logger   *zap.Logger
}

func (*EpsonFinder) Manufacturer() Manufacturer { return Epson }

func (e *EpsonFinder) Search(ctx context.Context, t ConnectionType) []Descriptor {
	log := logger.OrNop(e.Logger).Named("finder.epson")

	var out []Descriptor
	for _, f := range collect(ctx, e.Scanners.pick(t), log, t) {
		d, ok := e.describe(t, f)
		if !ok {
			continue
		}
		d.Supported, d.UnsupportedReason = supportInfo(capability.Epson(), d.DeviceName)
		out = append(out, d)
	}
	return dedupe(out)
}

func (e *EpsonFinder) describe(t ConnectionType, f scanner.Found) (EpsonDevice, bool) {
	d := EpsonDevice{Connection: t, DeviceType: "TYPE_PRINTER", MACAddress: f.MAC}
	switch t {
	case Network:
		d.Target = "TCP:" + f.Address
		d.IPAddress = f.Address
		d.DeviceName = f.Model
		return d, true

	case Bluetooth:
		name := btName(f)
		if !strings.HasPrefix(strings.ToUpper(name), "TM-") && !capability.Epson().Supports(name) {
			return d, false
		}
		d.DeviceName = name
		if f.Path != "" {
			d.Target = "SERIAL:" + f.Path
		} else {
			d.Target = "BT:" + f.Address
			d.BDAddress = f.Address
		}
		return d, true

	case USB:
		if f.VendorID != epsonVendorID {
			return d, false
		}
		d.DeviceName = f.Name
		d.Target = usbTarget(f)
		return d, true
	}
	return d, false
}

// StarFinder finds Star Micronics printers.
type StarFinder struct {
	Scanners Scanners
	Logger   *zap.Logger
}

func (*StarFinder) Manufacturer() Manufacturer { return Star }

func (s *StarFinder) Search(ctx context.Context, t ConnectionType) []Descriptor {
	log := logger.OrNop(s.Logger).Named("finder.star")

	var out []Descriptor
	for _, f := range collect(ctx, s.Scanners.pick(t), log, t) {
		d, ok := s.describe(t, f)
		if !ok {
			continue
		}
		d.Supported, d.UnsupportedReason = supportInfo(capability.Star(), d.ModelName)
		out = append(out, d)
	}
	return dedupe(out)
}

func (s *StarFinder) describe(t ConnectionType, f scanner.Found) (StarDevice, bool) {
	d := StarDevice{Connection: t, MACAddress: f.MAC}
	switch t {
	case Network:
		d.PortName = "TCP:" + f.Address
		d.ModelName = f.Model
		return d, true

	case Bluetooth:
		name := btName(f)
		isStar := strings.HasPrefix(strings.ToUpper(f.MAC), starOUI) ||
			strings.HasPrefix(strings.ToLower(name), "star") ||
			capability.Star().Supports(name)
		if !isStar {
			return d, false
		}
		if f.Path != "" {
			d.PortName = "SERIAL:" + f.Path
		} else {
			d.PortName = "BT:" + name
		}
		d.ModelName = starModelFromPort("BT:" + name)
		if d.ModelName == "" {
			d.ModelName = f.Name
		}
		return d, true

	case USB:
		if f.VendorID != starVendorID {
			return d, false
		}
		d.PortName = usbTarget(f)
		d.ModelName = f.Name
		d.USBSerialNumber = f.SerialNumber
		return d, true
	}
	return d, false
}

// RongtaFinder finds Rongta printers. Rongta printers cannot be told apart
// from other ESC/POS devices, so every imaging class Bluetooth device and
// every USB printer is listed.
type RongtaFinder struct {
	Scanners Scanners
	// DefaultPort is used for network printers found by the UDP probe.
	DefaultPort int
	Logger      *zap.Logger
}

func (*RongtaFinder) Manufacturer() Manufacturer { return Rongta }

func (r *RongtaFinder) Search(ctx context.Context, t ConnectionType) []Descriptor {
	log := logger.OrNop(r.Logger).Named("finder.rongta")

	var out []Descriptor
	for _, f := range collect(ctx, r.Scanners.pick(t), log, t) {
		switch t {
		case Bluetooth:
			out = append(out, NewRongtaDevice(RongtaBluetooth{Alias: btName(f), Name: f.Name, Address: f.Address}))
		case Network:
			out = append(out, NewRongtaDevice(RongtaNetwork{IPAddress: f.Address, Port: r.port(f.Port)}))
		case USB:
			out = append(out, NewRongtaDevice(RongtaUSB{Name: f.Name, VendorID: f.VendorID, ProductID: f.ProductID}))
		}
	}
	return dedupe(out)
}

func (r *RongtaFinder) port(found int) int {
	if found != 0 && found != rongta.ProbePort {
		return found
	}
	if r.DefaultPort != 0 {
		return r.DefaultPort
	}
	return transport.DefaultRawPort
}
