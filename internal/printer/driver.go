package printer

import (
	"context"
	"fmt"
	"strings"

	"github.com/thereceipt/thermal-bridge/internal/capability"
	"github.com/thereceipt/thermal-bridge/internal/device"
	"github.com/thereceipt/thermal-bridge/internal/device/epson"
	"github.com/thereceipt/thermal-bridge/internal/device/rongta"
	"github.com/thereceipt/thermal-bridge/internal/device/star"
	"github.com/thereceipt/thermal-bridge/internal/transport"
)

// CompletionMode is how a vendor tells that a written job has finished.
type CompletionMode int

const (
	// CompleteOnWrite waits for EventWriteComplete, which carries the
	// status read back after the data was sent.
	CompleteOnWrite CompletionMode = iota + 1
	// CompleteOnStatus waits for the EventStatus that ends a checked block.
	CompleteOnStatus
	// CompleteOnIdle polls Port.Busy until the port has sent everything.
	CompleteOnIdle
)

func (m CompletionMode) String() string {
	switch m {
	case CompleteOnWrite:
		return "write-complete"
	case CompleteOnStatus:
		return "status"
	case CompleteOnIdle:
		return "idle-poll"
	}
	return fmt.Sprintf("completion(%d)", int(m))
}

// Driver adapts one manufacturer's vendor port to the session.
type Driver interface {
	Manufacturer() Manufacturer
	Completion() CompletionMode
	// Profile resolves the printing profile of d.
	Profile(d Descriptor) (capability.Profile, error)
	// Open returns a port configured for d. prev is the port the session
	// used last, which a driver may reconfigure instead of replacing.
	Open(ctx context.Context, d Descriptor, prev device.Port) (device.Port, error)
	// MapError translates a vendor error into one of the package errors.
	MapError(err error) error
}

// DriverOptions are shared by the drivers.
type DriverOptions struct {
	// Dial opens transports; nil dials real devices.
	Dial device.DialFunc
	// Permissions grants USB access; nil grants everything.
	Permissions device.PermissionBroker
	// RongtaPaperWidth overrides the Rongta paper width in dots.
	RongtaPaperWidth int
	// RongtaDefaultPort is used for Rongta network printers without a port.
	RongtaDefaultPort int
}

// NewDrivers returns a driver for every manufacturer.
func NewDrivers(opts DriverOptions) map[Manufacturer]Driver {
	return map[Manufacturer]Driver{
		Epson:  &EpsonDriver{opts: opts},
		Star:   &StarDriver{opts: opts},
		Rongta: &RongtaDriver{opts: opts},
	}
}

func requestUSB(ctx context.Context, perms device.PermissionBroker, d Descriptor) error {
	if d.ConnectionType() != USB {
		return nil
	}
	granted, err := device.AwaitPermission(ctx, perms, d.ID())
	if err != nil {
		if isContextErr(err) {
			return err
		}
		return fmt.Errorf("%w: request usb permission: %w", ErrPermission, err)
	}
	if !granted {
		return fmt.Errorf("%w: usb access to %s refused", ErrPermission, d.ID())
	}
	return nil
}

// EpsonDriver drives Epson TM printers.
type EpsonDriver struct {
	opts DriverOptions
}

func (*EpsonDriver) Manufacturer() Manufacturer { return Epson }
func (*EpsonDriver) Completion() CompletionMode { return CompleteOnWrite }

func (*EpsonDriver) Profile(d Descriptor) (capability.Profile, error) {
	ed, ok := d.(EpsonDevice)
	if !ok {
		return capability.Profile{}, fmt.Errorf("%w: %T is not an epson descriptor", ErrUnknown, d)
	}
	p, err := capability.Epson().Resolve(ed.DeviceName)
	if err != nil {
		return capability.Profile{}, fmt.Errorf("%w: %q: %w", ErrUnsupportedModel, ed.DeviceName, err)
	}
	return p, nil
}

func (e *EpsonDriver) Open(ctx context.Context, d Descriptor, _ device.Port) (device.Port, error) {
	ed, ok := d.(EpsonDevice)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not an epson descriptor", ErrUnknown, d)
	}
	if err := requestUSB(ctx, e.opts.Permissions, d); err != nil {
		return nil, err
	}
	port, err := epson.New(epson.Config{Target: ed.target(), Dial: e.opts.Dial})
	if err != nil {
		return nil, e.MapError(err)
	}
	return port, nil
}

func (*EpsonDriver) MapError(err error) error {
	switch device.Code(err) {
	case epson.CodeConnect, epson.CodeTimeout, epson.CodeNotFound:
		return fmt.Errorf("%w: %w", ErrOffline, err)
	case epson.CodeIllegal:
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
	return fmt.Errorf("%w: %w", ErrUnknown, err)
}

// StarDriver drives Star Micronics printers.
type StarDriver struct {
	opts DriverOptions
}

func (*StarDriver) Manufacturer() Manufacturer { return Star }
func (*StarDriver) Completion() CompletionMode { return CompleteOnStatus }

func (*StarDriver) Profile(d Descriptor) (capability.Profile, error) {
	sd, ok := d.(StarDevice)
	if !ok {
		return capability.Profile{}, fmt.Errorf("%w: %T is not a star descriptor", ErrUnknown, d)
	}
	model := sd.ModelName
	if model == "" {
		model = starModelFromPort(sd.PortName)
	}
	p, err := capability.Star().Resolve(model)
	if err != nil {
		return capability.Profile{}, fmt.Errorf("%w: %q: %w", ErrUnsupportedModel, model, err)
	}
	return p, nil
}

func (s *StarDriver) Open(ctx context.Context, d Descriptor, _ device.Port) (device.Port, error) {
	sd, ok := d.(StarDevice)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not a star descriptor", ErrUnknown, d)
	}
	profile, err := s.Profile(d)
	if err != nil {
		return nil, err
	}
	if err := requestUSB(ctx, s.opts.Permissions, d); err != nil {
		return nil, err
	}
	port, err := star.New(star.Config{
		PortName:     sd.portName(),
		PortSettings: profile.PortSettings,
		Dial:         s.opts.Dial,
	})
	if err != nil {
		return nil, s.MapError(err)
	}
	return port, nil
}

func (*StarDriver) MapError(err error) error {
	switch device.Code(err) {
	case star.CodePowerOff:
		return fmt.Errorf("%w: %w", ErrOffline, err)
	case star.CodeCommunication, star.CodeInvalidPort, star.CodeInUse:
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
	return fmt.Errorf("%w: %w", ErrUnknown, err)
}

// starModelFromPort takes the model from a Bluetooth port name such as
// "BT:TSP100", unless the suffix is only the printer's address.
func starModelFromPort(portName string) string {
	kind, rest, ok := strings.Cut(portName, ":")
	if !ok || !strings.EqualFold(kind, "BT") || transport.IsMAC(rest) {
		return ""
	}
	return rest
}

// RongtaDriver drives Rongta ESC/POS printers.
type RongtaDriver struct {
	opts DriverOptions
}

func (*RongtaDriver) Manufacturer() Manufacturer { return Rongta }
func (*RongtaDriver) Completion() CompletionMode { return CompleteOnIdle }

func (r *RongtaDriver) Profile(d Descriptor) (capability.Profile, error) {
	if _, ok := d.(RongtaDevice); !ok {
		return capability.Profile{}, fmt.Errorf("%w: %T is not a rongta descriptor", ErrUnknown, d)
	}
	p := capability.RongtaProfile()
	if r.opts.RongtaPaperWidth > 0 {
		p.PaperWidthDots = r.opts.RongtaPaperWidth
	}
	return p, nil
}

func (r *RongtaDriver) Open(ctx context.Context, d Descriptor, prev device.Port) (device.Port, error) {
	rd, ok := d.(RongtaDevice)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not a rongta descriptor", ErrUnknown, d)
	}
	addr, err := r.address(rd)
	if err != nil {
		return nil, err
	}
	if err := requestUSB(ctx, r.opts.Permissions, d); err != nil {
		return nil, err
	}

	cfg := rongta.Config{Addr: addr, Dial: r.opts.Dial}
	if port, ok := prev.(*rongta.Port); ok {
		if err := port.Configure(cfg); err != nil {
			return nil, r.MapError(err)
		}
		return port, nil
	}
	return rongta.New(cfg), nil
}

func (r *RongtaDriver) address(d RongtaDevice) (transport.Address, error) {
	switch t := d.Target.(type) {
	case RongtaBluetooth:
		if transport.IsMAC(t.Address) {
			return transport.Address{Kind: transport.Bluetooth, MAC: strings.ToUpper(t.Address), Channel: 1}, nil
		}
		if t.Address == "" {
			return transport.Address{}, fmt.Errorf("%w: bluetooth printer without address", ErrConnection)
		}
		return transport.Address{Kind: transport.Bluetooth, Path: t.Address}, nil
	case RongtaNetwork:
		port := t.Port
		if port == 0 {
			port = r.opts.RongtaDefaultPort
		}
		if port == 0 {
			port = transport.DefaultRawPort
		}
		return transport.Address{Kind: transport.TCP, Host: t.IPAddress, Port: port}, nil
	case RongtaUSB:
		return transport.Address{Kind: transport.USB, VendorID: t.VendorID, ProductID: t.ProductID}, nil
	}
	return transport.Address{}, fmt.Errorf("%w: rongta descriptor without target", ErrConnection)
}

func (*RongtaDriver) MapError(err error) error {
	switch device.Code(err) {
	case rongta.CodeConnect:
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
	return fmt.Errorf("%w: %w", ErrUnknown, err)
}
