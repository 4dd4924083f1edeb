package printer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/thereceipt/thermal-bridge/internal/capability"
	"github.com/thereceipt/thermal-bridge/internal/transport"
)

// manualModelName names manual printers entered without a model. It is
// resolved by title later, which for the built-in tables fails.
const manualModelName = "Manual Connection"

var ipv4Pattern = regexp.MustCompile(`^((25[0-5]|(2[0-4]|1\d|[1-9]|)\d)\.?\b){4}$`)

// ManualInput is what a user types to add a printer discovery cannot see.
type ManualInput struct {
	// Address is the IPv4 address, the Bluetooth MAC or a serial port path.
	Address string `json:"address"`
	// Port defaults to 9100 for network printers.
	Port      int    `json:"port,omitempty"`
	Model     string `json:"model,omitempty"`
	Name      string `json:"name,omitempty"`
	VendorID  uint16 `json:"vendor_id,omitempty"`
	ProductID uint16 `json:"product_id,omitempty"`
}

// ValidateNetwork checks an IPv4 address and port.
func ValidateNetwork(ip string, port int) error {
	if strings.TrimSpace(ip) == "" {
		return fmt.Errorf("%w: IP address cannot be empty", ErrValidation)
	}
	if !ipv4Pattern.MatchString(ip) {
		return fmt.Errorf("%w: Invalid IP address format: %s", ErrValidation, ip)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: Port must be between 1 and 65535, got: %d", ErrValidation, port)
	}
	return nil
}

// ConnectManually builds a descriptor from user input without any I/O.
func ConnectManually(m Manufacturer, t ConnectionType, in ManualInput) (Descriptor, error) {
	in.Address = strings.TrimSpace(in.Address)
	in.Model = strings.TrimSpace(in.Model)

	switch t {
	case Network:
		if in.Port == 0 {
			in.Port = transport.DefaultRawPort
		}
		if err := ValidateNetwork(in.Address, in.Port); err != nil {
			return nil, err
		}
	case Bluetooth:
		if in.Address == "" {
			return nil, fmt.Errorf("%w: Bluetooth address cannot be empty", ErrValidation)
		}
	case USB:
		if in.VendorID == 0 || in.ProductID == 0 {
			return nil, fmt.Errorf("%w: USB vendor and product id are required", ErrValidation)
		}
	default:
		return nil, fmt.Errorf("%w: unknown connection type %q", ErrValidation, t)
	}

	switch m {
	case Epson:
		return manualEpson(t, in), nil
	case Star:
		return manualStar(t, in), nil
	case Rongta:
		return manualRongta(t, in), nil
	}
	return nil, fmt.Errorf("%w: unknown manufacturer %q", ErrValidation, m)
}

func modelOrDefault(model string) string {
	if model == "" {
		return manualModelName
	}
	return model
}

// bluetoothTarget addresses a MAC directly and anything else as the path of
// a bound serial port.
func bluetoothTarget(addr string) (target, mac string) {
	if transport.IsMAC(addr) {
		mac = strings.ToUpper(addr)
		return "BT:" + mac, mac
	}
	return "SERIAL:" + addr, ""
}

func manualEpson(t ConnectionType, in ManualInput) EpsonDevice {
	d := EpsonDevice{Connection: t, DeviceType: "TYPE_PRINTER", DeviceName: modelOrDefault(in.Model)}
	switch t {
	case Network:
		d.IPAddress = in.Address
		d.Target = "TCP:" + in.Address
		if in.Port != transport.DefaultRawPort {
			d.Target = fmt.Sprintf("TCP:%s:%d", in.Address, in.Port)
		}
	case Bluetooth:
		d.Target, d.BDAddress = bluetoothTarget(in.Address)
	case USB:
		d.Target = fmt.Sprintf("USB:%04X:%04X", in.VendorID, in.ProductID)
	}
	d.Supported, d.UnsupportedReason = supportInfo(capability.Epson(), d.DeviceName)
	return d
}

func manualStar(t ConnectionType, in ManualInput) StarDevice {
	d := StarDevice{Connection: t, ModelName: modelOrDefault(in.Model)}
	switch t {
	case Network:
		d.PortName = fmt.Sprintf("TCP:%s:%d", in.Address, in.Port)
	case Bluetooth:
		d.PortName, d.MACAddress = bluetoothTarget(in.Address)
	case USB:
		d.PortName = fmt.Sprintf("USB:%04X:%04X", in.VendorID, in.ProductID)
	}
	d.Supported, d.UnsupportedReason = supportInfo(capability.Star(), d.ModelName)
	return d
}

func manualRongta(t ConnectionType, in ManualInput) RongtaDevice {
	switch t {
	case Network:
		return NewRongtaDevice(RongtaNetwork{IPAddress: in.Address, Port: in.Port})
	case Bluetooth:
		addr := in.Address
		if transport.IsMAC(addr) {
			addr = strings.ToUpper(addr)
		}
		return NewRongtaDevice(RongtaBluetooth{Alias: in.Name, Name: in.Name, Address: addr})
	default:
		return NewRongtaDevice(RongtaUSB{Name: in.Name, VendorID: in.VendorID, ProductID: in.ProductID})
	}
}
