// Package printer finds printers of the supported manufacturers and prints
// raster images on them, one job at a time per printer.
package printer

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ConnectionType is the link a printer is reached over.
type ConnectionType string

const (
	Bluetooth ConnectionType = "Bluetooth"
	Network   ConnectionType = "Network"
	USB       ConnectionType = "USB"
)

// ParseConnectionType accepts the type names case-insensitively.
func ParseConnectionType(s string) (ConnectionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bluetooth", "bt":
		return Bluetooth, nil
	case "network", "tcp", "lan":
		return Network, nil
	case "usb":
		return USB, nil
	}
	return "", fmt.Errorf("unknown connection type %q", s)
}

// Manufacturer identifies a printer vendor.
type Manufacturer string

const (
	Epson  Manufacturer = "epson"
	Star   Manufacturer = "star"
	Rongta Manufacturer = "rongta"
)

// Manufacturers lists every supported manufacturer.
var Manufacturers = []Manufacturer{Epson, Star, Rongta}

// ParseManufacturer accepts a manufacturer name case-insensitively.
func ParseManufacturer(s string) (Manufacturer, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "epson":
		return Epson, nil
	case "star", "starmicronics", "star micronics":
		return Star, nil
	case "rongta":
		return Rongta, nil
	}
	return "", fmt.Errorf("unknown manufacturer %q", s)
}

// Descriptor describes one discovered or manually entered printer. It is
// implemented by EpsonDevice, StarDevice and RongtaDevice only.
type Descriptor interface {
	// ID is derived from the manufacturer and the transport identity. Two
	// descriptors with the same ID are the same printer.
	ID() string
	Manufacturer() Manufacturer
	ConnectionType() ConnectionType
	DisplayName() string
	// SupportInfo reports whether the printer can be printed on and, if
	// not, why.
	SupportInfo() (bool, string)

	descriptor()
}

// EpsonDevice is an Epson printer.
type EpsonDevice struct {
	Connection        ConnectionType `json:"connection_type"`
	DeviceType        string         `json:"device_type,omitempty"`
	Target            string         `json:"target"`
	DeviceName        string         `json:"device_name"`
	IPAddress         string         `json:"ip_address,omitempty"`
	MACAddress        string         `json:"mac_address,omitempty"`
	BDAddress         string         `json:"bd_address,omitempty"`
	Supported         bool           `json:"is_supported"`
	UnsupportedReason string         `json:"unsupported_reason,omitempty"`
}

func (d EpsonDevice) ID() string {
	return "epson:" + d.target()
}

// target is the Epson target string, built from the addresses when the
// device was not found by the Epson probe.
func (d EpsonDevice) target() string {
	switch {
	case d.Target != "":
		return d.Target
	case d.BDAddress != "":
		return "BT:" + d.BDAddress
	case d.IPAddress != "":
		return "TCP:" + d.IPAddress
	}
	return ""
}

func (d EpsonDevice) Manufacturer() Manufacturer     { return Epson }
func (d EpsonDevice) ConnectionType() ConnectionType { return d.Connection }
func (d EpsonDevice) DisplayName() string            { return d.DeviceName }
func (d EpsonDevice) SupportInfo() (bool, string)    { return d.Supported, d.UnsupportedReason }
func (EpsonDevice) descriptor()                      {}

func (d EpsonDevice) MarshalJSON() ([]byte, error) {
	type plain EpsonDevice
	return json.Marshal(struct {
		ID           string       `json:"id"`
		Manufacturer Manufacturer `json:"manufacturer"`
		plain
	}{d.ID(), Epson, plain(d)})
}

// StarDevice is a Star Micronics printer.
type StarDevice struct {
	Connection        ConnectionType `json:"connection_type"`
	ModelName         string         `json:"model_name"`
	PortName          string         `json:"port_name"`
	MACAddress        string         `json:"mac_address,omitempty"`
	USBSerialNumber   string         `json:"usb_serial_number,omitempty"`
	Supported         bool           `json:"is_supported"`
	UnsupportedReason string         `json:"unsupported_reason,omitempty"`
}

func (d StarDevice) ID() string {
	return "star:" + d.portName()
}

// portName is the port to open. Bluetooth printers with a known MAC are
// always addressed by it, whatever name the port was discovered under.
func (d StarDevice) portName() string {
	if d.Connection == Bluetooth && d.MACAddress != "" {
		return "BT:" + strings.ToUpper(d.MACAddress)
	}
	return d.PortName
}

func (d StarDevice) Manufacturer() Manufacturer     { return Star }
func (d StarDevice) ConnectionType() ConnectionType { return d.Connection }
func (d StarDevice) DisplayName() string            { return d.ModelName }
func (d StarDevice) SupportInfo() (bool, string)    { return d.Supported, d.UnsupportedReason }
func (StarDevice) descriptor()                      {}

func (d StarDevice) MarshalJSON() ([]byte, error) {
	type plain StarDevice
	return json.Marshal(struct {
		ID           string       `json:"id"`
		Manufacturer Manufacturer `json:"manufacturer"`
		plain
	}{d.ID(), Star, plain(d)})
}

// RongtaTarget is where a Rongta printer is reached. It is one of
// RongtaBluetooth, RongtaNetwork or RongtaUSB.
type RongtaTarget interface {
	key() string
	connection() ConnectionType
}

// RongtaBluetooth is a classic Bluetooth Rongta printer. Address is the MAC,
// or the path of a bound serial port.
type RongtaBluetooth struct {
	Alias   string `json:"alias,omitempty"`
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

// RongtaNetwork is a Rongta printer on the local network.
type RongtaNetwork struct {
	IPAddress string `json:"ip_address"`
	Port      int    `json:"port"`
}

// RongtaUSB is a Rongta printer attached over USB.
type RongtaUSB struct {
	Name      string `json:"name,omitempty"`
	VendorID  uint16 `json:"vendor_id"`
	ProductID uint16 `json:"product_id"`
}

func (t RongtaBluetooth) key() string { return "bt:" + strings.ToUpper(t.Address) }
func (t RongtaNetwork) key() string   { return fmt.Sprintf("ip:%s:%d", t.IPAddress, t.Port) }
func (t RongtaUSB) key() string       { return fmt.Sprintf("usb:%04X:%04X", t.VendorID, t.ProductID) }

func (RongtaBluetooth) connection() ConnectionType { return Bluetooth }
func (RongtaNetwork) connection() ConnectionType   { return Network }
func (RongtaUSB) connection() ConnectionType       { return USB }

// RongtaDevice is a Rongta printer. Rongta printers report no model, so
// every one of them is supported.
type RongtaDevice struct {
	Connection        ConnectionType `json:"connection_type"`
	Target            RongtaTarget   `json:"-"`
	Supported         bool           `json:"is_supported"`
	UnsupportedReason string         `json:"unsupported_reason,omitempty"`
}

// NewRongtaDevice wraps target in a supported descriptor.
func NewRongtaDevice(target RongtaTarget) RongtaDevice {
	return RongtaDevice{Connection: target.connection(), Target: target, Supported: true}
}

func (d RongtaDevice) ID() string {
	if d.Target == nil {
		return "rongta:"
	}
	return "rongta:" + d.Target.key()
}

func (d RongtaDevice) Manufacturer() Manufacturer     { return Rongta }
func (d RongtaDevice) ConnectionType() ConnectionType { return d.Connection }
func (d RongtaDevice) SupportInfo() (bool, string)    { return d.Supported, d.UnsupportedReason }
func (RongtaDevice) descriptor()                      {}

func (d RongtaDevice) DisplayName() string {
	switch t := d.Target.(type) {
	case RongtaBluetooth:
		if t.Alias != "" {
			return t.Alias
		}
		if t.Name != "" {
			return t.Name
		}
		return t.Address
	case RongtaNetwork:
		return fmt.Sprintf("%s:%d", t.IPAddress, t.Port)
	case RongtaUSB:
		if t.Name != "" {
			return t.Name
		}
		return fmt.Sprintf("%04X:%04X", t.VendorID, t.ProductID)
	}
	return ""
}

type rongtaTargetJSON struct {
	Kind      string `json:"kind"`
	Alias     string `json:"alias,omitempty"`
	Name      string `json:"name,omitempty"`
	Address   string `json:"address,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
	Port      int    `json:"port,omitempty"`
	VendorID  uint16 `json:"vendor_id,omitempty"`
	ProductID uint16 `json:"product_id,omitempty"`
}

func (d RongtaDevice) MarshalJSON() ([]byte, error) {
	var target *rongtaTargetJSON
	switch t := d.Target.(type) {
	case RongtaBluetooth:
		target = &rongtaTargetJSON{Kind: "bluetooth", Alias: t.Alias, Name: t.Name, Address: t.Address}
	case RongtaNetwork:
		target = &rongtaTargetJSON{Kind: "network", IPAddress: t.IPAddress, Port: t.Port}
	case RongtaUSB:
		target = &rongtaTargetJSON{Kind: "usb", Name: t.Name, VendorID: t.VendorID, ProductID: t.ProductID}
	case nil:
	default:
		return nil, fmt.Errorf("unknown rongta target %T", t)
	}

	type plain RongtaDevice
	return json.Marshal(struct {
		ID           string       `json:"id"`
		Manufacturer Manufacturer `json:"manufacturer"`
		plain
		Target *rongtaTargetJSON `json:"target"`
	}{d.ID(), Rongta, plain(d), target})
}

func (d *RongtaDevice) UnmarshalJSON(data []byte) error {
	type plain RongtaDevice
	var raw struct {
		plain
		Target *rongtaTargetJSON `json:"target"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*d = RongtaDevice(raw.plain)

	if raw.Target == nil {
		return fmt.Errorf("rongta descriptor without target")
	}
	switch t := raw.Target; t.Kind {
	case "bluetooth":
		d.Target = RongtaBluetooth{Alias: t.Alias, Name: t.Name, Address: t.Address}
	case "network":
		d.Target = RongtaNetwork{IPAddress: t.IPAddress, Port: t.Port}
	case "usb":
		d.Target = RongtaUSB{Name: t.Name, VendorID: t.VendorID, ProductID: t.ProductID}
	default:
		return fmt.Errorf("unknown rongta target kind %q", t.Kind)
	}
	if d.Connection == "" {
		d.Connection = d.Target.connection()
	}
	return nil
}

// DecodeDescriptor decodes a descriptor encoded with json.Marshal, choosing
// the concrete type from its manufacturer field.
func DecodeDescriptor(data []byte) (Descriptor, error) {
	var head struct {
		Manufacturer string `json:"manufacturer"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode descriptor: %w", err)
	}
	m, err := ParseManufacturer(head.Manufacturer)
	if err != nil {
		return nil, fmt.Errorf("decode descriptor: %w", err)
	}

	switch m {
	case Epson:
		var d EpsonDevice
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("decode epson descriptor: %w", err)
		}
		return d, nil
	case Star:
		var d StarDevice
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("decode star descriptor: %w", err)
		}
		return d, nil
	default:
		var d RongtaDevice
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("decode rongta descriptor: %w", err)
		}
		return d, nil
	}
}
