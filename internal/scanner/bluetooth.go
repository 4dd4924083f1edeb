package scanner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

const (
	bluezService      = "org.bluez"
	bluezAdapter      = "org.bluez.Adapter1"
	bluezDevice       = "org.bluez.Device1"
	objectManager     = "org.freedesktop.DBus.ObjectManager"
	interfacesAdded   = objectManager + ".InterfacesAdded"
	getManagedObjects = objectManager + ".GetManagedObjects"

	// majorClassImaging is the Class of Device major class of printers.
	majorClassImaging = 0x06
)

// ErrNoAdapter is returned when BlueZ has no Bluetooth adapter.
var ErrNoAdapter = errors.New("scanner: no bluetooth adapter")

type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// signalBus is the part of *dbus.Conn that discovery uses.
type signalBus interface {
	Object(dest string, path dbus.ObjectPath) dbus.BusObject
	AddMatchSignal(options ...dbus.MatchOption) error
	RemoveMatchSignal(options ...dbus.MatchOption) error
	Signal(ch chan<- *dbus.Signal)
	RemoveSignal(ch chan<- *dbus.Signal)
}

// BluetoothScanner finds Bluetooth printers through BlueZ: first the bonded
// devices of the imaging class, then whatever discovery turns up within
// Window. When the system bus or BlueZ is unavailable it falls back to
// listing bound serial ports.
type BluetoothScanner struct {
	Window time.Duration
	// SerialPatterns are the globs searched by the serial fallback. Nil
	// selects the platform defaults.
	SerialPatterns []string
	// Connect opens the system bus. Nil uses dbus.ConnectSystemBus.
	Connect func() (*dbus.Conn, error)
	Logger  *zap.Logger
}

// Scan implements Scanner.
func (s *BluetoothScanner) Scan(ctx context.Context, emit func(Found)) error {
	log := s.logger()

	connect := s.Connect
	if connect == nil {
		connect = func() (*dbus.Conn, error) { return dbus.ConnectSystemBus() }
	}
	conn, err := connect()
	if err != nil {
		log.Debug("system bus unavailable, listing serial ports", zap.Error(err))
		return s.scanSerial(ctx, emit)
	}
	defer conn.Close()

	var objects managedObjects
	if err := conn.Object(bluezService, "/").CallWithContext(ctx, getManagedObjects, 0).Store(&objects); err != nil {
		log.Debug("bluez unavailable, listing serial ports", zap.Error(err))
		return s.scanSerial(ctx, emit)
	}

	adapter, ok := findAdapter(objects)
	if !ok {
		return ErrNoAdapter
	}

	seen := map[string]bool{}
	for _, ifaces := range objects {
		props, ok := ifaces[bluezDevice]
		if !ok {
			continue
		}
		f, ok := deviceFromProps(props)
		if ok && f.Bonded && !seen[f.Address] {
			seen[f.Address] = true
			emit(f)
		}
	}

	return s.discover(ctx, conn, adapter, seen, emit)
}

// discover runs BlueZ discovery for the scan window. The signal
// subscription and the discovery session are torn down on every exit path.
func (s *BluetoothScanner) discover(ctx context.Context, conn signalBus, adapter dbus.ObjectPath, seen map[string]bool, emit func(Found)) error {
	window := s.Window
	if window == 0 {
		window = 30 * time.Second
	}

	match := []dbus.MatchOption{
		dbus.WithMatchInterface(objectManager),
		dbus.WithMatchMember("InterfacesAdded"),
	}
	if err := conn.AddMatchSignal(match...); err != nil {
		return fmt.Errorf("bluetooth: subscribe: %w", err)
	}
	defer conn.RemoveMatchSignal(match...)

	signals := make(chan *dbus.Signal, 16)
	conn.Signal(signals)
	defer conn.RemoveSignal(signals)

	obj := conn.Object(bluezService, adapter)
	if err := obj.CallWithContext(ctx, bluezAdapter+".StartDiscovery", 0).Err; err != nil {
		return fmt.Errorf("bluetooth: start discovery: %w", err)
	}
	defer obj.Call(bluezAdapter+".StopDiscovery", 0)

	timer := time.NewTimer(window)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case sig, ok := <-signals:
			if !ok {
				return nil
			}
			if sig.Name != interfacesAdded || len(sig.Body) < 2 {
				continue
			}
			ifaces, ok := sig.Body[1].(map[string]map[string]dbus.Variant)
			if !ok {
				continue
			}
			props, ok := ifaces[bluezDevice]
			if !ok {
				continue
			}
			if f, ok := deviceFromProps(props); ok && !seen[f.Address] {
				seen[f.Address] = true
				emit(f)
			}
		}
	}
}

func (s *BluetoothScanner) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func findAdapter(objects managedObjects) (dbus.ObjectPath, bool) {
	var best dbus.ObjectPath
	for path, ifaces := range objects {
		if _, ok := ifaces[bluezAdapter]; ok {
			if best == "" || path < best {
				best = path
			}
		}
	}
	return best, best != ""
}

// deviceFromProps converts org.bluez.Device1 properties. Only devices of
// the imaging major class qualify.
func deviceFromProps(props map[string]dbus.Variant) (Found, bool) {
	class, ok := props["Class"].Value().(uint32)
	if !ok || !IsImagingClass(class) {
		return Found{}, false
	}

	addr, _ := props["Address"].Value().(string)
	if addr == "" {
		return Found{}, false
	}
	name, _ := props["Name"].Value().(string)
	alias, _ := props["Alias"].Value().(string)
	paired, _ := props["Paired"].Value().(bool)

	return Found{
		Transport: Bluetooth,
		Name:      name,
		Alias:     alias,
		Address:   strings.ToUpper(addr),
		MAC:       strings.ToUpper(addr),
		Bonded:    paired,
	}, true
}

// IsImagingClass reports whether a Class of Device value has the imaging
// major class.
func IsImagingClass(class uint32) bool {
	return (class>>8)&0x1F == majorClassImaging
}
