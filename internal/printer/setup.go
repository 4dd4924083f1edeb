package printer

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/thereceipt/thermal-bridge/internal/config"
	"github.com/thereceipt/thermal-bridge/internal/device"
	"github.com/thereceipt/thermal-bridge/internal/device/epson"
	"github.com/thereceipt/thermal-bridge/internal/device/rongta"
	"github.com/thereceipt/thermal-bridge/internal/device/star"
	"github.com/thereceipt/thermal-bridge/internal/logger"
	"github.com/thereceipt/thermal-bridge/internal/registry"
	"github.com/thereceipt/thermal-bridge/internal/renderer"
	"github.com/thereceipt/thermal-bridge/internal/scanner"
)

// NewFinders builds the finders of every manufacturer from the discovery
// settings. The scanners share one broadcast lock.
func NewFinders(cfg config.DiscoveryConfig, rongtaPort int, log *zap.Logger) (map[Manufacturer]Finder, error) {
	log = logger.OrNop(log)

	allow := make([]scanner.USBID, 0, len(cfg.USBAllowList))
	for _, s := range cfg.USBAllowList {
		vid, pid, err := config.ParseVIDPID(s)
		if err != nil {
			return nil, err
		}
		allow = append(allow, scanner.USBID{Vendor: vid, Product: pid})
	}

	lock := scanner.NewBroadcastLock(
		func() { log.Debug("Broadcast lock acquired") },
		func() { log.Debug("Broadcast lock released") },
	)
	bt := &scanner.BluetoothScanner{Window: cfg.BluetoothWindow, Logger: log}
	usb := &scanner.USBScanner{AllowList: allow, Logger: log}
	network := func(p scanner.Probe, sweep bool) *scanner.NetworkScanner {
		return &scanner.NetworkScanner{
			Probe:            p,
			BroadcastAddress: cfg.BroadcastAddress,
			Timeout:          cfg.NetworkTimeout,
			Lock:             lock,
			Sweep:            sweep,
			SweepPort:        cfg.RawPort,
			SweepHosts:       scanner.LocalSubnetHosts,
			Logger:           log,
		}
	}

	return map[Manufacturer]Finder{
		Epson: &EpsonFinder{
			Scanners: Scanners{Bluetooth: bt, Network: network(epson.Probe(cfg.EpsonProbePort), false), USB: usb},
			Logger:   log,
		},
		Star: &StarFinder{
			Scanners: Scanners{Bluetooth: bt, Network: network(star.Probe(cfg.StarProbePort), false), USB: usb},
			Logger:   log,
		},
		Rongta: &RongtaFinder{
			Scanners:    Scanners{Bluetooth: bt, Network: network(rongta.Probe(cfg.RongtaProbePort), cfg.TCPSweep), USB: usb},
			DefaultPort: rongtaPort,
			Logger:      log,
		},
	}, nil
}

// SessionOptionsFrom converts the session and render settings.
func SessionOptionsFrom(cfg *config.Config, log *zap.Logger) SessionOptions {
	return SessionOptions{
		ConnectTimeout:     cfg.Session.ConnectTimeout,
		CompletionTimeout:  cfg.Session.CompletionTimeout,
		PollInitialDelay:   cfg.Session.PollInitialDelay,
		PollInterval:       cfg.Session.PollInterval,
		DisconnectAttempts: cfg.Session.DisconnectAttempts,
		DisconnectDelay:    cfg.Session.DisconnectDelay,
		Builder: renderer.NewBuilder(renderer.Options{
			Threshold: uint8(cfg.Render.Threshold),
			Diffusion: cfg.Render.Diffusion,
		}),
		Logger: log,
	}
}

// NewServiceFromConfig wires a Service for real devices.
func NewServiceFromConfig(cfg *config.Config, log *zap.Logger) (*Service, error) {
	reg, err := registry.New(cfg.App.RegistryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	finders, err := NewFinders(cfg.Discovery, cfg.Rongta.DefaultPort, log)
	if err != nil {
		return nil, err
	}

	drivers := NewDrivers(DriverOptions{
		Dial:              device.DefaultDial,
		Permissions:       device.OpenAccess{},
		RongtaPaperWidth:  cfg.Rongta.PaperWidthDots,
		RongtaDefaultPort: cfg.Rongta.DefaultPort,
	})

	return NewService(ServiceOptions{
		Finders:  finders,
		Drivers:  drivers,
		Session:  SessionOptionsFrom(cfg, log),
		Registry: reg,
		Logger:   log,
	}), nil
}
