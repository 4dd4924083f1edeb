package scanner

import (
	"context"
	"path/filepath"
	"runtime"
	"strings"
)

// scanSerial lists serial ports bound to Bluetooth SPP devices.
func (s *BluetoothScanner) scanSerial(ctx context.Context, emit func(Found)) error {
	patterns := s.SerialPatterns
	if patterns == nil {
		patterns = defaultSerialPatterns()
	}

	for _, path := range globAll(patterns) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if skipPort(path) {
			continue
		}
		name := filepath.Base(path)
		emit(Found{
			Transport: Bluetooth,
			Name:      portName(name),
			Address:   path,
			Path:      path,
			Bonded:    true,
		})
	}
	return nil
}

func defaultSerialPatterns() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"/dev/cu.*Bluetooth*", "/dev/cu.*-SerialPort*"}
	case "linux":
		return []string{"/dev/rfcomm*"}
	default:
		return []string{}
	}
}

func globAll(patterns []string) []string {
	var ports []string
	seen := map[string]bool{}
	for _, pattern := range patterns {
		matches, _ := filepath.Glob(pattern)
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				ports = append(ports, m)
			}
		}
	}
	return ports
}

// skipPort filters out ports that are never printers.
func skipPort(path string) bool {
	for _, skip := range []string{"Bluetooth-Incoming-Port", "debug-console", "KeySerial"} {
		if strings.Contains(path, skip) {
			return true
		}
	}
	return false
}

// portName strips the device node prefix, so "cu.TSP100-SerialPort"
// becomes "TSP100".
func portName(base string) string {
	base = strings.TrimPrefix(base, "cu.")
	base = strings.TrimPrefix(base, "tty.")
	base = strings.TrimSuffix(base, "-SerialPort")
	return base
}
