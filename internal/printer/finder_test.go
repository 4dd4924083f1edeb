package printer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thereceipt/thermal-bridge/internal/scanner"
)

func staticScanner(found ...scanner.Found) scanner.Scanner {
	return scanner.Func(func(ctx context.Context, emit func(scanner.Found)) error {
		for _, f := range found {
			emit(f)
		}
		return nil
	})
}

func failingScanner(partial ...scanner.Found) scanner.Scanner {
	return scanner.Func(func(ctx context.Context, emit func(scanner.Found)) error {
		for _, f := range partial {
			emit(f)
		}
		return errors.New("bluez unavailable")
	})
}

func ids(ds []Descriptor) []string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.ID())
	}
	return out
}

func TestSearchAllPartialDiscovery(t *testing.T) {
	f := &RongtaFinder{Scanners: Scanners{
		Bluetooth: failingScanner(),
		Network: staticScanner(
			scanner.Found{Address: "10.0.0.7", Port: 1460},
			scanner.Found{Address: "10.0.0.8", Port: 9100},
		),
	}}

	found := SearchAll(context.Background(), f, Bluetooth, Network)
	assert.ElementsMatch(t, []string{"rongta:ip:10.0.0.7:9100", "rongta:ip:10.0.0.8:9100"}, ids(found))
}

func TestSearchAllDefaultsToEveryType(t *testing.T) {
	f := &RongtaFinder{Scanners: Scanners{
		Bluetooth: staticScanner(scanner.Found{Name: "RPP300", Address: "AA:BB:CC:DD:EE:FF"}),
		Network:   staticScanner(scanner.Found{Address: "10.0.0.7"}),
		USB:       staticScanner(scanner.Found{Name: "Printer", VendorID: 0x0FE6, ProductID: 0x811E}),
	}}

	found := SearchAll(context.Background(), f)
	assert.ElementsMatch(t, []string{
		"rongta:bt:AA:BB:CC:DD:EE:FF",
		"rongta:ip:10.0.0.7:9100",
		"rongta:usb:0FE6:811E",
	}, ids(found))
}

func TestFinderDeduplicates(t *testing.T) {
	f := &RongtaFinder{Scanners: Scanners{
		Bluetooth: staticScanner(
			scanner.Found{Name: "RPP300", Address: "AA:BB:CC:DD:EE:FF", Bonded: true},
			scanner.Found{Name: "RPP300", Alias: "Kitchen", Address: "aa:bb:cc:dd:ee:ff"},
		),
	}}

	found := f.Search(context.Background(), Bluetooth)
	require.Len(t, found, 1)
	assert.Equal(t, "RPP300", found[0].DisplayName())
}

func TestRongtaFinderAlias(t *testing.T) {
	f := &RongtaFinder{Scanners: Scanners{
		Bluetooth: staticScanner(scanner.Found{Name: "RPP300", Alias: "Kitchen", Address: "AA:BB:CC:DD:EE:FF"}),
	}}

	found := f.Search(context.Background(), Bluetooth)
	require.Len(t, found, 1)
	rd := found[0].(RongtaDevice)
	assert.Equal(t, RongtaBluetooth{Alias: "Kitchen", Name: "RPP300", Address: "AA:BB:CC:DD:EE:FF"}, rd.Target)
	assert.True(t, rd.Supported)
}

func TestEpsonFinder(t *testing.T) {
	f := &EpsonFinder{Scanners: Scanners{
		Network: staticScanner(
			scanner.Found{Address: "10.0.0.5", Model: "TM-T88VI", MAC: "00:26:AB:01:02:03"},
			scanner.Found{Address: "10.0.0.6"},
		),
		Bluetooth: staticScanner(
			scanner.Found{Name: "TM-m30II_012345", Address: "00:01:90:AA:BB:CC", MAC: "00:01:90:AA:BB:CC"},
			scanner.Found{Name: "Headphones", Address: "11:22:33:44:55:66"},
		),
		USB: staticScanner(
			scanner.Found{Name: "TM-T20III", VendorID: 0x04B8, ProductID: 0x0E28, SerialNumber: "X5ZF012345"},
			scanner.Found{Name: "Other", VendorID: 0x0519, ProductID: 0x0003},
		),
	}}

	net := f.Search(context.Background(), Network)
	require.Len(t, net, 2)
	tm := net[0].(EpsonDevice)
	assert.Equal(t, "epson:TCP:10.0.0.5", tm.ID())
	assert.True(t, tm.Supported)
	unknown := net[1].(EpsonDevice)
	assert.False(t, unknown.Supported)
	assert.Equal(t, "Unable to identify printer model", unknown.UnsupportedReason)

	bt := f.Search(context.Background(), Bluetooth)
	require.Len(t, bt, 1)
	assert.Equal(t, "epson:BT:00:01:90:AA:BB:CC", bt[0].ID())

	usb := f.Search(context.Background(), USB)
	require.Len(t, usb, 1)
	assert.Equal(t, "epson:USB:X5ZF012345", usb[0].ID())
}

func TestStarFinderBluetoothModelFallback(t *testing.T) {
	f := &StarFinder{Scanners: Scanners{
		Bluetooth: staticScanner(
			scanner.Found{Name: "TSP100", Address: "00:11:62:AA:BB:CC", MAC: "00:11:62:AA:BB:CC"},
			scanner.Found{Name: "Star Zebra ZD421", Address: "00:11:62:00:00:01", MAC: "00:11:62:00:00:01"},
			scanner.Found{Name: "Speaker", Address: "11:22:33:44:55:66", MAC: "11:22:33:44:55:66"},
		),
	}}

	found := f.Search(context.Background(), Bluetooth)
	require.Len(t, found, 2)

	tsp := found[0].(StarDevice)
	assert.Equal(t, "TSP100", tsp.ModelName)
	assert.Equal(t, "BT:TSP100", tsp.PortName)
	assert.Equal(t, "star:BT:00:11:62:AA:BB:CC", tsp.ID())
	assert.True(t, tsp.Supported)

	other := found[1].(StarDevice)
	assert.False(t, other.Supported)
	assert.Contains(t, other.UnsupportedReason, "Printer model 'Star Zebra ZD421' is not supported. Supported models: ")
	assert.Contains(t, other.UnsupportedReason, "TSP100")
}

func TestStarFinderSerialFallback(t *testing.T) {
	f := &StarFinder{Scanners: Scanners{
		Bluetooth: staticScanner(scanner.Found{Name: "TSP100", Address: "/dev/rfcomm0", Path: "/dev/rfcomm0"}),
	}}

	found := f.Search(context.Background(), Bluetooth)
	require.Len(t, found, 1)
	assert.Equal(t, "star:SERIAL:/dev/rfcomm0", found[0].ID())
}

func TestStarFinderNetworkAndUSB(t *testing.T) {
	f := &StarFinder{Scanners: Scanners{
		Network: staticScanner(scanner.Found{Address: "192.168.1.20", Model: "TSP143IIIW"}),
		USB: staticScanner(
			scanner.Found{Name: "TSP143IIIU", VendorID: 0x0519, ProductID: 0x0003, SerialNumber: "2581018070600015"},
			scanner.Found{Name: "TM-T20", VendorID: 0x04B8, ProductID: 0x0E15},
		),
	}}

	net := f.Search(context.Background(), Network)
	require.Len(t, net, 1)
	assert.Equal(t, "star:TCP:192.168.1.20", net[0].ID())

	usb := f.Search(context.Background(), USB)
	require.Len(t, usb, 1)
	sd := usb[0].(StarDevice)
	assert.Equal(t, "USB:2581018070600015", sd.PortName)
	assert.Equal(t, "2581018070600015", sd.USBSerialNumber)
}

func TestFinderWithoutScanner(t *testing.T) {
	f := &EpsonFinder{}
	assert.Empty(t, f.Search(context.Background(), USB))
}

func TestStarModelFromPort(t *testing.T) {
	assert.Equal(t, "TSP100", starModelFromPort("BT:TSP100"))
	assert.Equal(t, "", starModelFromPort("BT:00:11:62:AA:BB:CC"))
	assert.Equal(t, "", starModelFromPort("TCP:192.168.1.20"))
	assert.Equal(t, "", starModelFromPort("TSP100"))
}
