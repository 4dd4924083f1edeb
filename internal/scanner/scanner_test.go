package scanner

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectKeepsPartialResults(t *testing.T) {
	boom := errors.New("adapter off")
	s := Func(func(ctx context.Context, emit func(Found)) error {
		emit(Found{Address: "a"})
		return boom
	})

	found, err := Collect(context.Background(), s)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, found, 1)
}

func TestBroadcastLock(t *testing.T) {
	var acquired, released int
	lock := NewBroadcastLock(func() { acquired++ }, func() { released++ })

	r1 := lock.Acquire()
	r2 := lock.Acquire()
	assert.Equal(t, 2, lock.Held())
	assert.Equal(t, 1, acquired)

	r1()
	r1()
	assert.Equal(t, 1, lock.Held(), "release is idempotent")
	assert.Equal(t, 0, released)

	r2()
	assert.Equal(t, 0, lock.Held())
	assert.Equal(t, 1, released)
}

func TestBroadcastLockConcurrent(t *testing.T) {
	lock := NewBroadcastLock(nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := lock.Acquire()
			time.Sleep(time.Millisecond)
			release()
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, lock.Held())
}

// responder answers every datagram on a loopback port with reply.
func responder(t *testing.T, reply []byte, times int) int {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 512)
		for {
			_, from, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			for i := 0; i < times; i++ {
				conn.WriteToUDP(reply, from)
			}
		}
	}()
	return conn.LocalAddr().(*net.UDPAddr).Port
}

func TestNetworkScannerProbe(t *testing.T) {
	port := responder(t, []byte("MP4200 OK"), 3)
	lock := NewBroadcastLock(nil, nil)

	s := &NetworkScanner{
		Probe: Probe{
			Name:    "test",
			Port:    port,
			Payload: []byte("MP4200FIND"),
			Parse: func(ip string, data []byte) (Found, bool, bool) {
				return Found{Model: string(data)}, strings.HasPrefix(string(data), "MP4200"), false
			},
		},
		BroadcastAddress: "127.0.0.1",
		Timeout:          300 * time.Millisecond,
		Lock:             lock,
	}

	found, err := Collect(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, found, 1, "duplicate replies are merged")
	assert.Equal(t, "127.0.0.1", found[0].Address)
	assert.Equal(t, Network, found[0].Transport)
	assert.Equal(t, "MP4200 OK", found[0].Model)
	assert.Equal(t, 0, lock.Held(), "lock released after the scan")
}

func TestNetworkScannerDoneEndsEarly(t *testing.T) {
	port := responder(t, []byte("last"), 1)

	s := &NetworkScanner{
		Probe: Probe{
			Port: port,
			Parse: func(ip string, data []byte) (Found, bool, bool) {
				return Found{}, true, true
			},
		},
		BroadcastAddress: "127.0.0.1",
		Timeout:          5 * time.Second,
	}

	start := time.Now()
	found, err := Collect(context.Background(), s)
	require.NoError(t, err)
	assert.Len(t, found, 1)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestNetworkScannerCancel(t *testing.T) {
	lock := NewBroadcastLock(nil, nil)
	s := &NetworkScanner{
		Probe:            Probe{Port: responder(t, nil, 0)},
		BroadcastAddress: "127.0.0.1",
		Timeout:          10 * time.Second,
		Lock:             lock,
	}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := Collect(ctx, s)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, lock.Held())
}

func TestNetworkScannerSweep(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()
	port := ln.Addr().(*net.TCPAddr).Port

	s := &NetworkScanner{
		Timeout:    2 * time.Second,
		Sweep:      true,
		SweepPort:  port,
		SweepHosts: func() ([]string, error) { return []string{"127.0.0.1", "127.0.0.2"}, nil },
		SweepDialer: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if !strings.HasPrefix(addr, "127.0.0.1:") {
				return nil, errors.New("unreachable")
			}
			return (&net.Dialer{}).DialContext(ctx, network, addr)
		},
	}

	found, err := Collect(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "127.0.0.1", found[0].Address)
	assert.Equal(t, port, found[0].Port)
}

func TestSubnetHosts(t *testing.T) {
	hosts := subnetHosts("192.168.1.37")
	assert.Len(t, hosts, 254)
	assert.Equal(t, "192.168.1.1", hosts[0])
	assert.Equal(t, "192.168.1.254", hosts[253])
}

func TestIsImagingClass(t *testing.T) {
	assert.True(t, IsImagingClass(0x040680), "printer, rendering service")
	assert.True(t, IsImagingClass(0x000680))
	assert.False(t, IsImagingClass(0x5a020c), "smartphone")
	assert.False(t, IsImagingClass(0x240404), "headset")
}

func TestDeviceFromProps(t *testing.T) {
	f, ok := deviceFromProps(map[string]dbus.Variant{
		"Address": dbus.MakeVariant("00:11:62:aa:bb:cc"),
		"Name":    dbus.MakeVariant("TSP143IIIBI"),
		"Alias":   dbus.MakeVariant("Kitchen"),
		"Class":   dbus.MakeVariant(uint32(0x040680)),
		"Paired":  dbus.MakeVariant(true),
	})
	require.True(t, ok)
	assert.Equal(t, "00:11:62:AA:BB:CC", f.Address)
	assert.Equal(t, "TSP143IIIBI", f.Name)
	assert.Equal(t, "Kitchen", f.Alias)
	assert.True(t, f.Bonded)
	assert.Equal(t, Bluetooth, f.Transport)

	_, ok = deviceFromProps(map[string]dbus.Variant{
		"Address": dbus.MakeVariant("00:11:62:aa:bb:cc"),
		"Class":   dbus.MakeVariant(uint32(0x5a020c)),
	})
	assert.False(t, ok)

	_, ok = deviceFromProps(map[string]dbus.Variant{"Address": dbus.MakeVariant("00:11:62:aa:bb:cc")})
	assert.False(t, ok, "class is required")
}

func TestFindAdapter(t *testing.T) {
	objects := managedObjects{
		"/org/bluez/hci1":                   {bluezAdapter: {}},
		"/org/bluez/hci0":                   {bluezAdapter: {}},
		"/org/bluez/hci0/dev_00_11_62_AA_BB": {bluezDevice: {}},
	}
	path, ok := findAdapter(objects)
	require.True(t, ok)
	assert.Equal(t, dbus.ObjectPath("/org/bluez/hci0"), path)

	_, ok = findAdapter(managedObjects{})
	assert.False(t, ok)
}

func TestBluetoothSerialFallback(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"cu.TSP100-SerialPort", "cu.Bluetooth-Incoming-Port", "rfcomm0"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}

	s := &BluetoothScanner{
		SerialPatterns: []string{filepath.Join(dir, "cu.*"), filepath.Join(dir, "rfcomm*")},
		Connect:        func() (*dbus.Conn, error) { return nil, errors.New("no system bus") },
	}

	found, err := Collect(context.Background(), s)
	require.NoError(t, err)

	var names []string
	for _, f := range found {
		names = append(names, f.Name)
		assert.NotEmpty(t, f.Path)
		assert.Equal(t, Bluetooth, f.Transport)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"TSP100", "rfcomm0"}, names)
}

func TestUSBScannerAllowList(t *testing.T) {
	s := &USBScanner{AllowList: []USBID{{Vendor: 0x0FE6, Product: 0x811E}}}
	assert.True(t, s.allowed(0x0FE6, 0x811E))
	assert.False(t, s.allowed(0x0FE6, 0x0001))
}
