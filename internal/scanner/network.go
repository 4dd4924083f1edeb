package scanner

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Probe describes one vendor's UDP discovery exchange.
type Probe struct {
	Name    string
	Port    int
	Payload []byte
	// Parse interprets a reply datagram from ip. ok is false for replies that
	// are not from this vendor's printers; done reports that no further
	// replies are expected.
	Parse func(ip string, data []byte) (found Found, ok bool, done bool)
}

// NetworkScanner broadcasts a vendor probe and collects unique responders.
type NetworkScanner struct {
	Probe Probe
	// BroadcastAddress is where the probe is sent. Defaults to
	// 255.255.255.255.
	BroadcastAddress string
	Timeout          time.Duration
	Lock             *BroadcastLock

	// Sweep additionally dials SweepPort on every host returned by
	// SweepHosts, reporting the ones that accept.
	Sweep       bool
	SweepPort   int
	SweepHosts  func() ([]string, error)
	SweepDialer func(ctx context.Context, network, addr string) (net.Conn, error)

	Logger *zap.Logger
}

const sweepWorkers = 50

// Scan implements Scanner.
func (s *NetworkScanner) Scan(ctx context.Context, emit func(Found)) error {
	timeout := s.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		mu   sync.Mutex
		seen = map[string]bool{}
	)
	emitOnce := func(f Found) {
		mu.Lock()
		dup := seen[f.Address]
		seen[f.Address] = true
		mu.Unlock()
		if !dup {
			emit(f)
		}
	}

	var (
		wg       sync.WaitGroup
		sweepErr error
	)
	if s.Sweep {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sweepErr = s.sweep(ctx, emitOnce)
		}()
	}

	err := s.broadcast(ctx, emitOnce)
	wg.Wait()

	if err != nil {
		return err
	}
	return sweepErr
}

func (s *NetworkScanner) broadcast(ctx context.Context, emit func(Found)) error {
	if s.Probe.Port == 0 {
		return nil
	}

	if s.Lock != nil {
		release := s.Lock.Acquire()
		defer release()
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero})
	if err != nil {
		return fmt.Errorf("%s probe: %w", s.Probe.Name, err)
	}
	defer conn.Close()

	host := s.BroadcastAddress
	if host == "" {
		host = "255.255.255.255"
	}
	dst, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(host, strconv.Itoa(s.Probe.Port)))
	if err != nil {
		return fmt.Errorf("%s probe: %w", s.Probe.Name, err)
	}
	if _, err := conn.WriteToUDP(s.Probe.Payload, dst); err != nil {
		return fmt.Errorf("%s probe: send: %w", s.Probe.Name, err)
	}

	// Unblock the read loop on cancellation.
	stop := context.AfterFunc(ctx, func() { conn.SetReadDeadline(time.Now()) })
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}

	buf := make([]byte, 2048)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				// The window closing is the normal end of a probe.
				if errors.Is(ctx.Err(), context.Canceled) {
					return ctx.Err()
				}
				return nil
			}
			return fmt.Errorf("%s probe: receive: %w", s.Probe.Name, err)
		}

		if s.Probe.Parse == nil {
			emit(Found{Transport: Network, Address: from.IP.String(), Port: s.Probe.Port})
			continue
		}

		found, ok, done := s.Probe.Parse(from.IP.String(), append([]byte(nil), buf[:n]...))
		if ok {
			found.Transport = Network
			if found.Address == "" {
				found.Address = from.IP.String()
			}
			emit(found)
		}
		if done {
			return nil
		}
	}
}

// sweep dials the raw port on every candidate host with a fixed pool of
// workers.
func (s *NetworkScanner) sweep(ctx context.Context, emit func(Found)) error {
	hostsFn := s.SweepHosts
	if hostsFn == nil {
		hostsFn = LocalSubnetHosts
	}
	hosts, err := hostsFn()
	if err != nil {
		return fmt.Errorf("tcp sweep: %w", err)
	}

	port := s.SweepPort
	if port == 0 {
		port = 9100
	}
	dial := s.SweepDialer
	if dial == nil {
		d := net.Dialer{Timeout: 300 * time.Millisecond}
		dial = d.DialContext
	}

	ips := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < sweepWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ip := range ips {
				conn, err := dial(ctx, "tcp", net.JoinHostPort(ip, strconv.Itoa(port)))
				if err != nil {
					continue
				}
				conn.Close()
				emit(Found{Transport: Network, Address: ip, Port: port})
			}
		}()
	}

feed:
	for _, ip := range hosts {
		select {
		case ips <- ip:
		case <-ctx.Done():
			break feed
		}
	}
	close(ips)
	wg.Wait()

	if s.Logger != nil {
		s.Logger.Debug("tcp sweep finished", zap.Int("hosts", len(hosts)), zap.Int("port", port))
	}
	return nil
}

// LocalSubnetHosts returns the 254 host addresses of the /24 around the
// first non-loopback IPv4 address of this machine.
func LocalSubnetHosts() ([]string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}
	for _, a := range addrs {
		if ipnet, ok := a.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
			return subnetHosts(ipnet.IP.To4().String()), nil
		}
	}
	return nil, errors.New("no local IPv4 address found")
}

func subnetHosts(ip string) []string {
	parts := strings.Split(ip, ".")
	subnet := strings.Join(parts[:3], ".")

	hosts := make([]string, 0, 254)
	for i := 1; i <= 254; i++ {
		hosts = append(hosts, fmt.Sprintf("%s.%d", subnet, i))
	}
	return hosts
}
