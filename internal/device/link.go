package device

import (
	"context"
	"sync"

	"github.com/thereceipt/thermal-bridge/internal/transport"
)

// DialFunc opens a transport connection.
type DialFunc func(ctx context.Context, addr transport.Address) (transport.Conn, error)

// DefaultDial dials real devices.
func DefaultDial(ctx context.Context, addr transport.Address) (transport.Conn, error) {
	return transport.Dialer{}.Dial(ctx, addr)
}

// Link is the connection bookkeeping shared by the vendor ports: the
// listener, the open transport and the busy flag.
type Link struct {
	Addr transport.Address
	Dial DialFunc

	mu       sync.Mutex
	listener Listener
	conn     transport.Conn
	busy     bool
}

// SetListener replaces the listener. Nil drops events.
func (l *Link) SetListener(fn Listener) {
	l.mu.Lock()
	l.listener = fn
	l.mu.Unlock()
}

// Emit delivers ev to the current listener.
func (l *Link) Emit(ev Event) {
	l.mu.Lock()
	fn := l.listener
	l.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

// Open dials Addr on a new goroutine and hands the result to done, which
// runs before any event is emitted. mapErr converts dial errors into the
// vendor's codes.
func (l *Link) Open(ctx context.Context, mapErr func(error) error) {
	dial := l.Dial
	if dial == nil {
		dial = DefaultDial
	}

	go func() {
		conn, err := dial(ctx, l.Addr)
		if err != nil {
			l.Emit(Event{Kind: EventError, Err: mapErr(err)})
			return
		}

		l.mu.Lock()
		if l.conn != nil {
			l.conn.Close()
		}
		l.conn = conn
		l.mu.Unlock()

		l.Emit(Event{Kind: EventConnected})
	}()
}

// Conn returns the open connection, or nil.
func (l *Link) Conn() transport.Conn {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn
}

// Connected reports whether a connection is open.
func (l *Link) Connected() bool {
	return l.Conn() != nil
}

// BeginWrite marks the link busy. It fails when not connected or when a
// write is already running.
func (l *Link) BeginWrite() (transport.Conn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil, ErrNotConnected
	}
	if l.busy {
		return nil, ErrProcessing
	}
	l.busy = true
	return l.conn, nil
}

// EndWrite clears the busy flag.
func (l *Link) EndWrite() {
	l.mu.Lock()
	l.busy = false
	l.mu.Unlock()
}

// Busy reports whether a write is running.
func (l *Link) Busy() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.busy
}

// Close closes the connection unless a write is running, in which case it
// returns ErrProcessing. EventDisconnected is emitted when a connection was
// actually closed.
func (l *Link) Close() error {
	l.mu.Lock()
	if l.busy {
		l.mu.Unlock()
		return ErrProcessing
	}
	conn := l.conn
	l.conn = nil
	l.mu.Unlock()

	if conn == nil {
		return nil
	}
	err := conn.Close()
	l.Emit(Event{Kind: EventDisconnected})
	return err
}

// WriteAll writes data in chunks of at most chunk bytes.
func WriteAll(conn transport.Conn, data []byte, chunk int) error {
	if chunk <= 0 {
		chunk = len(data)
	}
	for len(data) > 0 {
		n := chunk
		if n > len(data) {
			n = len(data)
		}
		if _, err := conn.Write(data[:n]); err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}
