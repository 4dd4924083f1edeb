package printer

import (
	"context"
	"fmt"
	"image"
	"sync"
)

// SessionPool keeps one session per printer, so jobs for one printer are
// serialized while different printers print in parallel.
type SessionPool struct {
	drivers  map[Manufacturer]Driver
	opts     SessionOptions
	sessions map[string]*Session
	mu       sync.RWMutex
}

// NewSessionPool creates a pool whose sessions use drivers and opts.
func NewSessionPool(drivers map[Manufacturer]Driver, opts SessionOptions) *SessionPool {
	return &SessionPool{
		drivers:  drivers,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// Session returns the session of d, creating it on first use.
func (p *SessionPool) Session(d Descriptor) (*Session, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: no printer given", ErrUnknown)
	}
	id := d.ID()

	p.mu.RLock()
	s, ok := p.sessions[id]
	p.mu.RUnlock()
	if ok {
		return s, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.sessions[id]; ok {
		return s, nil
	}
	driver, ok := p.drivers[d.Manufacturer()]
	if !ok {
		return nil, fmt.Errorf("%w: no driver for %s", ErrUnknown, d.Manufacturer())
	}
	s = NewSession(driver, p.opts)
	p.sessions[id] = s
	return s, nil
}

// PrintImage prints a base64 encoded image on d.
func (p *SessionPool) PrintImage(ctx context.Context, base64Image string, d Descriptor) (Result, error) {
	s, err := p.Session(d)
	if err != nil {
		return ResultFromError(err), err
	}
	return s.PrintImageErr(ctx, base64Image, d)
}

// PrintData prints encoded image bytes on d.
func (p *SessionPool) PrintData(ctx context.Context, data []byte, d Descriptor) (Result, error) {
	s, err := p.Session(d)
	if err != nil {
		return ResultFromError(err), err
	}
	return s.PrintData(ctx, data, d)
}

// PrintDecoded prints a decoded image on d.
func (p *SessionPool) PrintDecoded(ctx context.Context, img image.Image, d Descriptor) (Result, error) {
	s, err := p.Session(d)
	if err != nil {
		return ResultFromError(err), err
	}
	return s.PrintDecoded(ctx, img, d)
}

// Remove forgets the session of id once no job is queued or running on
// it. It reports whether a session was removed.
func (p *SessionPool) Remove(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.sessions[id]
	if !ok || s.Active() {
		return false
	}
	delete(p.sessions, id)
	return true
}

// Busy reports whether a job is queued or running on id.
func (p *SessionPool) Busy(id string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s, ok := p.sessions[id]
	return ok && s.Active()
}

// Len returns the number of sessions.
func (p *SessionPool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sessions)
}
