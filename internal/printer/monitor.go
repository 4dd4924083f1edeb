package printer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/thereceipt/thermal-bridge/internal/logger"
)

// Monitor polls for printers appearing and disappearing, typically USB
// printers being plugged in.
type Monitor struct {
	find      func(ctx context.Context) []Descriptor
	interval  time.Duration
	onAdded   func(Descriptor)
	onRemoved func(Descriptor)
	log       *zap.Logger

	previous map[string]Descriptor
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewMonitor creates a monitor calling find every interval.
func NewMonitor(find func(ctx context.Context) []Descriptor, interval time.Duration, log *zap.Logger) *Monitor {
	return &Monitor{
		find:     find,
		interval: interval,
		log:      logger.OrNop(log).Named("monitor"),
		previous: make(map[string]Descriptor),
	}
}

// OnAdded sets the callback for new printers.
func (m *Monitor) OnAdded(fn func(Descriptor)) { m.onAdded = fn }

// OnRemoved sets the callback for printers that went away.
func (m *Monitor) OnRemoved(fn func(Descriptor)) { m.onRemoved = fn }

// Start polls until ctx is done or Stop is called. The printers present at
// the first poll are reported as added.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.Check(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Check(ctx)
			}
		}
	}()
}

// Stop stops polling and waits for a running poll to end.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// Check runs one poll and reports the differences to the previous one.
func (m *Monitor) Check(ctx context.Context) {
	current := make(map[string]Descriptor)
	for _, d := range m.find(ctx) {
		current[d.ID()] = d
	}
	if ctx.Err() != nil {
		return
	}

	for id, d := range current {
		if _, ok := m.previous[id]; !ok {
			m.log.Info("Printer added", zap.String("printer", id), zap.String("name", d.DisplayName()))
			if m.onAdded != nil {
				m.onAdded(d)
			}
		}
	}
	for id, d := range m.previous {
		if _, ok := current[id]; !ok {
			m.log.Info("Printer removed", zap.String("printer", id))
			if m.onRemoved != nil {
				m.onRemoved(d)
			}
		}
	}

	m.previous = current
}
