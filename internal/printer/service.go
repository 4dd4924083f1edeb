package printer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/thereceipt/thermal-bridge/internal/capability"
	"github.com/thereceipt/thermal-bridge/internal/logger"
	"github.com/thereceipt/thermal-bridge/internal/registry"
	"github.com/thereceipt/thermal-bridge/internal/renderer"
)

// ServiceOptions assemble a Service.
type ServiceOptions struct {
	Finders  map[Manufacturer]Finder
	Drivers  map[Manufacturer]Driver
	Session  SessionOptions
	Registry *registry.Registry
	Logger   *zap.Logger
}

// Service is the bridge's entry point: discovery, manual entry and printing
// for every manufacturer.
type Service struct {
	finders  map[Manufacturer]Finder
	drivers  map[Manufacturer]Driver
	pool     *SessionPool
	jobs     *Jobs
	registry *registry.Registry
	log      *zap.Logger
}

// NewService creates a service. A nil registry keeps printers in memory.
func NewService(opts ServiceOptions) *Service {
	log := logger.OrNop(opts.Logger)
	if opts.Session.Logger == nil {
		opts.Session.Logger = log
	}
	reg := opts.Registry
	if reg == nil {
		reg, _ = registry.New("")
	}

	pool := NewSessionPool(opts.Drivers, opts.Session)
	return &Service{
		finders:  opts.Finders,
		drivers:  opts.Drivers,
		pool:     pool,
		jobs:     NewJobs(pool, log),
		registry: reg,
		log:      log.Named("service"),
	}
}

// FindPrinters searches for printers of manufacturer m, or of every
// manufacturer when m is empty, on the given connection types (all when
// none are given). Found printers are remembered for PrinterByID.
func (s *Service) FindPrinters(ctx context.Context, m Manufacturer, types ...ConnectionType) ([]Descriptor, error) {
	var finders []Finder
	if m == "" {
		for _, mf := range Manufacturers {
			if f, ok := s.finders[mf]; ok {
				finders = append(finders, f)
			}
		}
	} else {
		f, ok := s.finders[m]
		if !ok {
			return nil, fmt.Errorf("no finder for manufacturer %q", m)
		}
		finders = append(finders, f)
	}

	var (
		mu    sync.Mutex
		found = make([][]Descriptor, len(finders))
	)
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range finders {
		i, f := i, f
		g.Go(func() error {
			res := SearchAll(gctx, f, types...)
			mu.Lock()
			found[i] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	var all []Descriptor
	for _, r := range found {
		all = append(all, r...)
	}
	all = dedupe(all)

	for _, d := range all {
		s.remember(d, "")
	}
	s.log.Info("Printer search finished", zap.String("manufacturer", string(m)), zap.Int("found", len(all)))
	return all, nil
}

// ConnectManually builds a descriptor from user input and remembers it.
func (s *Service) ConnectManually(m Manufacturer, t ConnectionType, in ManualInput) (Descriptor, error) {
	d, err := ConnectManually(m, t, in)
	if err != nil {
		return nil, err
	}
	s.remember(d, in.Name)
	return d, nil
}

// SupportedModels lists the model titles of manufacturer m.
func (s *Service) SupportedModels(m Manufacturer) ([]string, error) {
	switch m {
	case Epson:
		return capability.Epson().Titles(), nil
	case Star:
		return capability.Star().Titles(), nil
	case Rongta:
		return capability.Rongta().Titles(), nil
	}
	return nil, fmt.Errorf("unknown manufacturer %q", m)
}

// PrintImage prints a base64 encoded image on d and waits for the result.
func (s *Service) PrintImage(ctx context.Context, base64Image string, d Descriptor) (Result, error) {
	return s.pool.PrintImage(ctx, base64Image, d)
}

// PrintImageAsync queues the image and returns the job id. The outcome is
// delivered to the OnJobDone callbacks.
func (s *Service) PrintImageAsync(base64Image string, d Descriptor) string {
	return s.jobs.Submit(base64Image, d)
}

// OnJobDone registers fn for finished asynchronous jobs.
func (s *Service) OnJobDone(fn func(PrintJob)) {
	s.jobs.OnDone(fn)
}

// Job returns an asynchronous job by id.
func (s *Service) Job(id string) (PrintJob, bool) {
	return s.jobs.Get(id)
}

// Jobs returns every tracked asynchronous job.
func (s *Service) Jobs() []PrintJob {
	return s.jobs.All()
}

// ClearJobs forgets finished asynchronous jobs.
func (s *Service) ClearJobs() {
	s.jobs.ClearFinished()
}

// PrintTestPage prints a self-test page sized for d's paper.
func (s *Service) PrintTestPage(ctx context.Context, d Descriptor) (Result, error) {
	driver, ok := s.drivers[d.Manufacturer()]
	if !ok {
		return ErrorUnknown, fmt.Errorf("%w: no driver for %s", ErrUnknown, d.Manufacturer())
	}
	profile, err := driver.Profile(d)
	if err != nil {
		return ResultFromError(err), err
	}

	img, err := renderer.TestPage(profile.PaperWidthDots, renderer.TestPageInfo{
		Title:    "Thermal Bridge",
		DeviceID: d.ID(),
		Model:    profile.Title,
		Lines:    []string{"Connection: " + string(d.ConnectionType())},
		Time:     time.Now(),
	})
	if err != nil {
		return ErrorUnknown, fmt.Errorf("%w: test page: %w", ErrUnknown, err)
	}
	return s.pool.PrintDecoded(ctx, img, d)
}

// PrinterByID returns a remembered printer.
func (s *Service) PrinterByID(id string) (Descriptor, error) {
	e, ok := s.registry.Get(id)
	if !ok {
		return nil, fmt.Errorf("printer not found: %s", id)
	}
	return DecodeDescriptor(e.Descriptor)
}

// Printers returns every remembered printer.
func (s *Service) Printers() []registry.Entry {
	return s.registry.All()
}

// SetPrinterName names a remembered printer.
func (s *Service) SetPrinterName(id, name string) (bool, error) {
	return s.registry.SetName(id, name)
}

// Forget removes a printer from the registry and drops its idle session.
func (s *Service) Forget(id string) (bool, error) {
	s.pool.Remove(id)
	return s.registry.Remove(id)
}

// Busy reports whether a job is running on printer id.
func (s *Service) Busy(id string) bool {
	return s.pool.Busy(id)
}

// NewMonitor returns a monitor polling for printers on types.
func (s *Service) NewMonitor(interval time.Duration, types ...ConnectionType) *Monitor {
	return NewMonitor(func(ctx context.Context) []Descriptor {
		found, _ := s.FindPrinters(ctx, "", types...)
		return found
	}, interval, s.log)
}

// Close stops the background jobs.
func (s *Service) Close() {
	s.jobs.Stop()
}

func (s *Service) remember(d Descriptor, name string) {
	raw, err := json.Marshal(d)
	if err != nil {
		s.log.Warn("Failed to encode printer", zap.String("printer", d.ID()), zap.Error(err))
		return
	}
	_, err = s.registry.Put(registry.Entry{
		ID:           d.ID(),
		Manufacturer: string(d.Manufacturer()),
		Connection:   string(d.ConnectionType()),
		Description:  d.DisplayName(),
		Name:         name,
		Descriptor:   raw,
	})
	if err != nil {
		s.log.Warn("Failed to save printer registry", zap.Error(err))
	}
}
