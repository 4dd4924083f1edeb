package printer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/thereceipt/thermal-bridge/internal/device"
	"github.com/thereceipt/thermal-bridge/internal/logger"
	"github.com/thereceipt/thermal-bridge/internal/renderer"
)

// State is where a session is in its job cycle.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateWriting
	StateAwaitingCompletion
	StateDisconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateWriting:
		return "writing"
	case StateAwaitingCompletion:
		return "awaiting_completion"
	case StateDisconnecting:
		return "disconnecting"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// StateObserver is told about every state change of a session.
type StateObserver func(printerID string, from, to State)

// SessionOptions tune a session.
type SessionOptions struct {
	ConnectTimeout     time.Duration
	CompletionTimeout  time.Duration
	PollInitialDelay   time.Duration
	PollInterval       time.Duration
	DisconnectAttempts int
	DisconnectDelay    time.Duration

	Builder  *renderer.Builder
	Observer StateObserver
	Logger   *zap.Logger
}

// DefaultSessionOptions returns the default timeouts.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		ConnectTimeout:     10 * time.Second,
		CompletionTimeout:  30 * time.Second,
		PollInitialDelay:   2 * time.Second,
		PollInterval:       500 * time.Millisecond,
		DisconnectAttempts: 5,
		DisconnectDelay:    500 * time.Millisecond,
	}
}

func (o *SessionOptions) fill() {
	def := DefaultSessionOptions()
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = def.ConnectTimeout
	}
	if o.CompletionTimeout <= 0 {
		o.CompletionTimeout = def.CompletionTimeout
	}
	if o.PollInitialDelay < 0 {
		o.PollInitialDelay = def.PollInitialDelay
	}
	if o.PollInterval <= 0 {
		o.PollInterval = def.PollInterval
	}
	if o.DisconnectAttempts <= 0 {
		o.DisconnectAttempts = def.DisconnectAttempts
	}
	if o.DisconnectDelay <= 0 {
		o.DisconnectDelay = def.DisconnectDelay
	}
	if o.Builder == nil {
		o.Builder = renderer.NewBuilder(renderer.Options{})
	}
}

// connectGrace bounds the wait for a cancelled dial to report back.
const connectGrace = time.Second

// Session prints on one physical printer, one job at a time. Jobs
// submitted while another is running wait their turn.
type Session struct {
	driver Driver
	opts   SessionOptions
	log    *zap.Logger

	sem     chan struct{}
	pending atomic.Int32

	mu    sync.Mutex
	state State
	port  device.Port
}

// NewSession creates an idle session.
func NewSession(driver Driver, opts SessionOptions) *Session {
	opts.fill()
	return &Session{
		driver: driver,
		opts:   opts,
		log:    logger.OrNop(opts.Logger).Named("session").With(zap.String("manufacturer", string(driver.Manufacturer()))),
		sem:    make(chan struct{}, 1),
	}
}

// Active reports whether a job is queued on the session or running.
func (s *Session) Active() bool {
	return s.pending.Load() > 0 || s.State() != StateIdle
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PrintImage prints a base64 encoded image on d.
func (s *Session) PrintImage(ctx context.Context, base64Image string, d Descriptor) Result {
	res, _ := s.PrintImageErr(ctx, base64Image, d)
	return res
}

// PrintImageErr is PrintImage that also returns the error behind a failed
// result.
func (s *Session) PrintImageErr(ctx context.Context, base64Image string, d Descriptor) (Result, error) {
	data, err := renderer.DecodeBase64(base64Image)
	if err != nil {
		return ErrorInvalidImage, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	return s.PrintData(ctx, data, d)
}

// PrintData prints encoded image bytes (PNG, JPEG, GIF, BMP or WebP) on d.
func (s *Session) PrintData(ctx context.Context, data []byte, d Descriptor) (Result, error) {
	img, err := renderer.Decode(data)
	if err != nil {
		return ErrorInvalidImage, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	return s.PrintDecoded(ctx, img, d)
}

// PrintDecoded prints an already decoded image on d. The command stream is
// built before the printer is touched.
func (s *Session) PrintDecoded(ctx context.Context, img image.Image, d Descriptor) (Result, error) {
	if d == nil {
		return ErrorUnknown, fmt.Errorf("%w: no printer given", ErrUnknown)
	}
	if d.Manufacturer() != s.driver.Manufacturer() {
		return ErrorUnknown, fmt.Errorf("%w: %s printer sent to %s session", ErrUnknown, d.Manufacturer(), s.driver.Manufacturer())
	}

	s.pending.Add(1)
	defer s.pending.Add(-1)

	profile, err := s.driver.Profile(d)
	if err != nil {
		return ResultFromError(err), err
	}
	cmds, err := s.opts.Builder.BuildImage(img, profile)
	if err != nil {
		res := ResultFromError(err)
		return res, fmt.Errorf("%w: %w", res.Err(), err)
	}

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ErrorUnknown, fmt.Errorf("%w: %w", ErrUnknown, ctx.Err())
	}
	defer func() { <-s.sem }()

	log := s.log.With(zap.String("printer", d.ID()), zap.String("model", profile.Key))
	start := time.Now()

	res, err := s.run(ctx, d, cmds, log)

	fields := []zap.Field{zap.Stringer("result", res), zap.Duration("duration", time.Since(start))}
	if err != nil {
		log.Warn("Print job failed", append(fields, zap.Error(err))...)
	} else {
		log.Info("Print job finished", fields...)
	}
	return res, err
}

func (s *Session) run(ctx context.Context, d Descriptor, cmds []byte, log *zap.Logger) (Result, error) {
	s.mu.Lock()
	prev := s.port
	s.mu.Unlock()

	// Opening may wait on a USB permission grant.
	s.setState(d, StateConnecting)
	port, err := s.driver.Open(ctx, d, prev)
	if err != nil {
		s.setState(d, StateIdle)
		return s.fail(ctx, err)
	}
	s.mu.Lock()
	s.port = port
	s.mu.Unlock()

	events := make(chan device.Event, 16)
	port.SetListener(func(ev device.Event) {
		select {
		case events <- ev:
		default:
			log.Warn("Dropped port event", zap.Stringer("event", ev.Kind))
		}
	})
	defer port.SetListener(nil)

	if err := s.connect(ctx, port, events); err != nil {
		s.setState(d, StateFailed)
		s.release(d, port, log)
		return s.fail(ctx, err)
	}
	s.setState(d, StateConnected)

	s.setState(d, StateWriting)
	if err := port.Write(cmds); err != nil {
		s.setState(d, StateFailed)
		s.release(d, port, log)
		return s.fail(ctx, s.driver.MapError(err))
	}
	log.Debug("Job written", zap.Int("bytes", len(cmds)))

	s.setState(d, StateAwaitingCompletion)
	status, err := s.await(ctx, port, events)
	if err != nil {
		s.setState(d, StateFailed)
	}
	s.release(d, port, log)
	if err != nil {
		return s.fail(ctx, err)
	}

	res := statusResult(status)
	if res != Success {
		return res, fmt.Errorf("%w: printer reported %s", res.Err(), status)
	}
	return Success, nil
}

// connect starts connecting and waits for the port to report back.
func (s *Session) connect(ctx context.Context, port device.Port, events <-chan device.Event) error {
	cctx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	defer cancel()

	if err := port.Connect(cctx); err != nil {
		return s.driver.MapError(err)
	}

	for {
		select {
		case ev := <-events:
			switch ev.Kind {
			case device.EventConnected:
				return nil
			case device.EventError:
				return s.driver.MapError(ev.Err)
			}
		case <-cctx.Done():
			cancel()
			s.settle(events)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: no connection within %s", ErrOffline, s.opts.ConnectTimeout)
		}
	}
}

// settle waits briefly for a cancelled dial to finish so that a connection
// made just before the cancellation is not leaked.
func (s *Session) settle(events <-chan device.Event) {
	t := time.NewTimer(connectGrace)
	defer t.Stop()
	for {
		select {
		case ev := <-events:
			if ev.Kind == device.EventConnected || ev.Kind == device.EventError {
				return
			}
		case <-t.C:
			return
		}
	}
}

// await waits for the job to complete the way the driver reports it.
func (s *Session) await(ctx context.Context, port device.Port, events <-chan device.Event) (device.Status, error) {
	mode := s.driver.Completion()

	deadline := time.NewTimer(s.opts.CompletionTimeout)
	defer deadline.Stop()

	if mode == CompleteOnIdle {
		pt := time.NewTimer(s.opts.PollInitialDelay)
		defer pt.Stop()

		for {
			select {
			case <-pt.C:
				if !port.Busy() {
					return s.drain(mode, events)
				}
				pt.Reset(s.opts.PollInterval)
			case ev := <-events:
				if done, status, err := s.completionEvent(mode, ev); done {
					return status, err
				}
			case <-deadline.C:
				return device.Status{}, fmt.Errorf("%w: printer still busy after %s", ErrUnknown, s.opts.CompletionTimeout)
			case <-ctx.Done():
				return device.Status{}, ctx.Err()
			}
		}
	}

	for {
		select {
		case ev := <-events:
			if done, status, err := s.completionEvent(mode, ev); done {
				return status, err
			}
		case <-deadline.C:
			return device.Status{}, fmt.Errorf("%w: no completion within %s", ErrUnknown, s.opts.CompletionTimeout)
		case <-ctx.Done():
			return device.Status{}, ctx.Err()
		}
	}
}

// drain checks the events that arrived before the port went idle, so a
// failed write is not reported as finished.
func (s *Session) drain(mode CompletionMode, events <-chan device.Event) (device.Status, error) {
	for {
		select {
		case ev := <-events:
			if done, status, err := s.completionEvent(mode, ev); done {
				return status, err
			}
		default:
			return device.Status{}, nil
		}
	}
}

func (s *Session) completionEvent(mode CompletionMode, ev device.Event) (bool, device.Status, error) {
	switch ev.Kind {
	case device.EventWriteComplete:
		return mode == CompleteOnWrite, ev.Status, nil
	case device.EventStatus:
		return mode == CompleteOnStatus, ev.Status, nil
	case device.EventError:
		return true, device.Status{}, s.driver.MapError(ev.Err)
	case device.EventDisconnected:
		return true, device.Status{}, fmt.Errorf("%w: printer disconnected while printing", ErrConnection)
	}
	return false, device.Status{}, nil
}

// release disconnects port, retrying while it is still flushing. Failing to
// disconnect never changes a job's result.
func (s *Session) release(d Descriptor, port device.Port, log *zap.Logger) {
	s.setState(d, StateDisconnecting)
	defer s.setState(d, StateIdle)

	for attempt := 1; attempt <= s.opts.DisconnectAttempts; attempt++ {
		err := port.Disconnect()
		if err == nil {
			return
		}
		if !errors.Is(err, device.ErrProcessing) {
			log.Warn("Disconnect failed", zap.Error(err))
			return
		}
		if attempt == s.opts.DisconnectAttempts {
			log.Warn("Printer still processing, giving up disconnect", zap.Int("attempts", attempt))
			return
		}
		time.Sleep(s.opts.DisconnectDelay)
	}
}

func (s *Session) fail(ctx context.Context, err error) (Result, error) {
	if ctx.Err() != nil && isContextErr(err) {
		return ErrorUnknown, fmt.Errorf("%w: %w", ErrUnknown, err)
	}
	return ResultFromError(err), err
}

func (s *Session) setState(d Descriptor, to State) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()

	if s.opts.Observer != nil && from != to {
		s.opts.Observer(d.ID(), from, to)
	}
}
