package capture

import (
	"NetSpectraIDS/internal/config"
	"NetSpectraIDS/internal/metrics"
	"NetSpectraIDS/internal/model"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

var (
	// ErrAlreadyCapturing is returned by Start while a session is active.
	ErrAlreadyCapturing = errors.New("capture already in progress")
	// ErrInterfaceNotFound is returned by openers when the named device does not exist.
	ErrInterfaceNotFound = errors.New("interface not found")
)

// Phase is the lifecycle state of the engine.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseCapturing
	PhaseStopping
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseCapturing:
		return "capturing"
	case PhaseStopping:
		return "stopping"
	default:
		return fmt.Sprintf("phase(%d)", int32(p))
	}
}

type job struct {
	data []byte
	ci   gopacket.CaptureInfo
}

// run is the state of one capture session.
type run struct {
	iface    string
	ctx      context.Context
	cancel   context.CancelFunc
	source   Source
	linkType layers.LinkType
	queue    chan job
	handlers Handlers
	workers  sync.WaitGroup

	loopDone  chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func (r *run) closeSource() {
	r.closeOnce.Do(r.source.Close)
}

// Engine owns the capture handle of at most one session at a time and feeds
// its packets through a bounded worker pool.
type Engine struct {
	cfg         config.CaptureConfig
	open        Opener
	list        Lister
	classifier  Classifier
	metrics     *metrics.Metrics
	dropLimiter *rate.Limiter

	mu      sync.Mutex
	phase   Phase
	current *run
	lastErr error
}

// NewEngine creates an idle engine. m may be nil.
func NewEngine(cfg config.CaptureConfig, open Opener, list Lister, classifier Classifier, m *metrics.Metrics) *Engine {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = 2 * time.Second
	}
	return &Engine{
		cfg:         cfg,
		open:        open,
		list:        list,
		classifier:  classifier,
		metrics:     m,
		dropLimiter: rate.NewLimiter(rate.Every(5*time.Second), 1),
	}
}

// Phase returns the current lifecycle state.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Interface returns the name of the interface being captured, if any.
func (e *Engine) Interface() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return ""
	}
	return e.current.iface
}

// Err returns the fatal error that ended the last session, if any.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// Done returns a channel that is closed when the current session returns to
// Idle. Without a session the returned channel is already closed.
func (e *Engine) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return e.current.done
}

// ListInterfaces returns every capture device on the host.
func (e *Engine) ListInterfaces() ([]model.Interface, error) {
	if e.list == nil {
		return nil, errors.New("interface listing is not available")
	}
	return e.list()
}

// Start opens iface and begins capturing. It fails without side effects if
// a session is already active or the interface cannot be opened.
func (e *Engine) Start(iface string, h Handlers) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase != PhaseIdle {
		log.Warn().Str("interface", iface).Str("phase", e.phase.String()).Msg("Start ignored, capture already in progress")
		return ErrAlreadyCapturing
	}

	source, err := e.open(iface)
	if err != nil {
		return fmt.Errorf("failed to open capture on %s: %w", iface, err)
	}
	if h.OnStart != nil {
		h.OnStart()
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		iface:    iface,
		ctx:      ctx,
		cancel:   cancel,
		source:   source,
		linkType: source.LinkType(),
		queue:    make(chan job, e.cfg.QueueSize),
		handlers: h,
		loopDone: make(chan struct{}),
		done:     make(chan struct{}),
	}
	e.current = r
	e.phase = PhaseCapturing
	e.lastErr = nil

	r.workers.Add(e.cfg.NumWorkers)
	for i := 0; i < e.cfg.NumWorkers; i++ {
		go e.worker(r)
	}
	go e.captureLoop(r)

	e.metrics.SetSessionActive(true)
	log.Info().Str("interface", iface).Int("workers", e.cfg.NumWorkers).Int("queue_size", e.cfg.QueueSize).
		Str("backpressure", e.cfg.Backpressure).Msg("Capture started")
	return nil
}

// Stop ends the current session. It is a no-op unless the engine is
// capturing and may be called from any goroutine. In-flight classification
// calls are canceled, not awaited.
func (e *Engine) Stop() {
	e.mu.Lock()
	r := e.current
	if r == nil || e.phase != PhaseCapturing {
		e.mu.Unlock()
		return
	}
	e.phase = PhaseStopping
	e.mu.Unlock()

	log.Info().Str("interface", r.iface).Msg("Stopping capture")
	r.cancel()
	r.closeSource()

	select {
	case <-r.loopDone:
	case <-time.After(e.cfg.JoinTimeout):
		log.Warn().Dur("timeout", e.cfg.JoinTimeout).Msg("Capture loop did not exit in time")
	}
	e.release(r, nil)
}

// release returns the engine to Idle if r is still its current session.
func (e *Engine) release(r *run, err error) {
	r.cancel()
	r.closeSource()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != r {
		return
	}
	e.current = nil
	e.phase = PhaseIdle
	e.lastErr = err
	close(r.done)
	e.metrics.SetSessionActive(false)

	if err != nil {
		log.Error().Err(err).Str("interface", r.iface).Msg("Capture ended with error")
		return
	}
	log.Info().Str("interface", r.iface).Msg("Capture stopped")
}

func (e *Engine) captureLoop(r *run) {
	defer close(r.loopDone)

	for {
		if r.ctx.Err() != nil {
			return
		}
		data, ci, err := r.source.ReadPacketData()
		if err != nil {
			if r.ctx.Err() != nil {
				return
			}
			if isTimeout(err) {
				continue
			}
			if errors.Is(err, io.EOF) {
				log.Info().Str("interface", r.iface).Msg("Capture source exhausted, draining workers")
				close(r.queue)
				r.workers.Wait()
				e.release(r, nil)
				return
			}
			e.release(r, fmt.Errorf("capture read failed: %w", err))
			return
		}
		if !e.enqueue(r, job{data: data, ci: ci}) {
			return
		}
	}
}

// enqueue hands a packet to the worker pool according to the backpressure
// policy. It returns false if the session was canceled while blocked.
func (e *Engine) enqueue(r *run, j job) bool {
	if e.cfg.Backpressure == config.BackpressureBlock {
		select {
		case r.queue <- j:
			return true
		case <-r.ctx.Done():
			return false
		}
	}

	select {
	case r.queue <- j:
	default:
		e.metrics.IncDropped()
		if r.handlers.OnDrop != nil {
			r.handlers.OnDrop()
		}
		if e.dropLimiter.Allow() {
			log.Warn().Int("queue_size", cap(r.queue)).Msg("Worker queue full, dropping packets")
		}
	}
	return true
}
