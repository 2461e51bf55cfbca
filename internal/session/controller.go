package session

import (
	"NetSpectraIDS/internal/engine/capture"
	"NetSpectraIDS/internal/model"
	"NetSpectraIDS/internal/stats"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Status is a point-in-time view of the controller.
type Status struct {
	SessionID   string                  `json:"session_id,omitempty"`
	Phase       string                  `json:"phase"`
	Interface   string                  `json:"interface,omitempty"`
	MaxPackets  uint64                  `json:"max_packets"`
	Statistics  model.SessionStatistics `json:"statistics"`
	AttackRatio float64                 `json:"attack_ratio"`
	TopSources  []stats.SourceCount     `json:"top_sources,omitempty"`
}

const topSourcesLimit = 10

// Controller drives capture sessions: it starts and stops the engine,
// enforces packet limits, and routes every detection to the statistics
// tracker and the configured sinks.
type Controller struct {
	engine  *capture.Engine
	tracker *stats.Tracker
	top     *stats.TopSources

	mu         sync.Mutex
	sinks      []model.DetectionSink
	endHooks   []func(Status, error)
	sessionID  string
	maxPackets uint64
	// ended is closed once the end hooks of the last session have returned.
	ended chan struct{}
}

// NewController wires an engine and a tracker together.
func NewController(engine *capture.Engine, tracker *stats.Tracker, sinks ...model.DetectionSink) *Controller {
	return &Controller{
		engine:  engine,
		tracker: tracker,
		top:     stats.NewTopSources(0, 0, 0),
		sinks:   sinks,
	}
}

// AddSink registers a sink for detections of later sessions.
func (c *Controller) AddSink(sink model.DetectionSink) {
	c.mu.Lock()
	c.sinks = append(c.sinks, sink)
	c.mu.Unlock()
}

// OnSessionEnd registers fn to be called with the final status and the
// terminating error of every later session. A new session does not start
// before the hooks of the previous one have returned, so fn must not call
// back into the controller.
func (c *Controller) OnSessionEnd(fn func(Status, error)) {
	c.mu.Lock()
	c.endHooks = append(c.endHooks, fn)
	c.mu.Unlock()
}

// Start captures on iface until Stop is called.
func (c *Controller) Start(iface string) error {
	return c.StartBounded(iface, 0)
}

// StartBounded captures on iface and stops by itself once maxPackets
// packets have been classified. Zero means no limit.
func (c *Controller) StartBounded(iface string, maxPackets uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.engine.Phase() != capture.PhaseIdle {
		return capture.ErrAlreadyCapturing
	}
	if c.ended != nil {
		<-c.ended
	}

	sessionID := uuid.NewString()
	sinks := append([]model.DetectionSink(nil), c.sinks...)
	var admitted atomic.Uint64
	var limitOnce sync.Once

	handlers := capture.Handlers{
		OnResult: func(det *model.Detection) {
			n := admitted.Add(1)
			if maxPackets > 0 && n > maxPackets {
				return
			}
			det.SessionID = sessionID
			c.handle(det, sinks)
			if maxPackets > 0 && n == maxPackets {
				limitOnce.Do(func() {
					log.Info().Str("session_id", sessionID).Uint64("max_packets", maxPackets).Msg("Packet limit reached")
					go c.stopSession(sessionID)
				})
			}
		},
		OnDrop: c.tracker.RecordDrop,
		OnStart: func() {
			c.tracker.Reset()
			c.top.Reset()
		},
	}

	engine := c.engine
	if err := engine.Start(iface, handlers); err != nil {
		return err
	}
	c.sessionID = sessionID
	c.maxPackets = maxPackets
	c.ended = make(chan struct{})
	final := Status{SessionID: sessionID, Interface: iface, MaxPackets: maxPackets}
	go c.watch(engine, engine.Done(), final, slices.Clone(c.endHooks), c.ended)
	log.Info().Str("session_id", sessionID).Str("interface", iface).Uint64("max_packets", maxPackets).Msg("Session started")
	return nil
}

func (c *Controller) handle(det *model.Detection, sinks []model.DetectionSink) {
	c.tracker.Record(det.Prediction)
	c.top.Write(det)

	if det.Prediction.IsAttack() {
		log.Warn().
			Str("src", det.FiveTuple.SrcIP.String()).
			Str("dst", det.FiveTuple.DstIP.String()).
			Uint16("dst_port", det.FiveTuple.DstPort).
			Str("service", det.Record.Service).
			Str("label", det.Prediction.Label).
			Float64("confidence", det.Prediction.Confidence).
			Msg("Attack detected")
	}

	for _, sink := range sinks {
		sink.Write(det)
	}
}

// watch runs the end hooks once done is closed. It reads the tracker
// directly since the next session cannot reset it before ended is closed.
func (c *Controller) watch(engine *capture.Engine, done <-chan struct{}, final Status, hooks []func(Status, error), ended chan struct{}) {
	defer close(ended)
	<-done

	final.Phase = capture.PhaseIdle.String()
	final.Statistics = c.tracker.Snapshot()
	final.AttackRatio = final.Statistics.AttackRatio()
	final.TopSources = c.top.Top(topSourcesLimit)
	err := engine.Err()
	for _, fn := range hooks {
		fn(final, err)
	}
}

// stopSession stops the engine only if id is still the active session.
func (c *Controller) stopSession(id string) {
	if c.SessionID() != id {
		return
	}
	c.engine.Stop()
}

// Stop ends the active session, if any. It is safe to call repeatedly.
func (c *Controller) Stop() {
	c.engine.Stop()
}

// Phase returns the engine's lifecycle state.
func (c *Controller) Phase() capture.Phase { return c.engine.Phase() }

// Done is closed when the active session ends.
func (c *Controller) Done() <-chan struct{} { return c.engine.Done() }

// Err reports the fatal error that ended the last session, if any.
func (c *Controller) Err() error { return c.engine.Err() }

// Interface returns the interface of the active session.
func (c *Controller) Interface() string { return c.engine.Interface() }

// ListInterfaces returns the capture devices of the host.
func (c *Controller) ListInterfaces() ([]model.Interface, error) {
	return c.engine.ListInterfaces()
}

// Statistics returns a snapshot of the current session's counters.
func (c *Controller) Statistics() model.SessionStatistics { return c.tracker.Snapshot() }

// Tracker exposes the statistics tracker for observers.
func (c *Controller) Tracker() *stats.Tracker { return c.tracker }

// TopSources returns the sources with the most attack detections in the
// current session.
func (c *Controller) TopSources() []stats.SourceCount { return c.top.Top(topSourcesLimit) }

// SessionID returns the ID of the most recent session.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Status returns the controller's state for display.
func (c *Controller) Status() Status {
	c.mu.Lock()
	id, maxPackets := c.sessionID, c.maxPackets
	c.mu.Unlock()

	s := c.tracker.Snapshot()
	return Status{
		SessionID:   id,
		Phase:       c.engine.Phase().String(),
		Interface:   c.engine.Interface(),
		MaxPackets:  maxPackets,
		Statistics:  s,
		AttackRatio: s.AttackRatio(),
		TopSources:  c.TopSources(),
	}
}

// Close stops capturing and closes every sink.
func (c *Controller) Close() {
	c.engine.Stop()
	c.mu.Lock()
	sinks := c.sinks
	c.sinks = nil
	c.mu.Unlock()
	for _, sink := range sinks {
		sink.Close()
	}
}
