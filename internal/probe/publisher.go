package probe

import (
	"NetSpectraIDS/internal/config"
	"NetSpectraIDS/internal/model"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Publisher publishes detections to a NATS subject. It implements
// model.DetectionSink.
type Publisher struct {
	nc         *nats.Conn
	subject    string
	errLimiter *rate.Limiter
}

// NewPublisher connects to the NATS server in cfg.
func NewPublisher(cfg config.NATSConfig) (*Publisher, error) {
	nc, err := nats.Connect(cfg.URL, nats.Name("ns-ids publisher"))
	if err != nil {
		return nil, err
	}
	log.Info().Str("url", cfg.URL).Str("subject", cfg.Subject).Msg("Connected to NATS server")
	return &Publisher{
		nc:         nc,
		subject:    cfg.Subject,
		errLimiter: rate.NewLimiter(rate.Every(10*time.Second), 1),
	}, nil
}

// Publish serializes det and publishes it.
func (p *Publisher) Publish(det *model.Detection) error {
	data, err := EncodeDetection(det)
	if err != nil {
		return err
	}
	return p.nc.Publish(p.subject, data)
}

// Write publishes det, logging failures.
func (p *Publisher) Write(det *model.Detection) {
	if err := p.Publish(det); err != nil && p.errLimiter.Allow() {
		log.Error().Err(err).Str("subject", p.subject).Msg("Failed to publish detection")
	}
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		if err := p.nc.Drain(); err != nil {
			log.Error().Err(err).Msg("Failed to drain NATS connection")
		}
		log.Info().Msg("NATS connection drained and closed")
	}
}
