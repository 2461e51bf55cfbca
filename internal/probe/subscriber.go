package probe

import (
	"NetSpectraIDS/internal/config"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// EventHandler processes a received detection event.
type EventHandler func(ev DetectionEvent)

// Subscriber consumes detection events from a NATS subject.
type Subscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
}

// NewSubscriber connects to the NATS server in cfg.
func NewSubscriber(cfg config.NATSConfig) (*Subscriber, error) {
	nc, err := nats.Connect(cfg.URL, nats.Name("ns-ids subscriber"))
	if err != nil {
		return nil, err
	}
	log.Info().Str("url", cfg.URL).Msg("Connected to NATS server")
	return &Subscriber{nc: nc, subject: cfg.Subject}, nil
}

// Start subscribes and hands every decoded event to handler.
func (s *Subscriber) Start(handler EventHandler) error {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		ev, err := DecodeDetection(msg.Data)
		if err != nil {
			log.Error().Err(err).Msg("Dropping malformed detection event")
			return
		}
		handler(ev)
	})
	if err != nil {
		return err
	}
	s.sub = sub
	log.Info().Str("subject", s.subject).Msg("Subscribed, waiting for detections")
	return nil
}

// Close unsubscribes and closes the NATS connection.
func (s *Subscriber) Close() {
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Close()
		log.Info().Msg("NATS connection closed")
	}
}
