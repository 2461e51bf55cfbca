package model

// DetectionSink receives every classified packet of a session.
// Write must not block the caller for long; slow sinks buffer or drop.
type DetectionSink interface {
	Write(det *Detection)
	Close()
}
