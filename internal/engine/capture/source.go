package capture

import (
	"NetSpectraIDS/internal/model"
	"context"
	"errors"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Source delivers raw frames to the capture loop. Live handles report an
// expired read timeout through an error whose Timeout method returns true,
// and offline sources return io.EOF once exhausted.
type Source interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
	Close()
}

// Opener resolves an interface name and opens a Source on it.
type Opener func(name string) (Source, error)

// Lister enumerates the capture devices available on the host.
type Lister func() ([]model.Interface, error)

// Classifier turns a feature record into a prediction. Implementations
// must encode every failure in the returned value.
type Classifier interface {
	Classify(ctx context.Context, record *model.NetworkFeatureRecord) model.Prediction
}

// Handlers receive the per-session output of the worker pool.
type Handlers struct {
	// OnStart is called once the source is open, before any packet is read.
	OnStart func()
	// OnResult is called from worker goroutines for every classified packet.
	OnResult func(det *model.Detection)
	// OnDrop is called from the capture loop when a packet is dropped
	// because the worker queue is full.
	OnDrop func()
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
