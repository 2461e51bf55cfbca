package model

import (
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// FiveTuple represents the 5-tuple of a captured packet.
type FiveTuple struct {
	SrcIP    net.IP
	DstIP    net.IP
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8
}

// Interface describes a capture device available on the host.
type Interface struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Addresses   []string `json:"addresses,omitempty"`
}

// Detection is the outcome of running one packet through the pipeline.
// It carries the raw frame so that sinks can persist it verbatim.
type Detection struct {
	SessionID   string
	Timestamp   time.Time
	FiveTuple   FiveTuple
	Record      *NetworkFeatureRecord
	Prediction  Prediction
	CaptureInfo gopacket.CaptureInfo
	LinkType    layers.LinkType
	Data        []byte
}
