package probe

import (
	"NetSpectraIDS/internal/model"
	"fmt"
	"net"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// DetectionEvent is the wire form of a detection, without the raw frame.
type DetectionEvent struct {
	SessionID         string    `json:"session_id"`
	Timestamp         time.Time `json:"timestamp"`
	SrcIP             net.IP    `json:"src_ip"`
	DstIP             net.IP    `json:"dst_ip"`
	SrcPort           uint16    `json:"src_port"`
	DstPort           uint16    `json:"dst_port"`
	Protocol          uint8     `json:"protocol"`
	Service           string    `json:"service"`
	Flag              string    `json:"flag"`
	SrcBytes          int64     `json:"src_bytes"`
	DstBytes          int64     `json:"dst_bytes"`
	Status            string    `json:"status"`
	Label             string    `json:"label"`
	Confidence        float64   `json:"confidence"`
	AttackProbability float64   `json:"attack_probability"`
	ErrorMessage      string    `json:"error_message,omitempty"`
}

// IsAttack reports whether the event carries an attack verdict.
func (e DetectionEvent) IsAttack() bool {
	return model.Prediction{Label: e.Label}.IsAttack()
}

// NewDetectionEvent flattens det into its wire form.
func NewDetectionEvent(det *model.Detection) DetectionEvent {
	ev := DetectionEvent{
		SessionID:         det.SessionID,
		Timestamp:         det.Timestamp,
		SrcIP:             det.FiveTuple.SrcIP,
		DstIP:             det.FiveTuple.DstIP,
		SrcPort:           det.FiveTuple.SrcPort,
		DstPort:           det.FiveTuple.DstPort,
		Protocol:          det.FiveTuple.Protocol,
		Status:            string(det.Prediction.Status),
		Label:             det.Prediction.Label,
		Confidence:        det.Prediction.Confidence,
		AttackProbability: det.Prediction.AttackProbability,
		ErrorMessage:      det.Prediction.ErrorMessage,
	}
	if det.Record != nil {
		ev.Service = det.Record.Service
		ev.Flag = det.Record.Flag
		ev.SrcBytes = det.Record.SrcBytes
		ev.DstBytes = det.Record.DstBytes
	}
	return ev
}

// EncodeDetection serializes det as a protobuf Struct.
func EncodeDetection(det *model.Detection) ([]byte, error) {
	ev := NewDetectionEvent(det)
	pb, err := structpb.NewStruct(map[string]any{
		"session_id":         ev.SessionID,
		"timestamp":          ev.Timestamp.UTC().Format(time.RFC3339Nano),
		"src_ip":             ipString(ev.SrcIP),
		"dst_ip":             ipString(ev.DstIP),
		"src_port":           int(ev.SrcPort),
		"dst_port":           int(ev.DstPort),
		"protocol":           int(ev.Protocol),
		"service":            ev.Service,
		"flag":               ev.Flag,
		"src_bytes":          ev.SrcBytes,
		"dst_bytes":          ev.DstBytes,
		"status":             ev.Status,
		"label":              ev.Label,
		"confidence":         ev.Confidence,
		"attack_probability": ev.AttackProbability,
		"error_message":      ev.ErrorMessage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build detection struct: %w", err)
	}
	return proto.Marshal(pb)
}

func ipString(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}

// DecodeDetection parses a message produced by EncodeDetection.
func DecodeDetection(data []byte) (DetectionEvent, error) {
	var pb structpb.Struct
	if err := proto.Unmarshal(data, &pb); err != nil {
		return DetectionEvent{}, fmt.Errorf("error unmarshalling protobuf: %w", err)
	}
	f := pb.GetFields()
	str := func(key string) string { return f[key].GetStringValue() }
	num := func(key string) float64 { return f[key].GetNumberValue() }

	ev := DetectionEvent{
		SessionID:         str("session_id"),
		SrcIP:             net.ParseIP(str("src_ip")),
		DstIP:             net.ParseIP(str("dst_ip")),
		SrcPort:           uint16(num("src_port")),
		DstPort:           uint16(num("dst_port")),
		Protocol:          uint8(num("protocol")),
		Service:           str("service"),
		Flag:              str("flag"),
		SrcBytes:          int64(num("src_bytes")),
		DstBytes:          int64(num("dst_bytes")),
		Status:            str("status"),
		Label:             str("label"),
		Confidence:        num("confidence"),
		AttackProbability: num("attack_probability"),
		ErrorMessage:      str("error_message"),
	}
	if ts := str("timestamp"); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return DetectionEvent{}, fmt.Errorf("invalid timestamp %q: %w", ts, err)
		}
		ev.Timestamp = t
	}
	return ev, nil
}
