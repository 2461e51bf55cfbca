package protocol

import (
	"NetSpectraIDS/internal/model"
	"errors"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// ErrNotIPv4 is returned for packets without an IPv4 layer.
var ErrNotIPv4 = errors.New("not an IPv4 packet")

const (
	defaultDuration = 1
	otherService    = "other"
	otherFlag       = "OTH"
)

// ParseFiveTuple extracts the addressing information of an IPv4 packet.
// Ports stay zero for transports other than TCP and UDP.
func ParseFiveTuple(packet gopacket.Packet) (model.FiveTuple, error) {
	var fiveTuple model.FiveTuple

	l := packet.Layer(layers.LayerTypeIPv4)
	if l == nil {
		// IPv6 is not classified, skip it
		return fiveTuple, ErrNotIPv4
	}
	ipLayer := l.(*layers.IPv4)
	fiveTuple.SrcIP = ipLayer.SrcIP
	fiveTuple.DstIP = ipLayer.DstIP
	fiveTuple.Protocol = uint8(ipLayer.Protocol)

	if l := packet.Layer(layers.LayerTypeTCP); l != nil {
		tcpLayer := l.(*layers.TCP)
		fiveTuple.SrcPort = uint16(tcpLayer.SrcPort)
		fiveTuple.DstPort = uint16(tcpLayer.DstPort)
	} else if l := packet.Layer(layers.LayerTypeUDP); l != nil {
		udpLayer := l.(*layers.UDP)
		fiveTuple.SrcPort = uint16(udpLayer.SrcPort)
		fiveTuple.DstPort = uint16(udpLayer.DstPort)
	}

	return fiveTuple, nil
}

// ExtractFeatures reduces a single packet to a feature record. It returns nil
// when the packet carries no IPv4 layer.
//
// Connection-level fields (duration, rates, host counters) cannot be derived
// from one packet: duration is fixed at 1 and the content counters stay 0.
func ExtractFeatures(packet gopacket.Packet) *model.NetworkFeatureRecord {
	l := packet.Layer(layers.LayerTypeIPv4)
	if l == nil {
		return nil
	}
	ip := l.(*layers.IPv4)

	record := &model.NetworkFeatureRecord{
		ProtocolType: protocolType(ip.Protocol),
		Service:      otherService,
		Flag:         otherFlag,
		SrcBytes:     int64(len(ip.Contents) + len(ip.Payload)),
	}
	if ip.SrcIP.Equal(ip.DstIP) {
		record.Land = 1
	}

	if l := packet.Layer(layers.LayerTypeTCP); l != nil {
		tcp := l.(*layers.TCP)
		record.Service = ServiceForPort(uint16(tcp.DstPort))
		record.DstBytes = int64(len(tcp.Payload))
		record.Flag = TCPFlags(tcp)
		record.Duration = defaultDuration
	} else if l := packet.Layer(layers.LayerTypeUDP); l != nil {
		udp := l.(*layers.UDP)
		record.Service = ServiceForPort(uint16(udp.DstPort))
		record.DstBytes = int64(len(udp.Payload))
		record.Flag = "UDP"
		record.Duration = defaultDuration
	} else if strings.Contains(strings.ToUpper(ip.Protocol.String()), "ICMP") {
		record.Service = "icmp"
		record.Flag = "ICMP"
		record.Duration = defaultDuration
	}

	if record.Duration == 0 {
		record.Duration = defaultDuration
	}
	return record
}

// TCPFlags summarizes the set control bits in the fixed order S, A, F, R, P, U.
// A segment with none of them set yields "0".
func TCPFlags(tcp *layers.TCP) string {
	var b strings.Builder
	if tcp.SYN {
		b.WriteByte('S')
	}
	if tcp.ACK {
		b.WriteByte('A')
	}
	if tcp.FIN {
		b.WriteByte('F')
	}
	if tcp.RST {
		b.WriteByte('R')
	}
	if tcp.PSH {
		b.WriteByte('P')
	}
	if tcp.URG {
		b.WriteByte('U')
	}
	if b.Len() == 0 {
		return "0"
	}
	return b.String()
}

func protocolType(p layers.IPProtocol) model.ProtocolType {
	switch p {
	case layers.IPProtocolTCP:
		return model.ProtocolTCP
	case layers.IPProtocolUDP:
		return model.ProtocolUDP
	case layers.IPProtocolICMPv4:
		return model.ProtocolICMP
	}
	return model.ProtocolOther
}
