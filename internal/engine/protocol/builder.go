package protocol

import (
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// FrameSpec describes a synthetic Ethernet/IPv4 frame.
type FrameSpec struct {
	SrcIP    net.IP
	DstIP    net.IP
	Protocol layers.IPProtocol
	SrcPort  uint16
	DstPort  uint16
	// TCPFlags lists the control bits to set, using the letters S, A, F, R, P, U.
	TCPFlags string
	Payload  []byte
}

var (
	srcMAC = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	dstMAC = net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA}
)

// BuildFrame serializes spec into an Ethernet frame with valid lengths and checksums.
func BuildFrame(spec FrameSpec) ([]byte, error) {
	ethLayer := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ipLayer := &layers.IPv4{
		SrcIP:    spec.SrcIP.To4(),
		DstIP:    spec.DstIP.To4(),
		Version:  4,
		TTL:      64,
		Protocol: spec.Protocol,
	}

	stack := []gopacket.SerializableLayer{ethLayer, ipLayer}
	switch spec.Protocol {
	case layers.IPProtocolTCP:
		tcpLayer := &layers.TCP{
			SrcPort: layers.TCPPort(spec.SrcPort),
			DstPort: layers.TCPPort(spec.DstPort),
			Seq:     1,
			Window:  14600,
		}
		for _, f := range spec.TCPFlags {
			switch f {
			case 'S':
				tcpLayer.SYN = true
			case 'A':
				tcpLayer.ACK = true
			case 'F':
				tcpLayer.FIN = true
			case 'R':
				tcpLayer.RST = true
			case 'P':
				tcpLayer.PSH = true
			case 'U':
				tcpLayer.URG = true
			default:
				return nil, fmt.Errorf("unknown TCP flag %q", f)
			}
		}
		if err := tcpLayer.SetNetworkLayerForChecksum(ipLayer); err != nil {
			return nil, err
		}
		stack = append(stack, tcpLayer)
	case layers.IPProtocolUDP:
		udpLayer := &layers.UDP{
			SrcPort: layers.UDPPort(spec.SrcPort),
			DstPort: layers.UDPPort(spec.DstPort),
		}
		if err := udpLayer.SetNetworkLayerForChecksum(ipLayer); err != nil {
			return nil, err
		}
		stack = append(stack, udpLayer)
	case layers.IPProtocolICMPv4:
		stack = append(stack, &layers.ICMPv4{
			TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0),
			Id:       1,
			Seq:      1,
		})
	}
	if len(spec.Payload) > 0 {
		stack = append(stack, gopacket.Payload(spec.Payload))
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		ComputeChecksums: true,
		FixLengths:       true,
	}
	if err := gopacket.SerializeLayers(buf, opts, stack...); err != nil {
		return nil, fmt.Errorf("failed to serialize layers: %w", err)
	}
	return buf.Bytes(), nil
}

// BuildPacket is BuildFrame followed by decoding, for feeding the pipeline directly.
func BuildPacket(spec FrameSpec) (gopacket.Packet, error) {
	data, err := BuildFrame(spec)
	if err != nil {
		return nil, err
	}
	return gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default), nil
}
