package protocol

import (
	"NetSpectraIDS/internal/model"
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	clientIP = net.IPv4(192, 168, 0, 10)
	serverIP = net.IPv4(10, 0, 0, 1)
)

func mustPacket(t *testing.T, spec FrameSpec) gopacket.Packet {
	t.Helper()
	packet, err := BuildPacket(spec)
	require.NoError(t, err)
	return packet
}

func TestExtractFeatures_TCP(t *testing.T) {
	packet := mustPacket(t, FrameSpec{
		SrcIP:    clientIP,
		DstIP:    serverIP,
		Protocol: layers.IPProtocolTCP,
		SrcPort:  40000,
		DstPort:  80,
		TCPFlags: "SA",
		Payload:  make([]byte, 100),
	})

	record := ExtractFeatures(packet)
	require.NotNil(t, record)

	assert.Equal(t, model.ProtocolTCP, record.ProtocolType)
	assert.Equal(t, "http", record.Service)
	assert.Equal(t, "SA", record.Flag)
	assert.Equal(t, int64(20+20+100), record.SrcBytes, "src_bytes is the whole IP packet")
	assert.Equal(t, int64(100), record.DstBytes)
	assert.Equal(t, 0, record.Land)
	assert.Equal(t, 1, record.Duration)
	assert.Zero(t, record.WrongFragment)
	assert.Zero(t, record.NumRoot)
}

func TestExtractFeatures_ServiceMapping(t *testing.T) {
	tests := []struct {
		name    string
		port    uint16
		service string
	}{
		{name: "http", port: 80, service: "http"},
		{name: "ssh", port: 22, service: "ssh"},
		{name: "postgres", port: 5432, service: "postgres"},
		{name: "unmapped", port: 9999, service: "9999"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := ExtractFeatures(mustPacket(t, FrameSpec{
				SrcIP:    clientIP,
				DstIP:    serverIP,
				Protocol: layers.IPProtocolTCP,
				SrcPort:  40000,
				DstPort:  tt.port,
				TCPFlags: "S",
			}))
			require.NotNil(t, record)
			assert.Equal(t, tt.service, record.Service)
		})
	}
}

func TestExtractFeatures_TCPFlags(t *testing.T) {
	tests := []struct {
		set  string
		want string
	}{
		{set: "", want: "0"},
		{set: "S", want: "S"},
		{set: "AS", want: "SA"},
		{set: "UPRFAS", want: "SAFRPU"},
		{set: "PA", want: "AP"},
		{set: "RA", want: "AR"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			record := ExtractFeatures(mustPacket(t, FrameSpec{
				SrcIP:    clientIP,
				DstIP:    serverIP,
				Protocol: layers.IPProtocolTCP,
				SrcPort:  40000,
				DstPort:  443,
				TCPFlags: tt.set,
			}))
			require.NotNil(t, record)
			assert.Equal(t, tt.want, record.Flag)
			assert.Zero(t, record.DstBytes)
		})
	}
}

func TestExtractFeatures_UDP(t *testing.T) {
	record := ExtractFeatures(mustPacket(t, FrameSpec{
		SrcIP:    clientIP,
		DstIP:    serverIP,
		Protocol: layers.IPProtocolUDP,
		SrcPort:  53000,
		DstPort:  53,
		Payload:  make([]byte, 32),
	}))
	require.NotNil(t, record)

	assert.Equal(t, model.ProtocolUDP, record.ProtocolType)
	assert.Equal(t, "domain", record.Service)
	assert.Equal(t, "UDP", record.Flag)
	assert.Equal(t, int64(32), record.DstBytes)
	assert.Equal(t, int64(20+8+32), record.SrcBytes)
	assert.Equal(t, 1, record.Duration)
}

func TestExtractFeatures_ICMP(t *testing.T) {
	record := ExtractFeatures(mustPacket(t, FrameSpec{
		SrcIP:    clientIP,
		DstIP:    serverIP,
		Protocol: layers.IPProtocolICMPv4,
		Payload:  make([]byte, 56),
	}))
	require.NotNil(t, record)

	assert.Equal(t, model.ProtocolICMP, record.ProtocolType)
	assert.Equal(t, "icmp", record.Service)
	assert.Equal(t, "ICMP", record.Flag)
	assert.Equal(t, 1, record.Duration)
	assert.Equal(t, int64(20+8+56), record.SrcBytes)
	assert.Zero(t, record.DstBytes)
}

func TestExtractFeatures_Land(t *testing.T) {
	for _, sameAddr := range []bool{true, false} {
		dst := serverIP
		if sameAddr {
			dst = clientIP
		}
		record := ExtractFeatures(mustPacket(t, FrameSpec{
			SrcIP:    clientIP,
			DstIP:    dst,
			Protocol: layers.IPProtocolTCP,
			SrcPort:  139,
			DstPort:  139,
			TCPFlags: "S",
		}))
		require.NotNil(t, record)
		if sameAddr {
			assert.Equal(t, 1, record.Land)
		} else {
			assert.Equal(t, 0, record.Land)
		}
	}
}

func TestExtractFeatures_NonIPv4(t *testing.T) {
	eth := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte(srcMAC),
		SourceProtAddress: []byte(clientIP.To4()),
		DstHwAddress:      make([]byte, 6),
		DstProtAddress:    []byte(serverIP.To4()),
	}
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, eth, arp))
	packet := gopacket.NewPacket(buf.Bytes(), layers.LayerTypeEthernet, gopacket.Default)

	assert.Nil(t, ExtractFeatures(packet))

	_, err := ParseFiveTuple(packet)
	assert.ErrorIs(t, err, ErrNotIPv4)
}

func TestParseFiveTuple(t *testing.T) {
	fiveTuple, err := ParseFiveTuple(mustPacket(t, FrameSpec{
		SrcIP:    clientIP,
		DstIP:    serverIP,
		Protocol: layers.IPProtocolUDP,
		SrcPort:  5353,
		DstPort:  9999,
	}))
	require.NoError(t, err)

	assert.True(t, fiveTuple.SrcIP.Equal(clientIP))
	assert.True(t, fiveTuple.DstIP.Equal(serverIP))
	assert.Equal(t, uint16(5353), fiveTuple.SrcPort)
	assert.Equal(t, uint16(9999), fiveTuple.DstPort)
	assert.Equal(t, uint8(layers.IPProtocolUDP), fiveTuple.Protocol)
}

func TestServiceForPort(t *testing.T) {
	assert.Equal(t, "ftp-data", ServiceForPort(20))
	assert.Equal(t, "imap4", ServiceForPort(143))
	assert.Equal(t, "8080", ServiceForPort(8080))
	assert.Equal(t, "0", ServiceForPort(0))
}

func TestBuildFrame_UnknownFlag(t *testing.T) {
	_, err := BuildFrame(FrameSpec{
		SrcIP:    clientIP,
		DstIP:    serverIP,
		Protocol: layers.IPProtocolTCP,
		TCPFlags: "X",
	})
	assert.Error(t, err)
}
