package main

import (
	"NetSpectraIDS/internal/engine/protocol"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/rs/zerolog/log"
)

var (
	tcpPorts = []uint16{20, 21, 22, 23, 25, 80, 110, 143, 443, 3306, 5432, 8080, 31337}
	tcpFlags = []string{"S", "SA", "A", "PA", "FA", "R", "RA", ""}
)

func main() {
	outputFile := flag.String("o", "test.pcap", "Output pcap file path")
	packetCount := flag.Int("c", 1000, "Number of packets to generate")
	seed := flag.Int64("seed", time.Now().UnixNano(), "Random seed")
	flag.Parse()

	f, err := os.Create(*outputFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create output file")
	}
	defer f.Close()

	log.Info().Int("packets", *packetCount).Str("file", *outputFile).Msg("Generating packets")
	if err := generate(f, *packetCount, rand.New(rand.NewSource(*seed))); err != nil {
		log.Fatal().Err(err).Msg("Failed to generate packets")
	}
	log.Info().Int("packets", *packetCount).Str("file", *outputFile).Msg("Successfully generated packets")
}

// generate writes count random frames covering the TCP, UDP and ICMP
// extraction paths, including the occasional land packet.
func generate(w io.Writer, count int, rng *rand.Rand) error {
	pcapWriter := pcapgo.NewWriter(w)
	if err := pcapWriter.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		return fmt.Errorf("failed to write pcap header: %w", err)
	}

	start := time.Now()
	for i := 0; i < count; i++ {
		data, err := protocol.BuildFrame(randomSpec(rng))
		if err != nil {
			return err
		}
		ci := gopacket.CaptureInfo{
			Timestamp:     start.Add(time.Duration(i) * time.Millisecond),
			CaptureLength: len(data),
			Length:        len(data),
		}
		if err := pcapWriter.WritePacket(ci, data); err != nil {
			return fmt.Errorf("failed to write packet: %w", err)
		}
	}
	return nil
}

func randomIP(rng *rand.Rand) net.IP {
	return net.IPv4(10, byte(rng.Intn(256)), byte(rng.Intn(256)), byte(rng.Intn(254)+1))
}

func randomSpec(rng *rand.Rand) protocol.FrameSpec {
	spec := protocol.FrameSpec{
		SrcIP:   randomIP(rng),
		DstIP:   randomIP(rng),
		SrcPort: uint16(rng.Intn(65535-1024) + 1024),
	}
	if rng.Intn(50) == 0 {
		spec.DstIP = spec.SrcIP
	}

	switch n := rng.Intn(10); {
	case n < 7:
		spec.Protocol = layers.IPProtocolTCP
		spec.DstPort = tcpPorts[rng.Intn(len(tcpPorts))]
		spec.TCPFlags = tcpFlags[rng.Intn(len(tcpFlags))]
		if spec.TCPFlags == "PA" {
			spec.Payload = make([]byte, rng.Intn(1400)+50)
			rng.Read(spec.Payload)
		}
	case n < 9:
		spec.Protocol = layers.IPProtocolUDP
		spec.DstPort = 53
		spec.Payload = make([]byte, rng.Intn(200)+20)
		rng.Read(spec.Payload)
	default:
		spec.Protocol = layers.IPProtocolICMPv4
		spec.Payload = make([]byte, 56)
	}
	return spec
}
