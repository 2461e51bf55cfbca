package pcap

import (
	"fmt"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Reader replays packets from a pcap file. It returns io.EOF once the file
// is exhausted.
type Reader struct {
	file   *os.File
	reader *pcapgo.Reader
}

// NewReader opens the pcap file at filePath.
func NewReader(filePath string) (*Reader, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap file: %w", err)
	}
	reader, err := pcapgo.NewReader(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to read pcap header of %s: %w", filePath, err)
	}
	return &Reader{file: file, reader: reader}, nil
}

// ReadPacketData returns the next frame of the file.
func (r *Reader) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	return r.reader.ReadPacketData()
}

// LinkType returns the link type recorded in the file header.
func (r *Reader) LinkType() layers.LinkType {
	return r.reader.LinkType()
}

// Close closes the underlying file.
func (r *Reader) Close() {
	r.file.Close()
}

// WriteFile writes frames to a new pcap file with Ethernet link type.
func WriteFile(filePath string, snaplen uint32, frames []gopacket.CaptureInfo, data [][]byte) error {
	if len(frames) != len(data) {
		return fmt.Errorf("capture info count %d does not match frame count %d", len(frames), len(data))
	}
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create pcap file: %w", err)
	}
	defer file.Close()

	w := pcapgo.NewWriter(file)
	if err := w.WriteFileHeader(snaplen, layers.LinkTypeEthernet); err != nil {
		return fmt.Errorf("failed to write pcap header: %w", err)
	}
	for i := range data {
		if err := w.WritePacket(frames[i], data[i]); err != nil {
			return fmt.Errorf("failed to write packet %d: %w", i, err)
		}
	}
	return file.Close()
}
