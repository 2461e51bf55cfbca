package pcap

import (
	"NetSpectraIDS/internal/config"
	"NetSpectraIDS/internal/engine/capture"
	"NetSpectraIDS/internal/model"
	"fmt"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// timeoutError marks an expired read timeout so the capture loop can poll
// for cancellation and carry on.
type timeoutError struct{}

func (timeoutError) Error() string   { return "pcap read timeout expired" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// LiveSource reads packets from a network interface.
type LiveSource struct {
	handle    *pcap.Handle
	closeOnce sync.Once
}

// OpenLive resolves name and opens it for live capture with the snapshot
// length, promiscuous mode, read timeout and BPF filter from cfg.
func OpenLive(name string, cfg config.CaptureConfig) (*LiveSource, error) {
	if _, err := FindInterface(name); err != nil {
		return nil, err
	}

	handle, err := pcap.OpenLive(name, cfg.SnapshotLen, cfg.Promiscuous, cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("error opening device %s: %w", name, err)
	}
	if cfg.BPFFilter != "" {
		if err := handle.SetBPFFilter(cfg.BPFFilter); err != nil {
			handle.Close()
			return nil, fmt.Errorf("invalid BPF filter %q: %w", cfg.BPFFilter, err)
		}
	}
	return &LiveSource{handle: handle}, nil
}

// ReadPacketData returns the next frame, or a timeout error when none
// arrived within the read timeout.
func (s *LiveSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := s.handle.ReadPacketData()
	if err == pcap.NextErrorTimeoutExpired {
		return nil, ci, timeoutError{}
	}
	return data, ci, err
}

// LinkType returns the link type of the device.
func (s *LiveSource) LinkType() layers.LinkType {
	return s.handle.LinkType()
}

// Close releases the capture handle. It is safe to call more than once.
func (s *LiveSource) Close() {
	s.closeOnce.Do(s.handle.Close)
}

// ListInterfaces returns every capture device with its addresses.
func ListInterfaces() ([]model.Interface, error) {
	devs, err := pcap.FindAllDevs()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}
	out := make([]model.Interface, 0, len(devs))
	for _, dev := range devs {
		out = append(out, toInterface(dev))
	}
	return out, nil
}

// FindInterface looks up a single device by name.
func FindInterface(name string) (model.Interface, error) {
	devs, err := pcap.FindAllDevs()
	if err != nil {
		return model.Interface{}, fmt.Errorf("failed to list interfaces: %w", err)
	}
	for _, dev := range devs {
		if dev.Name == name {
			return toInterface(dev), nil
		}
	}
	return model.Interface{}, fmt.Errorf("%w: %s", capture.ErrInterfaceNotFound, name)
}

func toInterface(dev pcap.Interface) model.Interface {
	iface := model.Interface{Name: dev.Name, Description: dev.Description}
	for _, addr := range dev.Addresses {
		iface.Addresses = append(iface.Addresses, addr.IP.String())
	}
	return iface
}
