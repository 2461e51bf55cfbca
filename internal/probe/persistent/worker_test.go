package persistent

import (
	"NetSpectraIDS/internal/config"
	"NetSpectraIDS/internal/engine/protocol"
	"NetSpectraIDS/internal/model"
	"NetSpectraIDS/internal/probe"
	"encoding/gob"
	"io"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDetection(t *testing.T, port uint16, label string) *model.Detection {
	t.Helper()
	data, err := protocol.BuildFrame(protocol.FrameSpec{
		SrcIP:    net.IPv4(10, 9, 8, 7),
		DstIP:    net.IPv4(10, 9, 8, 1),
		Protocol: layers.IPProtocolTCP,
		SrcPort:  41000,
		DstPort:  port,
		TCPFlags: "S",
	})
	require.NoError(t, err)
	packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)
	fiveTuple, err := protocol.ParseFiveTuple(packet)
	require.NoError(t, err)

	ts := time.Date(2024, 3, 9, 8, 7, 6, 0, time.UTC)
	return &model.Detection{
		SessionID:   "session-1",
		Timestamp:   ts,
		FiveTuple:   fiveTuple,
		Record:      protocol.ExtractFeatures(packet),
		Prediction:  model.NewPrediction(1, label, 0.8, 0.2, 0.8),
		CaptureInfo: gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(data), Length: len(data)},
		LinkType:    layers.LinkTypeEthernet,
		Data:        data,
	}
}

func newWorker(t *testing.T, encoding string, attacksOnly bool) *Worker {
	t.Helper()
	return newWorkerSnapLen(t, encoding, attacksOnly, 0)
}

// newWorkerSnapLen uses a single goroutine so that detections are written in
// arrival order.
func newWorkerSnapLen(t *testing.T, encoding string, attacksOnly bool, snapLen uint32) *Worker {
	t.Helper()
	w, err := NewWorker(config.PersistenceConfig{
		Path:              t.TempDir(),
		Encoding:          encoding,
		NumWorkers:        1,
		ChannelBufferSize: 16,
		AttacksOnly:       attacksOnly,
	}, snapLen)
	require.NoError(t, err)
	return w
}

func TestWorker_Text(t *testing.T) {
	w := newWorker(t, "text", false)
	w.Write(testDetection(t, 80, "normal"))
	w.Write(testDetection(t, 23, "attack"))
	w.Close()
	w.Close()

	content, err := os.ReadFile(w.Path())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, string(content), "10.9.8.7:41000 -> 10.9.8.1:23, Proto: 6, Service: telnet, Verdict: attack")
	assert.True(t, strings.HasSuffix(w.Path(), ".log"))

	assert.NotPanics(t, func() { w.Write(testDetection(t, 80, "normal")) })
}

func TestWorker_AttacksOnlyGob(t *testing.T) {
	w := newWorker(t, "gob", true)
	w.Write(testDetection(t, 80, "normal"))
	w.Write(testDetection(t, 23, "Attack"))
	w.Close()

	f, err := os.Open(w.Path())
	require.NoError(t, err)
	defer f.Close()

	dec := gob.NewDecoder(f)
	var ev probe.DetectionEvent
	require.NoError(t, dec.Decode(&ev))
	assert.Equal(t, "telnet", ev.Service)
	assert.Equal(t, "session-1", ev.SessionID)
	assert.True(t, ev.IsAttack())
	assert.ErrorIs(t, dec.Decode(&ev), io.EOF)
}

func TestWorker_Pcap(t *testing.T) {
	w := newWorker(t, "pcap", false)
	det := testDetection(t, 443, "normal")
	w.Write(det)
	w.Close()

	f, err := os.Open(w.Path())
	require.NoError(t, err)
	defer f.Close()

	r, err := pcapgo.NewReader(f)
	require.NoError(t, err)
	assert.Equal(t, layers.LinkTypeEthernet, r.LinkType())
	assert.Equal(t, uint32(65536), r.Snaplen())
	data, _, err := r.ReadPacketData()
	require.NoError(t, err)
	assert.Equal(t, det.Data, data)
}

func openPcap(t *testing.T, path string) *pcapgo.Reader {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	r, err := pcapgo.NewReader(f)
	require.NoError(t, err)
	return r
}

func TestWorker_PcapUsesSessionLinkType(t *testing.T) {
	w := newWorkerSnapLen(t, "pcap", false, 0)

	sll := testDetection(t, 80, "attack")
	sll.LinkType = layers.LinkTypeLinuxSLL
	sll.Data = append(make([]byte, 16), sll.Data[14:]...)
	sll.CaptureInfo.CaptureLength = len(sll.Data)
	sll.CaptureInfo.Length = len(sll.Data)
	w.Write(sll)
	w.Write(testDetection(t, 443, "normal"))
	w.Close()

	r := openPcap(t, w.Path())
	assert.Equal(t, layers.LinkTypeLinuxSLL, r.LinkType())
	data, _, err := r.ReadPacketData()
	require.NoError(t, err)
	assert.Equal(t, sll.Data, data)

	_, _, err = r.ReadPacketData()
	assert.ErrorIs(t, err, io.EOF, "an Ethernet frame must not be appended to an SLL file")
}

func TestWorker_PcapSnapLen(t *testing.T) {
	w := newWorkerSnapLen(t, "pcap", false, 40)
	det := testDetection(t, 80, "normal")
	w.Write(det)
	w.Close()

	r := openPcap(t, w.Path())
	assert.Equal(t, uint32(40), r.Snaplen())
	data, ci, err := r.ReadPacketData()
	require.NoError(t, err)
	assert.Equal(t, det.Data[:40], data)
	assert.Equal(t, 40, ci.CaptureLength)
	assert.Equal(t, len(det.Data), ci.Length)
}

func TestWorker_PcapEmptyFileHasHeader(t *testing.T) {
	w := newWorkerSnapLen(t, "pcap", false, 128)
	w.Close()

	r := openPcap(t, w.Path())
	assert.Equal(t, layers.LinkTypeEthernet, r.LinkType())
	assert.Equal(t, uint32(128), r.Snaplen())
	_, _, err := r.ReadPacketData()
	assert.ErrorIs(t, err, io.EOF)
}

func TestNewWorker_UnknownEncoding(t *testing.T) {
	_, err := NewWorker(config.PersistenceConfig{Path: t.TempDir(), Encoding: "xml"}, 0)
	assert.Error(t, err)
}

func TestFormatText_Error(t *testing.T) {
	det := testDetection(t, 80, "normal")
	det.Prediction = model.PredictionError("timeout error")
	assert.Contains(t, FormatText(det), "Verdict: error: timeout error")
}
