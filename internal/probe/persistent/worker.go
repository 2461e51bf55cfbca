package persistent

import (
	"NetSpectraIDS/internal/config"
	"NetSpectraIDS/internal/model"
	"NetSpectraIDS/internal/probe"
	"bufio"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const defaultSnapLen = 65536

// ErrLinkTypeMismatch is returned for a frame whose link type differs from
// the one the pcap file was started with.
var ErrLinkTypeMismatch = errors.New("link type does not match pcap file")

// Worker manages a pool of goroutines that persist detections to disk.
// It implements model.DetectionSink.
type Worker struct {
	detChan     chan *model.Detection
	wg          sync.WaitGroup
	file        *os.File
	attacksOnly bool
	dropLimiter *rate.Limiter
	errLimiter  *rate.Limiter

	// encode is shared by all goroutines and serialized by encMu.
	encMu  sync.Mutex
	encode func(det *model.Detection) error
	flush  func() error

	mu     sync.RWMutex
	closed bool
}

// NewWorker creates the output file and starts the worker pool. snapLen is
// the capture snapshot length, recorded in the header of pcap output.
func NewWorker(cfg config.PersistenceConfig, snapLen uint32) (*Worker, error) {
	if err := os.MkdirAll(cfg.Path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create persistence directory: %w", err)
	}

	bufferSize := cfg.ChannelBufferSize
	if bufferSize <= 0 {
		bufferSize = 10000
	}

	file, err := createOutputFile(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}

	w := &Worker{
		detChan:     make(chan *model.Detection, bufferSize),
		file:        file,
		attacksOnly: cfg.AttacksOnly,
		dropLimiter: rate.NewLimiter(rate.Every(5*time.Second), 1),
		errLimiter:  rate.NewLimiter(rate.Every(5*time.Second), 1),
	}
	if snapLen == 0 {
		snapLen = defaultSnapLen
	}
	if err := w.setupEncoder(cfg.Encoding, snapLen); err != nil {
		file.Close()
		return nil, err
	}

	numWorkers := cfg.NumWorkers
	if numWorkers <= 0 {
		numWorkers = 1
	}
	w.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go w.run()
	}

	log.Info().Int("workers", numWorkers).Str("encoding", cfg.Encoding).Str("file", file.Name()).
		Bool("attacks_only", cfg.AttacksOnly).Msg("Persistent worker started")
	return w, nil
}

func createOutputFile(cfg config.PersistenceConfig) (*os.File, error) {
	ext := ".log"
	switch cfg.Encoding {
	case "gob":
		ext = ".gob"
	case "pcap":
		ext = ".pcap"
	}
	fileName := fmt.Sprintf("detections_%s%s", time.Now().Format("2006-01-02_15-04-05.000"), ext)
	return os.OpenFile(filepath.Join(cfg.Path, fileName), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
}

func (w *Worker) setupEncoder(encoding string, snapLen uint32) error {
	switch encoding {
	case "gob":
		enc := gob.NewEncoder(w.file)
		w.encode = func(det *model.Detection) error {
			return enc.Encode(probe.NewDetectionEvent(det))
		}
		w.flush = func() error { return nil }
	case "text", "":
		buf := bufio.NewWriter(w.file)
		w.encode = func(det *model.Detection) error {
			_, err := buf.WriteString(FormatText(det))
			return err
		}
		w.flush = buf.Flush
	case "pcap":
		// The header is written with the link type of the first frame, since
		// a pcap file holds a single link type.
		pw := pcapgo.NewWriter(w.file)
		var linkType layers.LinkType
		headerWritten := false
		writeHeader := func(lt layers.LinkType) error {
			if err := pw.WriteFileHeader(snapLen, lt); err != nil {
				return fmt.Errorf("failed to write pcap file header: %w", err)
			}
			linkType, headerWritten = lt, true
			return nil
		}
		w.encode = func(det *model.Detection) error {
			if !headerWritten {
				if err := writeHeader(det.LinkType); err != nil {
					return err
				}
			}
			if det.LinkType != linkType {
				return fmt.Errorf("%w: file is %s, frame is %s", ErrLinkTypeMismatch, linkType, det.LinkType)
			}
			ci, data := det.CaptureInfo, det.Data
			if uint32(len(data)) > snapLen {
				data = data[:snapLen]
				ci.CaptureLength = len(data)
			}
			return pw.WritePacket(ci, data)
		}
		w.flush = func() error {
			if !headerWritten {
				return writeHeader(layers.LinkTypeEthernet)
			}
			return nil
		}
	default:
		return fmt.Errorf("unknown persistence encoding '%s'", encoding)
	}
	return nil
}

// FormatText renders one detection as a log line.
func FormatText(det *model.Detection) string {
	verdict := det.Prediction.Label
	if !det.Prediction.Succeeded() {
		verdict = "error: " + det.Prediction.ErrorMessage
	}
	service := ""
	if det.Record != nil {
		service = det.Record.Service
	}
	return fmt.Sprintf("%s [%s] %s:%d -> %s:%d, Proto: %d, Service: %s, Verdict: %s, Confidence: %.2f\n",
		det.Timestamp.Format("2006-01-02 15:04:05.000"),
		det.SessionID,
		det.FiveTuple.SrcIP,
		det.FiveTuple.SrcPort,
		det.FiveTuple.DstIP,
		det.FiveTuple.DstPort,
		det.FiveTuple.Protocol,
		service,
		verdict,
		det.Prediction.Confidence,
	)
}

func (w *Worker) run() {
	defer w.wg.Done()
	for det := range w.detChan {
		w.encMu.Lock()
		err := w.encode(det)
		w.encMu.Unlock()
		if err != nil && w.errLimiter.Allow() {
			log.Error().Err(err).Msg("PersistentWorker: error writing detection")
		}
	}
}

// Write queues det for persistence. It never blocks; a full buffer drops
// the detection.
func (w *Worker) Write(det *model.Detection) {
	if w.attacksOnly && !det.Prediction.IsAttack() {
		return
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return
	}
	select {
	case w.detChan <- det:
	default:
		if w.dropLimiter.Allow() {
			log.Warn().Msg("PersistentWorker: channel is full, dropping detections")
		}
	}
}

// Close drains the queue, flushes and closes the file.
func (w *Worker) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.detChan)
	w.mu.Unlock()

	w.wg.Wait()
	if err := w.flush(); err != nil {
		log.Error().Err(err).Msg("PersistentWorker: error flushing output")
	}
	if err := w.file.Close(); err != nil {
		log.Error().Err(err).Msg("PersistentWorker: error closing file")
	}
	log.Info().Str("file", w.file.Name()).Msg("Persistent worker stopped and file closed")
}

// Path returns the output file path.
func (w *Worker) Path() string { return w.file.Name() }
