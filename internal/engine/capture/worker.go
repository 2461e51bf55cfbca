package capture

import (
	"NetSpectraIDS/internal/engine/protocol"
	"NetSpectraIDS/internal/model"

	"github.com/google/gopacket"
	"github.com/rs/zerolog/log"
)

func (e *Engine) worker(r *run) {
	defer r.workers.Done()
	for {
		select {
		case <-r.ctx.Done():
			return
		case j, ok := <-r.queue:
			if !ok {
				return
			}
			e.process(r, j)
		}
	}
}

// process runs one packet through extraction and classification. A failure
// here only costs this packet.
func (e *Engine) process(r *run, j job) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Msg("Packet processing failed, dropping packet")
		}
	}()

	packet := gopacket.NewPacket(j.data, r.linkType, gopacket.Default)
	record := protocol.ExtractFeatures(packet)
	if record == nil {
		e.metrics.IncSkipped()
		return
	}
	fiveTuple, err := protocol.ParseFiveTuple(packet)
	if err != nil {
		e.metrics.IncSkipped()
		return
	}

	prediction := e.classifier.Classify(r.ctx, record)
	if prediction.Interrupted || r.ctx.Err() != nil {
		return
	}

	log.Debug().
		Str("src", fiveTuple.SrcIP.String()).
		Str("dst", fiveTuple.DstIP.String()).
		Str("service", record.Service).
		Str("label", prediction.Label).
		Msg("Packet classified")

	if r.handlers.OnResult != nil {
		r.handlers.OnResult(&model.Detection{
			Timestamp:   j.ci.Timestamp,
			FiveTuple:   fiveTuple,
			Record:      record,
			Prediction:  prediction,
			CaptureInfo: j.ci,
			LinkType:    r.linkType,
			Data:        j.data,
		})
	}
}
