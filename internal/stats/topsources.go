package stats

import (
	"NetSpectraIDS/internal/model"
	"net"
	"sync"
)

// SourceCount is an attacking source address and its estimated number of
// attack detections.
type SourceCount struct {
	IP    string `json:"ip"`
	Count uint32 `json:"count"`
}

// TopSources estimates which source addresses produce the most attack
// detections, in memory bounded by the sketch dimensions.
type TopSources struct {
	width, depth, threshold uint32

	mu     sync.Mutex
	sketch *countMin
}

// NewTopSources returns an empty estimator. Zero dimensions select defaults.
func NewTopSources(width, depth, threshold uint32) *TopSources {
	return &TopSources{
		width:     width,
		depth:     depth,
		threshold: threshold,
		sketch:    newCountMin(width, depth, threshold),
	}
}

// Write counts det if it is an attack. It satisfies model.DetectionSink.
func (t *TopSources) Write(det *model.Detection) {
	if det == nil || !det.Prediction.IsAttack() {
		return
	}
	ip := det.FiveTuple.SrcIP.To16()
	if ip == nil {
		return
	}
	t.mu.Lock()
	t.sketch.insert(ip)
	t.mu.Unlock()
}

// Close is a no-op.
func (t *TopSources) Close() {}

// Count returns the estimated attack count for ip.
func (t *TopSources) Count(ip net.IP) uint32 {
	key := ip.To16()
	if key == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sketch.query(key)
}

// Top returns up to n sources ordered by descending count. n <= 0 returns all.
func (t *TopSources) Top(n int) []SourceCount {
	t.mu.Lock()
	hh := t.sketch.heavyHitters()
	t.mu.Unlock()

	if n > 0 && len(hh) > n {
		hh = hh[:n]
	}
	out := make([]SourceCount, len(hh))
	for i, h := range hh {
		out[i] = SourceCount{IP: net.IP(h.key).String(), Count: h.count}
	}
	return out
}

// Reset discards every count.
func (t *TopSources) Reset() {
	t.mu.Lock()
	t.sketch = newCountMin(t.width, t.depth, t.threshold)
	t.mu.Unlock()
}
