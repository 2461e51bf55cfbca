package storage

import (
	"NetSpectraIDS/internal/model"
	"NetSpectraIDS/internal/probe"
	"bytes"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInserter struct {
	mu      sync.Mutex
	batches [][]probe.DetectionEvent
	closed  bool
}

func (f *fakeInserter) Insert(_ context.Context, events []probe.DetectionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, append([]probe.DetectionEvent(nil), events...))
	return nil
}

func (f *fakeInserter) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeInserter) sizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int
	for _, b := range f.batches {
		out = append(out, len(b))
	}
	return out
}

func detection(label string) *model.Detection {
	return &model.Detection{
		SessionID:  "s1",
		Timestamp:  time.Now(),
		FiveTuple:  model.FiveTuple{SrcIP: net.IPv4(1, 2, 3, 4), DstIP: net.IPv4(5, 6, 7, 8), DstPort: 80, Protocol: 6},
		Record:     &model.NetworkFeatureRecord{Service: "http"},
		Prediction: model.NewPrediction(0, label, 0.5, 0.5, 0.5),
	}
}

func TestWriter_FlushesFullBatches(t *testing.T) {
	ins := &fakeInserter{}
	w := newWriter(ins, 3, time.Hour)

	for i := 0; i < 7; i++ {
		w.Write(detection("normal"))
	}
	require.Eventually(t, func() bool { return len(ins.sizes()) == 2 }, time.Second, 5*time.Millisecond)

	w.Close()
	assert.Equal(t, []int{3, 3, 1}, ins.sizes())
	assert.True(t, ins.closed)

	assert.NotPanics(t, func() {
		w.Write(detection("normal"))
		w.Close()
	})
}

func TestWriter_FlushesOnInterval(t *testing.T) {
	ins := &fakeInserter{}
	w := newWriter(ins, 100, 10*time.Millisecond)
	defer w.Close()

	w.Write(detection("attack"))
	require.Eventually(t, func() bool { return len(ins.sizes()) == 1 }, time.Second, 5*time.Millisecond)

	ins.mu.Lock()
	ev := ins.batches[0][0]
	ins.mu.Unlock()
	assert.Equal(t, "attack", ev.Label)
	assert.Equal(t, "http", ev.Service)
	assert.Equal(t, uint16(80), ev.DstPort)
}

// blockingInserter holds the first batch until release is closed.
type blockingInserter struct {
	fakeInserter
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingInserter) Insert(ctx context.Context, events []probe.DetectionEvent) error {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return b.fakeInserter.Insert(ctx, events)
}

func TestWriter_DropsWhenQueueFull(t *testing.T) {
	var buf bytes.Buffer
	orig := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = orig }()

	ins := &blockingInserter{entered: make(chan struct{}), release: make(chan struct{})}
	w := newWriter(ins, 1, time.Hour)

	w.Write(detection("attack"))
	select {
	case <-ins.entered:
	case <-time.After(time.Second):
		t.Fatal("first batch was not sent")
	}

	// The loop is stuck in Insert, so only the queue capacity (4) is accepted.
	for i := 0; i < 20; i++ {
		w.Write(detection("attack"))
	}
	assert.Equal(t, uint64(16), w.Dropped())
	assert.Equal(t, 1, strings.Count(buf.String(), "queue full"))

	close(ins.release)
	w.Close()
	assert.Equal(t, []int{1, 1, 1, 1, 1}, ins.sizes())
}

func TestBuildSummaryQuery(t *testing.T) {
	query, args := buildSummaryQuery(HistoryFilter{})
	assert.NotContains(t, query, "WHERE")
	assert.Empty(t, args)

	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	query, args = buildSummaryQuery(HistoryFilter{SessionID: "abc", Since: since})
	assert.Contains(t, query, "WHERE SessionID = ? AND Timestamp >= ?")
	assert.True(t, strings.HasSuffix(query, "GROUP BY SessionID, Label ORDER BY SessionID, Label"))
	assert.Equal(t, []interface{}{"abc", since}, args)
}
