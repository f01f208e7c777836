package metrics

import (
	"bytes"
	"log"
	"testing"
	"time"

	"voxelcraft.ai/voxelblock/internal/voxelpool"
)

func TestCountersSnapshot(t *testing.T) {
	var c Counters
	c.IncLoaded()
	c.IncLoaded()
	c.IncGenerated()
	c.IncDropped()
	c.IncErrored()

	snap := c.Snapshot()
	if snap != (Snapshot{Loaded: 2, Generated: 1, Dropped: 1, Errored: 1}) {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestReporterLogsOnInterval(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)

	var c Counters
	c.IncLoaded()
	pool := voxelpool.New()

	r := NewReporter(&c, pool, logger, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	r.Stop()

	if buf.Len() == 0 {
		t.Fatalf("expected at least one log line to be written")
	}
}
