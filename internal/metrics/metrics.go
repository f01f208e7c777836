// Package metrics tracks pool and task-runtime activity with atomic
// counters and logs a human-readable summary on a timer, the way the
// teacher's server logs periodic tick/persistence stats.
package metrics

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"voxelcraft.ai/voxelblock/internal/voxelpool"
)

// Counters is a process-wide set of atomic activity counters. The zero
// value is ready to use.
type Counters struct {
	blocksLoaded    atomic.Int64
	blocksGenerated atomic.Int64
	blocksDropped   atomic.Int64
	blocksErrored   atomic.Int64
}

// IncLoaded records a successful disk/network load.
func (c *Counters) IncLoaded() { c.blocksLoaded.Add(1) }

// IncGenerated records a procedurally generated block.
func (c *Counters) IncGenerated() { c.blocksGenerated.Add(1) }

// IncDropped records a load task that finished with no usable result.
func (c *Counters) IncDropped() { c.blocksDropped.Add(1) }

// IncErrored records a load task that hit a stream error.
func (c *Counters) IncErrored() { c.blocksErrored.Add(1) }

// Snapshot is a point-in-time read of every counter.
type Snapshot struct {
	Loaded    int64
	Generated int64
	Dropped   int64
	Errored   int64
}

// Snapshot reads every counter without resetting them.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Loaded:    c.blocksLoaded.Load(),
		Generated: c.blocksGenerated.Load(),
		Dropped:   c.blocksDropped.Load(),
		Errored:   c.blocksErrored.Load(),
	}
}

// Reporter periodically logs Counters and a voxelpool.Pool's byte usage
// in human-readable form, until Stop is called.
type Reporter struct {
	counters *Counters
	pool     *voxelpool.Pool
	log      *log.Logger

	stop chan struct{}
	done chan struct{}
}

// NewReporter starts logging every interval on its own goroutine. Call
// Stop to end it.
func NewReporter(counters *Counters, pool *voxelpool.Pool, logger *log.Logger, interval time.Duration) *Reporter {
	r := &Reporter{
		counters: counters,
		pool:     pool,
		log:      logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go r.run(interval)
	return r
}

func (r *Reporter) run(interval time.Duration) {
	defer close(r.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.logOnce()
		}
	}
}

func (r *Reporter) logOnce() {
	snap := r.counters.Snapshot()
	poolStats := r.pool.Snapshot()

	var poolBytes uint64
	for _, sc := range poolStats.SizeClasses {
		poolBytes += uint64(sc.ClassBytes * sc.Free)
	}

	r.log.Printf(
		"loaded=%d generated=%d dropped=%d errored=%d pool_allocated=%d pool_recycled=%d pool_free=%s",
		snap.Loaded, snap.Generated, snap.Dropped, snap.Errored,
		poolStats.Allocated, poolStats.Recycled, humanize.Bytes(poolBytes),
	)
}

// Stop ends the reporting goroutine and waits for it to exit.
func (r *Reporter) Stop() {
	close(r.stop)
	<-r.done
}
