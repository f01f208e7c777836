// Command voxelblockd is the voxel block storage and streaming daemon: it
// answers LoadBlockDataTask-style requests against a disk-backed store,
// falling back to procedural generation on a miss, and optionally serves
// the same store to remote clients over a netstream websocket endpoint.
//
// Grounded on cmd/server/main.go: flag-driven configuration, a
// log.Logger with a bracketed prefix, a signal-derived context, and an
// http.Server shut down gracefully on SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voxelcraft.ai/voxelblock/internal/config"
	"voxelcraft.ai/voxelblock/internal/diskstream"
	"voxelcraft.ai/voxelblock/internal/gen"
	"voxelcraft.ai/voxelblock/internal/loadtask"
	"voxelcraft.ai/voxelblock/internal/metrics"
	"voxelcraft.ai/voxelblock/internal/netstream"
	"voxelcraft.ai/voxelblock/internal/priority"
	"voxelcraft.ai/voxelblock/internal/streamdep"
	"voxelcraft.ai/voxelblock/internal/taskruntime"
	"voxelcraft.ai/voxelblock/internal/volumeregistry"
	"voxelcraft.ai/voxelblock/internal/voxelpool"
)

func main() {
	var (
		tuningPath  = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
		netAddr     = flag.String("net_addr", ":8070", "netstream http listen address (empty to disable)")
		metricsEach = flag.Duration("metrics_interval", 30*time.Second, "how often to log pool/task metrics")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[voxelblockd] ", log.LstdFlags|log.Lmicroseconds)

	tuning, err := config.Load(*tuningPath)
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}

	pool := voxelpool.New()

	index, err := diskstream.Open(tuning.Disk.Directory, pool)
	if err != nil {
		logger.Fatalf("open diskstream: %v", err)
	}
	defer index.Close()

	generator := gen.New(gen.Config{
		Seed:                            tuning.Gen.Seed,
		SeaLevel:                        tuning.Gen.SeaLevel,
		HeightAmplitude:                 tuning.Gen.HeightAmplitude,
		OreClusterProbScalePermille:     tuning.Gen.OreClusterProbScalePermille,
		TerrainClusterProbScalePermille: tuning.Gen.TerrainClusterProbScalePermille,
	}, logger)

	registry := volumeregistry.New()
	rt := taskruntime.New(tuning.WorkerCount, logger)

	counters := &metrics.Counters{}
	reporter := metrics.NewReporter(counters, pool, logger, *metricsEach)
	defer reporter.Stop()

	ctx, cancel := signalContext()
	defer cancel()

	if *netAddr != "" {
		mux := http.NewServeMux()
		netSrv := netstream.NewServer(pool, logger)
		mux.HandleFunc("/v1/volumes/", func(w http.ResponseWriter, r *http.Request) {
			volumeID := r.URL.Path[len("/v1/volumes/"):]
			netSrv.Handler(index.VolumeStream(volumeID))(w, r)
		})

		srv := &http.Server{
			Addr:              *netAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		logger.Printf("netstream listening on %s", *netAddr)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Fatalf("netstream ListenAndServe: %v", err)
			}
		}()
	}

	demoVolume(registry, index, pool, generator, rt, counters, tuning, logger)

	<-ctx.Done()
	rt.Close()
	logger.Printf("shutdown complete")
}

// demoVolume registers one volume backed by diskstream with a
// procedural-generation fallback, and pushes a small grid of load tasks
// so the daemon does useful work from a cold start, mirroring the way
// cmd/server's main creates a world synchronously at startup.
func demoVolume(
	registry *volumeregistry.Registry,
	index *diskstream.Index,
	pool *voxelpool.Pool,
	generator *gen.Generator,
	rt *taskruntime.Runtime,
	counters *metrics.Counters,
	tuning config.Tuning,
	logger *log.Logger,
) {
	const volumeID volumeregistry.VolumeID = "default"

	registry.Register(volumeID, volumeregistry.Callbacks{
		DataOutputCallback: func(_ any, out volumeregistry.BlockDataOutput) {
			switch {
			case out.Errored:
				counters.IncErrored()
			case out.Dropped:
				counters.IncDropped()
			case out.Type == volumeregistry.TypeGenerated:
				counters.IncGenerated()
			default:
				counters.IncLoaded()
			}
		},
	})

	dep := streamdep.New(index.VolumeStream(string(volumeID)), generator)
	priorityDep := &priority.Dependency{
		Viewers:             []priority.Viewer{{PositionInVoxels: [3]float64{0, 0, 0}}},
		DropDistanceSquared: tuning.DropDistanceVoxels * tuning.DropDistanceVoxels,
	}

	const radius = 2
	for z := -radius; z <= radius; z++ {
		for y := -radius; y <= radius; y++ {
			for x := -radius; x <= radius; x++ {
				rt.PushAsyncTask(loadtask.New(loadtask.Params{
					VolumeID:          volumeID,
					BlockPos:          [3]int{x, y, z},
					BlockSize:         tuning.BlockSize,
					Pool:              pool,
					Dependency:        dep,
					PriorityDep:       priorityDep,
					Registry:          registry,
					RequestInstances:  tuning.RequestInstances,
					GenerateCacheData: tuning.GenerateCacheData,
				}, logger))
			}
		}
	}
	logger.Printf("queued initial load grid around volume %q", volumeID)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
