// Command alignpress-bench repeatedly runs the detection engine over a
// directory of captured frames and reports latency and quality statistics
// via the runtime profiler, to check a configuration against the engine's
// latency budget before it goes to a press floor.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/alignpress/engine/config"
	"github.com/alignpress/engine/engine"
	"github.com/alignpress/engine/logging"
	"github.com/alignpress/engine/profiler"
)

// detectionMetrics satisfies profiler.MetricsCollector, surfacing the
// running mean confidence and position error (error_mm) of every logo
// result the benchmark has observed, broken out per logo name.
type detectionMetrics struct {
	mu         sync.Mutex
	confidence map[string]float64
	errorMM    map[string]float64
	samples    map[string]int
}

func newDetectionMetrics() *detectionMetrics {
	return &detectionMetrics{
		confidence: make(map[string]float64),
		errorMM:    make(map[string]float64),
		samples:    make(map[string]int),
	}
}

func (d *detectionMetrics) observe(r engine.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.samples[r.Name]++
	if r.Confidence != nil {
		d.confidence[r.Name] += *r.Confidence
	}
	if r.ErrorMM != nil {
		d.errorMM[r.Name] += *r.ErrorMM
	}
}

// CollectMetrics implements profiler.MetricsCollector.
func (d *detectionMetrics) CollectMetrics() map[string]float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[string]float64, 2*len(d.samples))
	for name, n := range d.samples {
		if n == 0 {
			continue
		}
		out["confidence."+name] = d.confidence[name] / float64(n)
		out["error_mm."+name] = d.errorMM[name] / float64(n)
	}
	return out
}

func main() {
	configPath := flag.String("config", "", "path to the detector YAML configuration")
	framesDir := flag.String("frames", "", "directory of BGR frames to replay")
	iterations := flag.Int("iterations", 1, "number of passes over the frame directory")
	flag.Parse()

	if *configPath == "" || *framesDir == "" {
		fmt.Fprintln(os.Stderr, "usage: alignpress-bench -config detector.yaml -frames ./captures")
		os.Exit(2)
	}

	if err := logging.InitDevelopment(); err != nil {
		fmt.Fprintln(os.Stderr, "logging init:", err)
		os.Exit(1)
	}
	defer logging.Sync()

	if err := run(*configPath, *framesDir, *iterations); err != nil {
		logging.S().Errorw("benchmark run failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath, framesDir string, iterations int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	eng, err := engine.New(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	frames, err := listFrames(framesDir)
	if err != nil {
		return err
	}
	if len(frames) == 0 {
		return fmt.Errorf("alignpress-bench: no frames found in %s", framesDir)
	}

	metrics := newDetectionMetrics()
	rp := profiler.NewRuntimeProfiler(profiler.ProfilingOptions{
		ReportInterval: 2 * time.Second,
		SampleInterval: 200 * time.Millisecond,
	})
	rp.AddMetricsCollector(metrics)
	rp.Start()
	defer rp.Stop()

	for pass := 0; pass < iterations; pass++ {
		for _, path := range frames {
			frame := gocv.IMRead(path, gocv.IMReadColor)
			if frame.Empty() {
				logging.S().Warnw("skipping unreadable frame", "path", path)
				continue
			}

			done := rp.StartOperation("detect_frame")
			results, err := eng.Detect(frame, nil)
			done()
			frame.Close()

			if err != nil {
				logging.S().Errorw("detect failed", "path", path, "error", err)
				continue
			}
			for _, r := range results {
				metrics.observe(r)
				rp.RecordMetric("processing_time_ms."+r.Name, r.ProcessingTimeMS)
			}
		}
	}

	stats := rp.GetCurrentStats()
	logging.S().Infow("benchmark complete", "frames", len(frames), "iterations", iterations, "stats", stats)
	return nil
}

func listFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".png", ".jpg", ".jpeg", ".bmp":
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}
