// Command alignpress-detect runs the planar logo detection engine once
// over a single captured frame and prints the per-logo results as JSON.
// It is a thin caller around the engine package: configuration loading,
// image I/O and logging all live here, never inside engine itself.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/alignpress/engine/config"
	"github.com/alignpress/engine/engine"
	"github.com/alignpress/engine/logging"
)

func main() {
	configPath := flag.String("config", "", "path to the detector YAML configuration")
	framePath := flag.String("frame", "", "path to the captured BGR frame to analyse")
	dev := flag.Bool("dev", false, "use a human-readable development logger instead of JSON")
	flag.Parse()

	if *configPath == "" || *framePath == "" {
		fmt.Fprintln(os.Stderr, "usage: alignpress-detect -config detector.yaml -frame capture.png")
		os.Exit(2)
	}

	if *dev {
		if err := logging.InitDevelopment(); err != nil {
			fmt.Fprintln(os.Stderr, "logging init:", err)
			os.Exit(1)
		}
	} else {
		if err := logging.InitProduction(nil); err != nil {
			fmt.Fprintln(os.Stderr, "logging init:", err)
			os.Exit(1)
		}
	}
	defer logging.Sync()

	if err := run(*configPath, *framePath); err != nil {
		logging.S().Errorw("detection run failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath, framePath string) error {
	// Each run gets its own correlation id so a technician can grep one
	// detection cycle's log lines out of a shared JSON log stream.
	runID := uuid.New().String()
	log := logging.S().With("run_id", runID)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	eng, err := engine.New(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	frame := gocv.IMRead(framePath, gocv.IMReadColor)
	if frame.Empty() {
		return fmt.Errorf("alignpress-detect: could not read frame %s", framePath)
	}
	defer frame.Close()

	results, err := eng.Detect(frame, nil)
	if err != nil {
		return err
	}

	for _, r := range results {
		status := "NOT FOUND"
		if r.Found {
			status = "ADJUST"
			if r.MeetsPositionTolerance && r.MeetsAngleTolerance {
				status = "OK"
			}
		}
		log.Infow("logo result",
			"name", r.Name, "status", status, "state", string(r.State),
			"processing_time_ms", r.ProcessingTimeMS)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}
