package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessehattabaugh/world/camera"
	"github.com/jessehattabaugh/world/config"
	"github.com/jessehattabaugh/world/sim"
	"github.com/jessehattabaugh/world/telemetry"
)

// Roaming viewport shape and speed for -follow mode.
const (
	followViewW = 800
	followViewH = 600
	followSpeed = 120 // screen pixels per second
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	seed := flag.Int64("seed", 0, "RNG seed (0 = time-based)")
	maxTicks := flag.Uint64("max-ticks", 0, "Stop after N ticks (0 = unlimited)")
	statsWindow := flag.Float64("stats-window", 0, "Stats window size in seconds (0 = use config)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	logStats := flag.Bool("log-stats", false, "Output stats via slog")
	tickInterval := flag.Duration("tick-interval", 0, "Real time per tick (0 = 60 ticks/s)")
	backendName := flag.String("backend", "", "Compute backend override: accelerated or sequential (empty = use config)")
	follow := flag.Bool("follow", false, "Stream tiles under a roaming viewport instead of keeping the whole world loaded")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	switch *backendName {
	case "":
	case "accelerated":
		cfg.Backend.Accelerated = true
	case "sequential":
		cfg.Backend.Accelerated = false
	default:
		slog.Error("unknown backend", "backend", *backendName)
		os.Exit(1)
	}

	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}

	// Use config stats window if not overridden by CLI
	statsWindowSec := cfg.Telemetry.StatsWindow
	if *statsWindow > 0 {
		statsWindowSec = *statsWindow
	}

	out, err := telemetry.NewOutputManager(*outputDir)
	if err != nil {
		slog.Error("failed to prepare output directory", "error", err)
		os.Exit(1)
	}
	defer out.Close()
	if err := out.WriteConfig(cfg); err != nil {
		slog.Error("failed to write config snapshot", "error", err)
	}

	opts := sim.Options{
		Config:       cfg,
		Seed:         rngSeed,
		TickInterval: *tickInterval,
		Logger:       logger,
	}

	var cam *camera.Camera
	if *follow {
		cam = camera.New(followViewW, followViewH, cfg.Derived.WorldW32, cfg.Derived.WorldH32)
		vp := cam.Bounds()
		opts.Viewport = &vp
	}

	ctrl, err := sim.NewController(opts)
	if err != nil {
		slog.Error("failed to start simulation", "error", err)
		os.Exit(1)
	}
	defer ctrl.Close()

	if err := ctrl.WaitReady(30 * time.Second); err != nil {
		slog.Error("workers never became ready", "error", err)
		os.Exit(1)
	}

	ctrl.SeedPopulation()
	ctrl.Start()

	slog.Info("simulation running",
		"seed", rngSeed,
		"stats_window_sec", statsWindowSec,
		"max_ticks", *maxTicks,
		"follow", *follow,
	)

	collector := telemetry.NewCollector(statsWindowSec, cfg.Derived.DT32)

	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, os.Interrupt, syscall.SIGTERM)

	poll := time.NewTicker(250 * time.Millisecond)
	defer poll.Stop()

	// Roam direction, reflected off world edges.
	followVX := float32(followSpeed)
	followVY := float32(followSpeed) * 0.6

	var lastConsumed, lastSpawned uint64
	for {
		select {
		case <-sigC:
			slog.Info("shutting down")
			return

		case n, ok := <-ctrl.Notifications():
			if !ok {
				return
			}
			switch n.Kind {
			case sim.Reproduced:
				collector.RecordBirth()
			case sim.Died:
				collector.RecordDeath(n.Cause)
			}

		case <-poll.C:
			if cam != nil {
				prevX, prevY := cam.X, cam.Y
				cam.Pan(followVX*0.25, followVY*0.25)
				if cam.X == prevX {
					followVX = -followVX
				}
				if cam.Y == prevY {
					followVY = -followVY
				}
				ctrl.SetViewport(cam.Bounds())
			}

			st := ctrl.Stats()

			collector.RecordFoodConsumed(int(st.FoodConsumed - lastConsumed))
			collector.RecordFoodSpawned(int(st.FoodSpawned - lastSpawned))
			lastConsumed = st.FoodConsumed
			lastSpawned = st.FoodSpawned

			if collector.ShouldFlush(st.Tick) {
				ws := collector.Flush(st.Tick, ctrl.TelemetrySnapshot())
				perf := ctrl.Perf()
				if *logStats {
					ws.LogStats()
					perf.LogStats()
				}
				if err := out.WriteTelemetry(ws); err != nil {
					slog.Error("telemetry write failed", "error", err)
				}
				if err := out.WritePerf(perf, st.Tick); err != nil {
					slog.Error("perf write failed", "error", err)
				}
			}

			if *maxTicks > 0 && st.Tick >= *maxTicks {
				slog.Info("max ticks reached", "tick", st.Tick)
				return
			}
		}
	}
}
