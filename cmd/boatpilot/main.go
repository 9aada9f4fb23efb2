package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"boatpilot/pkg/config"
	"boatpilot/pkg/logging"
	"boatpilot/pkg/navigation"
	"boatpilot/pkg/probe"
	"boatpilot/pkg/safety"
	"boatpilot/pkg/version"
)

const defaultConfigPath = "configs/boatpilot.yaml"

var (
	configPath     = flag.String("config", defaultConfigPath, "Path to the YAML config file")
	initConfig     = flag.Bool("init-config", false, "Generate default config file and exit")
	waypointFlag   = flag.String("waypoint", "", "Navigate to lat,lon[,speed[,radius]] on startup")
	courseFlag     = flag.String("course", "", "Steer heading,speed[,duration] on startup")
	holdFlag       = flag.String("hold", "", "Hold the current position within this drift (e.g. 5m)")
	statusInterval = flag.Duration("status-interval", 10*time.Second, "How often to log navigation and safety status")
	skipPreflight  = flag.Bool("skip-preflight", false, "Start even when critical preflight checks fail")
)

func main() {
	flag.Parse()

	if *initConfig {
		if err := config.GenerateDefault(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Config file generated: %s\n", *configPath)
		return
	}

	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: failed to read .env: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, path string) error {
	appCfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&appCfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("Boatpilot Started", "version", version.String(), "config", path)

	mission, err := parseMission(*waypointFlag, *courseFlag, *holdFlag, &appCfg.Navigation)
	if err != nil {
		return err
	}

	sys, err := build(ctx, appCfg)
	if err != nil {
		return err
	}
	defer sys.Close()

	probes := []probe.Probe{
		probe.GPSProbe(sys.Position, 4),
		probe.HeadingProbe(sys.Heading),
		probe.ActuatorProbe(sys.Actuator),
		probe.SystemProbe(sys.Sampler),
	}
	if err := probe.AnalyzeResults(probe.Run(ctx, probes, probe.DefaultTimeout)); err != nil {
		if !*skipPreflight {
			return fmt.Errorf("preflight failed: %w", err)
		}
		slog.Warn("Preflight: Critical checks failed, continuing", "error", err)
	}

	sys.Monitor.StartMonitoring(ctx)
	defer sys.Monitor.StopMonitoring()

	if mission != nil {
		sys.Monitor.UpdateCommandTime()
		if err := mission.Start(ctx, sys.Controller); err != nil {
			slog.Error("Mission: Failed to start", "mission", mission, "kind", navigation.KindOf(err), "error", err)
		} else {
			slog.Info("Mission: Started", "mission", mission)
		}
	}

	reportLoop(ctx, sys, *statusInterval)

	slog.Info("Boatpilot: Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	sys.Controller.StopCurrentNavigation(shutdownCtx)
	if last := logging.LastEvent.Last(); last != "" {
		slog.Info("Boatpilot: Last safety event", "event", last)
	}
	return nil
}

// reportLoop logs a status line every interval until ctx is done.
func reportLoop(ctx context.Context, sys *system, interval time.Duration) {
	if interval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logStatus(sys.Controller.Status(), sys.Monitor.Status())
		}
	}
}

func logStatus(nav navigation.Status, rep safety.Report) {
	args := []any{"mode", nav.Mode, "running", nav.Running, "emergency", rep.EmergencyStop}
	if nav.Position != nil {
		args = append(args, "lat", nav.Position.Latitude, "lon", nav.Position.Longitude)
	}
	if nav.Heading != nil {
		args = append(args, "heading", *nav.Heading)
	}
	if w := nav.Waypoint; w != nil && w.Distance != nil {
		args = append(args, "distance", *w.Distance)
	}
	if h := nav.Hold; h != nil && h.Drift != nil {
		args = append(args, "drift", *h.Drift)
	}
	args = append(args, "geofence_violations", rep.Counters.Geofence, "gps_timeouts", rep.Counters.GPSTimeout)
	slog.Info("Status: Tick", args...)
}
