package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"

	"github.com/fieldtrack/fieldtrack/pkg"
	"github.com/fieldtrack/fieldtrack/pkg/engine"
	"github.com/fieldtrack/fieldtrack/pkg/logx"
	"github.com/fieldtrack/fieldtrack/pkg/metrics"
	"github.com/fieldtrack/fieldtrack/pkg/mqtt"
	"github.com/fieldtrack/fieldtrack/pkg/nmea"
	"github.com/fieldtrack/fieldtrack/pkg/store"
	"github.com/fieldtrack/fieldtrack/pkg/telem"
)

const (
	version = "1.0.0-dev"
	appName = "fieldtrackd"
)

// daemonConfig is the host-side configuration. The engine's own knobs live
// under Engine; everything else wires the engine to the outside world.
type daemonConfig struct {
	Subject            string        `json:"subject"`
	Source             string        `json:"source"`
	BatteryPath        string        `json:"battery_path"`
	DatabasePath       string        `json:"database_path"`
	MetricsPort        int           `json:"metrics_port"`
	TickSeconds        int           `json:"tick_seconds"`
	BatteryPollSeconds int           `json:"battery_poll_seconds"`
	StatusSeconds      int           `json:"status_seconds"`
	CheckpointSeconds  int           `json:"checkpoint_seconds"`
	Engine             engine.Config `json:"engine"`
	MQTT               *mqtt.Config  `json:"mqtt"`
	Telemetry          telem.Config  `json:"telemetry"`
}

func defaultDaemonConfig() daemonConfig {
	return daemonConfig{
		Subject:            "default",
		Source:             "/dev/gps0",
		BatteryPath:        "/sys/class/power_supply/battery/capacity",
		DatabasePath:       "/var/lib/fieldtrack/fieldtrack.db",
		MetricsPort:        9101,
		TickSeconds:        1,
		BatteryPollSeconds: 5,
		StatusSeconds:      30,
		CheckpointSeconds:  60,
		Engine:             engine.DefaultConfig(),
		MQTT:               mqtt.DefaultConfig(),
		Telemetry:          telem.DefaultConfig(),
	}
}

func loadConfig(path string, logger *logx.Logger) daemonConfig {
	config := defaultDaemonConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("config file not readable, using defaults", "path", path, "error", err)
		return config
	}
	if err := json.Unmarshal(data, &config); err != nil {
		logger.Error("failed to parse config, using defaults", "path", path, "error", err)
		return defaultDaemonConfig()
	}
	return config
}

func main() {
	var (
		configFile  = flag.String("config", "/etc/fieldtrack/fieldtrackd.json", "JSON config file path")
		logLevel    = flag.String("log-level", "info", "Log level (debug|info|warn|error)")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s version %s\n", appName, version)
		os.Exit(0)
	}

	logger := logx.New(*logLevel)
	logger.Info("starting fieldtrack daemon",
		"version", version,
		"config", *configFile,
		"log_level", *logLevel,
	)

	config := loadConfig(*configFile, logger)

	db, err := store.Open(config.DatabasePath)
	if err != nil {
		logger.Error("failed to open database", "path", config.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	eng := engine.New(config.Engine)
	logger = logger.With("session_id", eng.SessionID(), "subject", config.Subject)

	totalIdle, outsideIdle, err := db.LoadIdleCounters(config.Subject)
	if err != nil {
		logger.Error("failed to restore idle counters", "error", err)
		os.Exit(1)
	}
	eng.RestoreIdleTotals(totalIdle, outsideIdle)
	logger.Info("idle counters restored",
		"total_idle", totalIdle.String(),
		"outside_visit_idle", outsideIdle.String(),
	)

	telemStore := telem.NewStore(config.Telemetry)
	publisher := mqtt.NewClient(config.MQTT, logger)
	if err := publisher.Connect(); err != nil {
		logger.Warn("mqtt connect failed, continuing without broker", "error", err)
	}
	defer publisher.Disconnect()

	eng.Subscribe(func(tr engine.Transition) {
		telemStore.AddTransition(tr)
		if err := publisher.PublishTransition(tr); err != nil {
			logger.Debug("transition publish failed", "type", string(tr.Type), "error", err)
		}
	})

	metricsServer := metrics.NewServer(eng, telemStore, logger)
	if config.MetricsPort > 0 {
		if err := metricsServer.Start(config.MetricsPort); err != nil {
			logger.Error("failed to start metrics server", "port", config.MetricsPort, "error", err)
			os.Exit(1)
		}
		defer metricsServer.Stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fixCh := make(chan pkg.Fix, 16)
	errCh := make(chan error, 16)
	downCh := make(chan error, 1)
	visitCh := make(chan string, 4)

	sup := newSourceSupervisor(func() error {
		return startReader(ctx, config.Source, fixCh, errCh, downCh, logger)
	}, eng, metricsServer, logger)
	sup.ensure(time.Now())

	if publisher.IsConnected() {
		err := publisher.Subscribe(publisher.VisitTopic(), func(_ MQTT.Client, msg MQTT.Message) {
			select {
			case visitCh <- strings.TrimSpace(string(msg.Payload())):
			default:
			}
		})
		if err != nil {
			logger.Warn("visit topic subscription failed", "error", err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	tick := time.NewTicker(time.Duration(config.TickSeconds) * time.Second)
	defer tick.Stop()
	batteryPoll := time.NewTicker(time.Duration(config.BatteryPollSeconds) * time.Second)
	defer batteryPoll.Stop()
	status := time.NewTicker(time.Duration(config.StatusSeconds) * time.Second)
	defer status.Stop()
	checkpoint := time.NewTicker(time.Duration(config.CheckpointSeconds) * time.Second)
	defer checkpoint.Stop()

	if level, err := readBatteryLevel(config.BatteryPath); err == nil {
		eng.OnBatteryLevelChanged(level, time.Now())
	}

	logger.Info("fieldtrack daemon started")

	running := true
	for running {
		select {
		case fix := <-fixCh:
			now := time.Now()
			ev := eng.Ingest(fix, now)
			telemStore.AddUpdate(ev)
			metricsServer.RecordUpdate(ev)
			if err := db.AppendUpdate(config.Subject, ev); err != nil {
				logger.Warn("journal write failed", "error", err)
			}
			if err := publisher.PublishUpdate(ev); err != nil {
				logger.Debug("update publish failed", "kind", string(ev.Kind), "error", err)
			}
			if ev.Kind == engine.RealUpdate {
				logger.Debug("real update",
					"forced", ev.Forced,
					"step_m", ev.StepDisplacementM,
					"class", string(ev.Class),
					"interval", ev.Interval.String(),
				)
			}

		case err := <-errCh:
			now := time.Now()
			logger.Warn("fix source error", "error", err)
			eng.RecordProviderError(now)
			metricsServer.RecordProviderError()

		case err := <-downCh:
			now := time.Now()
			logger.Warn("fix source lost", "error", err)
			sup.markDown()
			eng.RecordProviderError(now)
			metricsServer.RecordProviderError()

		case visitID := <-visitCh:
			eng.SetVisitID(visitID, time.Now())
			logger.Info("visit signal applied", "visit_id", visitID, "outside", visitID == "")

		case <-tick.C:
			now := time.Now()
			eng.Tick(now)
			eng.RecomputePower(now)
			sup.ensure(now)
			if eng.StopRecommended() {
				logger.Error("recovery attempts exhausted, stopping session")
				running = false
			}

		case <-batteryPoll.C:
			if level, err := readBatteryLevel(config.BatteryPath); err == nil {
				eng.OnBatteryLevelChanged(level, time.Now())
			}

		case <-status.C:
			state := eng.Snapshot()
			metricsServer.UpdateMetrics()
			if err := publisher.PublishStatus(state); err != nil {
				logger.Debug("status publish failed", "error", err)
			}
			telemStore.Cleanup(time.Now())

		case <-checkpoint.C:
			now := time.Now()
			if err := db.SaveIdleCounters(config.Subject, eng.IdleSnapshot(), now); err != nil {
				logger.Warn("idle checkpoint failed", "error", err)
			}

		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig.String())
			running = false

		case <-ctx.Done():
			running = false
		}
	}

	now := time.Now()
	final := eng.Close(now)
	if err := db.SaveIdleCounters(config.Subject, final, now); err != nil {
		logger.Error("final idle checkpoint failed", "error", err)
	}
	logger.Info("fieldtrack daemon stopped",
		"total_idle", final.TotalIdle.String(),
		"outside_visit_idle", final.OutsideVisitIdle.String(),
	)
}

// sourceSupervisor keeps the fix source open. A down source is retried on
// every heartbeat; open failures count as provider errors so a persistent
// outage walks the recovery policy through to the fatal stop signal.
type sourceSupervisor struct {
	open    func() error
	eng     *engine.Engine
	metrics *metrics.Server
	logger  *logx.Logger
	up      bool
}

func newSourceSupervisor(open func() error, eng *engine.Engine, m *metrics.Server, logger *logx.Logger) *sourceSupervisor {
	return &sourceSupervisor{open: open, eng: eng, metrics: m, logger: logger}
}

// markDown records that the reader goroutine exited.
func (s *sourceSupervisor) markDown() {
	s.up = false
}

// ensure reopens the source when it is down. A due recovery attempt reports
// its outcome to the recovery policy; ordinary reopen failures are recorded
// as provider errors, which is what arms recovery in the first place.
func (s *sourceSupervisor) ensure(now time.Time) {
	if s.eng.RecoveryDue(now) {
		// A source that came back between scheduling and the deadline
		// resolves the pending recovery; opening again would double up
		// the reader.
		if !s.up {
			s.up = s.open() == nil
		}
		s.eng.RecordRecoveryResult(s.up, now)
		s.metrics.RecordRecovery(s.up)
		s.logger.Info("provider recovery attempted", "ok", s.up)
		return
	}
	if s.up {
		return
	}
	if err := s.open(); err != nil {
		s.eng.RecordProviderError(now)
		s.metrics.RecordProviderError()
		s.logger.Debug("fix source reopen failed", "error", err)
		return
	}
	s.up = true
	s.logger.Info("fix source up")
}

// startReader opens the NMEA source and scans it on a goroutine. Open
// failures are returned synchronously so the supervisor has a direct
// outcome; parse errors are reported through errCh, and when the scan ends
// the exit reason goes to downCh and the goroutine returns, leaving restart
// to the supervisor.
func startReader(ctx context.Context, source string, fixCh chan<- pkg.Fix, errCh, downCh chan<- error, logger *logx.Logger) error {
	var f *os.File
	if source == "-" {
		f = os.Stdin
	} else {
		var err error
		f, err = os.Open(source)
		if err != nil {
			return fmt.Errorf("failed to open fix source: %w", err)
		}
	}

	go func() {
		defer f.Close()
		adapter := nmea.New()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			if ctx.Err() != nil {
				return
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			fix, complete, err := adapter.Parse(line, time.Now())
			if err != nil {
				select {
				case errCh <- err:
				case <-ctx.Done():
					return
				}
				continue
			}
			if !complete {
				continue
			}
			select {
			case fixCh <- fix:
			case <-ctx.Done():
				return
			}
		}
		err := scanner.Err()
		if err == nil {
			err = fmt.Errorf("fix source %s closed", source)
		}
		select {
		case downCh <- err:
		case <-ctx.Done():
		}
	}()

	logger.Debug("fix source opened", "source", source)
	return nil
}

// readBatteryLevel reads a sysfs-style capacity file holding 0-100 and
// normalizes it to [0,1].
func readBatteryLevel(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read battery level: %w", err)
	}
	percent, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse battery level: %w", err)
	}
	return percent / 100.0, nil
}
