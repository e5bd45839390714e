package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Adrian-Rod-Mol/arducam-apps/cmd"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/api"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/api/models"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/camera"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/config"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/control"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/devices"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/events"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/journal"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/led"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/logging"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/metrics/collectors"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/presets"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/provision"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/session"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/sink"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/systemd"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Capture settings
	Device         string `help:"V4L2 device path or stable device ID" short:"d" default:"/dev/video0" toml:"capture.device" env:"CAPTURE_DEVICE"`
	Simulate       bool   `help:"Use the synthetic sensor instead of hardware" default:"false" toml:"capture.simulate" env:"CAPTURE_SIMULATE"`
	Resolution     string `help:"Resolution preset (LOW, MEDIUM, HIGH)" default:"MEDIUM" toml:"capture.resolution" env:"CAPTURE_RESOLUTION"`
	ShutterUS      int64  `help:"Initial sensor exposure in microseconds" default:"1000" toml:"capture.shutter_us" env:"CAPTURE_SHUTTER_US"`
	Output         string `help:"Frame output: tcp:// address, directory, or empty to discard" default:"tcp://10.42.0.1:32233" toml:"capture.output" env:"CAPTURE_OUTPUT"`
	Workers        int    `help:"De-interleave worker count" default:"4" toml:"capture.workers" env:"CAPTURE_WORKERS"`
	TimeoutMs      int    `help:"Stop after this many milliseconds, 0 runs forever" short:"t" default:"0" toml:"capture.timeout_ms" env:"CAPTURE_TIMEOUT_MS"`
	FrameTimeoutMs int    `help:"Per-frame device timeout before a streaming restart" default:"1000" toml:"capture.frame_timeout_ms" env:"CAPTURE_FRAME_TIMEOUT_MS"`
	PresetsFile    string `help:"Resolution presets file, hot-reloaded on change" default:"" toml:"capture.presets_file" env:"CAPTURE_PRESETS_FILE"`

	// Control channel settings
	MessageAddr string `help:"Operator control channel address" default:"tcp://10.42.0.1:32211" toml:"control.message_addr" env:"CONTROL_MESSAGE_ADDR"`
	Standalone  bool   `help:"Run without a control channel: capture starts immediately" default:"false" toml:"control.standalone" env:"CONTROL_STANDALONE"`

	// Provisioning settings
	Provision     bool   `help:"Fetch the resolution preset from the operator before capture" default:"false" toml:"provision.enabled" env:"PROVISION_ENABLED"`
	ProvisionAddr string `help:"Provisioning server address" default:"tcp://10.42.0.1:32121" toml:"provision.addr" env:"PROVISION_ADDR"`

	// Node settings
	JournalPath string `help:"Capture journal database path" default:"capture.db" toml:"node.journal_path" env:"NODE_JOURNAL_PATH"`
	LockPath    string `help:"Single-instance lock file" default:"/tmp/arducam-node.lock" toml:"node.lock_path" env:"NODE_LOCK_PATH"`

	// Server settings
	Port string `help:"Diagnostics API port" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Features settings
	LEDControl bool `help:"Drive the board activity LED from session state" default:"true" toml:"features.led_control_enabled" env:"FEATURES_LED_CONTROL"`

	// Logging settings
	LoggingLevel     string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat    string `help:"Logging format (text, json, journald)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingCamera    string `help:"Camera logging level" default:"info" toml:"logging.camera" env:"LOGGING_CAMERA"`
	LoggingCapture   string `help:"Capture pipeline logging level" default:"info" toml:"logging.capture" env:"LOGGING_CAPTURE"`
	LoggingControl   string `help:"Control channel logging level" default:"info" toml:"logging.control" env:"LOGGING_CONTROL"`
	LoggingSession   string `help:"Session logging level" default:"info" toml:"logging.session" env:"LOGGING_SESSION"`
	LoggingSink      string `help:"Sink logging level" default:"info" toml:"logging.sink" env:"LOGGING_SINK"`
	LoggingProvision string `help:"Provisioning logging level" default:"info" toml:"logging.provision" env:"LOGGING_PROVISION"`
	LoggingAPI       string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingDevices   string `help:"Devices logging level" default:"info" toml:"logging.devices" env:"LOGGING_DEVICES"`
}

func main() {
	// Create Huma CLI
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, nil); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		// Initialize logging system
		loggingConfig := logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"camera":    opts.LoggingCamera,
				"capture":   opts.LoggingCapture,
				"control":   opts.LoggingControl,
				"session":   opts.LoggingSession,
				"sink":      opts.LoggingSink,
				"provision": opts.LoggingProvision,
				"api":       opts.LoggingAPI,
				"devices":   opts.LoggingDevices,
			},
		}
		logging.Initialize(loggingConfig)

		logger := logging.GetLogger("main")

		// One capture process per device. A second instance would fight
		// over the sensor and the operator channels.
		instanceLock := flock.New(opts.LockPath)
		locked, lockErr := instanceLock.TryLock()
		if lockErr != nil {
			logger.Error("Failed to acquire instance lock", "path", opts.LockPath, "error", lockErr)
			os.Exit(1)
		}
		if !locked {
			logger.Error("Another instance is already running", "lock", opts.LockPath)
			os.Exit(1)
		}

		// Open the capture journal; spans left recording by a crash fold
		// into the aborted state here.
		journalStore, err := journal.Open(opts.JournalPath)
		if err != nil {
			logger.Error("Failed to open capture journal", "path", opts.JournalPath, "error", err)
			os.Exit(1)
		}

		// Create event bus for in-process event handling
		eventBus := events.New()

		// Resolution presets: built-in table unless a presets file is
		// given, in which case the file is watched and hot-swapped.
		baseTable := presets.Builtin()
		if opts.PresetsFile != "" {
			loaded, loadErr := presets.Load(opts.PresetsFile)
			if loadErr != nil {
				logger.Error("Failed to load presets file", "path", opts.PresetsFile, "error", loadErr)
				os.Exit(1)
			}
			baseTable = loaded
		}
		livePresets := presets.NewLive(baseTable)

		var presetWatcher *config.Watcher[*presets.Table]
		if opts.PresetsFile != "" {
			presetWatcher = config.NewConfigWatcher(
				opts.PresetsFile,
				presets.Load,
				logger,
				config.WithDebounce[*presets.Table](1500*time.Millisecond),
			)
			presetWatcher.OnReload(func(table *presets.Table) {
				livePresets.Swap(table)
				logger.Info("Reloaded resolution presets", "path", opts.PresetsFile, "presets", table.Names())
			})
		}

		if !livePresets.Has(opts.Resolution) {
			logger.Error("Unknown resolution preset", "preset", opts.Resolution)
			os.Exit(1)
		}

		// The gate holds the requested capture state; the control
		// channel and the capture loop meet here.
		gate := control.NewGate(opts.Resolution, opts.ShutterUS)

		// Initialize LED control if enabled
		var ledManager *led.Manager
		if opts.LEDControl {
			ledController := led.New(logger)
			ledManager = led.NewManager(ledController, eventBus, logging.GetLogger("led"))
		}

		runCtx, cancelRun := context.WithCancel(context.Background())

		var server *api.Server
		var sess *session.Session

		hooks.OnStart(func() {
			defer journalStore.Close()
			defer func() { _ = instanceLock.Unlock() }()

			if presetWatcher != nil {
				if startErr := presetWatcher.Start(); startErr != nil {
					logger.Warn("Failed to watch presets file, hot-reload disabled", "error", startErr)
				}
			}

			if ledManager != nil {
				ledManager.Start()
			}

			go systemd.RunWatchdog(runCtx, logger)

			thermalCollector := collectors.NewThermalCollector()
			_ = thermalCollector.Start(runCtx)

			// Surface camera hotplug on the event bus. The synthetic
			// sensor has no device node to watch.
			if !opts.Simulate {
				deviceWatcher := devices.NewWatcher(eventBus, logging.GetLogger("devices"))
				go func() {
					if watchErr := deviceWatcher.Run(runCtx); watchErr != nil {
						logger.Warn("Device watcher stopped", "error", watchErr)
					}
				}()
			}

			// Ask the operator which preset to run. The configured
			// preset stays in effect when provisioning fails.
			if opts.Provision {
				prov, provErr := provision.New(provision.Options{Addr: opts.ProvisionAddr})
				if provErr != nil {
					logger.Error("Invalid provisioning address", "addr", opts.ProvisionAddr, "error", provErr)
					os.Exit(1)
				}
				name, provErr := prov.Run(runCtx)
				switch {
				case provErr != nil:
					logger.Warn("Provisioning failed, keeping configured preset",
						"preset", opts.Resolution, "error", provErr)
				case !livePresets.Has(name):
					logger.Warn("Provisioned preset unknown, keeping configured preset",
						"provisioned", name, "preset", opts.Resolution)
				default:
					gate.RequestPreset(name)
					eventBus.Publish(events.PresetChangedEvent{
						Preset:    name,
						Source:    "provision",
						Timestamp: time.Now().UTC().Format(time.RFC3339),
					})
					logger.Info("Provisioned resolution preset", "preset", name)
				}
			}

			// Resolve the capture device and open the camera.
			devicePath := camera.SimulatorPath
			if !opts.Simulate {
				devicePath, err = devices.ResolvePath(opts.Device)
				if err != nil {
					logger.Error("Failed to resolve capture device", "device", opts.Device, "error", err)
					os.Exit(1)
				}
			}
			cam, camErr := camera.Open(devicePath)
			if camErr != nil {
				logger.Error("Failed to open camera", "device", devicePath, "error", camErr)
				os.Exit(1)
			}

			// Dial the image channel before capture so a dead receiver
			// fails startup instead of the first frame.
			frameSink, sinkErr := sink.ForTarget(runCtx, opts.Output)
			if sinkErr != nil {
				logger.Error("Failed to open frame output", "output", opts.Output, "error", sinkErr)
				os.Exit(1)
			}

			controlAddr := opts.MessageAddr
			if opts.Standalone {
				controlAddr = ""
			}

			sess, err = session.New(session.Options{
				Gate:         gate,
				Presets:      livePresets,
				Camera:       cam,
				Sink:         frameSink,
				Journal:      journalStore,
				Bus:          eventBus,
				ControlAddr:  controlAddr,
				DevicePath:   devicePath,
				Workers:      opts.Workers,
				FrameTimeout: time.Duration(opts.FrameTimeoutMs) * time.Millisecond,
				RunTimeout:   time.Duration(opts.TimeoutMs) * time.Millisecond,
			})
			if err != nil {
				logger.Error("Failed to create capture session", "error", err)
				os.Exit(1)
			}

			server = api.NewServer(&api.Options{
				AuthUsername: opts.AuthUsername,
				AuthPassword: opts.AuthPassword,
				Status: func() models.StatusData {
					st := sess.Status()
					return models.StatusData{
						SessionID:  st.SessionID,
						State:      st.State,
						Preset:     st.Preset,
						ExposureUS: st.ExposureUS,
						StartedAt:  st.StartedAt,
						Spans:      st.Spans,
						Standalone: st.Standalone,
						Pipeline:   st.Pipeline,
					}
				},
				Presets:           livePresets,
				Journal:           journalStore,
				Bus:               eventBus,
				PrometheusHandler: promhttp.Handler(),
			})

			go func() {
				if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
					logger.Error("Diagnostics API failed", "error", startErr)
				}
			}()

			systemd.NotifyReady(logger)

			logger.Info("Starting capture session",
				"session_id", sess.ID(),
				"device", devicePath,
				"preset", gate.State().Preset,
				"output", opts.Output,
				"standalone", controlAddr == "")

			if runErr := sess.Run(runCtx); runErr != nil {
				logger.Error("Capture session failed", "error", runErr)
				journalStore.Close()
				os.Exit(1)
			}
			logger.Info("Capture session finished")
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			systemd.NotifyStopping(logger)

			// Close the gate first so the capture loop drains in-flight
			// frames before anything is torn down under it.
			gate.Shutdown()
			cancelRun()

			if server != nil {
				if stopErr := server.Stop(); stopErr != nil {
					logger.Error("Error stopping diagnostics API", "error", stopErr)
				}
			}

			if ledManager != nil {
				ledManager.Stop()
			}

			if presetWatcher != nil {
				_ = presetWatcher.Stop()
			}
		})
	})

	// Add maintenance commands
	cli.Root().AddCommand(cmd.CreateDevicesCmd())
	cli.Root().AddCommand(cmd.CreatePresetsCmd())
	cli.Root().AddCommand(cmd.CreateSessionsCmd())
	cli.Root().AddCommand(cmd.CreateUpdateCmd())

	// Run the CLI
	cli.Run()
}
