// xoss-sync CLI
//
// A host-side utility for synchronising with XOSS-family wearable
// bicycle computers over Bluetooth Low Energy: read/write/delete files,
// set the device clock, check storage and A-GNSS status, and run a
// full sync pass, plus an optional REST/WebSocket daemon mode.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/dcnick3/xoss-sync/pkg/api/rest"
	"github.com/dcnick3/xoss-sync/pkg/api/ws"
	"github.com/dcnick3/xoss-sync/pkg/config"
	"github.com/dcnick3/xoss-sync/pkg/core"
	"github.com/dcnick3/xoss-sync/pkg/logger"
	"github.com/dcnick3/xoss-sync/pkg/xoss/ble"
	"github.com/dcnick3/xoss-sync/pkg/xoss/device"
	"github.com/dcnick3/xoss-sync/pkg/xoss/history"
	"github.com/dcnick3/xoss-sync/pkg/xoss/model"
	"github.com/dcnick3/xoss-sync/pkg/xoss/telemetry"
	"github.com/spf13/cobra"
)

var (
	version   = "1.0.0"
	buildTime = "dev"
	gitCommit = "unknown"
)

var (
	cfgFile    string
	verbose    bool
	jsonOutput bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "xoss-sync",
		Short:   "xoss-sync - sync files and settings with an XOSS bike computer over BLE",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildTime),
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./xoss-sync.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(
		newInfoCmd(),
		newPullCmd(),
		newPushCmd(),
		newDeleteCmd(),
		newSetTimeCmd(),
		newMemoryCmd(),
		newMGAStatusCmd(),
		newSyncCmd(),
		newServeCmd(),
		newVersionCmd(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads the configuration, applying the --verbose/--json
// overrides the same way the teacher's runStart did.
func loadConfig() (*core.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if jsonOutput {
		cfg.Logging.Format = "json"
	}
	return cfg, nil
}

// session bundles an open device together with the ambient
// collaborators (history store, telemetry publisher) that were wired
// to it, so callers can clean everything up symmetrically.
type session struct {
	dev     *device.Device
	history *history.Store
	telem   *telemetry.Publisher
}

func (s *session) Close() {
	if s.dev != nil {
		_ = s.dev.Close()
	}
	if s.telem != nil {
		_ = s.telem.Close()
	}
	if s.history != nil {
		_ = s.history.Close()
	}
}

// openSession loads the config, connects to the configured device, and
// wires up history/telemetry/logging exactly as a long-running daemon
// would, for every one-shot subcommand to share. progress is optional
// and is only supplied by the serve command, which has a WebSocket
// broadcaster ready before the device needs to be opened.
func openSession(ctx context.Context, progress device.ProgressReporter) (*session, *core.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	sess, err := openDeviceSession(ctx, cfg, progress)
	if err != nil {
		return nil, nil, err
	}
	return sess, cfg, nil
}

// openDeviceSession is openSession's config-already-loaded half. The
// serve command uses it directly so it can construct its WebSocket
// broadcaster from cfg and hand it in as progress before the device is
// ever opened, since device.Options.Progress is only consulted once at
// Open() time.
func openDeviceSession(ctx context.Context, cfg *core.Config, progress device.ProgressReporter) (*session, error) {
	appLog := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
		File:   cfg.Logging.File,
	})
	logger.SetGlobal(appLog)
	log := appLog.Logger

	var err error
	var hist *history.Store
	if cfg.History.Enabled {
		hist, err = history.Open(cfg.History.Path, appLog.Component("history"))
		if err != nil {
			return nil, fmt.Errorf("opening history store: %w", err)
		}
	}

	var telem *telemetry.Publisher
	if cfg.MQTT.Enabled {
		telem, err = telemetry.Connect(telemetry.Config{
			Broker:         cfg.MQTT.Broker,
			ClientID:       cfg.MQTT.ClientID,
			Username:       cfg.MQTT.Username,
			Password:       cfg.MQTT.Password,
			ConnectTimeout: cfg.MQTT.ConnectTimeout,
			QOS:            cfg.MQTT.QOS,
		})
		if err != nil {
			log.Warn("could not connect telemetry publisher, continuing without it", "error", err)
		}
	}

	peripheral, err := ble.Connect(ctx, bluetooth.DefaultAdapter, ble.Config{
		Name:        cfg.Device.Name,
		Address:     cfg.Device.Address,
		ScanTimeout: cfg.Device.ScanTimeout,
	}, appLog.Component("ble"))
	if err != nil {
		return nil, fmt.Errorf("connecting to device: %w", err)
	}

	dev, err := device.Open(ctx, peripheral, device.Options{
		History:   historyOrNil(hist),
		Telemetry: telemetryOrNil(telem),
		Progress:  progress,
		Log:       appLog.Component("device"),
	})
	if err != nil {
		_ = peripheral.Disconnect()
		return nil, fmt.Errorf("opening device session: %w", err)
	}

	return &session{dev: dev, history: hist, telem: telem}, nil
}

// historyOrNil/telemetryOrNil convert a possibly-nil concrete pointer
// into a possibly-nil interface value, avoiding the classic Go trap
// where a nil *history.Store boxed into device.HistoryStore is a
// non-nil interface.
func historyOrNil(h *history.Store) device.HistoryStore {
	if h == nil {
		return nil
	}
	return h
}

func telemetryOrNil(t *telemetry.Publisher) device.Publisher {
	if t == nil {
		return nil
	}
	return t
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show device information, battery, memory, and A-GNSS status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, _, err := openSession(ctx, nil)
			if err != nil {
				return err
			}
			defer sess.Close()

			return runInfo(ctx, sess.dev)
		},
	}
}

func runInfo(ctx context.Context, dev *device.Device) error {
	info := dev.Info()
	fmt.Printf("Firmware Revision:  %s\n", info.Firmware)
	fmt.Printf("Manufacturer Name:  %s\n", info.Manufacturer)
	fmt.Printf("Model Number:       %s\n", info.Model)
	fmt.Printf("Hardware Revision:  %s\n", info.Hardware)
	fmt.Printf("Serial Number:      %s\n", info.Serial)
	fmt.Printf("Battery Level:      %d%%\n", dev.Battery())

	capacity, err := dev.MemoryCapacity(ctx)
	if err != nil {
		return fmt.Errorf("reading memory capacity: %w", err)
	}
	fmt.Printf("Memory Capacity:    %d/%d KiB free\n", capacity.FreeKB, capacity.TotalKB)

	mga, err := dev.MGAStatus(ctx)
	if err != nil {
		return fmt.Errorf("reading A-GNSS status: %w", err)
	}
	if mga.State == device.MGAMissingData {
		fmt.Println("A-GNSS Status:      missing")
	} else {
		fmt.Printf("A-GNSS Status:      valid until %s\n", mga.ValidUntil.Format(time.RFC3339))
	}

	profile, err := device.ReadJSON[model.UserProfile](ctx, dev, "user_profile.json")
	if err != nil {
		fmt.Printf("User Profile:       (could not read: %v)\n", err)
		return nil
	}
	if profile.User != nil {
		fmt.Printf("User:               %s (%s, uid %d)\n", profile.User.UserName, profile.User.Platform, profile.User.UID)
	}

	return nil
}

func newPullCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "pull <device-filename>",
		Short: "Read a file from the device and save it locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deviceFilename := args[0]
			outputFilename := output
			if outputFilename == "" {
				outputFilename = filepath.Base(deviceFilename)
			}

			sess, _, err := openSession(ctx, nil)
			if err != nil {
				return err
			}
			defer sess.Close()

			data, err := sess.dev.ReadFile(ctx, deviceFilename)
			if err != nil {
				return fmt.Errorf("pulling %s from the device: %w", deviceFilename, err)
			}
			if err := os.WriteFile(outputFilename, data, 0o644); err != nil {
				return fmt.Errorf("writing %s to %s: %w", deviceFilename, outputFilename, err)
			}
			fmt.Printf("Pulled %s (%d bytes) to %s\n", deviceFilename, len(data), outputFilename)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "local path to write to (default: the device filename's basename)")
	return cmd
}

func newPushCmd() *cobra.Command {
	var deviceFilename string
	cmd := &cobra.Command{
		Use:   "push <local-file>",
		Short: "Write a local file to the device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			inputFilename := args[0]
			name := deviceFilename
			if name == "" {
				name = filepath.Base(inputFilename)
			}

			data, err := os.ReadFile(inputFilename)
			if err != nil {
				return fmt.Errorf("reading %s from the filesystem: %w", inputFilename, err)
			}

			sess, _, err := openSession(ctx, nil)
			if err != nil {
				return err
			}
			defer sess.Close()

			if err := sess.dev.WriteFile(ctx, name, data); err != nil {
				return fmt.Errorf("writing %s to the device: %w", name, err)
			}
			fmt.Printf("Pushed %s (%d bytes) as %s\n", inputFilename, len(data), name)
			return nil
		},
	}
	cmd.Flags().StringVarP(&deviceFilename, "name", "n", "", "name to store the file under on the device (default: the local file's basename)")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <device-filename>",
		Short: "Delete a file from the device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, _, err := openSession(ctx, nil)
			if err != nil {
				return err
			}
			defer sess.Close()

			if err := sess.dev.DeleteFile(ctx, args[0]); err != nil {
				return fmt.Errorf("deleting %s from the device: %w", args[0], err)
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		},
	}
}

func newSetTimeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-time",
		Short: "Set the device's clock to the host's current time",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, _, err := openSession(ctx, nil)
			if err != nil {
				return err
			}
			defer sess.Close()

			now := time.Now()
			if err := sess.dev.SetTime(ctx, now); err != nil {
				return fmt.Errorf("setting the device clock: %w", err)
			}
			fmt.Printf("Time set to %s\n", now.Format(time.RFC3339))
			return nil
		},
	}
}

func newMemoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "memory",
		Short: "Show the device's free and total storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, _, err := openSession(ctx, nil)
			if err != nil {
				return err
			}
			defer sess.Close()

			capacity, err := sess.dev.MemoryCapacity(ctx)
			if err != nil {
				return fmt.Errorf("reading memory capacity: %w", err)
			}
			fmt.Printf("%d/%d KiB free\n", capacity.FreeKB, capacity.TotalKB)
			return nil
		},
	}
}

func newMGAStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mga-status",
		Short: "Show the device's A-GNSS assistance-data validity",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, _, err := openSession(ctx, nil)
			if err != nil {
				return err
			}
			defer sess.Close()

			status, err := sess.dev.MGAStatus(ctx)
			if err != nil {
				return fmt.Errorf("reading A-GNSS status: %w", err)
			}
			if status.State == device.MGAMissingData {
				fmt.Println("missing")
			} else {
				fmt.Printf("valid until %s\n", status.ValidUntil.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Set the clock, push the user profile, and pull workouts",
		Long: `Sync runs the same sequence the companion app's quick-sync does:
set the device clock to the host's time, read back the user profile,
stamp the host's current UTC offset into it and write it back, then
pull every workout the device reports that the host doesn't have yet.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, _, err := openSession(ctx, nil)
			if err != nil {
				return err
			}
			defer sess.Close()

			return runSync(ctx, sess.dev)
		},
	}
}

func runSync(ctx context.Context, dev *device.Device) error {
	now := time.Now()
	if err := dev.SetTime(ctx, now); err != nil {
		return fmt.Errorf("setting the time: %w", err)
	}
	fmt.Println("Time set")

	profile, err := device.ReadJSON[model.UserProfile](ctx, dev, "user_profile.json")
	if err != nil {
		return fmt.Errorf("reading user profile: %w", err)
	}

	_, offsetSeconds := now.Zone()
	if profile.User == nil {
		profile.User = &model.User{Platform: "xoss-sync", UID: 1, UserName: "xoss-sync"}
	}
	profile.UserProfile.TimeZone = int64(offsetSeconds)

	if err := device.WriteJSON(ctx, dev, "user_profile.json", profile); err != nil {
		return fmt.Errorf("writing user profile: %w", err)
	}
	fmt.Println("User profile synced")

	if err := syncWorkouts(ctx, dev); err != nil {
		return fmt.Errorf("syncing workouts: %w", err)
	}

	return nil
}

// syncWorkouts mirrors the reference CLI's workout sync: read the
// workouts index, then pull every workout this host doesn't already
// have a local copy of into ./workouts.
func syncWorkouts(ctx context.Context, dev *device.Device) error {
	const workoutsDir = "workouts"
	if err := os.MkdirAll(workoutsDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", workoutsDir, err)
	}

	index, err := device.ReadJSON[model.Workouts](ctx, dev, "workouts.json")
	if err != nil {
		return fmt.Errorf("reading workouts index: %w", err)
	}

	for _, w := range index.Workouts {
		name := fmt.Sprintf("%d.fit", w.Name)
		path := filepath.Join(workoutsDir, name)
		if _, err := os.Stat(path); err == nil {
			continue
		}

		data, err := dev.ReadFile(ctx, name)
		if err != nil {
			return fmt.Errorf("pulling workout %s: %w", name, err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("writing workout %s: %w", path, err)
		}
		fmt.Printf("Pulled workout %s (%d bytes)\n", name, len(data))
	}

	return nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Open the device and run the REST/WebSocket API until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			// The WebSocket progress broadcaster, if enabled, must exist
			// before the device session opens: it is wired in as the
			// session's device.ProgressReporter, and that reporter is
			// only read once, at device.Open() time.
			var wsServer *ws.Server
			if cfg.WS.Enabled {
				wsServer = ws.NewServer(ws.ServerConfig{
					Port:            cfg.WS.Port,
					Path:            "/ws",
					PingInterval:    30 * time.Second,
					WriteTimeout:    10 * time.Second,
					ReadBufferSize:  1024,
					WriteBufferSize: 1024,
					AllowedOrigins:  []string{"*"},
				}, nil)
				if err := wsServer.Start(); err != nil {
					return fmt.Errorf("starting WebSocket server: %w", err)
				}
				defer wsServer.Stop(context.Background())
			}

			var progress device.ProgressReporter
			if wsServer != nil {
				progress = wsServer
			}

			sess, err := openDeviceSession(ctx, cfg, progress)
			if err != nil {
				return err
			}
			defer sess.Close()

			return runServe(ctx, sess.dev, cfg)
		},
	}
}

func runServe(ctx context.Context, dev *device.Device, cfg *core.Config) error {
	var apiServer *rest.Server
	if cfg.API.Enabled {
		apiServer = rest.NewServer(dev, rest.ServerConfig{Port: cfg.API.Port}, cfg.API.Auth, nil)
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer apiServer.Stop(context.Background())
	}

	fmt.Println("xoss-sync is running. Press Ctrl+C to stop.")
	<-ctx.Done()
	fmt.Println("Shutting down...")
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("xoss-sync %s\n", version)
			fmt.Printf("  Commit:  %s\n", gitCommit)
			fmt.Printf("  Built:   %s\n", buildTime)
		},
	}
}
