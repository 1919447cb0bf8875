package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/cjeanneret/canoncap/internal/config"
	"github.com/cjeanneret/canoncap/internal/debug"
	"github.com/cjeanneret/canoncap/internal/edsdk"
	"github.com/cjeanneret/canoncap/internal/hw/camera"
	"github.com/cjeanneret/canoncap/internal/hw/gpio"
	"github.com/cjeanneret/canoncap/internal/logic/capture"
	"github.com/cjeanneret/canoncap/internal/logic/trigger"
	"github.com/cjeanneret/canoncap/internal/web"
)

// cliOverrides holds flag values applied on top of the config file.
// Zero values (and Camera == -1) mean "use config".
type cliOverrides struct {
	Out      string
	Dir      string
	Camera   int
	Shots    int
	Interval time.Duration
	Timeout  time.Duration
	Mock     bool
}

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file (built-in defaults if absent)")
	var o cliOverrides
	flag.StringVar(&o.Out, "out", "", "output file name template, e.g. shot_{seq}{ext}")
	flag.StringVar(&o.Dir, "dir", "", "download directory")
	flag.IntVar(&o.Camera, "camera", -1, "EDSDK camera index")
	flag.IntVar(&o.Shots, "shots", 0, "number of shots per run")
	flag.DurationVar(&o.Interval, "interval", 0, "delay between shots")
	flag.DurationVar(&o.Timeout, "timeout", 0, "how long to wait for the camera to announce the image")
	flag.BoolVar(&o.Mock, "mock", false, "use the simulated camera and GPIO")
	button := flag.Bool("button", false, "run a capture on every press of trigger.button_pin")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, *cfgPath, o, webPort.port(), *button)
	cancel()
	if err != nil {
		report(os.Stdout, os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string, o cliOverrides, webPort int, button bool) error {
	// Load configuration
	if err := config.ValidateConfigPath(cfgPath); err != nil {
		return err
	}
	cfg, err := config.LoadOptional(cfgPath)
	if err != nil {
		return fmt.Errorf("load config failed: %w", err)
	}

	// Validate CLI overrides (only non-zero values are applied; zero means "use config default")
	if err := validateCLIOverrides(o); err != nil {
		return fmt.Errorf("invalid CLI override: %w", err)
	}
	applyOverrides(cfg, o)

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("Camera type", cfg.Camera.Type)
	debug.Value("Mock SDK", cfg.Defaults.MockSDK)
	debug.PrintStruct("Camera config", cfg.Camera)

	// GPIO only when something is wired to it
	var gpioDriver gpio.Driver
	if cfg.NeedsGPIO() {
		debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
		gpioDriver, err = gpio.NewDriver(cfg.Defaults.MockGPIO)
		if err != nil {
			return fmt.Errorf("init GPIO failed: %w", err)
		}
		defer func() {
			if err := gpioDriver.Close(); err != nil {
				log.Printf("closing GPIO driver failed: %v", err)
			}
		}()
	}

	switch {
	case webPort > 0:
		return serveWeb(ctx, cfg, gpioDriver, webPort)
	case button:
		return watchButton(ctx, cfg, gpioDriver)
	}

	// Run capture once with current config (already has CLI overrides applied)
	_, err = runSequence(ctx, cfg, gpioDriver, os.Stdout, nil)
	return err
}

// serveWeb exposes POST /run; each run opens its own camera session.
func serveWeb(ctx context.Context, cfg *config.Config, g gpio.Driver, port int) error {
	broadcaster := web.NewStatusBroadcaster()
	status := web.BroadcastWriter(broadcaster)
	debug.SetOutput(io.MultiWriter(os.Stdout, status))

	runCapture := func(ctx context.Context, overrides web.Overrides) ([]*camera.Shot, error) {
		runCfg := applyOverridesToCopy(cfg, overrides)
		return runSequence(ctx, runCfg, g, io.MultiWriter(os.Stdout, status), func(shot *camera.Shot, _, _ int) {
			broadcaster.BroadcastShot(shot)
		})
	}

	formDefaults := web.FormConfig{
		Shots:      cfg.Defaults.Shots,
		IntervalMs: cfg.Defaults.IntervalMs,
		Camera:     cfg.Camera.Type,
		SaveTo:     cfg.Camera.SaveTo,
		FileName:   cfg.Camera.FileName,
	}
	srv, err := web.NewServer(web.ServerConfig{
		Addr:        fmt.Sprintf(":%d", port),
		Broadcaster: broadcaster,
		RunCapture:  runCapture,
		Form:        formDefaults,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Remote trigger on http://localhost:%d (Ctrl+C to quit)\n", port)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("web server: %w", err)
	}
	return nil
}

// watchButton runs one sequence per press until ctx is cancelled.  Failed
// runs are reported and the button stays armed.
func watchButton(ctx context.Context, cfg *config.Config, g gpio.Driver) error {
	if cfg.Trigger.ButtonPin <= 0 || g == nil {
		return errors.New("-button requires trigger.button_pin in the config")
	}
	btn, err := trigger.NewButton(g, trigger.ButtonConfig{
		Pin:       cfg.Trigger.ButtonPin,
		ActiveLow: cfg.Trigger.ActiveLow,
		Debounce:  cfg.Debounce(),
		Poll:      cfg.Poll(),
	})
	if err != nil {
		return fmt.Errorf("init button failed: %w", err)
	}
	fmt.Printf("Waiting for button presses on GPIO %d (Ctrl+C to quit)\n", cfg.Trigger.ButtonPin)
	for range btn.Presses(ctx) {
		if _, err := runSequence(ctx, cfg, g, os.Stdout, nil); err != nil {
			report(os.Stdout, os.Stderr, err)
		}
	}
	return nil
}

// runSequence opens the configured camera, takes cfg.Defaults.Shots shots and
// closes the camera again, whatever the outcome.
func runSequence(ctx context.Context, cfg *config.Config, g gpio.Driver, out io.Writer, onShot func(*camera.Shot, int, int)) ([]*camera.Shot, error) {
	cam, err := newCameraFromConfig(ctx, cfg, g, out)
	if err != nil {
		return nil, err
	}
	shots, err := capture.NewSequence(cam).Run(ctx, capture.Params{
		Count:    cfg.Defaults.Shots,
		Interval: cfg.Interval(),
		OnShot:   onShot,
	})
	if cerr := cam.Close(); cerr != nil {
		if err != nil {
			debug.Error(cerr)
		} else {
			err = cerr
		}
	}
	if err != nil {
		return shots, err
	}
	fmt.Fprintln(out, "Camera session closed. Image capture complete.")
	return shots, nil
}

// sdkFactory is swapped by tests that need a particular simulated body.
var sdkFactory = openSDK

// openSDK returns the simulated SDK in mock mode, the linked EDSDK otherwise.
func openSDK(mock bool) (edsdk.SDK, error) {
	if mock {
		debug.Info("Using MOCK EDSDK (simulated camera)")
		return edsdk.NewMock(edsdk.MockCamera{Name: "Canon EOS Mock", Port: "mock:0"}), nil
	}
	sdk, err := edsdk.Open()
	if err != nil {
		return nil, fmt.Errorf("%w; use -mock to run with a simulated camera", err)
	}
	return sdk, nil
}

// newCameraFromConfig selects a camera implementation based on configuration.
func newCameraFromConfig(ctx context.Context, cfg *config.Config, g gpio.Driver, out io.Writer) (camera.Camera, error) {
	switch cfg.Camera.Type {
	case config.CameraEDSDK:
		sdk, err := sdkFactory(cfg.Defaults.MockSDK)
		if err != nil {
			return nil, err
		}
		return camera.OpenCanon(ctx, sdk, camera.Options{
			Index:         cfg.Camera.Index,
			SaveTo:        cfg.SaveTo(),
			Dir:           cfg.Camera.DownloadDir,
			FileName:      cfg.Camera.FileName,
			Timeout:       cfg.Timeout(),
			PumpInterval:  cfg.PumpInterval(),
			Retries:       cfg.Camera.Retries,
			RetryInterval: cfg.RetryInterval(),
			Out:           out,
		})
	case config.CameraRemoteGPIO:
		if g == nil {
			return nil, errors.New("canon_remote_gpio camera needs a GPIO driver")
		}
		return camera.NewRemoteGPIO(
			g,
			cfg.Camera.FocusPin,
			cfg.Camera.ShutterPin,
			cfg.FocusDelay(),
			cfg.ShutterDelay(),
		), nil
	default:
		return nil, fmt.Errorf("unsupported camera type: %s", cfg.Camera.Type)
	}
}

// report prints a fatal error.  A missing camera is a plain status line on
// stdout; everything else goes to stderr.
func report(stdout, stderr io.Writer, err error) {
	w := stderr
	if errors.Is(err, camera.ErrNoCamera) {
		w = stdout
	}
	fmt.Fprintln(w, errorLine(err))
}

// errorLine formats a fatal error for the terminal.
func errorLine(err error) string {
	if errors.Is(err, camera.ErrNoCamera) {
		return "No Canon camera detected!"
	}
	return "Error: " + err.Error()
}

// validateCLIOverrides checks that non-zero CLI overrides are within valid ranges.
func validateCLIOverrides(o cliOverrides) error {
	if o.Camera < -1 {
		return fmt.Errorf("camera index must be >= 0, got %d", o.Camera)
	}
	if o.Shots < 0 || o.Shots > web.MaxShots {
		return fmt.Errorf("shots must be between 1 and %d, got %d", web.MaxShots, o.Shots)
	}
	if o.Interval < 0 {
		return fmt.Errorf("interval must be >= 0, got %v", o.Interval)
	}
	if o.Timeout < 0 {
		return fmt.Errorf("timeout must be >= 0, got %v", o.Timeout)
	}
	return nil
}

// applyOverrides mutates cfg with overrides. Only non-zero override values are applied.
func applyOverrides(cfg *config.Config, o cliOverrides) {
	if o.Out != "" {
		cfg.Camera.FileName = o.Out
	}
	if o.Dir != "" {
		cfg.Camera.DownloadDir = o.Dir
	}
	if o.Camera >= 0 {
		cfg.Camera.Index = o.Camera
	}
	if o.Shots > 0 {
		cfg.Defaults.Shots = o.Shots
	}
	if o.Interval > 0 {
		cfg.Defaults.IntervalMs = int(o.Interval / time.Millisecond)
	}
	if o.Timeout > 0 {
		cfg.Camera.TimeoutMs = int(o.Timeout / time.Millisecond)
	}
	if o.Mock {
		cfg.Defaults.MockSDK = true
		cfg.Defaults.MockGPIO = true
	}
}

// applyOverridesToCopy returns a new config with a web run's parameters.
// Shots <= 0 keeps the base config value.
func applyOverridesToCopy(baseCfg *config.Config, overrides web.Overrides) *config.Config {
	cfg := *baseCfg
	if overrides.Shots > 0 {
		cfg.Defaults.Shots = overrides.Shots
	}
	if overrides.IntervalMs >= 0 {
		cfg.Defaults.IntervalMs = overrides.IntervalMs
	}
	return &cfg
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
