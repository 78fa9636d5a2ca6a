package main

import (
	"context"
	"encoding/json"
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

	"github.com/spf13/afero"

	"github.com/cjeanneret/snapcam/internal/config"
	"github.com/cjeanneret/snapcam/internal/debug"
	"github.com/cjeanneret/snapcam/internal/hw/camera"
	"github.com/cjeanneret/snapcam/internal/hw/gpio"
	"github.com/cjeanneret/snapcam/internal/hw/lamp"
	"github.com/cjeanneret/snapcam/internal/logic/session"
	"github.com/cjeanneret/snapcam/internal/media"
	"github.com/cjeanneret/snapcam/internal/web"
)

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	action := flag.String("action", "info", "one-shot action without -web: photo, video or info")
	duration := flag.Duration("duration", 3*time.Second, "recording length for -action video")
	flag.Parse()

	if err := validateAction(*action, *duration); err != nil {
		log.Fatalf("invalid flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	// Initialize GPIO driver
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		log.Fatalf("init GPIO failed: %v", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	debug.Step(2, "Initializing lamps")
	torch := lamp.New(gpioDriver, lamp.Config{Pin: cfg.Lamp.TorchPin})
	flash := lamp.New(gpioDriver, lamp.Config{Pin: cfg.Lamp.FlashPin, Pulse: cfg.FlashPulse()})
	debug.PrintStruct("Lamp config", cfg.Lamp)

	// Initialize capture backend
	debug.Step(3, "Initializing capture backend")
	fs := afero.NewOsFs()
	backend, err := newBackendFromConfig(cfg, torch, flash, fs)
	if err != nil {
		log.Fatalf("init backend failed: %v", err)
	}
	debug.Value("Backend type", cfg.Backend.Type)
	debug.Value("Devices", len(cfg.Devices))
	if debug.IsEnabled(debug.LevelVerbose) {
		for _, d := range cfg.CameraDevices() {
			debug.PrintStruct("Device", d)
		}
	}

	debug.Step(4, "Opening media store")
	store, err := media.New(fs, cfg.Session.MediaDir)
	if err != nil {
		log.Fatalf("open media store failed: %v", err)
	}
	debug.Value("Media dir", store.Dir())

	ctrl := session.New(backend, session.Options{
		Mode:        cfg.Mode(),
		Position:    cfg.Position(),
		PhotoPreset: cfg.PhotoPreset(),
		VideoPreset: cfg.VideoPreset(),
		TempDir:     cfg.Session.TempDir,
	})
	defer func() {
		if err := ctrl.Close(); err != nil {
			log.Printf("closing session failed: %v", err)
		}
	}()

	if port := webPort.port(); port > 0 {
		webAddr := fmt.Sprintf(":%d", port)
		broadcaster := web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))

		srv := web.NewServer(webAddr, broadcaster, ctrl, store)
		if p, ok := backend.(web.Prompter); ok && cfg.AuthorizeMode() == camera.AuthorizePrompt {
			srv.Handlers().Prompter = p
		}
		if err := srv.Run(ctx); err != nil {
			log.Fatalf("web server: %v", err)
		}
		return
	}

	if err := runAction(ctx, ctrl, store, *action, *duration, os.Stdout); err != nil {
		log.Fatalf("%s failed: %v", *action, err)
	}
}

// validateAction checks the one-shot action flags.
func validateAction(action string, d time.Duration) error {
	switch action {
	case "photo", "info":
		return nil
	case "video":
		if d <= 0 {
			return fmt.Errorf("duration must be positive, got %s", d)
		}
		return nil
	default:
		return fmt.Errorf("unknown action %q (want photo, video or info)", action)
	}
}

// runAction starts the session, runs one action and reports the result on out.
func runAction(ctx context.Context, ctrl *session.Controller, store *media.Store, action string, d time.Duration, out io.Writer) error {
	debug.Section("Starting session")
	if _, err := ctrl.Start(ctx); err != nil {
		return err
	}
	defer ctrl.Stop(context.Background())

	debug.Summary("Running action: " + action)
	switch action {
	case "info":
		return printInfo(ctrl, out)
	case "photo":
		path, err := takePhoto(ctx, ctrl, store)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, path)
		return nil
	case "video":
		path, err := recordVideo(ctx, ctrl, store, d)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, path)
		return nil
	default:
		return fmt.Errorf("unknown action %q", action)
	}
}

func printInfo(ctrl *session.Controller, out io.Writer) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Devices       []camera.Device            `json:"devices"`
		Settings      session.Settings           `json:"settings"`
		Configuration session.ConfigurationState `json:"configuration"`
	}{ctrl.Devices(), ctrl.Settings(), ctrl.Configuration()})
}

func takePhoto(ctx context.Context, ctrl *session.Controller, store *media.Store) (string, error) {
	if ctrl.Settings().Mode != camera.ModePhoto {
		if _, err := ctrl.SetCaptureMode(ctx, camera.ModePhoto); err != nil {
			return "", err
		}
	}
	ticket, err := ctrl.RequestPhotoCapture(ctx)
	if err != nil {
		return "", err
	}
	debug.Live("Photo %s requested", ticket.ID)

	select {
	case res := <-ticket.Result:
		return store.StorePhoto(res)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func recordVideo(ctx context.Context, ctrl *session.Controller, store *media.Store, d time.Duration) (string, error) {
	if ctrl.Settings().Mode != camera.ModeVideo {
		if _, err := ctrl.SetCaptureMode(ctx, camera.ModeVideo); err != nil {
			return "", err
		}
	}
	ticket, err := ctrl.RequestVideoCapture(ctx)
	if err != nil {
		return "", err
	}
	if ticket.Action != session.RecordingStarted {
		return "", errors.New("a recording was already in progress")
	}
	debug.Live("Recording %s to %s for %s", ticket.ID, ticket.Path, d)

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		debug.Info("Interrupted, finishing recording")
	}

	// ctx may be cancelled already; the recording must still be closed.
	if _, err := ctrl.StopRecording(context.Background()); err != nil {
		return "", err
	}
	return store.StoreVideo(<-ticket.Result)
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

// newBackendFromConfig selects a capture backend based on configuration.
func newBackendFromConfig(cfg *config.Config, torch, flash *lamp.Lamp, fs afero.Fs) (camera.Backend, error) {
	switch cfg.Backend.Type {
	case "sim":
		return camera.NewSim(camera.SimConfig{
			Devices:      cfg.CameraDevices(),
			Authorize:    cfg.AuthorizeMode(),
			PhotoLatency: cfg.PhotoLatency(),
			FailOutputs:  cfg.FailOutputs(),
			Torch:        torch,
			Flash:        flash,
			Fs:           fs,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", cfg.Backend.Type)
	}
}
