package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"juru/audio"
	"juru/config"
	"juru/doctor"
	"juru/hotkey"
	"juru/live"
	"juru/log"
	"juru/metrics"
	"juru/session"
	"juru/shutdown"
)

var version = "dev"

func execute() int {
	if err := newRootCmd().Execute(); err != nil {
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	v := config.New()
	cmd := &cobra.Command{
		Use:          "juru",
		Short:        "Push-to-talk live speech translation between Indonesian and Japanese",
		Long:         "Hold " + hotkey.Combo + " and speak. juru streams your voice to a live model and plays the translation back.",
		Version:      version,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	config.AddFlags(cmd, v)
	cmd.AddCommand(newDevicesCmd(), newDoctorCmd(v))
	return cmd
}

func loadConfig(v *viper.Viper) (config.Config, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List capture devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			actx, err := audio.NewContext()
			if err != nil {
				return fmt.Errorf("audio: %w", err)
			}
			defer actx.Close()
			return audio.PrintDevices(cmd.OutOrStdout(), actx)
		},
	}
}

func newDoctorCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check hotkey, microphone, speaker and the live connection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			ctx, stop := shutdown.Context(cmd.Context())
			defer stop()

			actx, err := audio.NewContext()
			if err != nil {
				return fmt.Errorf("audio: %w", err)
			}
			defer actx.Close()
			dev, err := pickDevice(actx, cfg)
			if err != nil {
				return err
			}

			opts := doctor.Options{
				Audio:  actx,
				Device: dev,
				Hotkey: hotkey.New(),
				Model:  cfg.Model,
				Out:    cmd.OutOrStdout(),
			}
			if cfg.APIKey != "" {
				opts.Dialer = live.NewClient(cfg.APIKey, cfg.Endpoint)
			}
			if code := doctor.Run(ctx, opts); code != 0 {
				return errors.New("doctor: some checks failed")
			}
			return nil
		},
	}
}

// setupLogging opens the log files and routes runtime crash output next to
// them.
func setupLogging(flagPath string) error {
	dir, err := log.ResolveDir(flagPath)
	if err != nil {
		return fmt.Errorf("resolve log directory: %w", err)
	}
	log.SetDir(dir)
	if err := log.Init(); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	crashPath := filepath.Join(dir, "crash_log.txt")
	if f, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644); err == nil {
		fmt.Fprintf(f, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(f, debug.CrashOptions{})
	}
	return nil
}

func pickDevice(actx audio.Context, cfg config.Config) (*audio.DeviceInfo, error) {
	switch {
	case cfg.Device != "":
		return audio.FindDevice(actx, cfg.Device)
	case cfg.Setup:
		dev, err := audio.SelectDevice(actx)
		if err != nil {
			log.Warnf("device selection failed: %v", err)
			fmt.Fprintf(os.Stderr, "Warning: device selection failed: %v, using the default device\n", err)
			return nil, nil
		}
		return dev, nil
	}
	return nil, nil
}

func deviceLabel(dev *audio.DeviceInfo) string {
	if dev == nil {
		return "system default"
	}
	if audio.IsBluetooth(dev.Name) {
		return dev.Name + " (BT!)"
	}
	return dev.Name
}

func sessionConfig(cfg config.Config, actx audio.Context, d live.Dialer, dev *audio.DeviceInfo, m *metrics.Metrics, sink session.Sink) session.Config {
	return session.Config{
		Audio:      actx,
		Dialer:     d,
		Device:     dev,
		Model:      cfg.Model,
		BlockSize:  uint32(cfg.BlockSize),
		InputRate:  cfg.InputRate,
		OutputRate: cfg.OutputRate,
		Merge:      cfg.Merge,
		SendQueue:  cfg.SendQueue,
		RecordDir:  cfg.RecordDir,
		VAD:        cfg.VAD,
		Metrics:    m,
		Sink:       sink,
	}
}

func run(ctx context.Context, cfg config.Config) error {
	ctx, stop := shutdown.Context(ctx)
	defer stop()

	if err := setupLogging(cfg.LogPath); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	defer log.Close()

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		srv, err := m.Listen(cfg.MetricsAddr)
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(sctx)
		}()
	}

	if cfg.Test != "" {
		return runTestMode(ctx, cfg, m, os.Stdin, os.Stdout)
	}

	actx, err := audio.NewContext()
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		return fmt.Errorf("audio: %w", err)
	}
	defer actx.Close()

	dev, err := pickDevice(actx, cfg)
	if err != nil {
		return err
	}

	hk := hotkey.New()
	if err := hk.Register(); err != nil {
		log.Errorf("hotkey register error: %v", err)
		return fmt.Errorf("register hotkey %s: %w", hotkey.Combo, err)
	}
	defer hk.Unregister()

	a := &app{dir: cfg.Direction}
	var (
		ui   *tea.Program
		sink session.Sink
	)
	if cfg.TUI {
		ui, sink = newTUIProgram(a, deviceLabel(dev))
	} else {
		sink = newPrintSink(os.Stdout)
	}
	client := live.NewClient(cfg.APIKey, cfg.Endpoint)
	a.ctrl = session.New(sessionConfig(cfg, actx, client, dev, m, sink))
	defer a.ctrl.Close()

	trig := hotkey.NewTrigger(hk, cfg.LongPress)
	go trig.Run(ctx)

	var uiDone chan struct{}
	if ui != nil {
		uiDone = make(chan struct{})
		go func() {
			defer close(uiDone)
			if _, err := ui.Run(); err != nil {
				log.Errorf("TUI error: %v", err)
			}
		}()
		defer func() {
			ui.Quit()
			<-uiDone
		}()
	} else {
		fmt.Printf("juru %s: hold %s to translate %s (mic: %s)\n", version, hotkey.Combo, cfg.Direction.Label(), deviceLabel(dev))
	}

	a.drive(ctx, trig.Events(), uiDone)
	return nil
}

// app holds what the hotkey loop and the UI share.
type app struct {
	ctrl *session.Controller

	mu  sync.Mutex
	dir session.Direction
}

func (a *app) direction() session.Direction {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dir
}

// flip swaps the direction for the next session. It refuses while a
// session is running.
func (a *app) flip() (session.Direction, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ctrl.Status().Active() {
		return a.dir, false
	}
	a.dir = a.dir.Flip()
	log.Infof("direction: %s", a.dir)
	return a.dir, true
}

func (a *app) start() error {
	err := a.ctrl.Start(a.direction())
	if errors.Is(err, session.ErrSessionActive) {
		return nil
	}
	return err
}

func (a *app) toggle() error {
	if a.ctrl.Status().Active() {
		a.ctrl.Stop()
		return nil
	}
	return a.start()
}

// drive maps hotkey events onto the controller until ctx ends or the UI
// quits.
func (a *app) drive(ctx context.Context, events <-chan hotkey.Event, uiDone <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-uiDone:
			return
		case ev := <-events:
			if ev.Start {
				log.Infof("hotkey_start_%s", ev.Mode)
				if err := a.start(); err != nil {
					log.Errorf("start: %v", err)
				}
			} else {
				log.Infof("hotkey_stop_%s", ev.Mode)
				a.ctrl.Stop()
			}
		}
	}
}
