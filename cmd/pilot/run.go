package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vovakirdan/pixelpilot/internal/capture"
	"github.com/vovakirdan/pixelpilot/internal/config"
	"github.com/vovakirdan/pixelpilot/internal/core"
	"github.com/vovakirdan/pixelpilot/internal/episode"
	"github.com/vovakirdan/pixelpilot/internal/input"
	"github.com/vovakirdan/pixelpilot/internal/platform/tui"
	"github.com/vovakirdan/pixelpilot/internal/registry"
	"github.com/vovakirdan/pixelpilot/internal/reward"
	"github.com/vovakirdan/pixelpilot/internal/rollout"
	"github.com/vovakirdan/pixelpilot/internal/scheduler"
	"github.com/vovakirdan/pixelpilot/internal/storage"
	"github.com/vovakirdan/pixelpilot/internal/teleop"
)

var (
	flagPolicy    string
	flagPreset    string
	flagDryRun    bool
	flagSynthetic bool
	flagRecord    string
	flagConsole   bool
	flagSSHAddr   string
	flagHostKey   string
	flagTeleop    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the agent",
	Long: `Start the perception-action loop against the configured game window.

Every tick the agent captures a frame, asks the policy for an action and
injects it. Rewards sent by the game mod are grouped into episodes and
stored in the episode database.

Console controls:
  P       - Pause (all keys are released)
  R       - Resume
  E       - Reset the current episode
  S       - Stop the agent
  Ctrl+S  - Save the current frame
  Q       - Quit (stops the agent)

Teleop:
  With --teleop nothing is injected. You play, and every tick the keys you
  hold (teleop.keymap) are recorded with the frame into --record, or into a
  timestamped directory under teleop.dir. Hold teleop.stop_key to finish.

Presets:
  rollout - 5 Hz, generous deadlines
  teleop  - 10 Hz, the default for --teleop
  fast    - 20 Hz, tight deadlines

Examples:
  pilot run
  pilot run --policy random --console
  pilot run --dry-run --synthetic --policy scripted
  pilot run --preset fast --record ./rollouts/run1
  pilot run --ssh :23235
  pilot run --teleop --record ./rollouts/human1`,
	Args: cobra.NoArgs,
	RunE: runAgent,
}

func init() {
	runCmd.Flags().StringVar(&flagPolicy, "policy", "", "Policy to run (overrides policy.name)")
	runCmd.Flags().StringVar(&flagPreset, "preset", "", "Timing preset: rollout, teleop, fast")
	runCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "Log actions instead of injecting them")
	runCmd.Flags().BoolVar(&flagSynthetic, "synthetic", false, "Use a generated test pattern instead of the screen")
	runCmd.Flags().StringVar(&flagRecord, "record", "", "Record frames and actions into this rollout directory")
	runCmd.Flags().BoolVar(&flagConsole, "console", false, "Show the operator console")
	runCmd.Flags().StringVar(&flagSSHAddr, "ssh", "", "Serve the operator console over SSH on this address")
	runCmd.Flags().StringVar(&flagHostKey, "host-key", "", "Path to SSH host key file (auto-generated if not specified)")
	runCmd.Flags().BoolVar(&flagTeleop, "teleop", false, "Record a person playing instead of running a policy")
}

// sessionConfig loads the configuration and applies command-line overrides.
func sessionConfig() (config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return cfg, err
	}
	preset := config.Preset(flagPreset)
	if flagTeleop && preset == "" {
		preset = config.PresetTeleop
	}
	if err := config.ApplyPreset(&cfg, preset); err != nil {
		return cfg, fmt.Errorf("%w: %w", core.ErrConfiguration, err)
	}
	if flagPolicy != "" {
		cfg.Policy.Name = flagPolicy
	}
	if flagDryRun || flagTeleop {
		cfg.Input.Backend = "dry-run"
	}
	if flagSynthetic {
		cfg.Capture.Backend = "synthetic"
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	if flagTeleop {
		if len(cfg.Teleop.Keymap) == 0 {
			return cfg, fmt.Errorf("%w: --teleop needs a teleop.keymap", core.ErrConfiguration)
		}
		return cfg, nil
	}
	if !registry.Exists(cfg.Policy.Name) {
		return cfg, fmt.Errorf("%w: unknown policy %q (run 'pilot policies')", core.ErrConfiguration, cfg.Policy.Name)
	}
	return cfg, nil
}

func runAgent(_ *cobra.Command, _ []string) error {
	cfg, err := sessionConfig()
	if err != nil {
		return err
	}

	// The console needs a real terminal
	useConsole := flagConsole && term.IsTerminal(int(os.Stdout.Fd()))
	if flagConsole && !useConsole {
		fmt.Fprintln(os.Stderr, "Warning: stdout is not a terminal, running without console")
	}

	logger, closeLog, err := newLogger(cfg.Logging, useConsole)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrConfiguration, err)
	}
	defer closeLog()

	schedCfg, err := scheduler.FromConfig(cfg)
	if err != nil {
		return err
	}
	params, err := cfg.PolicyParams()
	if err != nil {
		return err
	}

	var (
		policy registry.Policy
		human  *teleop.Policy
	)
	if flagTeleop {
		reader, err := openKeyReader(cfg)
		if err != nil {
			return err
		}
		defer reader.Close()
		human = teleop.New(reader, teleop.Keymap(cfg.Teleop.Keymap), cfg.Teleop.StopKey, logger.WithPrefix("teleop"))
		policy = human
	} else {
		policy, err = registry.Create(cfg.Policy.Name)
		if err != nil {
			return fmt.Errorf("%w: %w", core.ErrConfiguration, err)
		}
	}
	if err := policy.Reset(params); err != nil {
		return fmt.Errorf("%w: policy %s: %w", core.ErrConfiguration, policy.ID(), err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessionID := uuid.NewString()
	logger = logger.With("session", sessionID[:8])

	// Open score storage
	var store *storage.Store
	if path := dbPath(cfg); path != "" {
		store, err = storage.Open(path)
		if err != nil {
			logger.Warn("could not open episode database", "error", err)
			// Continue without storage
			store = nil
		}
	}
	if store != nil {
		defer store.Close()
	}

	source, err := openSource(ctx, cfg, logger)
	if err != nil {
		return err
	}
	rewards, err := openRewards(ctx, cfg, logger)
	if err != nil {
		source.Close()
		return err
	}
	sink, err := openSink(cfg, logger)
	if err != nil {
		rewards.Close()
		source.Close()
		return err
	}

	episodes := episode.NewManager(episode.Options{
		NewID:  uuid.NewString,
		Logger: logger,
		OnClose: func(ep core.Episode) {
			if store == nil {
				return
			}
			if _, err := store.SaveEpisode(sessionID, ep); err != nil {
				logger.Warn("could not save episode", "episode", ep.ID, "error", err)
			}
		},
	})

	sched, err := scheduler.New(schedCfg, source, rewards, sink, policy,
		scheduler.WithLogger(logger),
		scheduler.WithEpisodes(episodes),
	)
	if err != nil {
		sink.Close()
		rewards.Close()
		source.Close()
		return err
	}

	recordDir := flagRecord
	meta := rolloutMeta(cfg, sessionID, policy.ID())
	if human != nil {
		human.OnStop(sched.Stop)
		meta.Keymap = teleop.Keymap(cfg.Teleop.Keymap)
		if recordDir == "" {
			recordDir, err = teleopDir(cfg.Teleop.Dir, time.Now())
			if err != nil {
				sched.Stop()
				_ = sched.Run(ctx)
				return err
			}
		}
	}

	var recorder *rollout.Recorder
	if recordDir != "" {
		recorder, err = rollout.NewRecorder(recordDir, meta, params.Actions, logger)
		if err != nil {
			sched.Stop()
			_ = sched.Run(ctx)
			return err
		}
		sched.OnTick(recorder.OnTick)
	}

	frames := &tui.FrameTap{}
	sched.OnTick(frames.OnTick)

	// Without an operator a fatal pause can never be resumed
	interactive := useConsole || flagSSHAddr != ""
	sched.OnStateChange(func(state scheduler.State, reason core.Reason) {
		if state == scheduler.StatePaused && reason.Fatal() && !interactive {
			logger.Error("fatal pause without operator, stopping", "reason", reason)
			sched.Stop()
		}
	})

	consoleOpts := tui.ConsoleOptions{
		Title:    sessionID[:8],
		Policy:   policy.ID(),
		Frames:   frames,
		Episodes: episodes,
	}

	if flagSSHAddr != "" {
		sshCfg := tui.DefaultSSHServerConfig()
		sshCfg.Address = flagSSHAddr
		sshCfg.HostKeyPath = flagHostKey
		server, sshErr := tui.NewSSHServer(sshCfg, sched, consoleOpts, logger.WithPrefix("pilot-ssh"))
		if sshErr != nil {
			logger.Warn("could not start SSH console", "error", sshErr)
		} else {
			server.Start()
			defer server.Shutdown()
		}
	}

	started := time.Now()
	rolloutDir := ""
	if recorder != nil {
		rolloutDir = recorder.Dir()
	}
	if store != nil {
		if _, err := store.StartSession(sessionID, policy.ID(), cfg.TickRateHz, started, rolloutDir); err != nil {
			logger.Warn("could not record session", "error", err)
		}
	}

	logger.Info("agent starting",
		"policy", policy.ID(),
		"hz", cfg.TickRateHz,
		"capture", cfg.Capture.Backend,
		"input", cfg.Input.Backend,
	)

	if human != nil {
		delay := cfg.Teleop.StartDelay()
		logger.Info("focus the game window, recording starts soon",
			"in", delay,
			"stop_key", cfg.Teleop.StopKey,
			"dir", recordDir)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
	}

	done := make(chan error, 1)
	go func() {
		done <- sched.Run(ctx)
	}()

	if useConsole {
		consoleOpts.QuitStops = true
		if err := tui.RunConsole(sched, consoleOpts); err != nil {
			logger.Error("console error", "error", err)
		}
		sched.Stop()
	}
	runErr := <-done

	if recorder != nil {
		if err := recorder.Close(); err != nil {
			logger.Warn("rollout incomplete", "dir", recorder.Dir(), "error", err)
		} else {
			logger.Info("rollout saved", "dir", recorder.Dir(), "steps", recorder.Steps())
		}
	}

	st := sched.Status()
	if store != nil {
		entry := storage.SessionEntry{
			SessionID:        sessionID,
			EndedAt:          time.Now(),
			Ticks:            int64(st.Counters.Ticks),
			Overruns:         int64(st.Counters.Overruns),
			Fallbacks:        int64(st.Counters.DecideOverruns + st.Counters.DecideErrors + st.Counters.DecideBusy),
			DispatchFailures: int64(st.Counters.DispatchFailures),
			ExitReason:       exitReason(runErr),
		}
		if err := store.FinishSession(entry); err != nil {
			logger.Warn("could not finish session", "error", err)
		}
	}

	opened, terminated := episodes.Counts()
	logger.Info("agent stopped",
		"reason", exitReason(runErr),
		"ticks", st.Counters.Ticks,
		"overruns", st.Counters.Overruns,
		"episodes", opened,
		"terminated", terminated,
	)
	return runErr
}

// openSource builds the frame source for the configured capture backend.
func openSource(ctx context.Context, cfg config.Config, logger *log.Logger) (scheduler.FrameSource, error) {
	if cfg.Capture.Backend == "synthetic" {
		return capture.NewSynthetic(cfg.Capture.OutWidth, cfg.Capture.OutHeight), nil
	}

	capturer, err := capture.NewX11Capturer(cfg.Capture.Display, cfg.Capture.WindowTitle, cfg.Capture.Region)
	if err != nil {
		return nil, err
	}
	if cfg.Capture.WindowTitle != "" {
		logger.Info("capturing window", "title", cfg.Capture.WindowTitle)
	} else {
		logger.Info("capturing region", "region", cfg.Capture.Region.String())
	}
	grabber := capture.NewGrabber(capturer, capture.GrabberConfig{
		RateHz:     cfg.Capture.RateHz,
		MaxRetries: cfg.Capture.MaxRetries,
		OutWidth:   cfg.Capture.OutWidth,
		OutHeight:  cfg.Capture.OutHeight,
	}, logger.WithPrefix("capture"))
	grabber.Start(ctx)
	return grabber, nil
}

// openRewards starts the reward listener, or a silent channel when no
// address is configured.
func openRewards(ctx context.Context, cfg config.Config, logger *log.Logger) (scheduler.RewardChannel, error) {
	if cfg.Reward.Address == "" {
		logger.Info("no reward address configured, episodes will not advance")
		return reward.Silent{}, nil
	}
	buf := reward.NewBuffer(cfg.TerminalEventQueueCapacity, cfg.Overflow())
	l, err := reward.Listen(ctx, cfg.Reward.Network, cfg.Reward.Address, buf, logger.WithPrefix("reward"))
	if err != nil {
		return nil, err
	}
	logger.Info("listening for rewards", "network", cfg.Reward.Network, "address", l.Addr().String())
	return l, nil
}

// openSink builds the keyboard sink over the configured injector.
func openSink(cfg config.Config, logger *log.Logger) (scheduler.ActionSink, error) {
	var inj input.Injector
	if cfg.Input.Backend == "dry-run" {
		inj = input.NewDryRun(logger.WithPrefix("dry-run"))
	} else {
		x, err := input.NewX11Injector(cfg.Input.Display)
		if err != nil {
			return nil, err
		}
		inj = x
	}
	return input.NewKeyboard(inj, logger.WithPrefix("input")), nil
}

// openKeyReader connects to the display whose keyboard is recorded. The
// synthetic backend has no display, so nothing is ever held.
func openKeyReader(cfg config.Config) (input.KeyReader, error) {
	if cfg.Capture.Backend == "synthetic" {
		return idleKeys{}, nil
	}
	return input.NewX11KeyReader(cfg.Input.Display)
}

type idleKeys struct{}

func (idleKeys) Held([]string) ([]string, error) { return nil, nil }
func (idleKeys) Close() error                    { return nil }

// teleopDir returns a fresh timestamped rollout directory under parent.
func teleopDir(parent string, now time.Time) (string, error) {
	if parent == "" {
		parent = "."
	}
	dir, err := config.ExpandHome(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, now.Format("20060102_150405")), nil
}

// rolloutMeta fills the rollout header from the session configuration.
func rolloutMeta(cfg config.Config, sessionID, policy string) rollout.Meta {
	r := cfg.Capture.Region
	return rollout.Meta{
		SessionID:     sessionID,
		Policy:        policy,
		Region:        rollout.Region{Left: r.X, Top: r.Y, Width: r.W, Height: r.H},
		OutSize:       [2]int{cfg.Capture.OutWidth, cfg.Capture.OutHeight},
		Hz:            cfg.TickRateHz,
		StartTimeUnix: float64(time.Now().UnixNano()) / 1e9,
	}
}

// exitReason labels how a session ended.
func exitReason(err error) string {
	switch {
	case err == nil:
		return "stopped"
	case errors.Is(err, core.ErrSourceLost):
		return core.ReasonSourceLost.String()
	case errors.Is(err, core.ErrConsecutiveDispatchFailure):
		return core.ReasonConsecutiveDispatchFailure.String()
	default:
		return err.Error()
	}
}
