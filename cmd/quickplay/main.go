// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// quickplay is the participant binary. It finds or hosts a lobby
// through the directory service, connects participants over a TCP
// relay, and hands everyone to the gameplay scene together.
//
// On a terminal it shows the lobby screen: enter starts quick play,
// c or esc cancels, q quits. Logs go to a file (--log-output, default
// paths.logs/quickplay-<profile>.log) so they do not corrupt the
// screen; warnings also appear on the screen.
//
// With --headless, or when stdout is not a terminal, there is no
// screen: quick play starts immediately, progress is logged to stderr,
// and the process keeps the gameplay session up until SIGINT or
// SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/quickplay/directory"
	"github.com/bureau-foundation/quickplay/lib/clock"
	"github.com/bureau-foundation/quickplay/lib/config"
	"github.com/bureau-foundation/quickplay/lib/identity"
	"github.com/bureau-foundation/quickplay/lib/process"
	"github.com/bureau-foundation/quickplay/lib/version"
	"github.com/bureau-foundation/quickplay/lobbyui"
	"github.com/bureau-foundation/quickplay/quickplay"
	"github.com/bureau-foundation/quickplay/relay"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		process.Fatal(err)
	}
}

// options are the parsed command-line flags.
type options struct {
	configPath      string
	directorySocket string
	profile         string
	devProfile      bool
	bindAddress     string
	advertiseHost   string
	headless        bool
	auto            bool
	logOutput       string
	logFormat       string
	showVersion     bool
}

func parseFlags(args []string) (options, error) {
	var opts options
	flagSet := pflag.NewFlagSet("quickplay", pflag.ContinueOnError)
	flagSet.StringVar(&opts.configPath, "config", "", "path to quickplay.yaml (default: $QUICKPLAY_CONFIG, else built-in defaults)")
	flagSet.StringVar(&opts.directorySocket, "directory-socket", "", "directory service socket (overrides directory.socket_path)")
	flagSet.StringVar(&opts.profile, "profile", "", "identity profile (overrides identity.profile)")
	flagSet.BoolVar(&opts.devProfile, "dev-profile", false, "use a per-process identity so several local instances can play together")
	flagSet.StringVar(&opts.bindAddress, "bind", "", "relay listen address when hosting (overrides relay.bind_address)")
	flagSet.StringVar(&opts.advertiseHost, "advertise-host", "", "host clients dial when hosting (overrides relay.advertise_host)")
	flagSet.BoolVar(&opts.headless, "headless", false, "run without the lobby screen and start quick play immediately")
	flagSet.BoolVar(&opts.auto, "auto", false, "start quick play as soon as the lobby screen opens")
	flagSet.StringVar(&opts.logOutput, "log-output", "", "log file for the lobby screen (default: paths.logs/quickplay-<profile>.log)")
	flagSet.StringVar(&opts.logFormat, "log-format", "", "headless log format: text or json (default: text on a terminal, json otherwise)")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version information and exit")

	if err := flagSet.Parse(args); err != nil {
		return opts, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return opts, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	if opts.devProfile && opts.profile != "" {
		return opts, errors.New("--profile and --dev-profile are mutually exclusive")
	}
	return opts, nil
}

func run(args []string, stdout *os.File) error {
	opts, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if opts.showVersion {
		version.Print(stdout, "quickplay")
		return nil
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.directorySocket != "" {
		cfg.Directory.SocketPath = opts.directorySocket
	}
	if opts.bindAddress != "" {
		cfg.Relay.BindAddress = opts.bindAddress
	}
	if opts.advertiseHost != "" {
		cfg.Relay.AdvertiseHost = opts.advertiseHost
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	profile := cfg.Identity.Profile
	switch {
	case opts.devProfile:
		profile = identity.DevelopmentProfile()
	case opts.profile != "":
		profile = opts.profile
	}
	if profile == "" {
		profile = identity.DefaultProfile
	}
	if err := identity.ValidateProfile(profile); err != nil {
		return err
	}

	headless := opts.headless || !term.IsTerminal(int(stdout.Fd()))
	if headless {
		logger, err := newStderrLogger(opts.logFormat)
		if err != nil {
			return err
		}
		return runHeadless(cfg, profile, logger)
	}
	return runScreen(cfg, profile, opts)
}

// session is one participant's collaborators.
type session struct {
	orchestrator *quickplay.Orchestrator
	config       quickplay.Config
}

func newSession(cfg *config.Config, profile string, presenter quickplay.Presenter, logger *slog.Logger) (*session, error) {
	clk := clock.Real()
	participant, err := identity.NewAnonymous(cfg.Paths.State, profile, clk, logger)
	if err != nil {
		return nil, err
	}

	settings := orchestratorConfig(cfg, profile)
	orchestrator, err := quickplay.New(settings, quickplay.Dependencies{
		Identity:  participant,
		Directory: directory.NewClient(cfg.Directory.SocketPath, cfg.Directory.RequestTimeout),
		Provisioner: &relay.TCPProvisioner{
			BindAddress:   cfg.Relay.BindAddress,
			AdvertiseHost: cfg.Relay.AdvertiseHost,
			Logger:        logger,
		},
		Runtime: relay.NewTCPRuntime(relay.TCPRuntimeOptions{
			HandshakeTimeout: cfg.Relay.HandshakeTimeout,
			Logger:           logger,
		}),
		Presenter: presenter,
		Clock:     clk,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("quickplay ready",
		"profile", profile,
		"directory_socket", cfg.Directory.SocketPath,
		"relay_bind", cfg.Relay.BindAddress,
	)
	return &session{orchestrator: orchestrator, config: settings}, nil
}

// close cancels any flow and ends the gameplay session.
func (s *session) close(logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*s.config.CancelWait)
	defer cancel()
	if err := s.orchestrator.Close(ctx); err != nil {
		logger.Warn("closing quick play", "error", err)
	}
}

// runScreen runs the lobby screen until the user quits.
func runScreen(cfg *config.Config, profile string, opts options) error {
	logPath := opts.logOutput
	if logPath == "" {
		logPath = filepath.Join(cfg.Paths.Logs, "quickplay-"+profile+".log")
	}
	fileHandler, closeFile, err := openFileLogHandler(logPath)
	if err != nil {
		return fmt.Errorf("opening log file %s: %w", logPath, err)
	}
	defer closeFile()

	tuiHandler := lobbyui.NewTUILogHandler(slog.LevelWarn, fileHandler)
	logger := slog.New(tuiHandler)

	bridge := lobbyui.NewBridge()
	playSession, err := newSession(cfg, profile, bridge, logger)
	if err != nil {
		return err
	}
	defer playSession.close(logger)

	model := lobbyui.NewModel(playSession.orchestrator, lobbyui.Options{
		AutoStart:     opts.auto,
		CancelTimeout: 2 * playSession.config.CancelWait,
	})
	program := tea.NewProgram(model, tea.WithAltScreen())
	bridge.SetProgram(program)
	tuiHandler.SetProgram(program)

	_, err = program.Run()
	return err
}

// runHeadless starts quick play immediately and keeps the session up
// until a signal arrives.
func runHeadless(cfg *config.Config, profile string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	presenter := lobbyui.NewLogPresenter(logger, nil)
	playSession, err := newSession(cfg, profile, presenter, logger)
	if err != nil {
		return err
	}
	defer playSession.close(logger)

	if !playSession.orchestrator.BeginQuickPlay() {
		return errors.New("quick play did not start")
	}
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down", "status", presenter.Status())
			return nil
		case scene := <-presenter.Scenes():
			logger.Info("in game; press Ctrl-C to leave", "scene", scene)
		}
	}
}

// openFileLogHandler creates a JSON handler writing to path. The file
// is created or truncated.
func openFileLogHandler(path string) (slog.Handler, func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	handler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug})
	return handler, func() { file.Close() }, nil
}

// newStderrLogger builds the headless logger. Text on a terminal, JSON
// when stderr is piped, unless format says otherwise.
func newStderrLogger(format string) (*slog.Logger, error) {
	return newLogger(os.Stderr, format, term.IsTerminal(int(os.Stderr.Fd())))
}

func newLogger(w io.Writer, format string, terminal bool) (*slog.Logger, error) {
	options := &slog.HandlerOptions{Level: slog.LevelInfo}
	if format == "" {
		format = "json"
		if terminal {
			format = "text"
		}
	}
	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(w, options)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, options)), nil
	default:
		return nil, fmt.Errorf("unknown --log-format %q (want text or json)", format)
	}
}
