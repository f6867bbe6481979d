// Chronicle plays a text adventure world from a content directory.
// Usage: chronicle [flags] [world_directory]
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/nathoo/chronicle/cli"
	"github.com/nathoo/chronicle/config"
	"github.com/nathoo/chronicle/engine"
	"github.com/nathoo/chronicle/engine/player"
	"github.com/nathoo/chronicle/engine/save"
	"github.com/nathoo/chronicle/engine/session"
	"github.com/nathoo/chronicle/engine/ui"
	"github.com/nathoo/chronicle/loader"
	"github.com/nathoo/chronicle/tui"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitContent = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "chronicle: %v\n", err)
		return exitFailure
	}

	// Flags default to the environment so either can be used.
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.StringVar(&cfg.World, "world", cfg.World, "world content directory")
	flag.StringVar(&cfg.SaveDir, "saves", cfg.SaveDir, "directory holding saves.yaml and save files")
	flag.BoolVar(&cfg.Plain, "plain", cfg.Plain, "use the line-based interface instead of the TUI")
	flag.BoolVar(&cfg.SaveOnExit, "save-on-exit", cfg.SaveOnExit, "save the game when quitting")
	flag.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "write logs to this file")
	logLevel := flag.String("log-level", string(cfg.LogLevel), "log level: debug, info, warn, error")
	script := flag.String("script", "", "read answers from this file instead of the terminal")
	flag.Parse()

	if *showVersion {
		fmt.Printf("chronicle %s (commit %s, built %s)\n", version, commit, date)
		return exitOK
	}
	if flag.NArg() > 0 {
		cfg.World = flag.Arg(0)
	}
	cfg.LogLevel = config.LogLevel(*logLevel)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "chronicle: %v\n", err)
		return exitFailure
	}

	logger, closeLog, err := newLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chronicle: %v\n", err)
		return exitFailure
	}
	defer closeLog()
	slog.SetDefault(logger)

	// ── Load world ────────────────────────────────────────────────────────────
	w, err := loader.Load(cfg.World, loader.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading world: %v\n", err)
		if loader.IsContentError(err) {
			return exitContent
		}
		return exitFailure
	}
	slog.Info("world loaded", "dir", cfg.World, "name", w.Meta().Name, "id", w.ID())

	ix, err := save.OpenIndex(cfg.SaveDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chronicle: %v\n", err)
		return exitFailure
	}

	// ── Presenter ─────────────────────────────────────────────────────────────
	var (
		presenter ui.Presenter
		screen    *tui.TUI
	)
	switch {
	case *script != "":
		f, err := os.Open(*script)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening script: %v\n", err)
			return exitFailure
		}
		defer f.Close()
		c := cli.New()
		c.In = f
		c.EchoInput = true
		presenter = c
	case cfg.Plain || !isTerminal():
		presenter = cli.New()
	default:
		screen = tui.New(w.Meta().Name)
		presenter = screen
	}
	if screen == nil {
		fmt.Printf("%s\n\n", w.Meta().Name)
	}

	// ── Play ──────────────────────────────────────────────────────────────────
	p, sel, err := session.Start(ix, w, presenter)
	if errors.Is(err, ui.ErrExit) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFailure
	}
	if screen != nil {
		screen.Player = p.Name()
	}
	slog.Info("session started", "player", p.Name(), "save", sel.Path, "new", sel.New)

	saver := func(p *player.Player) error {
		path, err := save.Save(sel.Path, p)
		if err == nil {
			slog.Info("game saved", "player", p.Name(), "path", path)
		}
		return err
	}
	eng := engine.New(w, p, presenter, engine.WithSaver(saver), engine.WithLogger(logger))
	if err := eng.Run(); err != nil {
		slog.Error("play stopped", "err", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFailure
	}

	if cfg.SaveOnExit {
		if err := saver(p); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving game: %v\n", err)
			return exitFailure
		}
	}
	return exitOK
}

// newLogger builds a text logger at level. Without a log file, output goes
// to stderr and is held at warn or above.
func newLogger(level config.LogLevel, file string) (*slog.Logger, func(), error) {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	var (
		out     io.Writer = os.Stderr
		closeFn           = func() {}
	)
	if file == "" {
		lvl = max(lvl, slog.LevelWarn)
	} else {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		out = f
		closeFn = func() { f.Close() }
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: lvl})), closeFn, nil
}

// isTerminal reports whether stdout is a terminal (not piped or redirected).
func isTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
