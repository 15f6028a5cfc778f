package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"microcourses/internal/app"
	"microcourses/pkg/config"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// Try multiple config paths
var configPaths = []string{
	"configs/config.yaml",
	"./configs/config.yaml",
	"config.yaml",
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type globalFlags struct {
	configPath string
	apiURL     string
	storage    string
	backend    string
	verbose    bool
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("mcourses", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var g globalFlags
	fs.StringVar(&g.configPath, "config", "", "path to config.yaml")
	fs.StringVar(&g.apiURL, "api", "", "backend base URL, overrides api.base_url")
	fs.StringVar(&g.storage, "storage", "", "local storage directory, overrides storage.dir")
	fs.StringVar(&g.backend, "backend", "", "local storage backend: memory, file, sqlite or redis")
	fs.BoolVar(&g.verbose, "v", false, "debug logging")
	fs.Usage = func() { usage(fs) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() == 0 {
		usage(fs)
		return exitUsage
	}

	name := fs.Arg(0)
	cmd, ok := lookup(name)
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", name)
		usage(fs)
		return exitUsage
	}

	cfg, err := loadConfig(g)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return exitError
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "startup: %v\n", err)
		return exitError
	}
	defer a.Close()

	if _, err := a.Start(ctx); err != nil {
		fmt.Fprintf(stderr, "startup: %v\n", err)
		return exitError
	}

	env := &cmdEnv{app: a, in: stdin, out: stdout, err: stderr}
	if err := env.exec(ctx, cmd, fs.Args()[1:]); err != nil {
		var ue usageError
		if errors.As(err, &ue) {
			fmt.Fprintf(stderr, "usage: mcourses %s %s\n", cmd.name, cmd.usage)
			if ue.msg != "" {
				fmt.Fprintln(stderr, ue.msg)
			}
			return exitUsage
		}
		fmt.Fprintln(stderr, err)
		return exitError
	}
	return exitOK
}

// findConfig returns the first config path that exists, or the first
// candidate when none does.
func findConfig() string {
	for _, path := range configPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return configPaths[0]
}

func loadConfig(g globalFlags) (*config.Config, error) {
	path := g.configPath
	if path == "" {
		path = findConfig()
	}
	// A missing file yields the defaults, a broken one is an error.
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if g.apiURL != "" {
		cfg.API.BaseURL = g.apiURL
	}
	if g.storage != "" {
		if cfg.Backup.Dir == filepath.Join(cfg.Storage.Dir, "backups") {
			cfg.Backup.Dir = filepath.Join(g.storage, "backups")
		}
		cfg.Storage.Dir = g.storage
	}
	if g.backend != "" {
		cfg.Storage.Backend = g.backend
	}
	if g.verbose {
		cfg.Logging.Level = "debug"
	} else if cfg.Logging.Level == "info" {
		// keep command output readable
		cfg.Logging.Level = "warn"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func usage(fs *flag.FlagSet) {
	w := fs.Output()
	fmt.Fprintln(w, "usage: mcourses [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-14s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "flags:")
	fs.PrintDefaults()
}
