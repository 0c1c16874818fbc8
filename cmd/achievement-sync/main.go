package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/ramonehamilton/achievement-sync/internal/config"
	"github.com/ramonehamilton/achievement-sync/internal/version"
)

// options are the flags shared by every command.
type options struct {
	configPath string
	debug      bool
}

func addCommonFlags(fs *flag.FlagSet) *options {
	opts := &options{}
	fs.StringVarP(&opts.configPath, "config", "c", config.Path(), "Configuration file")
	fs.BoolVarP(&opts.debug, "debug", "d", false, "Enable debug logging")
	return opts
}

// load reads the configuration and installs the default logger.
func (o *options) load() *config.Config {
	cfg, err := config.LoadFrom(o.configPath)
	if err != nil {
		fatal("Error loading config", err)
	}
	if err := cfg.Validate(); err != nil {
		fatal("Invalid config", err)
	}

	level := slog.LevelInfo
	if o.debug || cfg.App.DebugMode {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return cfg
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}

// errUsage means usage text was already printed.
var errUsage = errors.New("invalid usage")

// exitOn exits non-zero when err is set. Commands holding open resources
// return their error here instead of calling fatal.
func exitOn(msg string, err error) {
	if err == nil {
		return
	}
	if !errors.Is(err, errUsage) {
		slog.Error(msg, "error", err)
	}
	os.Exit(1)
}

// withApp wires the components for cfg and runs fn with a context cancelled
// on interrupt. The app is closed before withApp returns.
func withApp(cfg *config.Config, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(cfg)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer func() { _ = a.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return fn(ctx, a)
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	args := os.Args[2:]
	switch os.Args[1] {
	case "refresh":
		runRefreshCommand(args)
	case "watch":
		runWatchCommand(args)
	case "migrate":
		runMigrationCommand(args)
	case "backup":
		runBackupCommand(args)
	case "config":
		runConfigCommand(args)
	case "store":
		runStoreCommand(args)
	case "version", "--version":
		fmt.Println("achievement-sync", version.GetVersion())
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("achievement-sync - emulator achievement extraction")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  achievement-sync <command> [args] [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  refresh <game>...        Refresh achievements for games")
	fmt.Println("  watch                    Refresh Xbox 360 titles when Xenia writes their GPD")
	fmt.Println("  migrate up|down|version|force <v>")
	fmt.Println("                           Manage the store schema")
	fmt.Println("  backup create|list|restore <file>")
	fmt.Println("                           Back up or restore the store")
	fmt.Println("  config init|show         Write or print the configuration")
	fmt.Println("  store list|rebuild       Inspect the store or rebuild it from record files")
	fmt.Println("  version                  Print the version")
	fmt.Println()
	fmt.Println("Common flags:")
	fmt.Println("  -c, --config <file>      Configuration file (default ~/.achievement-sync/config.toml)")
	fmt.Println("  -d, --debug              Enable debug logging")
}
