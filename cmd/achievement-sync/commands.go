package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	flag "github.com/spf13/pflag"

	"github.com/ramonehamilton/achievement-sync/internal/achievements"
	"github.com/ramonehamilton/achievement-sync/internal/config"
	"github.com/ramonehamilton/achievement-sync/internal/refresh"
	"github.com/ramonehamilton/achievement-sync/internal/storage"
	"github.com/ramonehamilton/achievement-sync/internal/watch"
)

func parse(fs *flag.FlagSet, args []string) {
	if err := fs.Parse(args); err != nil {
		fatal("Error parsing flags", err)
	}
}

func runRefreshCommand(args []string) {
	fs := flag.NewFlagSet("refresh", flag.ExitOnError)
	opts := addCommonFlags(fs)
	platform := fs.StringP("platform", "p", "all", "Source to refresh: xbox360, shadps4 or all")
	parse(fs, args)

	valid := *platform == "all" || *platform == "xbox360" || *platform == "shadps4"
	if fs.NArg() == 0 || !valid {
		fmt.Println("Usage: achievement-sync refresh <game>... [--platform xbox360|shadps4|all]")
		os.Exit(1)
	}

	cfg := opts.load()
	exitOn("Refresh failed", withApp(cfg, func(ctx context.Context, a *app) error {
		return refreshGames(ctx, a.refresher, fs.Args(), *platform, os.Stdout, os.Stderr)
	}))
}

// refreshGames refreshes each named game from the selected platforms. Every
// game is attempted; the error counts the refreshes that failed.
func refreshGames(ctx context.Context, r *refresh.Refresher, names []string, platform string, out, errOut io.Writer) error {
	type source struct {
		name string
		run  func(context.Context, achievements.Game) (*refresh.Result, error)
	}
	var sources []source
	if platform == "all" || platform == "xbox360" {
		sources = append(sources, source{"xbox360", r.RefreshXbox360})
	}
	if platform == "all" || platform == "shadps4" {
		sources = append(sources, source{"shadps4", r.RefreshShadPS4})
	}

	failed, attempted := 0, 0
	for _, name := range names {
		game := achievements.NewGame(name)
		for _, src := range sources {
			attempted++
			res, err := src.run(ctx, game)
			if err != nil {
				fmt.Fprintf(errOut, "%s: %s: %v\n", name, src.name, err)
				failed++
				continue
			}
			if res.Status != refresh.StatusUpdated {
				fmt.Fprintf(out, "%s: %s: %s\n", name, src.name, res.Status)
				continue
			}
			fmt.Fprintf(out, "%s [%s]: %d/%d unlocked\n", name, res.TitleID, res.Set.UnlockedCount(), len(res.Set.Items))
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d refreshes failed", failed, attempted)
	}
	return nil
}

func runWatchCommand(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	opts := addCommonFlags(fs)
	parse(fs, args)

	cfg := opts.load()
	if cfg.Xenia.ProfileDir == "" {
		fmt.Fprintln(os.Stderr, "xenia.profile_dir is not configured")
		os.Exit(1)
	}

	exitOn("Watcher stopped", withApp(cfg, func(ctx context.Context, a *app) error {
		debounce, _ := cfg.GetWatchDebounce()
		interval, _ := cfg.GetWatchMinInterval()
		w, err := watch.New(watch.Config{
			ProfileDir:  cfg.Xenia.ProfileDir,
			Refresher:   a.refresher,
			Games:       a.store,
			Debounce:    debounce,
			MinInterval: interval,
			Metrics:     a.metrics,
		})
		if err != nil {
			return fmt.Errorf("create watcher: %w", err)
		}

		if every, _ := cfg.GetBackupInterval(); every > 0 {
			bc := storage.DefaultBackupConfig()
			bc.BackupDir = cfg.Storage.BackupDir
			scheduler := storage.NewBackupScheduler(storage.NewBackupManager(cfg.Storage.DBPath), &storage.SchedulerConfig{
				Interval:     every,
				BackupConfig: bc,
				Keep:         cfg.Storage.BackupKeep,
			})
			go func() {
				if err := scheduler.Run(ctx); err != nil {
					slog.Error("Backup scheduler stopped", "error", err)
				}
			}()
		}

		return w.Run(ctx)
	}))
}

func runMigrationCommand(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	opts := addCommonFlags(fs)
	parse(fs, args)

	if fs.NArg() < 1 {
		printMigrationUsage()
		os.Exit(1)
	}
	cfg := opts.load()
	exitOn("Migration failed", migrate(cfg.Storage.DBPath, fs.Args(), os.Stdout))
}

func migrate(dbPath string, args []string, out io.Writer) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}

	mgr, err := storage.NewMigrationManager(dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = mgr.Close() }()

	printVersion := func() error {
		version, dirty, err := mgr.Version()
		if err != nil {
			return err
		}
		if dirty {
			fmt.Fprintf(out, "Current version: %d (dirty - use 'migrate force <version>' to recover)\n", version)
		} else {
			fmt.Fprintf(out, "Current version: %d\n", version)
		}
		return nil
	}

	switch args[0] {
	case "up":
		if err := mgr.Up(); err != nil {
			return err
		}
	case "down":
		if err := mgr.Down(); err != nil {
			return err
		}
	case "status", "version":
	case "force":
		if len(args) < 2 {
			fmt.Fprintln(out, "Usage: achievement-sync migrate force <version>")
			return errUsage
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version number: %w", err)
		}
		if err := mgr.Force(version); err != nil {
			return err
		}
	default:
		fmt.Fprintf(out, "Unknown migration command: %s\n\n", args[0])
		printMigrationUsage()
		return errUsage
	}
	return printVersion()
}

func printMigrationUsage() {
	fmt.Println("Usage:")
	fmt.Println("  achievement-sync migrate <command> [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  up                Apply all pending migrations")
	fmt.Println("  down              Roll back the last migration")
	fmt.Println("  version           Show current migration version")
	fmt.Println("  force <version>   Force set migration version (use with caution)")
}

func runBackupCommand(args []string) {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	opts := addCommonFlags(fs)
	name := fs.String("name", "", "Backup name (default: timestamp)")
	plain := fs.Bool("no-compress", false, "Write an uncompressed .db copy")
	verify := fs.Bool("verify", true, "Verify backup after creation")
	yes := fs.BoolP("yes", "y", false, "Skip restore confirmation")
	parse(fs, args)

	if fs.NArg() < 1 {
		printBackupUsage()
		os.Exit(1)
	}
	cfg := opts.load()
	mgr := storage.NewBackupManager(cfg.Storage.DBPath)
	backupDir := cfg.Storage.BackupDir

	switch fs.Arg(0) {
	case "create":
		if _, err := os.Stat(cfg.Storage.DBPath); err != nil {
			fatal("Database not available", err)
		}
		bc := storage.DefaultBackupConfig()
		bc.BackupDir = backupDir
		bc.BackupName = *name
		bc.Compress = !*plain
		bc.VerifyBackup = *verify

		path, err := mgr.Backup(bc)
		if err != nil {
			fatal("Error creating backup", err)
		}
		fmt.Printf("Backup created: %s\n", path)

	case "list", "ls":
		backups, err := mgr.ListBackups(backupDir)
		if err != nil {
			fatal("Error listing backups", err)
		}
		if len(backups) == 0 {
			fmt.Println("No backups found.")
			return
		}
		for _, b := range backups {
			fmt.Printf("%-40s %10d  %s  %.16s\n", b.Name, b.Size, b.ModTime.Format("2006-01-02 15:04:05"), b.Checksum)
		}

	case "restore":
		if fs.NArg() < 2 {
			fmt.Println("Usage: achievement-sync backup restore <backup-file> [--yes]")
			os.Exit(1)
		}
		path := fs.Arg(1)
		if !*yes && !confirm(fmt.Sprintf("Overwrite %s with %s?", cfg.Storage.DBPath, path)) {
			fmt.Println("Restore cancelled.")
			return
		}
		if err := mgr.Restore(path); err != nil {
			fatal("Error restoring backup", err)
		}
		fmt.Println("Database restored.")

	default:
		fmt.Printf("Unknown backup command: %s\n\n", fs.Arg(0))
		printBackupUsage()
		os.Exit(1)
	}
}

func printBackupUsage() {
	fmt.Println("Usage:")
	fmt.Println("  achievement-sync backup create [--name <name>] [--no-compress] [--verify=false]")
	fmt.Println("  achievement-sync backup list")
	fmt.Println("  achievement-sync backup restore <backup-file> [--yes]")
}

func confirm(prompt string) bool {
	fmt.Printf("%s (yes/no): ", prompt)
	response, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "yes" || response == "y"
}

func runConfigCommand(args []string) {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	opts := addCommonFlags(fs)
	force := fs.Bool("force", false, "Overwrite an existing file")
	parse(fs, args)

	switch fs.Arg(0) {
	case "init":
		if _, err := os.Stat(opts.configPath); err == nil && !*force {
			fmt.Fprintf(os.Stderr, "%s already exists (use --force to overwrite)\n", opts.configPath)
			os.Exit(1)
		}
		if err := config.DefaultConfig().SaveTo(opts.configPath); err != nil {
			fatal("Error writing config", err)
		}
		fmt.Printf("Wrote %s\n", opts.configPath)

	case "show":
		cfg := opts.load()
		data, err := toml.Marshal(cfg)
		if err != nil {
			fatal("Error encoding config", err)
		}
		fmt.Print(string(data))

	default:
		fmt.Println("Usage: achievement-sync config init|show [--config <file>]")
		os.Exit(1)
	}
}

func runStoreCommand(args []string) {
	fs := flag.NewFlagSet("store", flag.ExitOnError)
	opts := addCommonFlags(fs)
	parse(fs, args)

	cfg := opts.load()
	exitOn("Store command failed", withApp(cfg, func(ctx context.Context, a *app) error {
		return storeCommand(ctx, a, fs.Arg(0), os.Stdout)
	}))
}

func storeCommand(ctx context.Context, a *app, action string, out io.Writer) error {
	switch action {
	case "list", "ls":
		sets, err := a.store.ListSets(ctx)
		if err != nil {
			return err
		}
		for _, s := range sets {
			fmt.Fprintf(out, "%-40s %3d/%-3d  %s\n", s.Name, s.UnlockedCount, s.ItemCount, s.DateLastRefresh.Format("2006-01-02 15:04"))
		}

	case "rebuild":
		sets, err := loadRecordSets(a.persister, a.cfg.Storage.RecordDir)
		if err != nil {
			return fmt.Errorf("read record files: %w", err)
		}
		if err := a.store.Rebuild(ctx, sets); err != nil {
			return err
		}
		fmt.Fprintf(out, "Rebuilt store from %d record files\n", len(sets))

	default:
		fmt.Fprintln(out, "Usage: achievement-sync store list|rebuild")
		return errUsage
	}
	return nil
}
