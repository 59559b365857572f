package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"famsync/internal/config"
	"famsync/internal/database"
	"famsync/internal/logging"
	"famsync/internal/service"
)

// stdio selects stdin or stdout in place of a file path
const stdio = "-"

var errUsage = errors.New("usage")

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(2)
	}

	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel, false)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, os.Args[1], os.Args[2:]); err != nil {
		if errors.Is(err, errUsage) {
			printUsage(os.Stderr)
			os.Exit(2)
		}
		logger.Fatal("backup failed", zap.String("command", os.Args[1]), zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, command string, args []string) error {
	var action func(*service.BackupService) error

	switch command {
	case "export":
		fs := flag.NewFlagSet("export", flag.ExitOnError)
		output := fs.String("output", "", "Output file path, - for stdout (default: backup_YYYYMMDD_HHMMSS.json)")
		fs.Parse(args)
		action = func(backups *service.BackupService) error {
			return export(ctx, logger, backups, *output)
		}

	case "import":
		fs := flag.NewFlagSet("import", flag.ExitOnError)
		input := fs.String("input", "", "Input file path, - for stdin (required)")
		clearFirst := fs.Bool("clear", false, "Clear the cache before importing (destructive)")
		yes := fs.Bool("yes", false, "Skip the -clear confirmation prompt")
		fs.Parse(args)
		if *input == "" {
			fmt.Fprintln(os.Stderr, "Error: -input flag is required")
			fs.PrintDefaults()
			os.Exit(2)
		}
		if *clearFirst && *input == stdio && !*yes {
			return errors.New("-clear with stdin input needs -yes")
		}
		action = func(backups *service.BackupService) error {
			if *clearFirst {
				if !*yes && !confirm(os.Stdin, os.Stdout) {
					logger.Info("import cancelled")
					return nil
				}
				logger.Info("clearing cache")
				if err := backups.Clear(ctx); err != nil {
					return err
				}
			}
			return restore(ctx, logger, backups, *input)
		}

	default:
		return errUsage
	}

	db, err := database.InitializeWithConfig(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	// The schema must exist before an import into a fresh cache
	if _, err := db.RunMigrations(ctx, cfg.MigrationsPath); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return action(service.NewBackupService(db, logger))
}

func export(ctx context.Context, logger *zap.Logger, backups *service.BackupService, outputPath string) error {
	if outputPath == stdio {
		return backups.ExportToWriter(ctx, os.Stdout)
	}
	if outputPath == "" {
		outputPath = fmt.Sprintf("backup_%s.json", time.Now().Format("20060102_150405"))
	}
	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	logger.Info("exporting cache", zap.String("path", outputPath))
	if err := backups.Export(ctx, outputPath); err != nil {
		return err
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return err
	}
	logger.Info("export complete", zap.String("path", outputPath), zap.Int64("bytes", info.Size()))
	return nil
}

func restore(ctx context.Context, logger *zap.Logger, backups *service.BackupService, inputPath string) error {
	if inputPath == stdio {
		return backups.ImportFromReader(ctx, os.Stdin)
	}
	if _, err := os.Stat(inputPath); err != nil {
		return fmt.Errorf("cannot read input: %w", err)
	}

	logger.Info("importing cache", zap.String("path", inputPath))
	if err := backups.Import(ctx, inputPath); err != nil {
		return err
	}
	logger.Info("import complete", zap.String("path", inputPath))
	return nil
}

// confirm asks before a destructive clear and accepts only "yes"
func confirm(in io.Reader, out io.Writer) bool {
	fmt.Fprint(out, "This deletes every cached account, family, user and event. Type 'yes' to continue: ")
	line, _ := bufio.NewReader(in).ReadString('\n')
	return strings.TrimSpace(line) == "yes"
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `famsync cache backup

Usage:
  backup export [-output FILE|-]
  backup import -input FILE|- [-clear [-yes]]

Export writes accounts, families, users and cached events as JSON. Import
merges a backup into the cache; -clear empties the cache first.

Examples:
  backup export -output backups/cache.json
  backup export -output - | gzip > cache.json.gz
  gunzip -c cache.json.gz | backup import -input - -clear -yes

Environment:
  DB_TYPE         sqlite, postgres or mysql (default: sqlite)
  DB_PATH         SQLite cache path (default: ./famsync.db)
  DATABASE_URL    PostgreSQL or MySQL connection URL
  MIGRATIONS_PATH migrations directory (default: ./migrations)
`)
}
