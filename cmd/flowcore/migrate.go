package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BaSui01/flowcore/config"
	"github.com/BaSui01/flowcore/internal/migration"
)

// =============================================================================
// 🗄️ migrate 命令
// =============================================================================

func runMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	databaseURL := fs.String("database-url", "", "Database URL (overrides config)")
	fs.Parse(args)

	rest := fs.Args()
	if len(rest) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: flowcore migrate <up|down|version|force> [options]")
		os.Exit(1)
	}

	mg, err := newMigrator(*configPath, *databaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrator: %v\n", err)
		os.Exit(1)
	}
	defer mg.Close()

	switch rest[0] {
	case "up":
		if err := mg.Up(); err != nil {
			fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Migrations applied")
	case "down":
		if err := mg.Down(); err != nil {
			fmt.Fprintf(os.Stderr, "Rollback failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Rolled back one migration")
	case "version":
		version, dirty, err := mg.Version()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read version: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Version: %d (dirty: %v)\n", version, dirty)
	case "force":
		if len(rest) < 2 {
			fmt.Fprintln(os.Stderr, "Usage: flowcore migrate force <version>")
			os.Exit(1)
		}
		version, err := strconv.Atoi(rest[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid version %q: %v\n", rest[1], err)
			os.Exit(1)
		}
		if err := mg.Force(version); err != nil {
			fmt.Fprintf(os.Stderr, "Force failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Version forced to %d\n", version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown migrate subcommand: %s\n", rest[0])
		os.Exit(1)
	}
}

func newMigrator(configPath, databaseURL string) (*migration.Migrator, error) {
	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	driver := cfg.Tracking.Database.Driver
	url := databaseURL
	if url == "" {
		url = migrationURL(driver, cfg.Tracking.Database.DSN)
	}
	if url == "" {
		return nil, fmt.Errorf("no database configured: set tracking.database or --database-url")
	}

	return migration.New(migration.Config{
		DatabaseType: migrationType(driver),
		DatabaseURL:  url,
	})
}

// migrationType 将 GORM driver 名映射为迁移方言
func migrationType(driver string) migration.DatabaseType {
	switch driver {
	case "mysql":
		return migration.DatabaseTypeMySQL
	case "postgres":
		return migration.DatabaseTypePostgres
	default:
		return migration.DatabaseTypeSQLite
	}
}

// migrationURL 从 GORM DSN 构造带 scheme 的迁移连接串
func migrationURL(driver, dsn string) string {
	if dsn == "" {
		return ""
	}
	switch driver {
	case "mysql":
		return "mysql://" + dsn
	case "postgres":
		if strings.Contains(dsn, "://") {
			return dsn
		}
		return "postgres://" + dsn
	default:
		return "sqlite3://" + dsn
	}
}
