package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/angelmondragon/storefront-backend/pkg/bootstrap"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
)

type dbCommand func(ctx context.Context, r *migrate.Runner, version string) error

var dbCommands = map[string]dbCommand{
	"up":   func(ctx context.Context, r *migrate.Runner, _ string) error { return r.Up(ctx) },
	"down": func(ctx context.Context, r *migrate.Runner, _ string) error { return r.Down(ctx) },
	"redo": func(ctx context.Context, r *migrate.Runner, _ string) error { return r.Redo(ctx) },
	"status": func(ctx context.Context, r *migrate.Runner, _ string) error {
		return r.Status(ctx)
	},
	"version": func(ctx context.Context, r *migrate.Runner, version string) error {
		if version == "" {
			v, err := r.Version(ctx)
			if err == nil {
				fmt.Println("current version:", v)
			}
			return err
		}
		target, err := strconv.ParseInt(version, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid -version %q: %w", version, err)
		}
		return r.To(ctx, target)
	},
}

func main() {
	cmd := flag.String("cmd", "up", "up|down|status|redo|version|create|validate")
	dir := flag.String("dir", migrate.DefaultDir, "migrations directory; empty uses the set compiled into the binary")
	name := flag.String("name", "", "migration name for -cmd=create")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version; empty prints the current one")
	flag.Parse()

	// create and validate only touch the filesystem
	switch *cmd {
	case "create":
		path, err := migrate.CreateSQLMigration(*dir, *name)
		exitOn(err, "create migration")
		fmt.Println("created migration:", path)
		return
	case "validate":
		exitOn(migrate.Validate(migrate.Source(*dir)), "validate migrations")
		fmt.Println("migration validation passed")
		return
	}

	run, ok := dbCommands[*cmd]
	if !ok {
		fmt.Fprintln(os.Stderr, "unknown -cmd value:", *cmd)
		os.Exit(2)
	}

	cfg, logg := bootstrap.Start("migrate")
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": *cmd,
		"dir": *dir,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	bootstrap.Must(ctx, logg, "database unavailable", err)
	defer bootstrap.Close(logg, "database", dbClient)

	sqlDB, err := dbClient.DB().DB()
	bootstrap.Must(ctx, logg, "extract sql.DB", err)

	runner, err := migrate.NewRunner(sqlDB, migrate.Source(*dir), os.Stdout)
	bootstrap.Must(ctx, logg, "load migrations", err)

	logg.Info(ctx, "migrate.start")
	if err := run(ctx, runner, *version); err != nil {
		logg.Error(ctx, "migrate.failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "migrate.done")
}

func exitOn(err error, what string) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "%s: %v\n", what, err)
	os.Exit(1)
}
