package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"

	"github.com/hackportal/hackportal-backend/internal/hardware"
	"github.com/hackportal/hackportal-backend/pkg/config"
	"github.com/hackportal/hackportal-backend/pkg/db"
	pkgerrors "github.com/hackportal/hackportal-backend/pkg/errors"
	"github.com/hackportal/hackportal-backend/pkg/logger"
	"github.com/hackportal/hackportal-backend/pkg/migrate"
	"github.com/hackportal/hackportal-backend/pkg/redis"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	_ = godotenv.Load()
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// run imports the inventory file named by args and returns the process exit
// code. Every resource it opens is closed before it returns.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("hardware-import", flag.ContinueOnError)
	flags.SetOutput(stderr)
	file := flags.String("file", "", "path to the YAML inventory file")
	dryRun := flags.Bool("dry-run", false, "parse the file without writing to the database")
	if err := flags.Parse(args); err != nil {
		return exitUsage
	}
	if *file == "" {
		fmt.Fprintln(stderr, "missing -file")
		return exitUsage
	}

	logg := logger.New(logger.Options{ServiceName: "hardware-import", Output: stderr})

	f, err := os.Open(*file)
	if err != nil {
		return resourceFailure(ctx, logg, "inventory file", err)
	}
	items, err := hardware.ParseInventory(f)
	_ = f.Close()
	if err != nil {
		return reportFailure(stderr, err)
	}

	if *dryRun {
		fmt.Fprintf(stdout, "parsed %d items from %s\n", len(items), *file)
		return exitOK
	}

	cfg, err := config.Load()
	if err != nil {
		return resourceFailure(ctx, logg, "config", err)
	}

	logg = logger.New(logger.Options{
		ServiceName: "hardware-import",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Output:      stderr,
	})
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"file": *file,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return resourceFailure(ctx, logg, "database", err)
	}
	defer dbClient.Close()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return resourceFailure(ctx, logg, "dev migrations", err)
	}

	var notifier hardware.Notifier
	if cfg.Redis.Enabled() && cfg.FeatureFlags.HardwareBroadcast {
		redisClient, err := redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return resourceFailure(ctx, logg, "redis", err)
		}
		defer redisClient.Close()
		notifier, err = hardware.NewRedisNotifier(redisClient, cfg.Hardware.UpdatesChannel)
		if err != nil {
			return resourceFailure(ctx, logg, "hardware notifier", err)
		}
	}

	svc, err := hardware.NewService(hardware.ServiceParams{
		Tx:           dbClient,
		Items:        hardware.NewItemRepository(dbClient.DB()),
		Reservations: hardware.NewReservationRepository(dbClient.DB()),
		Notifier:     notifier,
		Logger:       logg,
		Config:       cfg.Hardware,
	})
	if err != nil {
		return resourceFailure(ctx, logg, "hardware service", err)
	}

	created, err := svc.AddItems(ctx, items)
	if err != nil {
		return reportFailure(stderr, err)
	}
	for _, item := range created {
		fmt.Fprintf(stdout, "imported %s (%s) stock=%d\n", item.Name, item.ID, item.TotalStock)
	}
	return exitOK
}

func reportFailure(stderr io.Writer, err error) int {
	fmt.Fprintf(stderr, "import failed: %v\n", err)
	if typed := pkgerrors.As(err); typed != nil {
		if details, ok := typed.Details().(map[string]string); ok {
			for field, msg := range details {
				fmt.Fprintf(stderr, "  %s: %s\n", field, msg)
			}
		}
	}
	return exitError
}

func resourceFailure(ctx context.Context, logg *logger.Logger, resource string, err error) int {
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	return exitError
}
