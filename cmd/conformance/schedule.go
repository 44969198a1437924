package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/dukex/conformance/pkg/cmd"
	"github.com/dukex/conformance/pkg/log"
	"github.com/dukex/conformance/pkg/models"
	"github.com/dukex/conformance/pkg/scheduler"
)

const shutdownTimeout = 5 * time.Minute

func ScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "Re-run the selected sequences on a cron expression until interrupted",
		Flags: flags(serverFlags(), environmentFlags(), []cli.Flag{
			&cli.StringFlag{
				Name:     "cron",
				Usage:    "Standard 5-field cron expression, e.g. \"0 2 * * *\"",
				Required: true,
				Sources:  cli.EnvVars("SCHEDULE_CRON"),
			},
			&cli.BoolFlag{
				Name:  "run-now",
				Usage: "Also run once at startup",
			},
		}),
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("schedule")

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			env, err := cmd.NewEnvironment(ctx, logger, environmentConfig(command))
			if err != nil {
				return err
			}

			defer func() {
				if err := env.Close(context.WithoutCancel(ctx)); err != nil {
					logger.ErrorContext(ctx, "Failed to release resources", "error", err)
				}
			}()

			schedule, err := models.NewRunSchedule(
				uuid.NewString(),
				command.String("cron"),
				command.String("patient-id"),
				command.StringSlice("entity"),
			)
			if err != nil {
				return err
			}

			s := scheduler.New(env.Coordinator, logger)
			if err := s.Add(schedule, command.String("bearer-token")); err != nil {
				return err
			}

			s.Start(ctx)

			if command.Bool("run-now") {
				go func() {
					if _, err := s.RunNow(schedule.ID); err != nil {
						logger.ErrorContext(ctx, "Initial run failed", "error", err)
					}
				}()
			}

			<-ctx.Done()

			logger.Info("Stopping scheduler")

			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()

			return s.Stop(stopCtx)
		},
	}
}
