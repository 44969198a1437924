package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/dukex/conformance/pkg/cmd"
	"github.com/dukex/conformance/pkg/log"
	"github.com/dukex/conformance/pkg/models"
)

func RunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Run the selected sequences once and print the report",
		Flags: flags(serverFlags(), environmentFlags(), []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Report format (text, json)",
				Value:   "text",
			},
			&cli.BoolFlag{
				Name:  "fail-on-failure",
				Usage: "Exit with a non-zero status when any test fails or errors",
				Value: true,
			},
		}),
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("run")

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

			report, runErr := env.Coordinator.StartRun(ctx,
				command.String("patient-id"),
				command.String("bearer-token"),
				command.StringSlice("entity"))
			if report == nil {
				return runErr
			}

			if err := writeReport(os.Stdout, report, command.String("output")); err != nil {
				return err
			}

			if runErr != nil {
				return runErr
			}

			if command.Bool("fail-on-failure") && report.Status.Rank() >= models.OutcomeFail.Rank() {
				return cli.Exit(fmt.Sprintf("run %s finished with status %s", report.RunID, report.Status), 1)
			}

			return nil
		},
	}
}
