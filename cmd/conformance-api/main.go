// Package main provides the conformance API server.
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/dukex/conformance/pkg/cmd"
	"github.com/dukex/conformance/pkg/log"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "conformance-api",
		Usage:                 "Start and inspect conformance runs over HTTP",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "fhir-url",
				Usage:    "Base URL of the FHIR server under test",
				Required: true,
				Sources:  cli.EnvVars("FHIR_URL"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Run archive: file://dir or postgres://...",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "reference-store",
				Usage:   "Discovered reference store: memory or redis://...",
				Value:   "memory",
				Sources: cli.EnvVars("REFERENCE_STORE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Run lifecycle event bus (none, gochannel, kafka)",
				Value:   "none",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "profiles-path",
				Usage:   "Directory of additional profile schemas",
				Sources: cli.EnvVars("PROFILES_PATH"),
			},
			&cli.StringFlag{
				Name:    "entities-file",
				Usage:   "JSON entity table replacing the built-in one",
				Sources: cli.EnvVars("ENTITIES_FILE"),
			},
			&cli.IntFlag{
				Name:    "concurrency",
				Usage:   "Sequences executed at the same time within one run",
				Value:   4,
				Sources: cli.EnvVars("CONCURRENCY"),
			},
			&cli.BoolFlag{
				Name:    "otel",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("api")

			logger.InfoContext(ctx, "Initializing Conformance API")

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			env, err := cmd.NewEnvironment(ctx, logger, cmd.Config{
				FHIRURL:        command.String("fhir-url"),
				DatabaseURL:    command.String("database-url"),
				ReferenceStore: command.String("reference-store"),
				EventBus:       command.String("event-bus"),
				KafkaBrokers:   command.String("kafka-brokers"),
				EntitiesFile:   command.String("entities-file"),
				ProfilesPath:   command.String("profiles-path"),
				Concurrency:    command.Int("concurrency"),
				Tracing:        command.Bool("otel"),
				ServiceName:    "conformance-api",
			})
			if err != nil {
				return err
			}

			defer func() {
				if err := env.Close(context.WithoutCancel(ctx)); err != nil {
					logger.ErrorContext(ctx, "Failed to release resources", "error", err)
				}
			}()

			app := NewAPI(logger, env.Coordinator, env.Persistence).App()

			go func() {
				<-ctx.Done()

				logger.Info("Shutting down API")

				if err := app.Shutdown(); err != nil {
					logger.Error("Failed to shut down API", "error", err)
				}
			}()

			if err := app.Listen(":" + strconv.Itoa(command.Int("port"))); err != nil {
				logger.ErrorContext(ctx, "API server stopped", "error", err)

				return err
			}

			// Submitted runs finish before their archive is closed.
			env.Coordinator.Wait()

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
