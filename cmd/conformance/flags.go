package main

import (
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dukex/conformance/pkg/cmd"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultRetries     = 3
	defaultConcurrency = 4
)

func serverFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "fhir-url",
			Usage:    "Base URL of the FHIR server under test",
			Required: true,
			Sources:  cli.EnvVars("FHIR_URL"),
		},
		&cli.StringFlag{
			Name:    "bearer-token",
			Usage:   "Bearer token sent with every request; token-dependent tests are omitted when blank",
			Sources: cli.EnvVars("BEARER_TOKEN"),
		},
		&cli.StringFlag{
			Name:     "patient-id",
			Usage:    "Identifier of the patient every patient-scoped search targets",
			Required: true,
			Sources:  cli.EnvVars("PATIENT_ID"),
		},
		&cli.StringSliceFlag{
			Name:    "entity",
			Aliases: []string{"e"},
			Usage:   "Entity types to test (all when omitted)",
			Sources: cli.EnvVars("ENTITY_TYPES"),
		},
	}
}

func environmentFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Run archive: file://dir or postgres://... (no archive when blank)",
			Sources: cli.EnvVars("DATABASE_URL"),
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
			Value:   defaultConcurrency,
			Sources: cli.EnvVars("CONCURRENCY"),
		},
		&cli.DurationFlag{
			Name:    "timeout",
			Usage:   "Timeout of a single request",
			Value:   defaultTimeout,
			Sources: cli.EnvVars("REQUEST_TIMEOUT"),
		},
		&cli.IntFlag{
			Name:    "retries",
			Usage:   "Attempts per request when the server answers 5xx",
			Value:   defaultRetries,
			Sources: cli.EnvVars("REQUEST_RETRIES"),
		},
		&cli.BoolFlag{
			Name:    "otel",
			Usage:   "Export traces over OTLP/HTTP",
			Sources: cli.EnvVars("OTEL_ENABLED"),
		},
	}
}

func logFlags() []cli.Flag {
	return []cli.Flag{
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
	}
}

func flags(groups ...[]cli.Flag) []cli.Flag {
	var all []cli.Flag
	for _, group := range groups {
		all = append(all, group...)
	}

	return all
}

func environmentConfig(command *cli.Command) cmd.Config {
	return cmd.Config{
		FHIRURL:        command.String("fhir-url"),
		Timeout:        command.Duration("timeout"),
		Retries:        command.Int("retries"),
		DatabaseURL:    command.String("database-url"),
		ReferenceStore: command.String("reference-store"),
		EventBus:       command.String("event-bus"),
		KafkaBrokers:   command.String("kafka-brokers"),
		EntitiesFile:   command.String("entities-file"),
		ProfilesPath:   command.String("profiles-path"),
		Concurrency:    command.Int("concurrency"),
		Tracing:        command.Bool("otel"),
	}
}
