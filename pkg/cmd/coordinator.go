package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/conformance/pkg/client"
	"github.com/dukex/conformance/pkg/coordinator"
	"github.com/dukex/conformance/pkg/eventbus"
	"github.com/dukex/conformance/pkg/otelhelper"
	"github.com/dukex/conformance/pkg/persistence"
	"github.com/dukex/conformance/pkg/profile"
	"github.com/dukex/conformance/pkg/suite"
)

// Config collects everything a binary needs to build a coordinator.
type Config struct {
	FHIRURL        string
	Timeout        time.Duration
	Retries        int
	DatabaseURL    string
	ReferenceStore string
	EventBus       string
	KafkaBrokers   string
	EntitiesFile   string
	ProfilesPath   string
	Concurrency    int
	Tracing        bool
	ServiceName    string
}

// Environment is an assembled coordinator together with the resources it owns.
type Environment struct {
	Coordinator *coordinator.Coordinator
	Suite       *suite.Suite
	Persistence persistence.Persistence
	EventBus    eventbus.EventBus

	closers []func(context.Context) error
}

// Close releases every resource in reverse order of acquisition.
func (e *Environment) Close(ctx context.Context) error {
	var errs []error

	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// NewSuite loads the entity table from path, or the built-in table when path is empty.
func NewSuite(path string) (*suite.Suite, error) {
	if path == "" {
		return suite.Default(), nil
	}

	return suite.Load(path)
}

// NewProfiles returns the bundled profile validator extended with the schemas in dir.
func NewProfiles(logger *slog.Logger, dir string) (*profile.SchemaValidator, error) {
	validator, err := profile.NewDefaultValidator(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load bundled profiles: %w", err)
	}

	if dir == "" {
		return validator, nil
	}

	count, err := validator.LoadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load profiles from %s: %w", dir, err)
	}

	logger.Info("profiles loaded", "path", dir, "count", count)

	return validator, nil
}

// NewEnvironment assembles a coordinator from config. On error every resource acquired so
// far is released.
func NewEnvironment(ctx context.Context, logger *slog.Logger, config Config) (*Environment, error) {
	if logger == nil {
		logger = slog.Default()
	}

	env := &Environment{}

	fail := func(err error) (*Environment, error) {
		if closeErr := env.Close(ctx); closeErr != nil {
			logger.ErrorContext(ctx, "failed to release resources", "error", closeErr)
		}

		return nil, err
	}

	s, err := NewSuite(config.EntitiesFile)
	if err != nil {
		return fail(err)
	}

	env.Suite = s

	fhirClient, err := client.NewHTTPClient(client.Config{
		BaseURL: config.FHIRURL,
		Timeout: config.Timeout,
		Retries: config.Retries,
	}, logger)
	if err != nil {
		return fail(err)
	}

	logger.InfoContext(ctx, "fhir client configured", "base_url", fhirClient.BaseURL(), "timeout", config.Timeout, "retries", config.Retries)

	profiles, err := NewProfiles(logger, config.ProfilesPath)
	if err != nil {
		return fail(err)
	}

	opts := []coordinator.Option{
		coordinator.WithProfiles(profiles),
		coordinator.WithConcurrency(config.Concurrency),
	}

	if config.Tracing {
		name := config.ServiceName
		if name == "" {
			name = serviceName
		}

		tracer, shutdown, err := otelhelper.NewTracer(ctx, name)
		if err != nil {
			return fail(fmt.Errorf("failed to initialize tracer: %w", err))
		}

		env.closers = append(env.closers, shutdown)
		opts = append(opts, coordinator.WithTracer(tracer))
	}

	if config.DatabaseURL != "" {
		p, err := NewPersistence(ctx, logger, config.DatabaseURL)
		if err != nil {
			return fail(err)
		}

		env.Persistence = p
		env.closers = append(env.closers, p.Close)
		opts = append(opts, coordinator.WithPersistence(p))
	}

	references, closeReferences, err := NewReferenceRepository(ctx, logger, config.ReferenceStore)
	if err != nil {
		return fail(err)
	}

	env.closers = append(env.closers, func(context.Context) error { return closeReferences() })

	if references != nil {
		opts = append(opts, coordinator.WithReferenceRepository(references))
	}

	bus, err := NewEventBus(config.EventBus, config.KafkaBrokers, logger)
	if err != nil {
		return fail(err)
	}

	if bus != nil {
		env.EventBus = bus
		env.closers = append(env.closers, func(context.Context) error { return bus.Close() })
		opts = append(opts, coordinator.WithPublisher(bus))
	}

	env.Coordinator = coordinator.New(s.Definitions(), fhirClient, logger, opts...)

	return env, nil
}
