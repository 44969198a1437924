package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/dukex/conformance/pkg/channels/gochannel"
	"github.com/dukex/conformance/pkg/channels/kafka"
	"github.com/dukex/conformance/pkg/eventbus"
)

const serviceName = "conformance"

// NewEventBus creates the lifecycle event bus for provider. "none" and "" disable events
// and return nil.
func NewEventBus(provider, brokers string, logger *slog.Logger) (eventbus.EventBus, error) {
	if logger == nil {
		logger = slog.Default()
	}

	watermillLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "", "none":
		return nil, nil
	case "gochannel":
		pub, sub, err := gochannel.CreateChannel(watermillLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-process pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermillLogger, kafka.ParseBrokers(brokers), serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}
