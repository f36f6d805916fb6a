package nats

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/nutrition-assistant/internal/infrastructure/resilience"
)

// transientNATSErrors are connection-level failures that a reconnect can fix.
var transientNATSErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrDisconnected,
	nats.ErrConnectionReconnecting,
	nats.ErrSlowConsumer,
}

func classifyPublishError(err error) resilience.ErrorClassification {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return resilience.ErrorClassification{}
	case errors.Is(err, context.DeadlineExceeded), resilience.IsCircuitOpen(err):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	for _, target := range transientNATSErrors {
		if errors.Is(err, target) {
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
	}
	return resilience.ErrorClassification{RecordFailure: true}
}

func wrapPublishError(err error) error {
	return resilience.WrapTemporary("nats publish", err, classifyPublishError)
}
