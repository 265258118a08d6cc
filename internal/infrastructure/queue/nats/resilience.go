package nats

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/selfcanonical/csvmerge/internal/core/domain"
	"github.com/selfcanonical/csvmerge/internal/infrastructure/resilience"
)

// classifyPublishError maps a failed job-queued publish to a retry
// verdict. Connection-level trouble is worth retrying; a bad subject or
// an oversized payload means the publish itself is wrong and retrying
// would re-send the same broken message.
func classifyPublishError(err error) resilience.Verdict {
	switch {
	case err == nil:
		return resilience.Ignore
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.Ignore
	case errors.Is(err, nats.ErrBadSubject), errors.Is(err, nats.ErrMaxPayload):
		return resilience.Fatal
	case errors.Is(err, nats.ErrNoServers),
		errors.Is(err, nats.ErrTimeout),
		errors.Is(err, nats.ErrConnectionClosed),
		errors.Is(err, nats.ErrConnectionReconnecting),
		errors.Is(err, nats.ErrDisconnected):
		return resilience.Retry
	case resilience.IsCircuitOpen(err):
		return resilience.Retry
	}
	return resilience.Fatal
}

// asQueueError marks transport-level publish failures as temporary so
// the API answers 503 instead of 500 and the client can resubmit the
// job later.
func asQueueError(err error) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifyPublishError(err) == resilience.Retry || resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, "queue merge job", err)
	}
	return err
}
