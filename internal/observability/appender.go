package observability

import (
	"context"

	"github.com/google/uuid"

	"github.com/brokerdesk/brokerdesk/internal/audit"
)

// InstrumentedAppender wraps an audit store and counts appends per category
// plus append failures.
type InstrumentedAppender struct {
	next    audit.Appender
	metrics *Metrics
}

// InstrumentAppender wraps next with the metrics counters.
func InstrumentAppender(next audit.Appender, metrics *Metrics) *InstrumentedAppender {
	return &InstrumentedAppender{next: next, metrics: metrics}
}

// Append implements audit.Appender.
func (a *InstrumentedAppender) Append(ctx context.Context, entry audit.Entry) (uuid.UUID, error) {
	id, err := a.next.Append(ctx, entry)
	if a.metrics != nil {
		if err != nil {
			a.metrics.auditFailures.Inc()
		} else {
			a.metrics.auditWrites.WithLabelValues(string(entry.Category)).Inc()
		}
	}
	return id, err
}
