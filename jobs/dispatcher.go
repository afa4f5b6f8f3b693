package jobs

import (
	"context"

	"github.com/hibiken/asynq"

	"github.com/brokerdesk/brokerdesk/internal/audit"
)

// Dispatcher submits security alerts to the queue. It satisfies the request
// wrapper's dispatcher contract; enqueue errors surface to the caller, which
// treats them as best-effort.
type Dispatcher struct {
	client *asynq.Client
}

// NewDispatcher constructs an Asynq-backed dispatcher.
func NewDispatcher(redisOpts asynq.RedisClientOpt) *Dispatcher {
	return &Dispatcher{client: asynq.NewClient(redisOpts)}
}

// Enqueue implements audit.AlertDispatcher.
func (d *Dispatcher) Enqueue(ctx context.Context, alert audit.SecurityAlert) error {
	task, err := NewSecurityAlertTask(SecurityAlertPayload{
		Kind:     alert.Kind,
		Message:  alert.Message,
		Severity: string(alert.Severity),
		OrgID:    alert.OrgID,
		Data:     alert.Data,
	})
	if err != nil {
		return err
	}
	_, err = d.client.EnqueueContext(ctx, task, asynq.Queue(QueueCritical))
	return err
}

// Close releases client resources.
func (d *Dispatcher) Close() error {
	return d.client.Close()
}
