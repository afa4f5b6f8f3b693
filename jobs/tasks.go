package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/brokerdesk/brokerdesk/internal/audit"
	jobmetrics "github.com/brokerdesk/brokerdesk/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueCritical carries security alerts ahead of routine work.
	QueueCritical = "critical"
	// TaskTypeSecurityAlert is the task type for security alert processing.
	TaskTypeSecurityAlert = "security:alert"
)

// SecurityAlertPayload mirrors the alert raised by the request wrapper.
type SecurityAlertPayload struct {
	Kind     string         `json:"kind"`
	Message  string         `json:"message"`
	Severity string         `json:"severity"`
	OrgID    *int64         `json:"org_id,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// NewSecurityAlertTask constructs an Asynq task.
func NewSecurityAlertTask(payload SecurityAlertPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSecurityAlert, data), nil
}

// SecurityAlertJob acknowledges alerts: it writes a security entry into the
// trail and logs the alert. Delivery to external channels sits behind this
// handler.
type SecurityAlertJob struct {
	Recorder *audit.Recorder
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewSecurityAlertJob initialises the alert handler.
func NewSecurityAlertJob(recorder *audit.Recorder, logger *slog.Logger, metrics *jobmetrics.Metrics) *SecurityAlertJob {
	return &SecurityAlertJob{Recorder: recorder, Logger: logger, Metrics: metrics}
}

// Handle processes TaskTypeSecurityAlert tasks.
func (j *SecurityAlertJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("security alert: handler not configured")
	}
	tracker := j.Metrics.Track("security_alert")
	var payload SecurityAlertPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return tracker.End(asynq.SkipRetry)
	}

	severity := audit.Severity(payload.Severity)
	switch severity {
	case audit.SeverityInfo, audit.SeverityWarning, audit.SeverityError, audit.SeverityCritical:
	default:
		severity = audit.SeverityError
	}

	j.Recorder.WriteEntry(ctx, audit.Entry{
		Action:   "security_alert",
		Category: audit.CategorySecurity,
		Severity: severity,
		OrgID:    payload.OrgID,
		Details: map[string]any{
			"kind":    payload.Kind,
			"message": payload.Message,
			"data":    payload.Data,
		},
	})
	j.Logger.Warn("security alert",
		slog.String("kind", payload.Kind),
		slog.String("severity", string(severity)),
		slog.String("message", payload.Message))
	j.Metrics.AddAlert(string(severity))
	return tracker.End(nil)
}
