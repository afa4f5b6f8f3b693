package audit

import (
	"context"
	"log/slog"
	"reflect"
	"strings"

	"github.com/brokerdesk/brokerdesk/internal/authz"
	"github.com/brokerdesk/brokerdesk/internal/shared"
)

// Auditable is the capability a domain entity implements to opt into change
// auditing. AuditFields returns the current field values by column name.
type Auditable interface {
	ResourceType() string
	ResourceID() string
	AuditFields() map[string]any
}

// OrganizationResolvable lets an entity attribute its entries to an
// organization even when no ambient request context is present.
type OrganizationResolvable interface {
	OrganizationID() (int64, bool)
}

// TypeConfig is the immutable per-type recorder configuration, built once
// at startup. An empty Only list means every non-skipped field is audited.
type TypeConfig struct {
	Only []string
}

// Fields dropped from every diff: bookkeeping columns and credential
// material that must never reach audit storage.
var skippedFields = map[string]struct{}{
	"created_at":     {},
	"updated_at":     {},
	"deleted_at":     {},
	"lock_version":   {},
	"password":       {},
	"password_hash":  {},
	"password_salt":  {},
	"remember_token": {},
	"reset_token":    {},
	"api_key":        {},
	"secret":         {},
}

// Recorder captures entity mutations and manual domain actions as audit
// entries. Append failures are logged to the fallback logger and swallowed:
// a broken audit sink must never take down a business operation.
type Recorder struct {
	store   Appender
	logger  *slog.Logger
	configs map[string]TypeConfig
}

// NewRecorder constructs a Recorder. configs may be nil.
func NewRecorder(store Appender, logger *slog.Logger, configs map[string]TypeConfig) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if configs == nil {
		configs = make(map[string]TypeConfig)
	}
	return &Recorder{store: store, logger: logger, configs: configs}
}

// RecordCreate captures a freshly created entity.
func (r *Recorder) RecordCreate(ctx context.Context, entity Auditable) {
	fields := r.auditedFields(entity.ResourceType(), entity.AuditFields())
	r.write(ctx, Entry{
		Action:       "create",
		Category:     CategoryDataModification,
		Severity:     SeverityInfo,
		ResourceType: entity.ResourceType(),
		ResourceID:   entity.ResourceID(),
		OrgID:        entityOrg(entity),
		Details:      map[string]any{"attributes": fields},
	})
}

// RecordUpdate captures the field-level diff between two states of the same
// entity. No entry is written when the effective diff is empty.
func (r *Recorder) RecordUpdate(ctx context.Context, before, after Auditable) {
	changes := r.diff(after.ResourceType(), before.AuditFields(), after.AuditFields())
	if len(changes) == 0 {
		return
	}
	r.write(ctx, Entry{
		Action:       "update",
		Category:     CategoryDataModification,
		Severity:     SeverityInfo,
		ResourceType: after.ResourceType(),
		ResourceID:   after.ResourceID(),
		OrgID:        entityOrg(after),
		Details:      map[string]any{"changes": changes},
	})
}

// RecordDestroy captures an entity removal with its final state.
func (r *Recorder) RecordDestroy(ctx context.Context, entity Auditable) {
	fields := r.auditedFields(entity.ResourceType(), entity.AuditFields())
	r.write(ctx, Entry{
		Action:       "destroy",
		Category:     CategoryDataModification,
		Severity:     SeverityWarning,
		ResourceType: entity.ResourceType(),
		ResourceID:   entity.ResourceID(),
		OrgID:        entityOrg(entity),
		Details:      map[string]any{"attributes": fields},
	})
}

// LogCustomAction records a domain action that is not plain CRUD.
func (r *Recorder) LogCustomAction(ctx context.Context, action string, category Category, resourceType, resourceID string, details map[string]any) {
	if category == "" {
		category = CategorySystemAccess
	}
	r.write(ctx, Entry{
		Action:       action,
		Category:     category,
		Severity:     SeverityInfo,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
	})
}

// LogAccess records a read of a specific resource.
func (r *Recorder) LogAccess(ctx context.Context, resourceType, resourceID string, details map[string]any) {
	r.write(ctx, Entry{
		Action:       "access",
		Category:     CategoryDataAccess,
		Severity:     SeverityInfo,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
	})
}

// LogListAccess records a listing read: how many rows came back and whether
// filters narrowed them.
func (r *Recorder) LogListAccess(ctx context.Context, resourceType string, resultCount int, filtered bool) {
	r.write(ctx, Entry{
		Action:       "list",
		Category:     CategoryDataAccess,
		Severity:     SeverityInfo,
		ResourceType: resourceType,
		Details: map[string]any{
			"result_count":    resultCount,
			"filters_applied": filtered,
		},
	})
}

// LogApproval records an approval decision on a workflow resource.
func (r *Recorder) LogApproval(ctx context.Context, entity Auditable, note string) {
	r.logWorkflow(ctx, "approve", entity, note)
}

// LogRejection records a rejection decision on a workflow resource.
func (r *Recorder) LogRejection(ctx context.Context, entity Auditable, note string) {
	r.logWorkflow(ctx, "reject", entity, note)
}

// LogSubmission records a submission of a workflow resource.
func (r *Recorder) LogSubmission(ctx context.Context, entity Auditable, note string) {
	r.logWorkflow(ctx, "submit", entity, note)
}

// LogStatusChange records a status transition.
func (r *Recorder) LogStatusChange(ctx context.Context, entity Auditable, from, to string) {
	r.write(ctx, Entry{
		Action:       "status_change",
		Category:     CategoryDataModification,
		Severity:     SeverityInfo,
		ResourceType: entity.ResourceType(),
		ResourceID:   entity.ResourceID(),
		OrgID:        entityOrg(entity),
		Details:      map[string]any{"from": from, "to": to},
	})
}

func (r *Recorder) logWorkflow(ctx context.Context, action string, entity Auditable, note string) {
	details := map[string]any{}
	if note != "" {
		details["note"] = note
	}
	r.write(ctx, Entry{
		Action:       action,
		Category:     CategoryDataModification,
		Severity:     SeverityInfo,
		ResourceType: entity.ResourceType(),
		ResourceID:   entity.ResourceID(),
		OrgID:        entityOrg(entity),
		Details:      details,
	})
}

// LogAuthorizationAttempt implements authz.AttemptAuditor for high-risk
// actions and privileged resource types.
func (r *Recorder) LogAuthorizationAttempt(ctx context.Context, action, resourceType, resourceID string, allowed bool) {
	severity := SeverityInfo
	if !allowed {
		severity = SeverityWarning
	}
	r.write(ctx, Entry{
		Action:       action,
		Category:     CategoryAuthorization,
		Severity:     severity,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      map[string]any{"allowed": allowed},
	})
}

// LogAuthorizationDenied implements authz.AttemptAuditor; it runs before
// the denial propagates to the caller.
func (r *Recorder) LogAuthorizationDenied(ctx context.Context, denial *authz.Error, resourceType, resourceID string) {
	r.write(ctx, Entry{
		Action:       denial.Action,
		Category:     CategoryAuthorization,
		Severity:     SeverityWarning,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details: map[string]any{
			"denied": true,
			"reason": denial.Reason,
		},
	})
}

// WriteEntry records a fully formed entry, applying ambient attribution and
// redaction. Used by the request wrapper.
func (r *Recorder) WriteEntry(ctx context.Context, entry Entry) {
	r.write(ctx, entry)
}

func (r *Recorder) write(ctx context.Context, entry Entry) {
	info := shared.Current(ctx)
	if actor := info.Actor(); actor != nil {
		if entry.PrincipalID == nil {
			id := actor.ID
			entry.PrincipalID = &id
		}
		if entry.OrgID == nil && actor.OrgID != nil {
			org := *actor.OrgID
			entry.OrgID = &org
		}
	}
	if entry.IP == "" {
		entry.IP = info.IP()
	}
	if entry.UserAgent == "" {
		entry.UserAgent = info.UserAgent()
	}
	entry.Details = Redact(entry.Details)

	if _, err := r.store.Append(ctx, entry); err != nil {
		// Fallback channel; the business operation proceeds.
		r.logger.Error("audit append failed",
			slog.String("action", entry.Action),
			slog.String("resource_type", entry.ResourceType),
			slog.String("resource_id", entry.ResourceID),
			slog.Any("error", err))
	}
}

func (r *Recorder) auditedFields(resourceType string, fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	cfg, hasConfig := r.configs[resourceType]
	for name, value := range fields {
		if r.skipField(name, cfg, hasConfig) {
			continue
		}
		out[name] = value
	}
	return out
}

// diff pairs each changed field with its old and new value, keyed by field
// name. Redact walks the result like any nested details map.
func (r *Recorder) diff(resourceType string, before, after map[string]any) map[string]any {
	changes := make(map[string]any)
	cfg, hasConfig := r.configs[resourceType]
	for name, newValue := range after {
		if r.skipField(name, cfg, hasConfig) {
			continue
		}
		oldValue, existed := before[name]
		if existed && reflect.DeepEqual(oldValue, newValue) {
			continue
		}
		changes[name] = []any{oldValue, newValue}
	}
	return changes
}

func (r *Recorder) skipField(name string, cfg TypeConfig, hasConfig bool) bool {
	lower := strings.ToLower(name)
	if _, skipped := skippedFields[lower]; skipped {
		return true
	}
	if hasConfig && len(cfg.Only) > 0 {
		for _, allowed := range cfg.Only {
			if strings.EqualFold(allowed, name) {
				return false
			}
		}
		return true
	}
	return false
}

func entityOrg(entity Auditable) *int64 {
	scoped, ok := entity.(OrganizationResolvable)
	if !ok {
		return nil
	}
	orgID, set := scoped.OrganizationID()
	if !set {
		return nil
	}
	return &orgID
}
