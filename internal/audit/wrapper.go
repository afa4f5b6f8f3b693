package audit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/brokerdesk/brokerdesk/internal/shared"
)

// SecurityAlert is handed to the external alerting collaborator when a
// request fails with a denylisted error.
type SecurityAlert struct {
	Kind     string
	Message  string
	Severity Severity
	OrgID    *int64
	Data     map[string]any
}

// AlertDispatcher enqueues security alerts, asynchronous and best-effort.
type AlertDispatcher interface {
	Enqueue(ctx context.Context, alert SecurityAlert) error
}

// ActorResolver identifies the authenticated actor for a request, nil when
// anonymous.
type ActorResolver func(r *http.Request) *shared.Actor

// WrapperConfig collects the wrapper's collaborators.
type WrapperConfig struct {
	Recorder *Recorder
	Alerts   AlertDispatcher
	Actor    ActorResolver
	Logger   *slog.Logger
	// Suppress lists path prefixes that never produce request entries
	// (health checks, metrics, static assets).
	Suppress []string
}

// Wrapper audits every request: it establishes the ambient context, writes
// a start entry, writes exactly one terminal entry graded by duration or by
// the failure taxonomy, triggers security alerts for denylisted failures,
// and clears the ambient context no matter how the request ends.
type Wrapper struct {
	recorder *Recorder
	alerts   AlertDispatcher
	actor    ActorResolver
	logger   *slog.Logger
	suppress []string
}

// NewWrapper constructs a Wrapper.
func NewWrapper(cfg WrapperConfig) *Wrapper {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	suppress := cfg.Suppress
	if suppress == nil {
		suppress = []string{"/health", "/metrics", "/static/", "/favicon.ico"}
	}
	return &Wrapper{
		recorder: cfg.Recorder,
		alerts:   cfg.Alerts,
		actor:    cfg.Actor,
		logger:   logger,
		suppress: suppress,
	}
}

// Middleware installs the wrapper on the request pipeline. It belongs after
// RealIP/RequestID and before the authorization middlewares.
func (w *Wrapper) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		var actor *shared.Actor
		if w.actor != nil {
			actor = w.actor(r)
		}
		controller, action := routeNames(r)
		info := shared.NewRequestInfo(actor, r.RemoteAddr, r.UserAgent(),
			middleware.GetReqID(r.Context()), controller, action)
		ctx := shared.Establish(r.Context(), info)

		if w.suppressed(r.URL.Path) {
			defer info.Clear()
			next.ServeHTTP(rw, r.WithContext(ctx))
			return
		}

		category := CategoryForAction(action)
		w.recorder.WriteEntry(ctx, Entry{
			Action:       action + "_start",
			Category:     category,
			Severity:     SeverityInfo,
			ResourceType: controller,
			Details:      map[string]any{"method": r.Method, "path": r.URL.Path},
		})

		start := time.Now()
		defer func() {
			rec := recover()
			duration := time.Since(start)
			switch {
			case rec != nil:
				err := fmt.Errorf("panic: %v", rec)
				w.terminal(ctx, info, category, duration, SeverityCritical, err)
				info.Clear()
				panic(rec)
			case info.Failure() != nil:
				err := info.Failure()
				w.terminal(ctx, info, category, duration, SeverityForError(err), err)
				info.Clear()
			default:
				w.terminal(ctx, info, category, duration, SeverityForDuration(duration), nil)
				info.Clear()
			}
		}()

		next.ServeHTTP(rw, r.WithContext(ctx))
	})
}

// terminal writes the single end-of-request entry and fires alerting for
// denylisted failures. It runs inside the deferred cleanup, so it executes
// on success, failure, panic and timeout-unwind alike.
func (w *Wrapper) terminal(ctx context.Context, info *shared.RequestInfo, category Category, duration time.Duration, severity Severity, failure error) {
	action := info.Action()
	details := map[string]any{
		"duration_ms": duration.Milliseconds(),
		"status":      "succeeded",
	}
	if failure != nil {
		details["status"] = "failed"
		details["error"] = failure.Error()
	}
	w.recorder.WriteEntry(ctx, Entry{
		Action:       action + "_complete",
		Category:     category,
		Severity:     severity,
		ResourceType: info.Controller(),
		Details:      details,
	})

	if failure == nil || w.alerts == nil || !ShouldAlert(failure) {
		return
	}
	alert := SecurityAlert{
		Kind:     "security_violation",
		Message:  failure.Error(),
		Severity: severity,
		Data: map[string]any{
			"controller": info.Controller(),
			"action":     action,
			"ip":         info.IP(),
			"request_id": info.RequestID(),
		},
	}
	if actor := info.Actor(); actor != nil && actor.OrgID != nil {
		org := *actor.OrgID
		alert.OrgID = &org
	}
	// Fire and forget: the response must never wait on the alert queue,
	// and an enqueue failure is logged locally, never raised.
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				w.logger.Error("alert dispatch panicked", slog.Any("panic", rec))
			}
		}()
		enqueueCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.alerts.Enqueue(enqueueCtx, alert); err != nil {
			w.logger.Error("alert dispatch failed", slog.Any("error", err))
		}
	}()
}

func (w *Wrapper) suppressed(path string) bool {
	for _, prefix := range w.suppress {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// routeNames derives controller/action names from the request. The second
// path segment is the action when present, otherwise the HTTP method maps
// to a conventional action name.
func routeNames(r *http.Request) (controller, action string) {
	segments := strings.FieldsFunc(r.URL.Path, func(c rune) bool { return c == '/' })
	if len(segments) > 0 {
		controller = segments[0]
	}
	switch r.Method {
	case http.MethodGet:
		if len(segments) > 1 {
			action = "show"
		} else {
			action = "index"
		}
	case http.MethodPost:
		action = "create"
	case http.MethodPut, http.MethodPatch:
		action = "update"
	case http.MethodDelete:
		action = "destroy"
	default:
		action = strings.ToLower(r.Method)
	}
	if len(segments) > 1 && isVerbSegment(segments[len(segments)-1]) {
		action = segments[len(segments)-1]
	}
	return controller, action
}

func isVerbSegment(segment string) bool {
	switch segment {
	case "sign_in", "sign_out", "submit", "approve", "reject", "new", "edit", "export":
		return true
	}
	return false
}
